// Package dir implements the entity codec for the Directory CRDT: an
// add-wins map from canonicalized Name to Entry, keyed by dir/<ino>.
package dir

import (
	"encoding/binary"
	"sort"

	"github.com/AntidoteDB/elmerfs/internal/antidotec"
	"github.com/AntidoteDB/elmerfs/internal/model/inode"
	"github.com/AntidoteDB/elmerfs/internal/view"
)

// Entry is one directory entry: a name, the inode it names, and that
// inode's kind (so readdir doesn't need a second round trip per entry).
type Entry struct {
	Name view.Name
	Ino  uint64
	Kind inode.Kind
}

func NewEntry(name view.Name, ino uint64, kind inode.Kind) Entry {
	return Entry{Name: name, Ino: ino, Kind: kind}
}

// Key returns the entity key dir/<ino>, scoped to the view.
func Key(v view.View, ino uint64) antidotec.Key { return antidotec.DirKey(ino, v) }

// selfEntryName is the "." self-referencing entry every directory is
// seeded with a directory's own self-link counting toward its nlink.
const selfEntryName = "."

// Create seeds a brand-new directory map with its "." self entry.
func Create(v view.View, parentIno, selfIno uint64) antidotec.Op {
	self := view.NameRef(selfEntryName).Canonicalize(v)
	return antidotec.PutSetEntry{
		Key:    Key(v, selfIno),
		Member: string(self),
		Value:  encodeEntry(Entry{Name: self, Ino: selfIno, Kind: inode.Directory}),
	}
}

// AddEntry inserts or overwrites a single member of the directory map.
func AddEntry(ino uint64, v view.View, e Entry) antidotec.Op {
	return antidotec.PutSetEntry{
		Key:    Key(v, ino),
		Member: string(e.Name),
		Value:  encodeEntry(e),
	}
}

// RemoveEntry removes a single member of the directory map.
func RemoveEntry(ino uint64, v view.View, e Entry) antidotec.Op {
	return antidotec.RemoveSetEntry{Key: Key(v, ino), Member: string(e.Name)}
}

// Remove resets the whole directory map. A no-op if the key is absent,
// which is what makes it safe to call unconditionally from the deferred
// deleter.
func Remove(v view.View, ino uint64) antidotec.Op {
	return antidotec.Reset{Key: Key(v, ino)}
}

// Read returns the antidotec.Key to read in order to later Decode this
// directory's entries.
func Read(v view.View, ino uint64) antidotec.Key { return Key(v, ino) }

// Entries is the decoded directory map: canonical Name -> Entry.
type Entries map[view.Name]Entry

// Get resolves a NameRef, canonicalizing it first.
func (e Entries) Get(v view.View, n view.NameRef) (Entry, bool) {
	entry, ok := e[n.Canonicalize(v)]
	return entry, ok
}

// Sorted returns every entry ordered by canonical name, giving readdir a
// stable iteration order to page through despite the backing add-wins map
// having none of its own.
func (e Entries) Sorted() []Entry {
	out := make([]Entry, 0, len(e))
	for _, entry := range e {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NonSelfCount returns the number of entries excluding ".", which is what
// an inode's `size` field is defined to track for directories.
func (e Entries) NonSelfCount() int {
	n := 0
	for name := range e {
		if name.String() != selfEntryName {
			n++
		}
	}
	return n
}

// Decode parses reply[idx] into Entries. It returns (nil, false) iff the
// directory entity does not exist at all (no set members, no prior
// Create) — used as the existence test for "is this inode a directory with
// backing storage".
func Decode(replies []antidotec.Reply, idx int) (Entries, bool) {
	if idx >= len(replies) {
		return nil, false
	}
	r := replies[idx]
	if !r.Exists {
		return nil, false
	}

	entries := make(Entries, len(r.SetEntries))
	for _, raw := range r.SetEntries {
		e := decodeEntry(raw)
		entries[e.Name] = e
	}
	return entries, true
}

func encodeEntry(e Entry) []byte {
	name := []byte(e.Name)
	buf := make([]byte, 0, 8+1+len(name))
	var inoBuf [8]byte
	binary.BigEndian.PutUint64(inoBuf[:], e.Ino)
	buf = append(buf, inoBuf[:]...)
	buf = append(buf, byte(e.Kind))
	buf = append(buf, name...)
	return buf
}

func decodeEntry(b []byte) Entry {
	if len(b) < 9 {
		return Entry{}
	}
	ino := binary.BigEndian.Uint64(b[:8])
	kind := inode.Kind(b[8])
	name := view.Name(b[9:])
	return Entry{Name: name, Ino: ino, Kind: kind}
}
