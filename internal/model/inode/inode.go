// Package inode implements the entity codec for the Inode CRDT: encode/decode
// rules mapping an inode's fields onto registers and a counter inside one
// add-wins map, keyed by inode/<ino>.
package inode

import (
	"encoding/binary"
	"time"

	"github.com/AntidoteDB/elmerfs/internal/antidotec"
)

// Kind is the tagged variant of an inode: disjoint key namespaces per kind
// at the storage layer, no dynamic dispatch needed.
type Kind uint8

const (
	Directory Kind = iota
	Regular
	Symlink
)

// RootIno is the well-known inode number of the filesystem root.
const RootIno uint64 = 1

// Owner is the POSIX uid/gid pair.
type Owner struct {
	Uid uint32
	Gid uint32
}

// Inode is the in-memory representation of an inode/<ino> entity.
type Inode struct {
	Ino    uint64
	Kind   Kind
	Parent uint64
	Atime  time.Duration
	Ctime  time.Duration
	Mtime  time.Duration
	Owner  Owner
	Mode   uint32
	Size   uint64
	Nlink  uint32
}

const (
	fieldKind   = "kind"
	fieldParent = "parent"
	fieldAtime  = "atime"
	fieldCtime  = "ctime"
	fieldMtime  = "mtime"
	fieldUid    = "uid"
	fieldGid    = "gid"
	fieldMode   = "mode"
	fieldSize   = "size"
	fieldNlink  = "nlink" // counter, not register
)

// Key returns the entity key inode/<ino>.
func Key(ino uint64) antidotec.Key { return antidotec.InodeKey(ino) }

// Create returns the full set of register writes plus the initial nlink
// counter delta for a brand-new inode.
func Create(i *Inode) []antidotec.Op {
	k := Key(i.Ino)
	ops := []antidotec.Op{
		antidotec.PutRegister{Key: k, Field: fieldKind, Value: []byte{byte(i.Kind)}},
		antidotec.PutRegister{Key: k, Field: fieldParent, Value: encodeU64(i.Parent)},
		antidotec.PutRegister{Key: k, Field: fieldAtime, Value: encodeDuration(i.Atime)},
		antidotec.PutRegister{Key: k, Field: fieldCtime, Value: encodeDuration(i.Ctime)},
		antidotec.PutRegister{Key: k, Field: fieldMtime, Value: encodeDuration(i.Mtime)},
		antidotec.PutRegister{Key: k, Field: fieldUid, Value: encodeU32(i.Owner.Uid)},
		antidotec.PutRegister{Key: k, Field: fieldGid, Value: encodeU32(i.Owner.Gid)},
		antidotec.PutRegister{Key: k, Field: fieldMode, Value: encodeU32(i.Mode)},
		antidotec.PutRegister{Key: k, Field: fieldSize, Value: encodeU64(i.Size)},
	}
	if i.Nlink > 0 {
		ops = append(ops, antidotec.IncrCounter{Key: k, Field: fieldNlink, Delta: int64(i.Nlink)})
	}
	return ops
}

// UpdateStats writes only the mutable field set
// {mode, owner, size, atime, mtime, ctime} — nlink is never touched here,
// it always moves through IncrLinkCount/DecrLinkCount.
func UpdateStats(i *Inode) []antidotec.Op {
	k := Key(i.Ino)
	return []antidotec.Op{
		antidotec.PutRegister{Key: k, Field: fieldMode, Value: encodeU32(i.Mode)},
		antidotec.PutRegister{Key: k, Field: fieldUid, Value: encodeU32(i.Owner.Uid)},
		antidotec.PutRegister{Key: k, Field: fieldGid, Value: encodeU32(i.Owner.Gid)},
		antidotec.PutRegister{Key: k, Field: fieldSize, Value: encodeU64(i.Size)},
		antidotec.PutRegister{Key: k, Field: fieldAtime, Value: encodeDuration(i.Atime)},
		antidotec.PutRegister{Key: k, Field: fieldMtime, Value: encodeDuration(i.Mtime)},
		antidotec.PutRegister{Key: k, Field: fieldCtime, Value: encodeDuration(i.Ctime)},
	}
}

// IncrLinkCount/DecrLinkCount apply a counter delta to nlink, modeled as a
// counter rather than an LWW register so concurrent link/unlink operations
// commute.
func IncrLinkCount(ino uint64, n uint32) antidotec.Op {
	return antidotec.IncrCounter{Key: Key(ino), Field: fieldNlink, Delta: int64(n)}
}

func DecrLinkCount(ino uint64, n uint32) antidotec.Op {
	return antidotec.IncrCounter{Key: Key(ino), Field: fieldNlink, Delta: -int64(n)}
}

// Remove resets the whole inode map, as if it never existed.
func Remove(ino uint64) antidotec.Op {
	return antidotec.Reset{Key: Key(ino)}
}

// Read returns the antidotec.Key to read in order to later Decode this ino.
func Read(ino uint64) antidotec.Key { return Key(ino) }

// Decode parses reply[idx] into an Inode. It returns (nil, false) iff any
// required field is missing, which is used throughout the driver as the
// existence test for an inode.
func Decode(ino uint64, replies []antidotec.Reply, idx int) (*Inode, bool) {
	if idx >= len(replies) {
		return nil, false
	}
	r := replies[idx]
	if !r.Exists {
		return nil, false
	}

	required := []string{fieldKind, fieldParent, fieldAtime, fieldCtime, fieldMtime, fieldUid, fieldGid, fieldMode, fieldSize}
	for _, f := range required {
		if _, ok := r.Registers[f]; !ok {
			return nil, false
		}
	}

	return &Inode{
		Ino:    ino,
		Kind:   Kind(r.Registers[fieldKind][0]),
		Parent: decodeU64(r.Registers[fieldParent]),
		Atime:  decodeDuration(r.Registers[fieldAtime]),
		Ctime:  decodeDuration(r.Registers[fieldCtime]),
		Mtime:  decodeDuration(r.Registers[fieldMtime]),
		Owner: Owner{
			Uid: decodeU32(r.Registers[fieldUid]),
			Gid: decodeU32(r.Registers[fieldGid]),
		},
		Mode:  decodeU32(r.Registers[fieldMode]),
		Size:  decodeU64(r.Registers[fieldSize]),
		Nlink: uint32(r.Counters[fieldNlink]),
	}, true
}

func encodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func decodeU32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeU64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func encodeDuration(d time.Duration) []byte {
	return encodeU64(uint64(d))
}

func decodeDuration(b []byte) time.Duration {
	return time.Duration(decodeU64(b))
}
