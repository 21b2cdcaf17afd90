package dir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntidoteDB/elmerfs/internal/antidotec"
	"github.com/AntidoteDB/elmerfs/internal/model/inode"
	"github.com/AntidoteDB/elmerfs/internal/view"
)

const testView view.View = "t1"

func entriesFromOps(ops []antidotec.Op) Entries {
	r := antidotec.Reply{Exists: true, SetEntries: map[string][]byte{}}
	for _, op := range ops {
		switch o := op.(type) {
		case antidotec.PutSetEntry:
			r.SetEntries[o.Member] = o.Value
		case antidotec.RemoveSetEntry:
			delete(r.SetEntries, o.Member)
		}
	}
	entries, ok := Decode([]antidotec.Reply{r}, 0)
	if !ok {
		return Entries{}
	}
	return entries
}

func TestCreateSeedsSelfEntry(t *testing.T) {
	op := Create(testView, inode.RootIno, 5)
	entries := entriesFromOps([]antidotec.Op{op})

	got, ok := entries.Get(testView, view.NameRef("."))
	require.True(t, ok)
	assert.Equal(t, uint64(5), got.Ino)
	assert.Equal(t, inode.Directory, got.Kind)
}

func TestAddThenGetRoundTrips(t *testing.T) {
	name := view.NameRef("foo.txt").Canonicalize(testView)
	e := NewEntry(name, 9, inode.Regular)

	ops := []antidotec.Op{AddEntry(inode.RootIno, testView, e)}
	entries := entriesFromOps(ops)

	got, ok := entries.Get(testView, view.NameRef("foo.txt"))
	require.True(t, ok)
	assert.Equal(t, e, got)
}

func TestRemoveEntryDeletesMember(t *testing.T) {
	name := view.NameRef("foo.txt").Canonicalize(testView)
	e := NewEntry(name, 9, inode.Regular)

	ops := []antidotec.Op{
		AddEntry(inode.RootIno, testView, e),
		RemoveEntry(inode.RootIno, testView, e),
	}
	entries := entriesFromOps(ops)

	_, ok := entries.Get(testView, view.NameRef("foo.txt"))
	assert.False(t, ok)
}

func TestSortedOrdersByName(t *testing.T) {
	entries := Entries{}
	for _, n := range []string{"c", "a", "b"} {
		name := view.NameRef(n).Canonicalize(testView)
		entries[name] = NewEntry(name, 1, inode.Regular)
	}

	sorted := entries.Sorted()
	require.Len(t, sorted, 3)
	assert.Equal(t, "a", sorted[0].Name.String())
	assert.Equal(t, "b", sorted[1].Name.String())
	assert.Equal(t, "c", sorted[2].Name.String())
}

func TestNonSelfCountExcludesDot(t *testing.T) {
	entries := Entries{}
	selfName := view.NameRef(".").Canonicalize(testView)
	entries[selfName] = NewEntry(selfName, 5, inode.Directory)

	fooName := view.NameRef("foo").Canonicalize(testView)
	entries[fooName] = NewEntry(fooName, 9, inode.Regular)

	assert.Equal(t, 1, entries.NonSelfCount())
}

func TestDecodeAbsentDirFails(t *testing.T) {
	_, ok := Decode([]antidotec.Reply{{Exists: false}}, 0)
	assert.False(t, ok)
}
