// Package inoalloc implements the inode number generator: a
// monotonic 64-bit allocator with periodic persistent checkpoints so a
// restart never reuses an inode number.
package inoalloc

import (
	"context"
	"encoding/binary"
	"sync/atomic"

	"github.com/AntidoteDB/elmerfs/internal/antidotec"
	"github.com/AntidoteDB/elmerfs/internal/model/inode"
	"github.com/AntidoteDB/elmerfs/internal/view"
)

const valueField = "value"

// Generator hands out inode numbers starting at the persisted high-water
// mark, which Checkpoint records as the first number not yet handed out. Values handed out between the last checkpoint
// and a crash are permanently burned, by design.
type Generator struct {
	view view.View

	// current is the last value handed out; Next() increments before
	// returning, so the generator never returns current itself twice.
	current atomic.Uint64
}

// Key returns the entity key inos/<view>.
func Key(v view.View) antidotec.Key { return antidotec.InosKey(v) }

// Load reads the persisted high-water mark for the view and returns a
// Generator that will start handing out numbers at
// max(persisted, inode.RootIno+1).
func Load(ctx context.Context, tx antidotec.Transaction, bucket antidotec.Bucket, v view.View) (*Generator, error) {
	replies, err := tx.Read(ctx, bucket, []antidotec.Key{Key(v)})
	if err != nil {
		return nil, err
	}

	persisted := uint64(0)
	if replies[0].Exists {
		if raw, ok := replies[0].Registers[valueField]; ok && len(raw) == 8 {
			persisted = binary.BigEndian.Uint64(raw)
		}
	}

	start := persisted
	if start < inode.RootIno+1 {
		start = inode.RootIno + 1
	}

	g := &Generator{view: v}
	g.current.Store(start - 1)
	return g, nil
}

// Next returns a fresh, never-before-returned inode number in this process.
func (g *Generator) Next() uint64 {
	return g.current.Add(1)
}

// Checkpoint writes the next number Next would return to the backend, so a
// later Load resumes past every number handed out so far. The caller
// is responsible for wrapping this in a transaction holding an exclusive
// lock on Key(g.view), so concurrent checkpoints never regress the
// persisted value.
func (g *Generator) Checkpoint(ctx context.Context, tx antidotec.Transaction, bucket antidotec.Bucket) error {
	value := g.current.Load() + 1
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)

	return tx.Update(ctx, bucket, []antidotec.Op{
		antidotec.PutRegister{Key: Key(g.view), Field: valueField, Value: buf},
	})
}
