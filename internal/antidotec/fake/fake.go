// Package fake is an in-memory stand-in for the AntidoteDB client, used so
// the driver can be exercised in tests without a real cluster. It mirrors
// the role a fake storage backend plays
// for gcsfuse: a faithful-enough fake of an out-of-scope external
// collaborator.
package fake

import (
	"context"
	"sync"

	"github.com/AntidoteDB/elmerfs/internal/antidotec"
)

type entity struct {
	registers  map[string][]byte
	counters   map[string]int64
	setEntries map[string][]byte
}

func newEntity() *entity {
	return &entity{
		registers:  map[string][]byte{},
		counters:   map[string]int64{},
		setEntries: map[string][]byte{},
	}
}

// Backend is the shared, process-wide store a test points every Dialer
// (or Connection) at.
type Backend struct {
	mu      sync.Mutex
	objects map[string]*entity
}

func NewBackend() *Backend {
	return &Backend{objects: map[string]*entity{}}
}

func (b *Backend) get(key antidotec.Key) *entity {
	return b.objects[key.String()]
}

// Dialer hands out Connections all backed by the same Backend.
type Dialer struct {
	Backend *Backend
}

func NewDialer() *Dialer {
	return &Dialer{Backend: NewBackend()}
}

func (d *Dialer) Dial(ctx context.Context, addresses []string) (antidotec.Connection, error) {
	return &connection{backend: d.Backend}, nil
}

type connection struct {
	backend *Backend
}

func (c *connection) Close() error { return nil }

func (c *connection) Transaction(ctx context.Context, locks antidotec.TransactionLocks) (antidotec.Transaction, error) {
	// The fake applies each Read and Update directly against the shared
	// backend under its single mutex. The requested lock set is ignored:
	// transactions are not isolated from one another, and Abort does not
	// roll back updates already applied.
	return &transaction{backend: c.backend}, nil
}

type transaction struct {
	backend *Backend
	done    bool
}

func (t *transaction) Read(ctx context.Context, bucket antidotec.Bucket, keys []antidotec.Key) ([]antidotec.Reply, error) {
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()

	replies := make([]antidotec.Reply, len(keys))
	for i, k := range keys {
		e := t.backend.get(k)
		if e == nil {
			replies[i] = antidotec.Reply{Exists: false}
			continue
		}
		replies[i] = antidotec.Reply{
			Exists:     true,
			Registers:  cloneBytes(e.registers),
			Counters:   cloneInts(e.counters),
			SetEntries: cloneBytes(e.setEntries),
		}
	}
	return replies, nil
}

func (t *transaction) Update(ctx context.Context, bucket antidotec.Bucket, ops []antidotec.Op) error {
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()

	for _, op := range ops {
		switch o := op.(type) {
		case antidotec.PutRegister:
			e := t.entityFor(o.Key)
			e.registers[o.Field] = o.Value
		case antidotec.IncrCounter:
			e := t.entityFor(o.Key)
			e.counters[o.Field] += o.Delta
		case antidotec.PutSetEntry:
			e := t.entityFor(o.Key)
			e.setEntries[o.Member] = o.Value
		case antidotec.RemoveSetEntry:
			if e := t.backend.get(o.Key); e != nil {
				delete(e.setEntries, o.Member)
			}
		case antidotec.Reset:
			delete(t.backend.objects, o.Key.String())
		}
	}
	return nil
}

func (t *transaction) entityFor(k antidotec.Key) *entity {
	key := k.String()
	e, ok := t.backend.objects[key]
	if !ok {
		e = newEntity()
		t.backend.objects[key] = e
	}
	return e
}

func (t *transaction) Commit(ctx context.Context) error {
	t.done = true
	return nil
}

func (t *transaction) Abort(ctx context.Context) error {
	t.done = true
	return nil
}

func cloneBytes(m map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneInts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
