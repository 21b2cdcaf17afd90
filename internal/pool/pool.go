// Package pool implements the bounded connection pool: a hard
// cap on simultaneous leases, FIFO waiters, and lazy connection creation.
package pool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/AntidoteDB/elmerfs/internal/antidotec"
)

// Pool vends antidotec.Connection leases up to a hard cap, reusing
// connections on release the way a temporary-file leaser reuses
// temporary file descriptors.
type Pool struct {
	dialer    antidotec.Dialer
	addresses []string

	sem *semaphore.Weighted

	mu   sync.Mutex
	idle []antidotec.Connection
}

// New returns a Pool bounded at maxConnections simultaneous leases.
func New(dialer antidotec.Dialer, addresses []string, maxConnections int) *Pool {
	return &Pool{
		dialer:    dialer,
		addresses: addresses,
		sem:       semaphore.NewWeighted(int64(maxConnections)),
	}
}

// Lease is a handle whose Release returns the underlying connection to the
// pool (or, on error, drops it and frees its slot).
type Lease struct {
	pool *Pool
	conn antidotec.Connection
	dead bool
}

func (l *Lease) Connection() antidotec.Connection { return l.conn }

func (l *Lease) Release() {
	if l.dead {
		l.pool.sem.Release(1)
		return
	}

	l.pool.mu.Lock()
	l.pool.idle = append(l.pool.idle, l.conn)
	l.pool.mu.Unlock()
	l.pool.sem.Release(1)
}

// Discard marks the lease's connection as broken; Release will drop it
// instead of returning it to the idle set. Call this after a Transport
// error that may have poisoned the underlying connection.
func (l *Lease) Discard() {
	l.dead = true
	_ = l.conn.Close()
}

// Acquire suspends until a connection is available or a new one can be
// opened, up to the pool's cap. Waiters are served in FIFO order by
// semaphore.Weighted's own queueing.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	n := len(p.idle)
	var conn antidotec.Connection
	if n > 0 {
		conn = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	if conn != nil {
		return &Lease{pool: p, conn: conn}, nil
	}

	conn, err := p.dialer.Dial(ctx, p.addresses)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}

	return &Lease{pool: p, conn: conn}, nil
}

// Close closes every idle connection. In-flight leases are unaffected;
// their Release still returns the connection to the idle set.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, c := range p.idle {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.idle = nil
	return firstErr
}
