// Package driver implements the translation of each POSIX filesystem
// operation into one or more backend transactions: it is the
// core orchestrator that sits between the kernel interface and the backend.
package driver

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/AntidoteDB/elmerfs/internal/antidotec"
	"github.com/AntidoteDB/elmerfs/internal/clock"
	"github.com/AntidoteDB/elmerfs/internal/inoalloc"
	"github.com/AntidoteDB/elmerfs/internal/model/dir"
	"github.com/AntidoteDB/elmerfs/internal/model/inode"
	"github.com/AntidoteDB/elmerfs/internal/model/symlink"
	"github.com/AntidoteDB/elmerfs/internal/pagewriter"
	"github.com/AntidoteDB/elmerfs/internal/pool"
	"github.com/AntidoteDB/elmerfs/internal/view"
)

// MaxConnections is the default connection pool cap.
const MaxConnections = 32

// maxInFlightCheckpoints bounds the number of detached ino-counter
// checkpoint/delete-later goroutines outstanding at once. The Rust source's
// task::spawn is unboundedly fire-and-forget; an implementer carrying that
// forward verbatim would let sustained mkdir/mknod traffic leak goroutines
// faster than the backend can absorb checkpoints. See DESIGN.md O3.
const maxInFlightCheckpoints = 256

// Config holds the parameters a Driver needs to talk to its backend. Locks'
// zero value (false) is itself a valid, if unusual, configuration; New
// replaces a non-positive MaxConnections or PageSize with its default.
type Config struct {
	View           view.View
	Bucket         antidotec.Bucket
	Addresses      []string
	Locks          bool
	MaxConnections int
	PageSize       int
}

// Attr is the driver's backend-agnostic view of an inode's POSIX
// attributes; fs translates it to fuseops.InodeAttributes.
type Attr struct {
	Ino   uint64
	Kind  inode.Kind
	Mode  uint32
	Owner inode.Owner
	Size  uint64
	Nlink uint32
	Atime time.Duration
	Mtime time.Duration
	Ctime time.Duration
}

func attrOf(i *inode.Inode) Attr {
	return Attr{
		Ino:   i.Ino,
		Kind:  i.Kind,
		Mode:  i.Mode,
		Owner: i.Owner,
		Size:  i.Size,
		Nlink: i.Nlink,
		Atime: i.Atime,
		Mtime: i.Mtime,
		Ctime: i.Ctime,
	}
}

// DirEntry is one entry returned by ReadDir.
type DirEntry struct {
	Ino  uint64
	Kind inode.Kind
	Name string
}

// Driver is a shared, immutable-after-construction handle: all its mutable
// state lives behind the pool's internal synchronization and the ino
// generator's atomic counter.
type Driver struct {
	cfg   Config
	clock clock.Clock
	pool  *pool.Pool
	ino   *inoalloc.Generator
	pages *pagewriter.Writer

	checkpoints *semaphore.Weighted
}

// New constructs a Driver without touching the backend; call Configure
// before serving any operation.
func New(cfg Config, dialer antidotec.Dialer, clk clock.Clock) *Driver {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = MaxConnections
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = pagewriter.DefaultPageSize
	}

	return &Driver{
		cfg:         cfg,
		clock:       clk,
		pool:        pool.New(dialer, cfg.Addresses, cfg.MaxConnections),
		pages:       pagewriter.New(cfg.PageSize),
		checkpoints: semaphore.NewWeighted(maxInFlightCheckpoints),
	}
}

// Configure warms up the pool, idempotently creates the root inode, and
// loads the inode number generator. It must be called once, before the
// dispatch loop starts accepting operations.
func (d *Driver) Configure(ctx context.Context) *Error {
	lease, err := d.pool.Acquire(ctx)
	if err != nil {
		return transport("configure", err)
	}
	defer lease.Release()

	if derr := d.makeRoot(ctx, lease); derr != nil {
		return derr
	}

	ino, derr := d.loadInoGenerator(ctx, lease)
	if derr != nil {
		return derr
	}
	d.ino = ino
	return nil
}

func (d *Driver) makeRoot(ctx context.Context, lease *pool.Lease) *Error {
	return d.transactWith(ctx, lease, "make_root", nil, []antidotec.Key{inode.Key(inode.RootIno)}, func(tx antidotec.Transaction) *Error {
		if _, found, derr := d.tryReadInode(ctx, tx, inode.RootIno); derr != nil {
			return derr
		} else if found {
			return nil
		}

		now := d.clock.Now()
		root := &inode.Inode{
			Ino:    inode.RootIno,
			Kind:   inode.Directory,
			Parent: inode.RootIno,
			Atime:  now,
			Ctime:  now,
			Mtime:  now,
			Owner:  inode.Owner{Uid: 0, Gid: 0},
			Mode:   0o777,
			Size:   0,
			Nlink:  3,
		}

		ops := append(inode.Create(root), dir.Create(d.cfg.View, inode.RootIno, inode.RootIno))
		return d.update(ctx, tx, "make_root", ops)
	})
}

func (d *Driver) loadInoGenerator(ctx context.Context, lease *pool.Lease) (*inoalloc.Generator, *Error) {
	var gen *inoalloc.Generator
	err := d.transactWith(ctx, lease, "load_ino_counter", nil, []antidotec.Key{inoalloc.Key(d.cfg.View)}, func(tx antidotec.Transaction) *Error {
		g, lerr := inoalloc.Load(ctx, tx, d.cfg.Bucket, d.cfg.View)
		if lerr != nil {
			return transport("load_ino_counter", lerr)
		}
		gen = g
		return nil
	})
	return gen, err
}

// ---- transaction plumbing ----

func (d *Driver) locks(shared, exclusive []antidotec.Key) antidotec.TransactionLocks {
	if !d.cfg.Locks {
		return antidotec.TransactionLocks{}
	}
	return antidotec.TransactionLocks{Shared: shared, Exclusive: exclusive}
}

// transact acquires a connection, opens a transaction with the declared
// lock set, runs fn, and commits or aborts depending on fn's outcome
// aborting the transaction if fn reports a failure, committing otherwise.
func (d *Driver) transact(ctx context.Context, op string, shared, exclusive []antidotec.Key, fn func(tx antidotec.Transaction) *Error) *Error {
	lease, err := d.pool.Acquire(ctx)
	if err != nil {
		return transport(op, err)
	}
	defer lease.Release()

	return d.transactWith(ctx, lease, op, shared, exclusive, fn)
}

func (d *Driver) transactWith(ctx context.Context, lease *pool.Lease, op string, shared, exclusive []antidotec.Key, fn func(tx antidotec.Transaction) *Error) *Error {
	tx, err := lease.Connection().Transaction(ctx, d.locks(shared, exclusive))
	if err != nil {
		lease.Discard()
		return transport(op, err)
	}

	ferr := fn(tx)
	if ferr != nil {
		if aerr := tx.Abort(ctx); aerr != nil {
			lease.Discard()
		}
		return ferr
	}

	if err := tx.Commit(ctx); err != nil {
		lease.Discard()
		return transport(op, err)
	}
	return nil
}

func (d *Driver) update(ctx context.Context, tx antidotec.Transaction, op string, ops []antidotec.Op) *Error {
	if err := tx.Update(ctx, d.cfg.Bucket, ops); err != nil {
		return transport(op, err)
	}
	return nil
}

// ---- shared reads ----

func (d *Driver) tryReadInode(ctx context.Context, tx antidotec.Transaction, ino uint64) (*inode.Inode, bool, *Error) {
	replies, err := tx.Read(ctx, d.cfg.Bucket, []antidotec.Key{inode.Read(ino)})
	if err != nil {
		return nil, false, transport("read_inode", err)
	}
	i, ok := inode.Decode(ino, replies, 0)
	return i, ok, nil
}

func (d *Driver) readInode(ctx context.Context, tx antidotec.Transaction, op string, ino uint64) (*inode.Inode, *Error) {
	i, ok, derr := d.tryReadInode(ctx, tx, ino)
	if derr != nil {
		return nil, derr
	}
	if !ok {
		return nil, notFound(op)
	}
	return i, nil
}

func (d *Driver) readDir(ctx context.Context, tx antidotec.Transaction, op string, ino uint64) (dir.Entries, *Error) {
	replies, err := tx.Read(ctx, d.cfg.Bucket, []antidotec.Key{dir.Read(d.cfg.View, ino)})
	if err != nil {
		return nil, transport(op, err)
	}
	entries, ok := dir.Decode(replies, 0)
	if !ok {
		return nil, notFound(op)
	}
	return entries, nil
}

// attrOfAt reads and decodes ino within tx, as a convenience for callers
// that only need the attributes.
func (d *Driver) attrOfAt(ctx context.Context, tx antidotec.Transaction, op string, ino uint64) (Attr, *Error) {
	i, derr := d.readInode(ctx, tx, op, ino)
	if derr != nil {
		return Attr{}, derr
	}
	return attrOf(i), nil
}
