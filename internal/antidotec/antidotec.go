// Package antidotec declares the backend protocol that the driver speaks to
// a CRDT-capable transactional key/value store. It is
// intentionally an interface only: the wire client for the real store is an
// external collaborator out of scope for this repository. internal/antidotec/fake
// provides an in-memory implementation so the driver can be exercised in
// tests.
package antidotec

import (
	"context"
	"errors"
	"fmt"

	"github.com/AntidoteDB/elmerfs/internal/view"
)

// Bucket is an opaque namespace identifier in the backend.
type Bucket string

// Kind tags the entity namespace a Key belongs to.
type Kind string

const (
	KindInode   Kind = "inode"
	KindDir     Kind = "dir"
	KindSymlink Kind = "symlink"
	KindPage    Kind = "page"
	KindInos    Kind = "inos"
)

// Key identifies a single CRDT value in a Bucket. Dir and Inos keys carry a
// view tag; Page keys carry a page index; Inode and Symlink keys are bare
// inode numbers.
type Key struct {
	Kind Kind
	Ino  uint64
	Page uint64
	View view.View
}

// String renders the key as entity tag, numeric
// id, and (for dir/inos) the view tag.
func (k Key) String() string {
	switch k.Kind {
	case KindPage:
		return fmt.Sprintf("page/%d/%d", k.Ino, k.Page)
	case KindDir:
		return fmt.Sprintf("dir/%d@%s", k.Ino, k.View)
	case KindInos:
		return fmt.Sprintf("inos/%s", k.View)
	default:
		return fmt.Sprintf("%s/%d", k.Kind, k.Ino)
	}
}

func InodeKey(ino uint64) Key                { return Key{Kind: KindInode, Ino: ino} }
func DirKey(ino uint64, v view.View) Key     { return Key{Kind: KindDir, Ino: ino, View: v} }
func SymlinkKey(ino uint64) Key              { return Key{Kind: KindSymlink, Ino: ino} }
func PageKey(ino, page uint64) Key           { return Key{Kind: KindPage, Ino: ino, Page: page} }
func InosKey(v view.View) Key                { return Key{Kind: KindInos, View: v} }

// Op is a single CRDT mutation to apply inside Transaction.Update. Entities
// are add-wins maps of named embedded CRDTs: registers for most fields,
// a counter for nlink (so concurrent link/unlink deltas commute), and a set
// of entries for directories.
type Op interface {
	key() Key
}

// PutRegister overwrites a single LWW register field.
type PutRegister struct {
	Key   Key
	Field string
	Value []byte
}

func (o PutRegister) key() Key { return o.Key }

// IncrCounter applies a (possibly negative) delta to a counter field.
type IncrCounter struct {
	Key   Key
	Field string
	Delta int64
}

func (o IncrCounter) key() Key { return o.Key }

// PutSetEntry adds (or overwrites) a member of an add-wins set/map, keyed by
// a caller-chosen member key (e.g. a canonicalized directory entry name).
type PutSetEntry struct {
	Key    Key
	Member string
	Value  []byte
}

func (o PutSetEntry) key() Key { return o.Key }

// RemoveSetEntry removes a member from an add-wins set/map.
type RemoveSetEntry struct {
	Key    Key
	Member string
}

func (o RemoveSetEntry) key() Key { return o.Key }

// Reset clears every embedded CRDT under Key, as if the entity never
// existed. Resetting an absent key is a no-op.
type Reset struct {
	Key Key
}

func (o Reset) key() Key { return o.Key }

// Reply is the decoded snapshot of one Key as observed at the time of a
// Transaction.Read. A Reply with Exists == false represents a key that has
// never been written (or has since been Reset), used by the codecs in
// internal/model as the existence test for decode.
type Reply struct {
	Exists     bool
	Registers  map[string][]byte
	Counters   map[string]int64
	SetEntries map[string][]byte
}

// TransactionLocks declares the shared/exclusive lock set a transaction
// wants to hold for its lifetime. Empty sets mean no locking, which is
// how Config.Locks == false is threaded through.
type TransactionLocks struct {
	Shared    []Key
	Exclusive []Key
}

// Transaction is a single atomic read/write scope against a Bucket.
type Transaction interface {
	Read(ctx context.Context, bucket Bucket, keys []Key) ([]Reply, error)
	Update(ctx context.Context, bucket Bucket, ops []Op) error
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// Connection is a single leased link to the backend, vended by a
// connection pool.
type Connection interface {
	Transaction(ctx context.Context, locks TransactionLocks) (Transaction, error)
	Close() error
}

// Dialer opens new Connections. Implementations talk to the real backend;
// internal/antidotec/fake.Dialer talks to an in-process fake.
type Dialer interface {
	Dial(ctx context.Context, addresses []string) (Connection, error)
}

// ErrTransport wraps any I/O failure talking to the backend (Transport
// kind, mapped to EIO).
var ErrTransport = errors.New("antidotec: transport error")
