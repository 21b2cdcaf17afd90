package driver

import "fmt"

// Kind is the error taxonomy the dispatch layer maps every
// Kind to exactly one POSIX errno; no partial replies.
type Kind int

const (
	// NotFound: entity absent at lookup time -> ENOENT.
	NotFound Kind = iota
	// Exists: name already present on create/link -> EEXIST.
	Exists
	// InvalidArg: non-UTF8/unparseable name, negative offset -> EINVAL.
	InvalidArg
	// InoAllocFailed: generator exhausted -> ENOSPC.
	InoAllocFailed
	// Transport: backend I/O failure -> EIO (logged at error level).
	Transport
	// System: a backend-reported errno that already corresponds to a POSIX
	// code -> forwarded verbatim (logged at warn level).
	System
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Exists:
		return "exists"
	case InvalidArg:
		return "invalid_arg"
	case InoAllocFailed:
		return "ino_alloc_failed"
	case Transport:
		return "transport"
	case System:
		return "system"
	default:
		return "unknown"
	}
}

// Error is the driver's single error type. Every operation returns *Error
// (or nil), never a bare error, so dispatch can always recover a Kind.
type Error struct {
	Kind    Kind
	Op      string
	Errno   int // only meaningful for Kind == System
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.wrapped }

func newErr(op string, kind Kind) *Error {
	return &Error{Op: op, Kind: kind}
}

func wrapErr(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, wrapped: err}
}

func notFound(op string) *Error   { return newErr(op, NotFound) }
func exists(op string) *Error     { return newErr(op, Exists) }
func transport(op string, err error) *Error {
	return wrapErr(op, Transport, err)
}
