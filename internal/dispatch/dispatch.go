// Package dispatch sits between the kernel interface adapter (package fs)
// and the driver: it accepts one task per filesystem operation on a bounded
// channel, runs each on a capped pool of goroutines, and maps the driver's
// error taxonomy onto a POSIX errno before handing the result back to the
// waiting caller.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"syscall"

	"golang.org/x/sync/semaphore"

	"github.com/AntidoteDB/elmerfs/internal/driver"
)

// DefaultQueueSize bounds how many submitted operations may be queued before
// Submit blocks the caller (the kernel interface's own goroutine).
const DefaultQueueSize = 256

// DefaultConcurrency bounds how many operations run against the driver at
// once, independent of the connection pool's own cap.
const DefaultConcurrency = 64

type task struct {
	name string
	run  func(ctx context.Context) *driver.Error
	done chan *driver.Error
}

// Loop is the asynchronous-task dispatcher. It owns no filesystem state; it
// only schedules and logs.
type Loop struct {
	driver *driver.Driver
	logger *slog.Logger

	queue chan *task
	sem   *semaphore.Weighted
}

// New constructs a Loop. Call Run before Submit-ing any operation.
func New(d *driver.Driver, logger *slog.Logger, queueSize, concurrency int) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Loop{
		driver: d,
		logger: logger,
		queue:  make(chan *task, queueSize),
		sem:    semaphore.NewWeighted(int64(concurrency)),
	}
}

// Run first configures the driver (pool warm-up, root creation, ino
// generator load), then drains the queue until ctx is cancelled. Each
// dequeued task is handed to its own goroutine once a concurrency slot is
// free, so the drain loop itself performs no I/O beyond channel receive.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.driver.Configure(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-l.queue:
			if err := l.sem.Acquire(ctx, 1); err != nil {
				t.done <- &driver.Error{Kind: driver.Transport}
				continue
			}
			go func(t *task) {
				defer l.sem.Release(1)
				derr := t.run(ctx)
				l.logResult(t.name, derr)
				t.done <- derr
			}(t)
		}
	}
}

// Driver exposes the underlying driver so callers (the kernel interface
// adapter) can call its methods from inside a Submit-ted closure.
func (l *Loop) Driver() *driver.Driver { return l.driver }

// Submit enqueues one operation and blocks until its task completes,
// translating the driver's error taxonomy into a syscall.Errno the kernel
// interface adapter can return directly. A nil return means success.
func (l *Loop) Submit(ctx context.Context, name string, run func(ctx context.Context) *driver.Error) error {
	t := &task{name: name, run: run, done: make(chan *driver.Error, 1)}

	select {
	case l.queue <- t:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case derr := <-t.done:
		return errnoOf(derr)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// logResult mirrors the reference dispatcher's per-op tracing: successes at
// debug, ENOENT silent (normal filesystem probing noise), transport
// failures at error, everything else at warn.
func (l *Loop) logResult(name string, derr *driver.Error) {
	if l.logger == nil {
		return
	}
	if derr == nil {
		l.logger.Debug("operation succeeded", "op", name)
		return
	}
	if derr.Kind == driver.NotFound {
		return
	}
	if derr.Kind == driver.Transport {
		l.logger.Error("operation failed", "op", name, "kind", derr.Kind.String(), "err", derr)
		return
	}
	l.logger.Warn("operation failed", "op", name, "kind", derr.Kind.String(), "err", derr)
}

// errnoOf maps the driver's error taxonomy onto the single POSIX errno the
// kernel interface expects back; dispatch never surfaces partial replies.
func errnoOf(derr *driver.Error) error {
	if derr == nil {
		return nil
	}
	switch derr.Kind {
	case driver.NotFound:
		return syscall.ENOENT
	case driver.Exists:
		return syscall.EEXIST
	case driver.InvalidArg:
		return syscall.EINVAL
	case driver.InoAllocFailed:
		return syscall.ENOSPC
	case driver.Transport:
		return syscall.EIO
	case driver.System:
		return syscall.Errno(derr.Errno)
	default:
		return syscall.EIO
	}
}

// IsErrno reports whether err is (or wraps) a syscall.Errno, the form Submit
// gives every driver error. A context error returned by Submit is not one.
func IsErrno(err error) (syscall.Errno, bool) {
	var errno syscall.Errno
	ok := errors.As(err, &errno)
	return errno, ok
}
