// Package clock provides an injectable source of wall-clock time, modeled
// so driver tests can assert exact
// atime/ctime/mtime values instead of racing time.Now().
package clock

import "time"

// Clock returns durations since the Unix epoch, the representation used
// for inode atime/ctime/mtime.
type Clock interface {
	Now() time.Duration
}

// RealClock reports actual wall-clock time.
type RealClock struct{}

func (RealClock) Now() time.Duration { return time.Duration(time.Now().UnixNano()) }

// FakeClock reports a fixed, advanceable time for deterministic tests.
type FakeClock struct {
	t time.Duration
}

func NewFake(t time.Duration) *FakeClock { return &FakeClock{t: t} }

func (c *FakeClock) Now() time.Duration { return c.t }

func (c *FakeClock) Advance(d time.Duration) { c.t += d }
