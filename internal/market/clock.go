package market

import (
	"time"

	"github.com/benbjohnson/clock"
)

type Timer interface {
	Stop() bool
}

// Clock schedules the client's backoff, health and poll timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type wallClock struct {
	clock clock.Clock
}

// NewClock adapts a benbjohnson clock; nil means the real clock.
func NewClock(c clock.Clock) Clock {
	if c == nil {
		c = clock.New()
	}
	return wallClock{clock: c}
}

func (w wallClock) Now() time.Time {
	return w.clock.Now()
}

func (w wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return w.clock.AfterFunc(d, f)
}

func stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
