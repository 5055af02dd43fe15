// Package clock is the time source shared by the bus, the runtimes and the
// worked modules.
package clock

import (
	"time"

	"github.com/benbjohnson/clock"
)

type Clock = clock.Clock

type Mock = clock.Mock

type Config struct {
	// Offset shifts the reported wall time, for devices without an RTC.
	Offset time.Duration
}

var DefaultConfig = Config{}

type offset struct {
	clock.Clock
	delta time.Duration
}

func (c offset) Now() time.Time {
	return c.Clock.Now().Add(c.delta)
}

// Make returns the real clock, shifted by the configured offset.
func Make(config ...Config) Clock {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Offset == 0 {
		return clock.New()
	}
	return offset{Clock: clock.New(), delta: cfg.Offset}
}

// NewMock returns a manually advanced clock for tests.
func NewMock() *Mock {
	return clock.NewMock()
}

// Since reports the time elapsed on c since t.
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}
