package button

import (
	"context"
	"sync/atomic"
	"time"
)

// Flag is the pressed state shared between the edge handler and the button
// goroutine. Set may be called from any goroutine; WaitRelease from one.
type Flag struct {
	pressed  atomic.Bool
	released chan struct{}
}

func NewFlag() *Flag {
	return &Flag{released: make(chan struct{}, 1)}
}

func (f *Flag) Set(pressed bool) {
	if pressed {
		select {
		case <-f.released:
		default:
		}
		f.pressed.Store(true)
		return
	}
	f.pressed.Store(false)
	select {
	case f.released <- struct{}{}:
	default:
	}
}

func (f *Flag) Pressed() bool {
	return f.pressed.Load()
}

// WaitRelease blocks until the flag is cleared, timeout elapses or ctx is
// done. It reports whether the flag was released.
func (f *Flag) WaitRelease(ctx context.Context, timeout time.Duration) bool {
	if !f.Pressed() {
		return true
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-f.released:
			if !f.Pressed() {
				return true
			}
		case <-timer.C:
			return !f.Pressed()
		case <-ctx.Done():
			return !f.Pressed()
		}
	}
}
