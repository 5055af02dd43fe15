package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stateforward/go-hsmbus/clock"
	"github.com/stateforward/go-hsmbus/embedded"
)

// simulatedButton is an EdgeSource that presses input 0 on a fixed script:
// a short tap every period and, every fourth time, a hold of hold.
type simulatedButton struct {
	clock   clock.Clock
	period  time.Duration
	tap     time.Duration
	hold    time.Duration
	mu      sync.Mutex
	handler embedded.EdgeHandler
}

func newSimulatedButton(c clock.Clock, period, hold time.Duration) *simulatedButton {
	return &simulatedButton{clock: c, period: period, tap: 50 * time.Millisecond, hold: hold}
}

func (s *simulatedButton) Init(handler embedded.EdgeHandler) error {
	if handler == nil {
		return errors.New("nil edge handler")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	return nil
}

func (s *simulatedButton) edge(pressed bool) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		return
	}
	var levels uint32
	if pressed {
		levels = 1
	}
	handler(levels, 1)
}

func (s *simulatedButton) sleep(ctx context.Context, d time.Duration) bool {
	timer := s.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Run presses until ctx is done.
func (s *simulatedButton) Run(ctx context.Context) error {
	for n := 1; ; n++ {
		if !s.sleep(ctx, s.period) {
			return nil
		}
		held := s.tap
		if n%4 == 0 {
			held = s.hold
		}
		s.edge(true)
		if !s.sleep(ctx, held) {
			s.edge(false)
			return nil
		}
		s.edge(false)
	}
}
