// Package liveness is a software task watchdog. Each task registers with a
// timeout and must feed its token before the timeout elapses.
package liveness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stateforward/go-hsmbus/clock"
	"github.com/stateforward/go-hsmbus/embedded"
)

var (
	ErrCapacity     = errors.New("liveness capacity exhausted")
	ErrUnknownToken = errors.New("unknown liveness token")
)

// Expired describes a registration that missed its deadline.
type Expired struct {
	Token   embedded.Token
	Overdue time.Duration
}

type ExpiryHandler func(expired []Expired)

type registration struct {
	timeout time.Duration
	fed     time.Time
	expired bool
}

type Service struct {
	mu            sync.Mutex
	capacity      int
	registrations map[embedded.Token]*registration
	clock         clock.Clock
	logger        *slog.Logger
	onExpire      ExpiryHandler
}

var _ embedded.Watchdog = (*Service)(nil)

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithExpiryHandler replaces the default handler, which logs an error.
func WithExpiryHandler(handler ExpiryHandler) Option {
	return func(s *Service) {
		s.onExpire = handler
	}
}

func New(capacity int, opts ...Option) *Service {
	s := &Service{
		capacity:      capacity,
		registrations: make(map[embedded.Token]*registration, capacity),
		clock:         clock.Make(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "liveness")
	if s.onExpire == nil {
		s.onExpire = func(expired []Expired) {
			for _, e := range expired {
				s.logger.Error("task missed its liveness deadline", "token", e.Token, "overdue", e.Overdue)
			}
		}
	}
	return s
}

func (s *Service) Register(timeout time.Duration) (embedded.Token, error) {
	if timeout <= 0 {
		return uuid.Nil, fmt.Errorf("liveness: timeout %s must be positive", timeout)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.registrations) >= s.capacity {
		return uuid.Nil, fmt.Errorf("%w: %d registrations", ErrCapacity, s.capacity)
	}
	token := uuid.New()
	s.registrations[token] = &registration{timeout: timeout, fed: s.clock.Now()}
	return token, nil
}

func (s *Service) Feed(token embedded.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.registrations[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	r.fed = s.clock.Now()
	r.expired = false
	return nil
}

// Unregister removes a registration, freeing its slot.
func (s *Service) Unregister(token embedded.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.registrations, token)
}

// Check returns the registrations that newly missed their deadline. A
// registration is reported once until it is fed again.
func (s *Service) Check() []Expired {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	var expired []Expired
	for token, r := range s.registrations {
		if r.expired {
			continue
		}
		if overdue := now.Sub(r.fed) - r.timeout; overdue > 0 {
			r.expired = true
			expired = append(expired, Expired{Token: token, Overdue: overdue})
		}
	}
	return expired
}

// Run checks every period until ctx is done, passing newly expired
// registrations to the expiry handler.
func (s *Service) Run(ctx context.Context, period time.Duration) error {
	ticker := s.clock.Ticker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if expired := s.Check(); len(expired) > 0 {
				s.onExpire(expired)
			}
		}
	}
}
