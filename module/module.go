// Package module runs a state machine on its own goroutine, driven by the
// messages of one bus subscriber and a periodic processing tick.
package module

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stateforward/go-hsmbus"
	"github.com/stateforward/go-hsmbus/bus"
	"github.com/stateforward/go-hsmbus/embedded"
)

var ErrInvalidConfig = errors.New("invalid module configuration")

// Inbox holds the message being processed. Module storage embeds it; run
// actions read it through the storage.
type Inbox struct {
	channel *bus.Channel
	payload []byte
	pending bool
}

func (in *Inbox) inbox() *Inbox {
	return in
}

// Channel is the channel the pending message was published on.
func (in *Inbox) Channel() *bus.Channel {
	return in.channel
}

// Payload aliases the runtime buffer and is valid only during the run action.
func (in *Inbox) Payload() []byte {
	return in.payload
}

// Pending reports whether this run was triggered by a message.
func (in *Inbox) Pending() bool {
	return in.pending
}

// From reports whether the pending message came from ch.
func (in *Inbox) From(ch *bus.Channel) bool {
	return in.pending && in.channel == ch
}

func (in *Inbox) clear() {
	in.channel = nil
	in.payload = nil
	in.pending = false
}

// Storage is satisfied by any pointer to a struct embedding Inbox.
type Storage interface {
	inbox() *Inbox
}

type Config struct {
	Name string
	// Initial is the state entered when the runtime starts.
	Initial hsm.StateID
	// ProcessingTimeout bounds each wait for a message.
	ProcessingTimeout time.Duration
	// WatchdogTimeout must exceed ProcessingTimeout.
	WatchdogTimeout time.Duration
}

type Option func(*options)

type options struct {
	logger *slog.Logger
	hsm    []hsm.Option
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTrace traces the engine steps of the runtime's state machine.
func WithTrace(trace hsm.Trace) Option {
	return func(o *options) {
		o.hsm = append(o.hsm, hsm.WithTrace(trace))
	}
}

type Runtime[T Storage] struct {
	config     Config
	machine    *hsm.Machine[T]
	storage    T
	subscriber *bus.Subscriber
	watchdog   embedded.Watchdog
	buf        []byte
	logger     *slog.Logger
	hsm        []hsm.Option
}

// New builds a runtime. watchdog may be nil.
func New[T Storage](config Config, machine *hsm.Machine[T], storage T, subscriber *bus.Subscriber, watchdog embedded.Watchdog, opts ...Option) (*Runtime[T], error) {
	if config.ProcessingTimeout <= 0 {
		return nil, fmt.Errorf("%w: %s: processing timeout %s must be positive", ErrInvalidConfig, config.Name, config.ProcessingTimeout)
	}
	if watchdog != nil && config.WatchdogTimeout <= config.ProcessingTimeout {
		return nil, fmt.Errorf("%w: %s: watchdog timeout %s must exceed processing timeout %s",
			ErrInvalidConfig, config.Name, config.WatchdogTimeout, config.ProcessingTimeout)
	}
	if subscriber == nil {
		return nil, fmt.Errorf("%w: %s: no subscriber", ErrInvalidConfig, config.Name)
	}
	if _, ok := machine.State(config.Initial); !ok {
		return nil, fmt.Errorf("%w: %s: initial state %d", ErrInvalidConfig, config.Name, config.Initial)
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	size := 0
	for _, ch := range subscriber.Channels() {
		size = max(size, ch.Size())
	}
	return &Runtime[T]{
		config:     config,
		machine:    machine,
		storage:    storage,
		subscriber: subscriber,
		watchdog:   watchdog,
		buf:        make([]byte, size),
		logger:     o.logger.With("module", config.Name),
		hsm:        append(o.hsm, hsm.WithLogger(o.logger.With("module", config.Name))),
	}, nil
}

func (r *Runtime[T]) Name() string {
	return r.config.Name
}

// Run enters the initial state and processes messages until ctx is done or
// the machine terminates. It returns nil on cancellation and the termination
// reason otherwise.
func (r *Runtime[T]) Run(ctx context.Context) error {
	var token embedded.Token
	if r.watchdog != nil {
		var err error
		if token, err = r.watchdog.Register(r.config.WatchdogTimeout); err != nil {
			return fmt.Errorf("module %s: %w", r.config.Name, err)
		}
	}
	sm := hsm.New(ctx, r.machine, r.storage, r.hsm...)
	if err := sm.SetInitial(r.config.Initial); err != nil {
		return fmt.Errorf("module %s: %w", r.config.Name, err)
	}
	r.logger.Debug("module started", "state", sm.State())
	inbox := r.storage.inbox()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if r.watchdog != nil {
			if err := r.watchdog.Feed(token); err != nil {
				r.logger.Error("watchdog feed failed", "error", err)
			}
		}
		sm.Run()
		if sm.Terminated() {
			return r.terminated(sm)
		}
		delivery, ok, err := r.subscriber.WaitMessage(ctx, r.buf, r.config.ProcessingTimeout)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			r.logger.Error("wait for message failed", "error", err)
			if !r.pause(ctx) {
				return nil
			}
			continue
		}
		if !ok {
			continue
		}
		inbox.channel = delivery.Channel
		inbox.payload = r.buf[:delivery.Size]
		inbox.pending = true
		sm.Run()
		inbox.clear()
		if sm.Terminated() {
			return r.terminated(sm)
		}
	}
}

// pause waits one processing timeout after a failed wait. It reports false
// when ctx is done first.
func (r *Runtime[T]) pause(ctx context.Context) bool {
	timer := time.NewTimer(r.config.ProcessingTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (r *Runtime[T]) terminated(sm *hsm.Context[T]) error {
	err := sm.Reason()
	r.logger.Info("module terminated", "state", sm.State(), "reason", err)
	if err != nil {
		return fmt.Errorf("module %s: %w", r.config.Name, err)
	}
	return nil
}
