// Package bus implements fixed-capacity publish/subscribe channels.
//
// Channels, listeners and subscribers are registered on a Registry during
// startup composition. Seal ends composition: subscriber queues are allocated
// and publishing is enabled. Nothing can be registered after Seal.
//
// A publish overwrites the channel value, calls every listener synchronously
// in registration order while the channel lock is held, then copies the
// payload into every subscriber queue without blocking. A full queue drops the
// new message and counts the drop against that subscriber only.
package bus

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	"github.com/stateforward/go-hsmbus/clock"
	"github.com/stateforward/go-hsmbus/kinds"
)

var (
	ErrLockTimeout    = errors.New("channel lock timeout")
	ErrNotSealed      = errors.New("registry not sealed")
	ErrInvalidMessage = errors.New("invalid message")
	ErrShortBuffer    = errors.New("buffer smaller than channel payload")
)

// Registry owns every channel and subscriber of a process. It is built once
// and passed to the components that publish or subscribe.
type Registry struct {
	mu          sync.Mutex
	sealed      atomic.Bool
	channels    []*Channel
	byName      map[string]*Channel
	subscribers []*Subscriber
	clock       clock.Clock
	logger      *slog.Logger
	tracer      trace.Tracer
}

type Option func(*Registry)

func WithClock(c clock.Clock) Option {
	return func(r *Registry) {
		r.clock = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithTracer records a span for every publish.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registry) {
		r.tracer = tracer
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byName: map[string]*Channel{},
		clock:  clock.Make(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "bus")
	return r
}

func (r *Registry) mustBeOpen(what string) {
	if r.sealed.Load() {
		r.logger.Error("registration after seal", "what", what)
		panic(fmt.Errorf("bus: %s registered after seal", what))
	}
}

// Define creates a channel with a fixed payload size. initial may be nil for
// an all-zero value.
func (r *Registry) Define(name string, size int, initial []byte, opts ...ChannelOption) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeOpen("channel " + name)
	if _, ok := r.byName[name]; ok {
		panic(fmt.Errorf("bus: channel %s already defined", name))
	}
	if size < 0 {
		panic(fmt.Errorf("bus: channel %s has negative size %d", name, size))
	}
	if initial != nil && len(initial) != size {
		panic(fmt.Errorf("bus: channel %s initial value is %d bytes, size is %d", name, len(initial), size))
	}
	ch := &Channel{
		name:     name,
		size:     size,
		value:    make([]byte, size),
		scratch:  make([]byte, size),
		lock:     make(chan struct{}, 1),
		registry: r,
	}
	copy(ch.value, initial)
	for _, opt := range opts {
		opt(ch)
	}
	r.channels = append(r.channels, ch)
	r.byName[name] = ch
	return ch
}

// Listen registers fn to be called synchronously on every publish to ch.
func (r *Registry) Listen(ch *Channel, name string, fn ListenerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeOpen("listener " + name)
	if fn == nil {
		panic(fmt.Errorf("bus: listener %s is nil", name))
	}
	ch.observers = append(ch.observers, observer{kind: kinds.Listener, name: name, listener: fn})
}

// NewSubscriber creates a subscriber whose queue holds capacity messages.
func (r *Registry) NewSubscriber(name string, capacity int) *Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeOpen("subscriber " + name)
	if capacity < 1 {
		panic(fmt.Errorf("bus: subscriber %s capacity %d", name, capacity))
	}
	sub := &Subscriber{
		name:     name,
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		registry: r,
	}
	r.subscribers = append(r.subscribers, sub)
	return sub
}

// Observe adds sub to the observers of ch.
func (r *Registry) Observe(ch *Channel, sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeOpen("observer " + sub.name)
	for _, o := range ch.observers {
		if o.subscriber == sub {
			panic(fmt.Errorf("bus: %s already observes %s", sub.name, ch.name))
		}
	}
	ch.observers = append(ch.observers, observer{kind: kinds.Subscriber, name: sub.name, subscriber: sub})
	sub.channels = append(sub.channels, ch)
}

// Seal allocates subscriber queues and enables publishing. Each queue slot is
// sized for the largest channel its subscriber observes.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		return
	}
	for _, sub := range r.subscribers {
		slotSize := 0
		for _, ch := range sub.channels {
			slotSize = max(slotSize, ch.size)
		}
		sub.init(slotSize)
	}
	r.sealed.Store(true)
	r.logger.Debug("registry sealed", "channels", len(r.channels), "subscribers", len(r.subscribers))
}

func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

func (r *Registry) Channel(name string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.byName[name]
	return ch, ok
}

func (r *Registry) Channels() []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.channels)
}

func (r *Registry) Subscribers() []*Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.subscribers)
}

func (r *Registry) Clock() clock.Clock {
	return r.clock
}
