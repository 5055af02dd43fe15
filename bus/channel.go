package bus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stateforward/go-hsmbus/kinds"
)

// ListenerFunc is called with the channel lock held. payload is the stored
// channel value: it must not be retained or modified, and the listener must
// not publish to the same channel.
type ListenerFunc func(ch *Channel, payload []byte)

type observer struct {
	kind       uint64
	name       string
	listener   ListenerFunc
	subscriber *Subscriber
}

type ChannelOption func(*Channel)

// WithValidator rejects publishes for which valid returns false.
func WithValidator(valid func(payload []byte) bool) ChannelOption {
	return func(ch *Channel) {
		ch.validator = valid
	}
}

type Channel struct {
	name      string
	size      int
	value     []byte
	scratch   []byte
	lock      chan struct{}
	observers []observer
	validator func([]byte) bool
	registry  *Registry
	seq       uint64

	publishes atomic.Uint64
	timeouts  atomic.Uint64
	invalid   atomic.Uint64
}

// ChannelStats are cumulative publish counters.
type ChannelStats struct {
	Publishes    uint64
	LockTimeouts uint64
	Invalid      uint64
}

func (ch *Channel) Name() string {
	return ch.name
}

// Size is the fixed payload size in bytes.
func (ch *Channel) Size() int {
	return ch.size
}

func (ch *Channel) String() string {
	return ch.name
}

func (ch *Channel) Stats() ChannelStats {
	return ChannelStats{
		Publishes:    ch.publishes.Load(),
		LockTimeouts: ch.timeouts.Load(),
		Invalid:      ch.invalid.Load(),
	}
}

// Observers returns the names of the observers in registration order.
func (ch *Channel) Observers() []string {
	names := make([]string, len(ch.observers))
	for i, o := range ch.observers {
		names[i] = o.name
	}
	return names
}

func (ch *Channel) acquire(timeout time.Duration) bool {
	select {
	case ch.lock <- struct{}{}:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch.lock <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

func (ch *Channel) release() {
	<-ch.lock
}

// Publish stores payload as the channel value and delivers it to every
// observer. The channel lock must be acquired within timeout, otherwise
// ErrLockTimeout is returned and nothing is delivered. A timeout <= 0 tries
// once without waiting. len(payload) must equal Size.
func (ch *Channel) Publish(payload []byte, timeout time.Duration) error {
	if len(payload) != ch.size {
		panic(fmt.Errorf("bus: publish of %d bytes to channel %s of size %d", len(payload), ch.name, ch.size))
	}
	return ch.publish(timeout, payload, nil)
}

func (ch *Channel) publish(timeout time.Duration, payload []byte, encode func(dst []byte) error) (err error) {
	if !ch.registry.sealed.Load() {
		return ErrNotSealed
	}
	if tracer := ch.registry.tracer; tracer != nil {
		var span trace.Span
		_, span = tracer.Start(context.Background(), "bus.publish", trace.WithAttributes(
			attribute.String("channel", ch.name),
			attribute.Int("size", ch.size),
		))
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}()
	}
	if !ch.acquire(timeout) {
		ch.timeouts.Add(1)
		return fmt.Errorf("%w: %s after %s", ErrLockTimeout, ch.name, timeout)
	}
	defer ch.release()
	if encode != nil {
		if err := encode(ch.scratch); err != nil {
			ch.invalid.Add(1)
			return fmt.Errorf("%w: %s: %w", ErrInvalidMessage, ch.name, err)
		}
		payload = ch.scratch
	}
	if ch.validator != nil && !ch.validator(payload) {
		ch.invalid.Add(1)
		return fmt.Errorf("%w: %s", ErrInvalidMessage, ch.name)
	}
	copy(ch.value, payload)
	ch.seq++
	now := ch.registry.clock.Now()
	for i := range ch.observers {
		o := &ch.observers[i]
		switch {
		case kinds.IsKind(o.kind, kinds.Listener):
			o.listener(ch, ch.value)
		case kinds.IsKind(o.kind, kinds.Subscriber):
			o.subscriber.deliver(ch, ch.seq, now, ch.value)
		}
	}
	ch.publishes.Add(1)
	return nil
}

// Read copies the current channel value into buf.
func (ch *Channel) Read(buf []byte, timeout time.Duration) error {
	if len(buf) < ch.size {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortBuffer, ch.name, ch.size, len(buf))
	}
	if !ch.acquire(timeout) {
		ch.timeouts.Add(1)
		return fmt.Errorf("%w: %s after %s", ErrLockTimeout, ch.name, timeout)
	}
	defer ch.release()
	copy(buf, ch.value)
	return nil
}
