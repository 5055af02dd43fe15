package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stateforward/go-hsmbus/queue"
)

// Subscriber queues copies of the messages published to the channels it
// observes. Delivery never blocks the publisher.
type Subscriber struct {
	name     string
	capacity int
	channels []*Channel
	registry *Registry

	mu    sync.Mutex
	ring  *queue.Ring[*Channel]
	ready chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// Delivery describes a message copied out by WaitMessage.
type Delivery struct {
	Channel   *Channel
	Seq       uint64
	Timestamp time.Time
	Size      int
}

func (s *Subscriber) init(slotSize int) {
	s.ring = queue.New[*Channel](s.capacity, slotSize)
}

func (s *Subscriber) Name() string {
	return s.name
}

func (s *Subscriber) Cap() int {
	return s.capacity
}

// Channels returns the channels s observes.
func (s *Subscriber) Channels() []*Channel {
	return s.channels
}

// Len is the number of queued messages.
func (s *Subscriber) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ring == nil {
		return 0
	}
	return s.ring.Len()
}

// Dropped counts messages lost because the queue was full.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscriber) Delivered() uint64 {
	return s.delivered.Load()
}

func (s *Subscriber) deliver(ch *Channel, seq uint64, timestamp time.Time, payload []byte) {
	s.mu.Lock()
	ok := s.ring.Push(ch, seq, timestamp, payload)
	s.mu.Unlock()
	if !ok {
		if n := s.dropped.Add(1); n%100 == 1 {
			s.registry.logger.Warn("subscriber queue full, dropping messages",
				"subscriber", s.name, "channel", ch.name, "dropped", n)
		}
		return
	}
	s.delivered.Add(1)
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// take copies the oldest queued message into buf. A message that does not fit
// is removed and reported as ErrShortBuffer.
func (s *Subscriber) take(buf []byte) (Delivery, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	envelope, ok := s.ring.Peek()
	if !ok {
		return Delivery{}, false, nil
	}
	delivery := Delivery{
		Channel:   envelope.Source,
		Seq:       envelope.Seq,
		Timestamp: envelope.Timestamp,
		Size:      len(envelope.Payload),
	}
	if len(buf) < delivery.Size {
		s.ring.Drop()
		return delivery, false, fmt.Errorf("%w: %s message on %s is %d bytes, got %d",
			ErrShortBuffer, s.name, delivery.Channel.name, delivery.Size, len(buf))
	}
	copy(buf, envelope.Payload)
	s.ring.Drop()
	if s.ring.Len() > 0 {
		select {
		case s.ready <- struct{}{}:
		default:
		}
	}
	return delivery, true, nil
}

// WaitMessage removes the oldest queued message and copies its payload into
// buf, waiting up to timeout for one to arrive. It returns ok false with a nil
// error when the timeout elapses, and ctx.Err() when ctx is done first. A
// timeout <= 0 polls without waiting.
func (s *Subscriber) WaitMessage(ctx context.Context, buf []byte, timeout time.Duration) (Delivery, bool, error) {
	if !s.registry.sealed.Load() {
		return Delivery{}, false, ErrNotSealed
	}
	if delivery, ok, err := s.take(buf); ok || err != nil {
		return delivery, ok, err
	}
	if timeout <= 0 {
		return Delivery{}, false, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return Delivery{}, false, ctx.Err()
		case <-timer.C:
			return s.take(buf)
		case <-s.ready:
			if delivery, ok, err := s.take(buf); ok || err != nil {
				return delivery, ok, err
			}
		}
	}
}
