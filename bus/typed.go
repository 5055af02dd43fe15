package bus

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Typed is a channel whose payload is the little-endian binary encoding of a
// fixed-size T.
type Typed[T any] struct {
	*Channel
}

// Define creates a channel sized for T. T must be a fixed-size value as
// accepted by encoding/binary.
func Define[T any](r *Registry, name string, initial T, opts ...ChannelOption) *Typed[T] {
	size := binary.Size(initial)
	if size < 0 {
		panic(fmt.Errorf("bus: channel %s payload %T is not fixed size", name, initial))
	}
	buf := make([]byte, size)
	if _, err := binary.Encode(buf, binary.LittleEndian, initial); err != nil {
		panic(fmt.Errorf("bus: channel %s initial value: %w", name, err))
	}
	return &Typed[T]{Channel: r.Define(name, size, buf, opts...)}
}

// Publish encodes v into the channel scratch buffer under the channel lock and
// publishes it.
func (t *Typed[T]) Publish(v T, timeout time.Duration) error {
	return t.publish(timeout, nil, func(dst []byte) error {
		_, err := binary.Encode(dst, binary.LittleEndian, v)
		return err
	})
}

// Decode decodes a payload delivered from this channel.
func (t *Typed[T]) Decode(payload []byte) (T, error) {
	var v T
	if len(payload) < t.size {
		return v, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortBuffer, t.name, t.size, len(payload))
	}
	if _, err := binary.Decode(payload[:t.size], binary.LittleEndian, &v); err != nil {
		return v, fmt.Errorf("bus: decode %s: %w", t.name, err)
	}
	return v, nil
}

// Value reads and decodes the current channel value.
func (t *Typed[T]) Value(timeout time.Duration) (T, error) {
	buf := make([]byte, t.size)
	if err := t.Read(buf, timeout); err != nil {
		var zero T
		return zero, err
	}
	return t.Decode(buf)
}

// Is reports whether d was published on this channel.
func (t *Typed[T]) Is(d Delivery) bool {
	return d.Channel == t.Channel
}
