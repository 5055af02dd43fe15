// Package queue implements the fixed-capacity envelope ring backing a bus
// subscriber. All storage is allocated by New; Push copies payloads into it.
package queue

import "time"

// Envelope is one queued message. Payload aliases ring storage and is only
// valid until the envelope is dropped.
type Envelope[K any] struct {
	Source    K
	Seq       uint64
	Timestamp time.Time
	Payload   []byte
}

// Ring is not safe for concurrent use.
type Ring[K any] struct {
	slots    []Envelope[K]
	storage  []byte
	slotSize int
	head     int
	len      int
}

func New[K any](capacity, slotSize int) *Ring[K] {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring[K]{
		slots:    make([]Envelope[K], capacity),
		storage:  make([]byte, capacity*slotSize),
		slotSize: slotSize,
	}
	for i := range r.slots {
		r.slots[i].Payload = r.storage[i*slotSize : i*slotSize : (i+1)*slotSize]
	}
	return r
}

func (r *Ring[K]) Len() int {
	return r.len
}

func (r *Ring[K]) Cap() int {
	return len(r.slots)
}

func (r *Ring[K]) SlotSize() int {
	return r.slotSize
}

func (r *Ring[K]) Full() bool {
	return r.len == len(r.slots)
}

// Push copies payload into the tail slot. It reports false, leaving the ring
// untouched, when the ring is full or the payload does not fit a slot.
func (r *Ring[K]) Push(source K, seq uint64, timestamp time.Time, payload []byte) bool {
	if r.Full() || len(payload) > r.slotSize {
		return false
	}
	slot := &r.slots[(r.head+r.len)%len(r.slots)]
	slot.Source = source
	slot.Seq = seq
	slot.Timestamp = timestamp
	slot.Payload = slot.Payload[:len(payload)]
	copy(slot.Payload, payload)
	r.len++
	return true
}

// Peek returns the oldest envelope without removing it.
func (r *Ring[K]) Peek() (*Envelope[K], bool) {
	if r.len == 0 {
		return nil, false
	}
	return &r.slots[r.head], true
}

// Drop removes the oldest envelope.
func (r *Ring[K]) Drop() {
	if r.len == 0 {
		return
	}
	var zero K
	r.slots[r.head].Source = zero
	r.head = (r.head + 1) % len(r.slots)
	r.len--
}
