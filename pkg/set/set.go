// Package set provides a fixed-size set of small non-negative integers.
package set

import "math/bits"

type Set struct {
	words []uint64
	size  int
}

// New returns a set able to hold the integers in [0, capacity).
func New(capacity int, items ...int) *Set {
	s := &Set{words: make([]uint64, (capacity+63)/64)}
	s.Add(items...)
	return s
}

func (s *Set) Cap() int {
	return len(s.words) * 64
}

// Add adds items to the set. Items outside the capacity are ignored.
func (s *Set) Add(items ...int) {
	for _, item := range items {
		if item < 0 || item >= s.Cap() {
			continue
		}
		word, bit := item/64, uint(item%64)
		if s.words[word]&(1<<bit) == 0 {
			s.words[word] |= 1 << bit
			s.size++
		}
	}
}

func (s *Set) Remove(item int) {
	if item < 0 || item >= s.Cap() {
		return
	}
	word, bit := item/64, uint(item%64)
	if s.words[word]&(1<<bit) != 0 {
		s.words[word] &^= 1 << bit
		s.size--
	}
}

func (s *Set) Contains(item int) bool {
	if item < 0 || item >= s.Cap() {
		return false
	}
	return s.words[item/64]&(1<<uint(item%64)) != 0
}

func (s *Set) Size() int {
	return s.size
}

// Clear empties the set without releasing its storage.
func (s *Set) Clear() {
	for i := range s.words {
		s.words[i] = 0
	}
	s.size = 0
}

// Items returns the members in ascending order.
func (s *Set) Items() []int {
	items := make([]int, 0, s.size)
	for i, word := range s.words {
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			items = append(items, i*64+bit)
			word &^= 1 << uint(bit)
		}
	}
	return items
}
