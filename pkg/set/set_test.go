package set_test

import (
	"slices"
	"testing"

	"github.com/stateforward/go-hsmbus/pkg/set"
)

func TestSet(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		s := set.New(8, 1, 2, 3)
		if s.Size() != 3 {
			t.Errorf("Expected size 3, got %d", s.Size())
		}
		for _, item := range []int{1, 2, 3} {
			if !s.Contains(item) {
				t.Errorf("Expected set to contain %d", item)
			}
		}
		if s.Cap() != 64 {
			t.Errorf("Expected capacity 64, got %d", s.Cap())
		}
	})

	t.Run("Add", func(t *testing.T) {
		s := set.New(130)
		s.Add(129, 129, 0)
		if s.Size() != 2 {
			t.Errorf("Expected size 2, got %d", s.Size())
		}
		if !s.Contains(129) {
			t.Error("Expected set to contain 129")
		}
	})

	t.Run("OutOfRange", func(t *testing.T) {
		s := set.New(4)
		s.Add(-1, 64)
		if s.Size() != 0 {
			t.Errorf("Expected out of range items to be ignored, size %d", s.Size())
		}
		if s.Contains(-1) || s.Contains(1000) {
			t.Error("Expected out of range lookups to be false")
		}
	})

	t.Run("Remove", func(t *testing.T) {
		s := set.New(8, 5)
		s.Remove(5)
		s.Remove(6)
		if s.Size() != 0 {
			t.Errorf("Expected size 0, got %d", s.Size())
		}
		if s.Contains(5) {
			t.Error("Expected set to not contain 5")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		s := set.New(8, 1, 7)
		s.Clear()
		if s.Size() != 0 || s.Contains(1) {
			t.Error("Expected empty set after Clear")
		}
	})

	t.Run("Items", func(t *testing.T) {
		s := set.New(200, 199, 3, 64, 0)
		if got := s.Items(); !slices.Equal(got, []int{0, 3, 64, 199}) {
			t.Errorf("Expected ordered items, got %v", got)
		}
	})
}
