package kinds_test

import (
	"testing"

	"github.com/stateforward/go-hsmbus/kinds"
)

func TestKinds(t *testing.T) {
	if !kinds.IsKind(kinds.Leaf, kinds.State) {
		t.Errorf("Leaf should be a State")
	}
	if !kinds.IsKind(kinds.Root, kinds.State) {
		t.Errorf("Root should be a State")
	}
	if kinds.IsKind(kinds.Leaf, kinds.Composite) {
		t.Errorf("Leaf should not be a Composite")
	}
	if !kinds.IsKind(kinds.Subscriber, kinds.Observer) {
		t.Errorf("Subscriber should be an Observer")
	}
	if kinds.IsKind(kinds.Listener, kinds.Subscriber) {
		t.Errorf("Listener should not be a Subscriber")
	}
	if kinds.IsKind(kinds.Listener, kinds.State) {
		t.Errorf("Listener should not be a State")
	}
	if !kinds.IsKind(kinds.Composite, kinds.Leaf, kinds.State) {
		t.Errorf("IsKind should match any of the bases")
	}
}

func TestBases(t *testing.T) {
	bases := kinds.Bases(kinds.Listener)
	if bases[0] != kinds.Observer {
		t.Errorf("expected first base of Listener to be Observer, got %d", bases[0])
	}
	if bases[1] != 0 {
		t.Errorf("expected a single base, got %v", bases)
	}
}
