package hsm

import (
	"errors"
	"fmt"
	"path"

	"go.uber.org/multierr"

	"github.com/stateforward/go-hsmbus/kinds"
	"github.com/stateforward/go-hsmbus/pkg/set"
)

var (
	ErrInvalidTable   = errors.New("invalid state table")
	ErrUnknownState   = errors.New("unknown state")
	ErrAlreadyStarted = errors.New("state machine already started")
)

// Table maps state ids to their definitions. Ids must be the contiguous range
// 1..len(table); None (0) is reserved for "no state".
type Table[T any] map[StateID]State[T]

// Machine is a validated, immutable state table shared by any number of
// contexts.
type Machine[T any] struct {
	name     string
	states   []State[T]
	names    []string
	depth    []int
	kinds    []uint64
	maxDepth int
}

// NewMachine validates table and returns the machine built from it. Every
// problem found is reported in the returned error; a machine is only returned
// when the table is well formed.
func NewMachine[T any](name string, table Table[T]) (*Machine[T], error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("%w: %s has no states", ErrInvalidTable, name)
	}
	n := len(table)
	m := &Machine[T]{
		name:   name,
		states: make([]State[T], n+1),
		names:  make([]string, n+1),
		depth:  make([]int, n+1),
		kinds:  make([]uint64, n+1),
	}
	var err error
	for id, state := range table {
		if id <= None || int(id) > n {
			err = multierr.Append(err, fmt.Errorf("%w: %s: state id %d outside 1..%d", ErrInvalidTable, name, id, n))
			continue
		}
		if state.Name == "" {
			state.Name = fmt.Sprintf("state_%d", id)
		}
		m.states[id] = state
	}
	if err != nil {
		return nil, err
	}
	seen := make(map[string]StateID, n)
	for id := StateID(1); int(id) <= n; id++ {
		state := &m.states[id]
		if other, ok := seen[state.Name]; ok {
			err = multierr.Append(err, fmt.Errorf("%w: %s: states %d and %d share the name %q", ErrInvalidTable, name, other, id, state.Name))
		}
		seen[state.Name] = id
		if !m.valid(state.Parent) && state.Parent != None {
			err = multierr.Append(err, fmt.Errorf("%w: %s: state %q has dangling parent %d", ErrInvalidTable, name, state.Name, state.Parent))
		}
		if state.Initial != None {
			if !m.valid(state.Initial) {
				err = multierr.Append(err, fmt.Errorf("%w: %s: state %q has dangling initial %d", ErrInvalidTable, name, state.Name, state.Initial))
			} else if m.states[state.Initial].Parent != id {
				err = multierr.Append(err, fmt.Errorf("%w: %s: initial %q of %q is not its child", ErrInvalidTable, name, m.states[state.Initial].Name, state.Name))
			}
		}
	}
	if err != nil {
		return nil, err
	}
	visited := set.New(n + 1)
	for id := StateID(1); int(id) <= n; id++ {
		visited.Clear()
		depth := 0
		for s := id; s != None; s = m.states[s].Parent {
			if visited.Contains(int(s)) {
				err = multierr.Append(err, fmt.Errorf("%w: %s: parent chain of %q has a cycle", ErrInvalidTable, name, m.states[id].Name))
				break
			}
			visited.Add(int(s))
			depth++
		}
		m.depth[id] = depth - 1
		m.maxDepth = max(m.maxDepth, depth-1)

		visited.Clear()
		for s := id; s != None; s = m.states[s].Initial {
			if visited.Contains(int(s)) {
				err = multierr.Append(err, fmt.Errorf("%w: %s: initial chain of %q has a cycle", ErrInvalidTable, name, m.states[id].Name))
				break
			}
			visited.Add(int(s))
		}
	}
	if err != nil {
		return nil, err
	}
	parents := set.New(n + 1)
	for id := StateID(1); int(id) <= n; id++ {
		parents.Add(int(m.states[id].Parent))
	}
	for id := StateID(1); int(id) <= n; id++ {
		qualifiedName := m.states[id].Name
		for s := m.states[id].Parent; s != None; s = m.states[s].Parent {
			qualifiedName = path.Join(m.states[s].Name, qualifiedName)
		}
		m.names[id] = "/" + qualifiedName
		switch {
		case m.states[id].Parent == None:
			m.kinds[id] = kinds.Root
		case parents.Contains(int(id)):
			m.kinds[id] = kinds.Composite
		default:
			m.kinds[id] = kinds.Leaf
		}
	}
	return m, nil
}

func (m *Machine[T]) valid(id StateID) bool {
	return id > None && int(id) < len(m.states)
}

func (m *Machine[T]) Name() string {
	return m.name
}

// Len returns the number of states in the table.
func (m *Machine[T]) Len() int {
	return len(m.states) - 1
}

func (m *Machine[T]) State(id StateID) (State[T], bool) {
	if !m.valid(id) {
		return State[T]{}, false
	}
	return m.states[id], true
}

// QualifiedName returns the path of id from its root, e.g. "/Init/Pressed".
func (m *Machine[T]) QualifiedName(id StateID) string {
	if !m.valid(id) {
		return ""
	}
	return m.names[id]
}

// Kind classifies id as kinds.Root, kinds.Composite or kinds.Leaf.
func (m *Machine[T]) Kind(id StateID) uint64 {
	if !m.valid(id) {
		return kinds.Null
	}
	return m.kinds[id]
}

func (m *Machine[T]) Depth(id StateID) int {
	if !m.valid(id) {
		return -1
	}
	return m.depth[id]
}

// Lookup finds a state by its short name.
func (m *Machine[T]) Lookup(name string) (StateID, bool) {
	for id := StateID(1); m.valid(id); id++ {
		if m.states[id].Name == name {
			return id, true
		}
	}
	return None, false
}

// IsAncestor reports whether ancestor is a proper ancestor of id.
func (m *Machine[T]) IsAncestor(ancestor, id StateID) bool {
	if !m.valid(ancestor) || !m.valid(id) {
		return false
	}
	for s := m.states[id].Parent; s != None; s = m.states[s].Parent {
		if s == ancestor {
			return true
		}
	}
	return false
}

// LCA finds the boundary state of a transition from source to target: the
// states below it on the source side are exited and the states below it on
// the target side are entered.
//
// For example, with Init/{Idle, Pressed/LongPressPending}:
//   - LCA(Idle, LongPressPending) returns Init
//   - LCA(LongPressPending, Pressed) returns Init, Pressed is re-entered
//   - LCA(Idle, Idle) returns Init
//
// None is returned when the two states do not share a root.
func (m *Machine[T]) LCA(source, target StateID) StateID {
	if !m.valid(source) || !m.valid(target) {
		return None
	}
	// targeting the source itself or one of its ancestors re-enters the target
	if source == target || m.IsAncestor(target, source) {
		return m.states[target].Parent
	}
	a, b := source, target
	for m.depth[a] > m.depth[b] {
		a = m.states[a].Parent
	}
	for m.depth[b] > m.depth[a] {
		b = m.states[b].Parent
	}
	for a != b {
		a = m.states[a].Parent
		b = m.states[b].Parent
	}
	return a
}
