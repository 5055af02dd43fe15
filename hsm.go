// Package hsm dispatches hierarchical state machines described by a fixed
// table of states addressed by small integer ids.
package hsm

import (
	"context"
	"fmt"
	"log/slog"
)

// StateID addresses a state in a Table. None is the absent state.
type StateID int

const None StateID = 0

// Result is reported by run actions.
type Result int

const (
	// Handled means the state consumed the event.
	Handled Result = iota
	// Transitioned means the action changed state; bubbling stops.
	Transitioned
	// Unhandled passes the event to the parent state.
	Unhandled
)

func (r Result) String() string {
	switch r {
	case Handled:
		return "handled"
	case Transitioned:
		return "transitioned"
	case Unhandled:
		return "unhandled"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

type Action[T any] func(ctx *Context[T])

type RunAction[T any] func(ctx *Context[T]) Result

// State is one row of a Table. Parent and Initial are None when absent; the
// Initial of a state must be one of its direct children.
type State[T any] struct {
	Name    string
	Entry   Action[T]
	Run     RunAction[T]
	Exit    Action[T]
	Parent  StateID
	Initial StateID
}

// Trace is called at the start of every engine step and the returned function
// when the step completes.
type Trace func(ctx context.Context, step string, state string) func(...any)

type config struct {
	trace  Trace
	logger *slog.Logger
}

type Option func(*config)

func WithTrace(trace Trace) Option {
	return func(c *config) {
		c.trace = trace
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

type subcontext = context.Context

// Context is the running instance of a Machine. It is owned by a single
// goroutine; none of its methods may be called concurrently.
type Context[T any] struct {
	subcontext
	Storage T

	machine      *Machine[T]
	current      StateID
	started      bool
	inAction     bool
	transitioned bool
	terminated   bool
	err          error
	path         []StateID
	trace        Trace
	logger       *slog.Logger
}

func New[T any](ctx context.Context, machine *Machine[T], storage T, opts ...Option) *Context[T] {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Context[T]{
		subcontext: ctx,
		Storage:    storage,
		machine:    machine,
		path:       make([]StateID, machine.maxDepth+1),
		trace:      cfg.trace,
		logger:     cfg.logger.With("machine", machine.name),
	}
}

func (ctx *Context[T]) Machine() *Machine[T] {
	return ctx.machine
}

// Current returns the active leaf state.
func (ctx *Context[T]) Current() StateID {
	return ctx.current
}

// State returns the qualified name of the active leaf state.
func (ctx *Context[T]) State() string {
	return ctx.machine.QualifiedName(ctx.current)
}

func (ctx *Context[T]) Logger() *slog.Logger {
	return ctx.logger
}

// SetInitial enters id, its ancestors first, then follows initial children
// down to a leaf which becomes the current state.
func (ctx *Context[T]) SetInitial(id StateID) error {
	if ctx.started {
		return ErrAlreadyStarted
	}
	if !ctx.machine.valid(id) {
		return fmt.Errorf("%w: %d", ErrUnknownState, id)
	}
	if ctx.trace != nil {
		defer ctx.trace(ctx, "SetInitial", ctx.machine.names[id])()
	}
	ctx.started = true
	ctx.enterFrom(None, id)
	ctx.current = ctx.descend(id)
	return nil
}

// SetState transitions from the current state to id. States between the
// current leaf and the LCA are exited leaf first, states between the LCA and
// id are entered root first, then id's initial chain is followed.
func (ctx *Context[T]) SetState(id StateID) {
	if !ctx.machine.valid(id) {
		ctx.logger.Error("transition to unknown state", "id", int(id))
		return
	}
	if !ctx.started {
		ctx.logger.Error("transition before initial state", "target", ctx.machine.names[id])
		return
	}
	if ctx.inAction {
		ctx.logger.Error("transition requested from entry or exit action", "state", ctx.State(), "target", ctx.machine.names[id])
		return
	}
	if ctx.trace != nil {
		defer ctx.trace(ctx, "SetState", ctx.machine.names[id])()
	}
	lca := ctx.machine.LCA(ctx.current, id)
	for s := ctx.current; s != lca && s != None; s = ctx.machine.states[s].Parent {
		ctx.exit(s)
	}
	ctx.enterFrom(lca, id)
	ctx.current = ctx.descend(id)
	ctx.transitioned = true
}

// Run executes the run action of the current state, bubbling Unhandled
// results up the ancestor chain.
func (ctx *Context[T]) Run() Result {
	if ctx.terminated {
		return Handled
	}
	if !ctx.started {
		ctx.logger.Error("run before initial state")
		return Unhandled
	}
	ctx.transitioned = false
	for s := ctx.current; s != None; s = ctx.machine.states[s].Parent {
		state := &ctx.machine.states[s]
		if state.Run == nil {
			continue
		}
		result := ctx.run(s, state)
		if ctx.terminated {
			return Handled
		}
		if ctx.transitioned {
			return Transitioned
		}
		if result != Unhandled {
			return result
		}
	}
	ctx.logger.Warn("event unhandled", "state", ctx.State())
	return Unhandled
}

// Terminate stops the machine; later calls to Run do nothing. err is kept
// for the owner to inspect.
func (ctx *Context[T]) Terminate(err error) {
	ctx.terminated = true
	ctx.err = err
}

func (ctx *Context[T]) Terminated() bool {
	return ctx.terminated
}

// Reason returns the error given to Terminate.
func (ctx *Context[T]) Reason() error {
	return ctx.err
}

func (ctx *Context[T]) run(id StateID, state *State[T]) Result {
	var end func(...any)
	if ctx.trace != nil {
		end = ctx.trace(ctx, "run", ctx.machine.names[id])
	}
	result := state.Run(ctx)
	if end != nil {
		end(result)
	}
	return result
}

// enterFrom enters every state strictly below lca down to and including id.
func (ctx *Context[T]) enterFrom(lca, id StateID) {
	n := 0
	for s := id; s != lca && s != None; s = ctx.machine.states[s].Parent {
		ctx.path[n] = s
		n++
	}
	for i := n - 1; i >= 0; i-- {
		ctx.enter(ctx.path[i])
	}
}

func (ctx *Context[T]) descend(id StateID) StateID {
	for ctx.machine.states[id].Initial != None {
		id = ctx.machine.states[id].Initial
		ctx.enter(id)
	}
	return id
}

func (ctx *Context[T]) enter(id StateID) {
	if ctx.trace != nil {
		defer ctx.trace(ctx, "enter", ctx.machine.names[id])()
	}
	if entry := ctx.machine.states[id].Entry; entry != nil {
		ctx.inAction = true
		entry(ctx)
		ctx.inAction = false
	}
}

func (ctx *Context[T]) exit(id StateID) {
	if ctx.trace != nil {
		defer ctx.trace(ctx, "exit", ctx.machine.names[id])()
	}
	if exit := ctx.machine.states[id].Exit; exit != nil {
		ctx.inAction = true
		exit(ctx)
		ctx.inAction = false
	}
}
