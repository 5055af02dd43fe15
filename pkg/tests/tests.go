// Package tests holds helpers shared by the package tests.
package tests

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/stateforward/go-hsmbus"
)

// Recorder collects the names of the actions that ran, in order.
type Recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *Recorder) Record(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *Recorder) Steps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.steps)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = nil
}

func (r *Recorder) Matches(expected ...string) bool {
	return slices.Equal(r.Steps(), expected)
}

// Action returns an entry or exit action recording name.
func Action[T any](r *Recorder, name string) hsm.Action[T] {
	return func(ctx *hsm.Context[T]) {
		r.Record(name)
	}
}

// Run returns a run action recording name and reporting result.
func Run[T any](r *Recorder, name string, result hsm.Result) hsm.RunAction[T] {
	return func(ctx *hsm.Context[T]) hsm.Result {
		r.Record(name)
		return result
	}
}

// Trace returns an hsm.Trace recording "step:state" for every engine step.
func (r *Recorder) Trace() hsm.Trace {
	return func(ctx context.Context, step string, state string) func(...any) {
		r.Record(step + ":" + state)
		return func(...any) {}
	}
}

// Results returns an hsm.Trace recording "state=result" for every run action.
func (r *Recorder) Results() hsm.Trace {
	return func(ctx context.Context, step string, state string) func(...any) {
		if step != "run" {
			return func(...any) {}
		}
		return func(results ...any) {
			for _, result := range results {
				r.Record(fmt.Sprintf("%s=%v", state, result))
			}
		}
	}
}
