// Package transition routes exam status changes to their side effects.
//
// Listeners are registered statically and run synchronously in registration
// order. A listener that fails aborts the remainder; listeners with
// best-effort semantics absorb their own failures.
package transition

import (
	"context"

	"github.com/louisbranch/examroom/internal/exam/domain"
)

// Listener reacts to one class of exam status change. Implementations decide
// for themselves which target statuses they care about.
type Listener interface {
	// Name identifies the listener in logs and error metadata.
	Name() string
	// OnStatusChange runs the listener's side effect for a status change.
	OnStatusChange(ctx context.Context, oldState, newState domain.ExamState) error
}

// Dispatcher fans one status change out to the registered listeners.
type Dispatcher struct {
	listeners []Listener
}

// NewDispatcher registers listeners in invocation order.
func NewDispatcher(listeners ...Listener) *Dispatcher {
	return &Dispatcher{listeners: listeners}
}

// Dispatch invokes every listener in order. Updates that do not change the
// status invoke no listeners at all.
func (d *Dispatcher) Dispatch(ctx context.Context, oldState, newState domain.ExamState) error {
	if d == nil || oldState.Status == newState.Status {
		return nil
	}
	for _, listener := range d.listeners {
		if err := listener.OnStatusChange(ctx, oldState, newState); err != nil {
			return err
		}
	}
	return nil
}
