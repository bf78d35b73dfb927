package spi

import (
	"context"
)

// Outcome is the result of a transaction: either it ran to completion and
// carries per-task Reports, or the control stopped it early and carries a
// payload (the partial result). Exactly one of the two is set.
type Outcome struct {
	abort   bool
	reports []Report
	payload interface{}
}

// Continue is the outcome of a transaction that ran every task.
func Continue(reports []Report) Outcome {
	return Outcome{reports: reports}
}

// AbortEarly is the outcome of a transaction the control stopped before
// completion. payload is handed back to the transaction's caller.
func AbortEarly(payload interface{}) Outcome {
	return Outcome{abort: true, payload: payload}
}

// IsAbort reports whether the transaction stopped early.
func (o Outcome) IsAbort() bool { return o.abort }

// Reports returns the task reports of a Continue outcome.
func (o Outcome) Reports() []Report { return o.reports }

// Payload returns the payload of an AbortEarly outcome.
func (o Outcome) Payload() interface{} { return o.payload }

func (o Outcome) String() string {
	if o.abort {
		return "abort_early"
	}
	return "continue"
}

// PayloadAs returns the AbortEarly payload as T.
func PayloadAs[T any](o Outcome) (T, bool) {
	var zero T
	if !o.abort {
		return zero, false
	}
	v, ok := o.payload.(T)
	return v, ok
}

// Control is the executor callback an input plugin invokes from its
// Transaction once configuration is validated and the schema declared. It
// decides how the tasks run and returns the transaction outcome, which the
// plugin passes through unchanged.
type Control interface {
	Run(ctx context.Context, task TaskSource) (Outcome, error)
}

// ControlFunc adapts a function to Control.
type ControlFunc func(ctx context.Context, task TaskSource) (Outcome, error)

func (f ControlFunc) Run(ctx context.Context, task TaskSource) (Outcome, error) { return f(ctx, task) }
