package domain

// Outcome tells the caller how a best-effort step ended.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeDegraded Outcome = "degraded"
	OutcomeFailed   Outcome = "failed"
)

// Result carries a value together with how it was obtained. A degraded result
// still holds a usable value; Err explains what was given up.
type Result[T any] struct {
	Value   T
	Outcome Outcome
	Err     error
}

// OK wraps a fully successful value.
func OK[T any](v T) Result[T] {
	return Result[T]{Value: v, Outcome: OutcomeOK}
}

// Degraded wraps a fallback value and the error that forced it.
func Degraded[T any](v T, err error) Result[T] {
	return Result[T]{Value: v, Outcome: OutcomeDegraded, Err: err}
}

// Failed reports a step that produced nothing usable.
func Failed[T any](err error) Result[T] {
	return Result[T]{Outcome: OutcomeFailed, Err: err}
}

// Usable reports whether Value may be used.
func (r Result[T]) Usable() bool {
	return r.Outcome != OutcomeFailed
}
