package eventbus

import (
	"fmt"
	"reflect"
)

// Result is the outcome of dispatching to a single handler. Exactly one of
// value and error is meaningful: a success may carry the zero value, a
// failure always carries a non-nil error.
type Result[V any] struct {
	value V
	err   error
}

// Success returns a successful result holding v.
func Success[V any](v V) Result[V] {
	return Result[V]{value: v}
}

// Failure returns a failed result. A nil err is replaced by ErrNilFailure.
func Failure[V any](err error) Result[V] {
	if err == nil {
		err = ErrNilFailure
	}
	return Result[V]{err: err}
}

// Value returns the value or the error.
func (r Result[V]) Value() (V, error) {
	return r.value, r.err
}

// MustValue returns the value and panics with the error on failure.
func (r Result[V]) MustValue() V {
	if r.err != nil {
		panic(r.err)
	}
	return r.value
}

// ValueOrZero returns the value, or the zero value on failure.
func (r Result[V]) ValueOrZero() V {
	if r.err != nil {
		var zero V
		return zero
	}
	return r.value
}

// Err returns the error, or nil on success.
func (r Result[V]) Err() error { return r.err }

func (r Result[V]) IsSuccess() bool { return r.err == nil }

func (r Result[V]) IsError() bool { return r.err != nil }

// Convert turns an untyped result into a typed one. A successful result whose
// value is not an R becomes a failure wrapping ErrResultType. A nil value
// converts to the zero R.
func Convert[R any](r Result[any]) Result[R] {
	if r.err != nil {
		return Failure[R](r.err)
	}
	if r.value == nil {
		var zero R
		return Success(zero)
	}
	v, ok := r.value.(R)
	if !ok {
		return Failure[R](fmt.Errorf("%w: got %T, want %s", ErrResultType, r.value, reflect.TypeFor[R]()))
	}
	return Success(v)
}

// Join collects every failed result into a *HandlersFailedError. It returns
// nil when all results succeeded.
func Join[V any](results []Result[V]) error {
	var failures []HandlerFailure
	for i, r := range results {
		if r.err != nil {
			failures = append(failures, HandlerFailure{Index: i, Err: r.err})
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &HandlersFailedError{Failures: failures}
}
