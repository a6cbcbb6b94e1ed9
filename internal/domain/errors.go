package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds. Every error produced by the backtest pipeline wraps exactly
// one of these, so callers can branch with errors.Is.
var (
	ErrInvalidInput    = errors.New("InvalidInput")
	ErrDataUnavailable = errors.New("DataUnavailable")
	ErrDegenerateInput = errors.New("DegenerateInput")
)

// Error describes a failure with enough context to diagnose it without
// re-running: the operation, the bar index (or -1) and, for metric
// failures, the metric name.
type Error struct {
	Kind   error
	Op     string
	Index  int
	Metric string
	Msg    string
	Err    error // underlying cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Index >= 0 {
		fmt.Fprintf(&b, " (bar %d)", e.Index)
	}
	if e.Metric != "" {
		fmt.Fprintf(&b, " (metric %s)", e.Metric)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InvalidInput builds an ErrInvalidInput error. index is -1 when the
// failure is not tied to a specific bar.
func InvalidInput(op string, index int, format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidInput, Op: op, Index: index, Msg: fmt.Sprintf(format, args...)}
}

// DataUnavailable builds an ErrDataUnavailable error wrapping cause.
func DataUnavailable(op string, cause error, format string, args ...any) *Error {
	return &Error{Kind: ErrDataUnavailable, Op: op, Index: -1, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// DegenerateInput builds an ErrDegenerateInput error for the named metric.
func DegenerateInput(op, metric string, index int, format string, args ...any) *Error {
	return &Error{Kind: ErrDegenerateInput, Op: op, Index: index, Metric: metric, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the failure kind name of err ("InvalidInput",
// "DataUnavailable", "DegenerateInput"), or "" for any other error.
func KindOf(err error) string {
	for _, k := range []error{ErrInvalidInput, ErrDataUnavailable, ErrDegenerateInput} {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return ""
}
