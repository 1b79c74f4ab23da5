// Package provider defines the Action Provider capability the interpreter
// calls into for page-level effects, plus the built-in backends.
package provider

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by backends for operations they cannot perform.
var ErrUnsupported = errors.New("operation not supported by provider")

// Provider is the automation backend consumed by the interpreter.
//
// Element lookups search the primary scope first and then nested scopes
// (frames). A missing element is reported as a negative result, never as an
// error, so the interpreter's ignore_error policy governs propagation.
type Provider interface {
	OpenURL(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) (bool, error)
	InputText(ctx context.Context, selector, text string) (bool, error)
	// GetText returns the element text and whether the element was found.
	GetText(ctx context.Context, selector string) (string, bool, error)
	Evaluate(ctx context.Context, script string) (any, error)
	Stop() error
}

// DatetimeSetter is implemented by backends that can set a date field and
// dispatch its change notification without script evaluation.
type DatetimeSetter interface {
	SetDatetime(ctx context.Context, selector, value string) (bool, error)
}

// Factory creates a provider for one run.
type Factory func() Provider
