// Package errx wraps sentinel errors with context while keeping them
// matchable with errors.Is.
package errx

import "fmt"

// Wrap returns an error that matches both sentinel and err.
func Wrap(sentinel, err error) error {
	if err == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// With appends formatted detail to sentinel. The format may use %w to chain
// an additional cause.
func With(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w"+format, append([]any{sentinel}, args...)...)
}
