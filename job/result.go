package job

import "errors"

// TerminalError marks a processor failure that must not be retried.
// Wrap the cause with Terminal(); the executor dead-letters the job
// immediately regardless of remaining attempts. Any other error (or a
// recovered panic) is a retryable failure.
type TerminalError struct {
	Err error
}

// Error implements error.
func (e *TerminalError) Error() string {
	if e.Err == nil {
		return "terminal failure"
	}
	return "terminal: " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *TerminalError) Unwrap() error { return e.Err }

// Terminal wraps err as a terminal (non-retryable) failure.
// Returns nil if err is nil.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

// IsTerminal reports whether err is (or wraps) a TerminalError.
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}
