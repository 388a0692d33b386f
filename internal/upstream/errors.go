package upstream

import "fmt"

// ErrorKind classifies an upstream failure for retry and reporting decisions.
type ErrorKind string

const (
	// KindTransient covers timeouts, connection resets, DNS failures and
	// 5xx responses; retried with backoff.
	KindTransient ErrorKind = "transient"

	// KindAuth covers 401/403 responses; fails immediately.
	KindAuth ErrorKind = "auth"

	// KindNotFound covers 404 responses; fails immediately.
	KindNotFound ErrorKind = "not_found"

	// KindUpstream covers other 4xx responses and malformed payloads;
	// fails immediately.
	KindUpstream ErrorKind = "upstream"
)

// Error is a classified upstream failure with a human-readable message.
// Callers never see raw transport errors, only the classified form.
type Error struct {
	Kind   ErrorKind
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream %s error (HTTP %d): %s", e.Kind, e.Status, e.Msg)
	}
	return fmt.Sprintf("upstream %s error: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}
