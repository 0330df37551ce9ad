package invoke

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/joescharf/reviewd/internal/models"
)

// TransientError marks a failure worth retrying: timeouts, 5xx responses,
// and provider rate limits. Anything else fails immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so the invoker will retry it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// StatusError converts an HTTP status into the error taxonomy: 404 and
// 401/403 map to the pipeline-fatal sentinels, 429 and 5xx are transient,
// everything else is a permanent request error.
func StatusError(status int, detail string) error {
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", models.ErrNotFound, detail)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", models.ErrUnauthorized, detail)
	case status == http.StatusTooManyRequests, status >= 500:
		return Transient(fmt.Errorf("status %d: %s", status, detail))
	default:
		return fmt.Errorf("status %d: %s", status, detail)
	}
}

// ClassifyMessage inspects an error string from an SDK that does not expose
// status codes and wraps rate-limit or timeout signals as transient.
func ClassifyMessage(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range []string{"429", "rate limit", "overloaded", "concurrency", "timeout", "connection reset", "temporarily unavailable"} {
		if strings.Contains(msg, sig) {
			return Transient(err)
		}
	}
	return err
}
