// Package migerr defines the typed error taxonomy shared by every component
// of the migration engine. Callers should use errors.As to recover a
// specific kind rather than matching on message text.
package migerr

import "fmt"

// ConfigError reports invalid or missing configuration discovered before
// any network activity begins.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// NewConfigError builds a ConfigError for the named field.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// TransportError reports that a request never produced an HTTP response:
// connection failure, TLS failure, or retry exhaustion on a transient fault.
type TransportError struct {
	Method  string
	URL     string
	Cause   error
	Retries int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s %s (after %d retries): %v", e.Method, e.URL, e.Retries, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// HttpError reports a non-retriable HTTP status returned by the server.
type HttpError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("http error: %s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// NotFoundError specializes HttpError for a 404 where the caller cares
// about absence specifically, rather than generic HTTP failure.
type NotFoundError struct {
	*HttpError
}

// ValidationError reports a structural impossibility the sanitizer could
// not repair automatically (e.g. a CNAME conflict with auto-fix disabled).
type ValidationError struct {
	Zone   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: zone %s: %s", e.Zone, e.Reason)
}

// ConflictError reports a 409/422 rejection from the target server. The
// API client does not know which change of a request was rejected, so the
// ConflictErrors it returns leave RRSetName and RRSetType empty.
type ConflictError struct {
	*HttpError
	RRSetName string
	RRSetType string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict error: %s %s: status %d: %s", e.RRSetName, e.RRSetType, e.HttpError.Status, e.HttpError.Body)
}

// CancelledError reports that an operation was aborted by an external
// signal or by a batch's stop-on-error policy rather than completing or
// failing on its own terms.
type CancelledError struct {
	Zone   string
	Reason string
}

func (e *CancelledError) Error() string {
	if e.Zone == "" {
		return fmt.Sprintf("cancelled: %s", e.Reason)
	}
	return fmt.Sprintf("cancelled: zone %s: %s", e.Zone, e.Reason)
}

// Kind returns a short machine-stable label for an error's taxonomy kind,
// used for log fields and summary tallies. Unrecognized errors (those not
// produced by this package) are labeled "unknown".
func Kind(err error) string {
	switch err.(type) {
	case *ConfigError:
		return "ConfigError"
	case *TransportError:
		return "TransportError"
	case *NotFoundError:
		return "NotFoundError"
	case *ConflictError:
		return "ConflictError"
	case *HttpError:
		return "HttpError"
	case *ValidationError:
		return "ValidationError"
	case *CancelledError:
		return "CancelledError"
	default:
		return "unknown"
	}
}
