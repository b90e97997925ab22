package apiclient

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed request.
type ErrorKind int

const (
	// KindTransport covers network-level failures: DNS, connection refused,
	// TLS, connection reset mid-body.
	KindTransport ErrorKind = iota
	// KindTimeout covers requests that exceeded the client timeout or whose
	// context deadline passed.
	KindTimeout
	// KindStatus covers requests that completed with a non-2xx status.
	KindStatus
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindStatus:
		return "status"
	}
	return "unknown"
}

// RequestError is the error type returned by Send. Callers branch on Kind
// (and Status for KindStatus) rather than string matching.
type RequestError struct {
	Kind   ErrorKind
	Status int // HTTP status code; only set for KindStatus
	Method string
	URL    string
	Err    error // underlying error; nil for KindStatus
}

func (e *RequestError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("apiclient: %s %s: status %d", e.Method, e.URL, e.Status)
	case KindTimeout:
		return fmt.Sprintf("apiclient: %s %s: timeout: %v", e.Method, e.URL, e.Err)
	default:
		return fmt.Sprintf("apiclient: %s %s: %v", e.Method, e.URL, e.Err)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// AsRequestError returns the *RequestError in err's chain, or nil.
func AsRequestError(err error) *RequestError {
	var re *RequestError
	if errors.As(err, &re) {
		return re
	}
	return nil
}

// IsTimeout reports whether err is a request timeout.
func IsTimeout(err error) bool {
	re := AsRequestError(err)
	return re != nil && re.Kind == KindTimeout
}

// IsStatus reports whether err is an HTTP status error with the given code.
func IsStatus(err error, status int) bool {
	re := AsRequestError(err)
	return re != nil && re.Kind == KindStatus && re.Status == status
}
