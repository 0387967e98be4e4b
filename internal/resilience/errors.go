package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Kind classifies an error for retry and halt decisions.
type Kind string

const (
	// KindTransient errors are safe to retry: network timeouts, rate limits,
	// temporary 5xx responses.
	KindTransient Kind = "transient"
	// KindFatal errors halt the current phase immediately: bad configuration,
	// schema mismatch, authentication failure.
	KindFatal Kind = "fatal"
	// KindDataQuality errors are absorbed at the normalize/dedupe boundary
	// and surfaced only as counts, never as phase failures.
	KindDataQuality Kind = "data_quality"
)

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx,
// network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransient wraps an error as transient with an optional HTTP status code.
func NewTransient(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// FatalError wraps an error that must not be retried.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// NewFatal wraps an error as fatal.
func NewFatal(err error) *FatalError {
	return &FatalError{Err: err}
}

// DataQualityError marks a record-level defect that is counted, not raised.
type DataQualityError struct {
	Err error
}

func (e *DataQualityError) Error() string { return e.Err.Error() }
func (e *DataQualityError) Unwrap() error { return e.Err }

// NewDataQuality wraps an error as a data-quality issue.
func NewDataQuality(err error) *DataQualityError {
	return &DataQualityError{Err: err}
}

// Classify maps an error to its Kind. Explicit wrappers win; otherwise
// network-level transient patterns are recognized and everything else is
// treated as fatal, so an unclassified failure never loops in retry.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var dq *DataQualityError
	if errors.As(err, &dq) {
		return KindDataQuality
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return KindFatal
	}
	if IsTransient(err) {
		return KindTransient
	}
	return KindFatal
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient network patterns.
// An explicit FatalError anywhere in the chain wins over pattern matches.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var fe *FatalError
	if errors.As(err, &fe) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504, // Gateway Timeout
		529: // Overloaded (Anthropic)
		return true
	default:
		return false
	}
}
