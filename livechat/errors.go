package livechat

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument is returned by New when neither a channel id nor a live id is set.
	ErrInvalidArgument = errors.New("livechat: channel id or live id required")
	// ErrStreamOffline is reported when the watch page carries the offline marker.
	ErrStreamOffline = errors.New("Live stream offline")
	// ErrStreamNotFound is reported when no broadcast id could be established.
	ErrStreamNotFound = errors.New("Live stream not found")
	// ErrSessionExtraction is reported when a session token is missing from the watch page.
	ErrSessionExtraction = errors.New("session extraction failed")
	// ErrNotIdle is logged when Start is called on a running or stopped session.
	ErrNotIdle = errors.New("livechat: session is not idle")
)

// ReasonStreamFinished is the Ended reason used when the server signals the end of the broadcast.
const ReasonStreamFinished = "Live stream is finished"

// MissingTokenError names the session token that could not be found.
type MissingTokenError struct {
	Name   string
	Marker string
}

func (e *MissingTokenError) Error() string {
	return fmt.Sprintf("token %q not found (marker %s)", e.Name, e.Marker)
}

func (e *MissingTokenError) Unwrap() error { return ErrSessionExtraction }

// HTTPStatusError is returned when the platform answers with a non-2xx status.
type HTTPStatusError struct {
	URL  string
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// PollError wraps a failure of a single poll tick. The session keeps running.
type PollError struct {
	Err error
}

func (e *PollError) Error() string { return "poll failed: " + e.Err.Error() }

func (e *PollError) Unwrap() error { return e.Err }

// ErrorClass represents whether a poll error is expected to clear up on its own.
type ErrorClass int

const (
	// ErrorClassRetryable indicates a transient failure (network, 5xx, rate limiting).
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal indicates a failure that will not clear without a new session (4xx, bad payload).
	ErrorClassFatal
	// ErrorClassUnknown indicates the error could not be classified.
	ErrorClassUnknown
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifyPollError classifies a poll failure.
//
// HTTP 429 and 5xx responses are retryable, other 4xx responses are fatal
// (the session tokens are most likely stale). Decoding failures are fatal.
// Network level errors are retryable. Anything else is unknown.
func ClassifyPollError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	var se *HTTPStatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == 429 || se.Code >= 500:
			return ErrorClassRetryable
		case se.Code >= 400:
			return ErrorClassFatal
		}
		return ErrorClassUnknown
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "decode") || strings.Contains(lower, "invalid character") {
		return ErrorClassFatal
	}
	networkPatterns := []string{
		"connection reset",
		"connection refused",
		"timeout",
		"no such host",
		"eof",
		"broken pipe",
		"tls handshake",
	}
	for _, p := range networkPatterns {
		if strings.Contains(lower, p) {
			return ErrorClassRetryable
		}
	}
	return ErrorClassUnknown
}
