// Package gdrive is a Google Drive v3 REST client covering what a one-way
// export needs: OAuth credential management, folder tree listing, and
// chunked file downloads, with automatic retry and error classification.
package gdrive

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, gdrive.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("gdrive: bad request")
	ErrUnauthorized = errors.New("gdrive: unauthorized")
	ErrForbidden    = errors.New("gdrive: forbidden")
	ErrNotFound     = errors.New("gdrive: not found")
	ErrThrottled    = errors.New("gdrive: throttled")
	ErrServerError  = errors.New("gdrive: server error")
)

// Sentinel errors for download and credential outcomes.
var (
	ErrNotLoggedIn      = errors.New("gdrive: not logged in")
	ErrNotDownloadable  = errors.New("gdrive: google-native document has no binary content")
	ErrShortRead        = errors.New("gdrive: received size does not match reported size")
	ErrChecksumMismatch = errors.New("gdrive: md5 checksum mismatch")
	ErrTooLarge         = errors.New("gdrive: file exceeds max_file_size")
)

// APIError wraps a sentinel error with the HTTP status code and the reason
// and message from the Drive error body.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gdrive: HTTP %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}

	return fmt.Sprintf("gdrive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// errorBody mirrors the Drive v3 JSON error envelope.
type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// newAPIError builds an APIError from a non-2xx response body. Bodies that
// are not the JSON envelope are kept verbatim as the message.
func newAPIError(code int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: code,
		Message:    string(body),
		Err:        classifyStatus(code),
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		apiErr.Message = eb.Error.Message
		if len(eb.Error.Errors) > 0 {
			apiErr.Reason = eb.Error.Errors[0].Reason
		}
	}

	if apiErr.Err == ErrForbidden && isRateLimitReason(apiErr.Reason) {
		apiErr.Err = ErrThrottled
	}

	return apiErr
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// Drive reports per-user and per-project quota exhaustion as 403.
func isRateLimitReason(reason string) bool {
	switch reason {
	case "rateLimitExceeded", "userRateLimitExceeded":
		return true
	default:
		return false
	}
}

// isRetryable reports whether a response should be retried.
func isRetryable(code int, body []byte) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	case http.StatusForbidden:
		return errors.Is(newAPIError(code, body), ErrThrottled)
	default:
		return false
	}
}
