package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass represents a classification of transport errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// ErrInvalidRequest is returned for requests that cannot be sent at all.
var ErrInvalidRequest = errors.New("invalid request")

// ErrResponseTooLarge is returned when a response body exceeds MaxBodyBytes.
// It classifies as a network error.
var ErrResponseTooLarge = errors.New("response body too large")

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string

	// Body holds the upstream error payload, if any.
	Body []byte
	// Headers are the upstream response headers.
	Headers http.Header
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Classify categorizes err for observability.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.ErrorClass
	}
	return ErrorClassNetwork
}

// classifyStatus maps an HTTP status code to an error class.
func classifyStatus(code int) ErrorClass {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case code >= 400 && code < 500:
		return ErrorClassClient
	case code >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
