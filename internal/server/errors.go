package server

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies request failures.
type ErrorKind string

const (
	// KindTransport covers a missing Content-Length and body read failures.
	KindTransport ErrorKind = "transport"
	// KindParse covers bodies that are not UTF-8 JSON objects.
	KindParse ErrorKind = "parse"
	// KindTooLarge is a Content-Length above the configured limit.
	KindTooLarge ErrorKind = "too_large"
	// KindUnavailable is a matching push that arrived during shutdown.
	KindUnavailable ErrorKind = "unavailable"
)

// RequestError is returned by handlers for requests that could not be
// processed at all.
type RequestError struct {
	Kind ErrorKind
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Status is the HTTP status the boundary responds with.
func (e *RequestError) Status() int {
	switch e.Kind {
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func transportError(format string, args ...interface{}) *RequestError {
	return &RequestError{Kind: KindTransport, Err: fmt.Errorf(format, args...)}
}
