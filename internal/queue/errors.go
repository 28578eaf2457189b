package queue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// CircuitOpenError is returned without running the task while the endpoint's
// circuit is open.
type CircuitOpenError struct {
	Endpoint string
	Err      error
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for endpoint %q", e.Endpoint)
}

func (e *CircuitOpenError) Unwrap() error { return e.Err }

// TimeoutError reports an attempt that outlived its per-attempt timeout.
type TimeoutError struct {
	Endpoint string
	Timeout  time.Duration
	Attempt  int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: attempt %d timed out after %s", e.Endpoint, e.Attempt, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// StatusCoder is implemented by errors that carry an HTTP-like status code.
type StatusCoder interface {
	StatusCode() int
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as a client error: it is returned to the caller at once
// and never retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Class is the retry classification of a task error.
type Class int

const (
	ClassNone Class = iota
	// ClassClient errors are the caller's fault and are not retried.
	ClassClient
	// ClassRetryable errors are transient: server errors, timeouts, network failures.
	ClassRetryable
	// ClassCanceled means the caller's context ended.
	ClassCanceled
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassClient:
		return "client"
	case ClassRetryable:
		return "retryable"
	case ClassCanceled:
		return "canceled"
	}
	return "unknown"
}

// Classify decides how the queue treats err. 4xx statuses are client errors
// except 408 and 429, which are retried along with 5xx and anything without
// a status.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return ClassRetryable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassCanceled
	}

	var perm *permanentError
	if errors.As(err, &perm) {
		return ClassClient
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
			return ClassClient
		}
	}
	return ClassRetryable
}
