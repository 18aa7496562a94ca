package engine

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/feedsim/internal/feed"
)

// ErrStopped is returned by operations submitted after the engine stopped.
var ErrStopped = errors.New("engine stopped")

// ErrMalformedBody marks a completed backend response whose body could not
// be decoded. Backends wrap decode failures with it.
var ErrMalformedBody = errors.New("malformed response body")

// Error is a failure reported to the caller of an engine operation.
//
// Nothing the engine reports is fatal: the caller decides whether to
// retry, ignore, or alert a human.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the engine operation (e.g. "toggle", "simulate").
	Op string

	// PostID identifies the affected post, if any.
	PostID string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeNetworkFailure indicates the request never completed.
	ErrCodeNetworkFailure ErrorCode = "NETWORK_FAILURE"

	// ErrCodeInvalidState indicates violated preconditions. No request
	// was issued.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeStaleIndex indicates the backend refused a positional address
	// that no longer matches the intended comment.
	ErrCodeStaleIndex ErrorCode = "STALE_INDEX"

	// ErrCodeNotFound indicates the post or comment does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeRejected indicates the backend answered with an error status.
	ErrCodeRejected ErrorCode = "REJECTED"

	// ErrCodeMalformedResponse indicates a response that could not be
	// interpreted (unknown outcome tag, comment without identifier).
	ErrCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
	if e.PostID != "" {
		msg += fmt.Sprintf(" (post=%s)", e.PostID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNetworkFailure returns true if the request never completed.
func IsNetworkFailure(err error) bool {
	return CodeOf(err) == ErrCodeNetworkFailure
}

// IsInvalidState returns true if the operation's preconditions failed.
func IsInvalidState(err error) bool {
	return CodeOf(err) == ErrCodeInvalidState
}

// IsStaleIndex returns true if a positional address was refused.
func IsStaleIndex(err error) bool {
	return CodeOf(err) == ErrCodeStaleIndex
}

// IsNotFound returns true if the addressed post or comment is absent.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

func invalidState(op, postID, message string) *Error {
	return &Error{Code: ErrCodeInvalidState, Op: op, PostID: postID, Message: message}
}

func notFound(op, postID, message string) *Error {
	return &Error{Code: ErrCodeNotFound, Op: op, PostID: postID, Message: message}
}

func malformed(op, postID, message string, err error) *Error {
	return &Error{Code: ErrCodeMalformedResponse, Op: op, PostID: postID, Message: message, Err: err}
}

// statusCoder is implemented by backend errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// classify converts a backend failure into an *Error.
func classify(op, postID, message string, err error) *Error {
	e := &Error{Code: ErrCodeNetworkFailure, Op: op, PostID: postID, Message: message, Err: err}

	var sc statusCoder
	switch {
	case errors.Is(err, feed.ErrMalformedOutcome), errors.Is(err, ErrMalformedBody):
		e.Code = ErrCodeMalformedResponse
	case errors.As(err, &sc):
		switch sc.StatusCode() {
		case http.StatusNotFound:
			e.Code = ErrCodeNotFound
		case http.StatusConflict:
			e.Code = ErrCodeStaleIndex
		default:
			e.Code = ErrCodeRejected
		}
	}
	return e
}

// storeErr maps a Post Store failure inside an apply closure.
func storeErr(op, postID string, err error) error {
	if errors.Is(err, feed.ErrPostNotFound) {
		return notFound(op, postID, "post not in feed")
	}
	return err
}
