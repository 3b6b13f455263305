package taxapi

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork matches transport-level failures. Callers may retry.
	ErrNetwork = errors.New("taxapi: network error")
	// ErrAuthenticationFailed matches a rejected OAuth exchange.
	ErrAuthenticationFailed = errors.New("taxapi: authentication failed")
	// ErrUnauthorized matches a previously valid token being rejected with 401.
	ErrUnauthorized = errors.New("taxapi: unauthorized")
	// ErrRemote matches any other non-2xx response.
	ErrRemote = errors.New("taxapi: remote error")
)

// APIError is one structured error entry from a TaxBandits error body.
type APIError struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// NetworkError wraps DNS, dial, timeout, and body read failures.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("taxapi: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// AuthenticationError reports a failed OAuth exchange. HTTPStatus is set when the server
// answered; StatusName is set when the body carried a non-200 application status.
type AuthenticationError struct {
	HTTPStatus int
	Reason     string
	StatusName string
}

func (e *AuthenticationError) Error() string {
	if e.StatusName != "" {
		return fmt.Sprintf("taxapi: authentication failed: %s", e.StatusName)
	}
	return fmt.Sprintf("taxapi: authentication failed: status=%d %s", e.HTTPStatus, e.Reason)
}

func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthenticationFailed }

// UnauthorizedError is returned for a 401. The cached token has already been discarded.
type UnauthorizedError struct {
	Path string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("taxapi: unauthorized: %s", e.Path)
}

func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }

// RemoteError is any non-2xx, non-401 response.
type RemoteError struct {
	HTTPStatus int
	StatusName string
	Errors     []APIError
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("taxapi: remote error: status=%d %s", e.HTTPStatus, e.StatusName)
	if len(e.Errors) > 0 && e.Errors[0].Message != "" {
		msg += ": " + e.Errors[0].Message
	}
	return msg
}

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }
