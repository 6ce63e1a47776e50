package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMethodNotAllowed    = errors.New("method not allowed")
	ErrMissingContentType  = errors.New("missing content type")
	ErrMissingToken        = errors.New("missing verification token")
	ErrVerificationFailed  = errors.New("verification failed")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrBodyTooLarge        = errors.New("request body too large")
)

// MissingConfigError reports a required setting that is empty. Variable is
// the environment variable an operator has to set.
type MissingConfigError struct {
	Variable string
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("Server misconfig: %s not set", e.Variable)
}

func NewMissingConfigError(variable string) error {
	return &MissingConfigError{Variable: variable}
}

// ProxyError is a terminal outcome of a proxied request: it is written to
// the caller as a plain-text response with StatusCode and Message.
type ProxyError struct {
	StatusCode int
	Message    string
	Err        error
	Headers    map[string]string
}

func (e *ProxyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ProxyError) Unwrap() error {
	return e.Err
}

func NewProxyError(statusCode int, message string, err error) *ProxyError {
	return &ProxyError{
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

func (e *ProxyError) WithHeader(key, value string) *ProxyError {
	if e.Headers == nil {
		e.Headers = make(map[string]string)
	}
	e.Headers[key] = value
	return e
}
