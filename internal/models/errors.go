package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStatusChanged is returned by a conditional order update when the stored
// status no longer matches the one the caller read.
var ErrStatusChanged = errors.New("order status changed concurrently")

// ValidationError reports bad input caught before any external call.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Fields, ", "))
}

// ParseError wraps a failure to read an uploaded document.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse document: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ProviderError is a failure reported by, or while talking to, the gift card provider.
// StatusCode is zero when no response was received.
type ProviderError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	code := "Unknown"
	if e.StatusCode != 0 {
		code = fmt.Sprint(e.StatusCode)
	}
	return fmt.Sprintf("provider %s error: %s - %s", e.Op, code, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NotFoundError means the resource is absent or owned by someone else.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}
