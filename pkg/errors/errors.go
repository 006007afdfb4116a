package errors

import (
	"fmt"

	"github.com/jafarshop/shopsync/internal/domain"
)

// ErrNotFound is returned when a resource is not found
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrUnauthorized is returned when a signature or credential check fails
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict is returned when a write collides with existing state
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "conflict"
}

// ErrValidation is returned when request input is rejected before any work is queued
type ErrValidation struct {
	Message string
	Fields  map[string]string
}

func (e *ErrValidation) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "validation failed"
}

// ErrInvalidStateTransition is returned when a job is moved along an edge its lifecycle does not allow
type ErrInvalidStateTransition struct {
	From domain.JobStatus
	To   domain.JobStatus
}

func (e *ErrInvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// ErrUpstream wraps a non-2xx answer from the Shopify API.
type ErrUpstream struct {
	StatusCode int
	Body       string
}

func (e *ErrUpstream) Error() string {
	return fmt.Sprintf("shopify API error: status %d, body: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the call is worth repeating.
func (e *ErrUpstream) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
