// Package apperr defines the error taxonomy shared by commands, the dashboard and the stores.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrInput         = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrPersistence   = errors.New("persistence failure")
	ErrUpstream      = errors.New("upstream failure")

	// Patch-note assembly preconditions.
	ErrNoVersionMarker = errors.New("no version marker found")
	ErrNoNotesFound    = errors.New("no patch notes found")
)

// UpstreamError describes a failed call to an external service.
// It matches ErrUpstream with errors.Is.
type UpstreamError struct {
	Service     string
	Status      int
	Code        string
	Message     string
	Retryable   bool
	RateLimited bool
}

func (e *UpstreamError) Error() string {
	kind := "unavailable"
	switch {
	case e.RateLimited:
		kind = "rate limited"
	case !e.Retryable:
		kind = "terminal"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (status %d, %s): %s", e.Service, kind, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (status %d): %s", e.Service, kind, e.Status, e.Message)
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// Input wraps ErrInput with a user-facing message.
func Input(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInput, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound naming the missing thing.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Persistence wraps err with ErrPersistence while keeping the cause in the chain.
func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// UserMessage returns the short text shown to chat users for err.
// Technical detail stays in the log.
func UserMessage(err error) string {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInput), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict):
		return err.Error()
	case errors.Is(err, ErrNoVersionMarker):
		return "Could not find a version post in the patch notes channel."
	case errors.Is(err, ErrNoNotesFound):
		return "No new patch notes found after the last version post."
	case errors.As(err, &upstream):
		return "Sorry, I encountered an error talking to the AI service. Please try again later."
	case errors.Is(err, ErrPersistence):
		return "Sorry, saving that failed. Check the logs for details."
	default:
		return "Sorry, something went wrong. Please try again later."
	}
}
