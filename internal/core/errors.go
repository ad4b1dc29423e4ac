package core

import (
	"errors"
	"fmt"
)

// HTTPError is returned when the endpoint answers with a non-2xx status.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API Error %d: %s", e.Status, e.Message)
}

// DecodeError is returned when a 2xx body matches none of the known shapes.
type DecodeError struct {
	Raw string
}

func (e *DecodeError) Error() string {
	return "Failed to parse API response. Please check your model configuration."
}

var (
	ErrCategoryNotFound     = errors.New("category not found")
	ErrChapterNotFound      = errors.New("chapter not found")
	ErrNoActiveChapter      = errors.New("no active chapter")
	ErrGenerationInProgress = errors.New("generation already in progress for this chapter")
	ErrUnknownCapability    = errors.New("unknown AI capability")
	ErrUserNotFound         = errors.New("user not found")
)
