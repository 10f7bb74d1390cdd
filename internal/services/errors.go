// Package services defines the shared error taxonomy for external
// collaborators (LLM, video providers).
package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrGeneration marks a failed or unparsable LLM generation.
	ErrGeneration = errors.New("generation error")
	// ErrProvider marks a video provider submission or poll failure.
	ErrProvider = errors.New("provider error")
	// ErrValidation marks input that can never succeed without change.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing credentials or bad settings.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a missing external resource.
	ErrNotFound = errors.New("not found")
	// ErrTimeout marks an external call that exceeded its deadline.
	ErrTimeout = errors.New("timeout")
)

// Wrap builds an error message that includes step context while tagging it
// with the provided marker. The marker should be one of the exported
// sentinel errors above.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrGeneration
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "collaborator failure"
	}
	return strings.Join(parts, ": ")
}
