package core

import (
	"fmt"
	"unicode/utf8"
)

// Request limits enforced before any network call.
const (
	MaxPromptLength = 10000
	MaxDimension    = 4096
)

// ValidateModel checks that a model ID was supplied.
func ValidateModel(model string) error {
	if model == "" {
		return NewValidationError("model", "model is required")
	}
	return nil
}

// ValidatePrompt checks that a prompt is present and not too long.
func ValidatePrompt(prompt string) error {
	if prompt == "" {
		return NewValidationError("prompt", "prompt is required")
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return NewValidationError("prompt", fmt.Sprintf("prompt is too long (max %d characters)", MaxPromptLength))
	}
	return nil
}

// ValidateN checks the number of requested outputs.
func ValidateN(n, maxN int) error {
	if n < 1 {
		return NewValidationError("n", "n must be at least 1")
	}
	if n > maxN {
		return NewValidationError("n", fmt.Sprintf("n cannot exceed %d", maxN))
	}
	return nil
}

// ValidateSize checks output dimensions.
func ValidateSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return NewValidationError("size", "width and height must be positive")
	}
	if width > MaxDimension || height > MaxDimension {
		return NewValidationError("size", fmt.Sprintf("width and height cannot exceed %d", MaxDimension))
	}
	return nil
}

// ValidateJobID checks that a job ID was supplied.
func ValidateJobID(jobID string) error {
	if jobID == "" {
		return NewValidationError("job_id", "job ID is required")
	}
	return nil
}
