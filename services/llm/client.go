// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm holds the completion clients the intent classifier escalates
// to when similarity search is inconclusive. Two providers are supported: an
// OpenAI-compatible HTTP endpoint and a local Ollama server.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyCompletion signals a provider returned no usable text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// GenerationParams tunes a single completion call.
type GenerationParams struct {
	Temperature float64
	MaxTokens   int
}

// Completer generates one completion for one prompt.
//
// Implementations must honor ctx cancellation/deadline: the classifier wraps
// every call in a bounded timeout and treats expiry as a soft failure.
type Completer interface {
	// Complete returns the model's raw text answer for prompt.
	Complete(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Model identifies the underlying model, for logging.
	Model() string
}
