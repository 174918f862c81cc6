// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// =============================================================================
// Ollama Completer (langchaingo)
// =============================================================================

// OllamaCompleter implements Completer against a local Ollama server via
// langchaingo. This is the default escalation target in deployments that
// keep all inference on-box.
//
// Thread Safety: safe for concurrent use.
type OllamaCompleter struct {
	llm   *ollama.LLM
	model string
}

// NewOllamaCompleter creates a completer for the given Ollama server URL and
// model. An empty serverURL uses langchaingo's default (localhost:11434).
func NewOllamaCompleter(serverURL, model string) (*OllamaCompleter, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama: create client: %w", err)
	}
	return &OllamaCompleter{llm: client, model: model}, nil
}

// Model returns the configured model name.
func (o *OllamaCompleter) Model() string { return o.model }

// Complete generates one completion for prompt.
func (o *OllamaCompleter) Complete(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	callOpts := []llms.CallOption{llms.WithTemperature(params.Temperature)}
	if params.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(params.MaxTokens))
	}
	out, err := llms.GenerateFromSinglePrompt(ctx, o.llm, prompt, callOpts...)
	if err != nil {
		return "", fmt.Errorf("ollama: generate: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyCompletion
	}
	return out, nil
}
