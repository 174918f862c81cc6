// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cardquery answers natural-language questions about a user's credit
// cards. One call runs the full pipeline: entity extraction and intent
// classification in parallel, learned-pattern lookup, decomposition into a
// structured query, deterministic execution over a card snapshot, and an
// analytics record feeding the pattern learner.
package cardquery

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery/intent"
)

// Options is the service's configuration surface. Everything is a plain
// named option; nothing reads the environment.
type Options struct {
	// Intent carries the classifier's confidence tiers and fallback timeout.
	Intent intent.Config

	// ExtractionWindow is the token distance the entity extractor tolerates
	// between a literal and its anchor. Zero selects the default.
	ExtractionWindow int `validate:"gte=0,lte=16"`

	// PatternFloor is the confidence below which a learned pattern is
	// evicted. Zero selects the store default.
	PatternFloor float64 `validate:"gte=0,lt=1"`

	// QueryTimeout bounds one ProcessQuery call end to end.
	QueryTimeout time.Duration `validate:"gt=0"`

	// EnablePatternLearning toggles the learn-on-success loop. Lookup of
	// already-learned patterns is disabled too when false.
	EnablePatternLearning bool

	// EnableAnalytics toggles analytics recording.
	EnableAnalytics bool
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		Intent:                intent.DefaultConfig(),
		QueryTimeout:          15 * time.Second,
		EnablePatternLearning: true,
		EnableAnalytics:       true,
	}
}

var optionsValidator = validator.New()

// Validate checks the option bounds, including the nested intent config.
func (o Options) Validate() error {
	if err := optionsValidator.Struct(o); err != nil {
		return fmt.Errorf("cardquery options: %w", err)
	}
	return o.Intent.Validate()
}
