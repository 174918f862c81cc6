// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the classifier's confidence tiers and fallback limits.
//
// The tiers partition similarity scores into three behaviors:
//
//	score >= HighThreshold    auto-execute
//	score >= MediumThreshold  execute but ask the user to confirm
//	score <  MediumThreshold  escalate to the language-model fallback
type Config struct {
	// HighThreshold is the minimum similarity for an auto-executed match.
	HighThreshold float64 `validate:"gt=0,lte=1"`

	// MediumThreshold is the minimum similarity for a confirm-first match.
	// Must be below HighThreshold.
	MediumThreshold float64 `validate:"gt=0,lte=1,ltfield=HighThreshold"`

	// TopK is how many nearest examples the vector tier retrieves.
	TopK int `validate:"gte=1,lte=50"`

	// FallbackTimeout bounds the language-model call. Expiry degrades to the
	// conversational default rather than failing the query.
	FallbackTimeout time.Duration `validate:"gt=0"`
}

// DefaultConfig returns the production tier settings.
func DefaultConfig() Config {
	return Config{
		HighThreshold:   0.85,
		MediumThreshold: 0.70,
		TopK:            5,
		FallbackTimeout: 5 * time.Second,
	}
}

var configValidator = validator.New()

// Validate checks tier ordering and bounds.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("intent config: %w", err)
	}
	return nil
}
