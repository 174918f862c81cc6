// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent classifies a card-query utterance into one of a small set of
// intent labels using a confidence-tiered pipeline: learned patterns first,
// then embedding similarity against a labeled example corpus, then a language
// model fallback when similarity is inconclusive.
package intent

// Label is a coarse query intent.
type Label string

const (
	// LabelFilter selects a subset of cards by attribute conditions.
	LabelFilter Label = "filter"
	// LabelAggregate computes a numeric summary (sum, count, average).
	LabelAggregate Label = "aggregate"
	// LabelRank orders cards and usually keeps the top few.
	LabelRank Label = "rank"
	// LabelCompare puts two or more cards side by side.
	LabelCompare Label = "compare"
	// LabelDistinct asks for the distinct values of an attribute.
	LabelDistinct Label = "distinct"
	// LabelConversational is anything that is not a data question.
	LabelConversational Label = "conversational"
)

// knownLabels validates model output: a completion that is not one of these
// is treated as a failed fallback, never passed downstream.
var knownLabels = map[Label]bool{
	LabelFilter:         true,
	LabelAggregate:      true,
	LabelRank:           true,
	LabelCompare:        true,
	LabelDistinct:       true,
	LabelConversational: true,
}

// IsKnown reports whether l is a recognized intent label.
func (l Label) IsKnown() bool { return knownLabels[l] }

// Method records which tier of the classifier produced a match.
type Method string

const (
	// MethodPattern means a learned query pattern matched the utterance shape.
	MethodPattern Method = "pattern"
	// MethodVector means embedding similarity against the example corpus.
	MethodVector Method = "vector"
	// MethodLanguageModel means the LLM fallback produced the label.
	MethodLanguageModel Method = "language_model"
	// MethodFallback means every tier failed and the conversational default applied.
	MethodFallback Method = "fallback"
)

// Match is a classification outcome.
//
// Confidence is in [0,1]. NeedsConfirm is set for medium-tier matches: the
// caller should execute the query but present the interpretation for the user
// to confirm, and must not learn a pattern from it until confirmed.
type Match struct {
	Label        Label   `json:"label"`
	Confidence   float64 `json:"confidence"`
	Method       Method  `json:"method"`
	NeedsConfirm bool    `json:"needs_confirm"`
}
