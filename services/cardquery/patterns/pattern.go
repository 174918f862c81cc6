// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patterns learns (trigger-signature → query-template) pairs from
// successful executions and replays them on later utterances with the same
// structural shape, skipping full decomposition.
package patterns

import (
	"sort"
	"strings"
	"time"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery/entities"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/intent"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/query"
)

// QueryPattern is one learned signature → template pair.
//
// Records are immutable after creation: every update (reuse, decay) produces
// a replacement record so concurrent readers never observe a partial write.
type QueryPattern struct {
	ID               string    `json:"id"`
	TriggerSignature string    `json:"trigger_signature"`
	// Template is a StructuredQuery with filter literals stripped. Bind fills
	// them from the current utterance's entities before reuse.
	Template   query.StructuredQuery `json:"template"`
	Confidence float64               `json:"confidence"`
	UsageCount int                   `json:"usage_count"`
	// FailureCount is how many times the bound query failed validation on
	// reuse. Kept for diagnostics; eviction is driven by confidence.
	FailureCount int       `json:"failure_count"`
	LastUsedAt   time.Time `json:"last_used_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// clone returns a copy safe to mutate without affecting published readers.
func (p *QueryPattern) clone() *QueryPattern {
	cp := *p
	return &cp
}

// Signature computes the normalized trigger signature for an entity set and
// intent label. Only shapes participate — never literal values — so
// "balance over 5000" and "balance over 9000" share a signature. Shapes are
// sorted for order independence across extractions.
func Signature(ents []entities.Entity, label intent.Label) string {
	shapes := make([]string, len(ents))
	for i, e := range ents {
		shapes[i] = e.Shape()
	}
	sort.Strings(shapes)
	return string(label) + "::" + strings.Join(shapes, ";")
}

// StripLiterals returns a copy of q with every filter value removed. The
// result is the reusable template; values are rebound per utterance.
func StripLiterals(q query.StructuredQuery) query.StructuredQuery {
	tmpl := q
	if len(q.Filters) > 0 {
		tmpl.Filters = make([]query.Filter, len(q.Filters))
		for i, f := range q.Filters {
			f.Value = nil
			tmpl.Filters[i] = f
		}
	}
	return tmpl
}

// Bind fills the template's filter placeholders from the current entities
// and returns the bound query. ok=false means an entity supplying a needed
// literal is missing, so the pattern cannot serve this utterance.
//
// Each entity's literal may bind at most one placeholder; a template with
// two filters on the same attribute+operator needs two matching entities.
func Bind(tmpl query.StructuredQuery, ents []entities.Entity) (query.StructuredQuery, bool) {
	bound := tmpl
	if len(tmpl.Filters) > 0 {
		bound.Filters = make([]query.Filter, len(tmpl.Filters))
		copy(bound.Filters, tmpl.Filters)

		used := make([]bool, len(ents))
		for i := range bound.Filters {
			f := &bound.Filters[i]
			idx := findLiteral(ents, used, f.Attribute, f.Operator)
			if idx < 0 {
				return query.StructuredQuery{}, false
			}
			used[idx] = true
			f.Value = ents[idx].Value
		}
	}

	// A ranking count in the current utterance overrides the template's
	// limit ("my 5 highest..." reusing a pattern learned from "3 highest").
	if bound.Limit > 0 {
		for _, e := range ents {
			if e.Modifier != entities.ModNone && e.Value != nil && e.Value.Kind == entities.ValueNumber {
				bound.Limit = int(e.Value.Num)
				break
			}
		}
	}

	return bound, true
}

// findLiteral locates an unused entity carrying a literal for the given
// attribute and operator.
func findLiteral(ents []entities.Entity, used []bool, attr string, op entities.Operator) int {
	for i, e := range ents {
		if used[i] || e.Attribute != attr || e.Operator != op {
			continue
		}
		if e.Value == nil {
			continue
		}
		return i
	}
	return -1
}
