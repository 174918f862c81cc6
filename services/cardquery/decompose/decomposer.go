// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package decompose turns extracted entities plus a classified intent into a
// validated StructuredQuery, consulting the learned-pattern store for a fast
// path before building from scratch.
package decompose

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery/cards"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/entities"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/intent"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/patterns"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/query"
)

var decomposerTracer = otel.Tracer("vitta.cardquery.decompose")

// ErrNoEntities signals an utterance with nothing recognizable in it. The
// caller surfaces this as a clarification prompt, never a hard failure.
var ErrNoEntities = errors.New("decompose: no recognizable entities")

// Decomposer builds StructuredQueries.
//
// # Thread Safety
//
// Safe for concurrent use. The pattern store handles its own concurrency.
type Decomposer struct {
	store  *patterns.Store // nil disables the pattern fast path
	logger *slog.Logger
}

// NewDecomposer wires the decomposer. store may be nil.
func NewDecomposer(store *patterns.Store, logger *slog.Logger) *Decomposer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decomposer{store: store, logger: logger}
}

// Result carries the query plus which pattern (if any) produced it.
type Result struct {
	Query query.StructuredQuery
	// Pattern is non-nil when the fast path served the query. The caller
	// reinforces it on success.
	Pattern *patterns.QueryPattern
}

// Decompose builds a validated StructuredQuery for the utterance.
//
// # Description
//
// The learned-pattern fast path runs first: a matching pattern's template is
// bound to the current literals and validated. A bound query that fails
// validation decays the pattern and falls through to full decomposition —
// the user never sees a pattern failure.
//
// Full decomposition applies fixed rules over the entities:
//
//   - an entity with an operator becomes a filter
//   - an aggregation entity sets the aggregate clause; a plain filter on the
//     same attribute is dropped with a logged warning, aggregation wins
//   - a ranking modifier sets the sort direction and a limit of the
//     extracted count, defaulting to 1
//   - a bare attribute mention becomes a projection (select)
//   - a distinct intent over a bare attribute groups by that attribute
//
// Returns ErrNoEntities when there is nothing to build from, or *query.Error
// when the built query violates a structural invariant.
func (d *Decomposer) Decompose(ctx context.Context, ents []entities.Entity, match intent.Match) (Result, error) {
	_, span := decomposerTracer.Start(ctx, "decompose.Decomposer.Decompose")
	defer span.End()
	span.SetAttributes(
		attribute.Int("entity_count", len(ents)),
		attribute.String("intent", string(match.Label)),
	)

	if len(ents) == 0 {
		return Result{}, ErrNoEntities
	}

	if d.store != nil {
		if p, bound, ok := d.store.Find(ents, match.Label); ok {
			if err := bound.Validate(); err == nil {
				span.SetAttributes(attribute.Bool("pattern_hit", true))
				return Result{Query: bound, Pattern: p}, nil
			}
			// Pattern reuse failures are never escalated to the user.
			d.logger.Warn("decompose: pattern failed validation, decaying",
				slog.String("pattern_id", p.ID),
			)
			d.store.RecordFailure(ctx, p.ID)
		}
	}

	q := d.build(ents, match)
	if err := q.Validate(); err != nil {
		return Result{}, err
	}
	return Result{Query: q}, nil
}

// build applies the entity rules. The result still needs Validate.
func (d *Decomposer) build(ents []entities.Entity, match intent.Match) query.StructuredQuery {
	var q query.StructuredQuery

	// First pass: aggregation claims its attribute.
	aggAttr := ""
	for _, e := range ents {
		if e.Aggregation == entities.AggNone {
			continue
		}
		if q.Aggregate != nil {
			d.logger.Warn("decompose: multiple aggregations, keeping first",
				slog.String("dropped", string(e.Aggregation)),
			)
			continue
		}
		q.Aggregate = &query.Aggregate{Op: e.Aggregation, Attribute: e.Attribute}
		aggAttr = e.Attribute
	}

	for _, e := range ents {
		switch {
		case e.Operator != entities.OpNone:
			if e.Attribute == aggAttr && aggAttr != "" {
				// Aggregation and filter on the same attribute are mutually
				// exclusive; aggregation wins.
				d.logger.Warn("decompose: dropping filter shadowed by aggregation",
					slog.String("attribute", e.Attribute),
					slog.String("operator", string(e.Operator)),
				)
				continue
			}
			q.Filters = append(q.Filters, query.Filter{
				Attribute: e.Attribute,
				Operator:  e.Operator,
				Value:     e.Value,
			})

		case e.Modifier != entities.ModNone:
			if q.Sort != nil {
				continue
			}
			q.Sort = &query.Sort{
				Attribute:  e.Attribute,
				Descending: e.Modifier == entities.ModHighest,
			}
			q.Limit = 1
			if e.Value != nil && e.Value.Kind == entities.ValueNumber && e.Value.Num > 0 {
				q.Limit = int(e.Value.Num)
			}
			q.Select = appendUnique(q.Select, e.Attribute)

		case e.Aggregation != entities.AggNone:
			// Claimed in the first pass.

		case e.Attribute != "":
			// Bare attribute mention: projection.
			q.Select = appendUnique(q.Select, e.Attribute)
		}
	}

	if match.Label == intent.LabelDistinct && q.Aggregate == nil && len(q.Filters) == 0 {
		if attr := firstBareAttribute(ents); attr != "" {
			q.GroupBy = attr
			q.Select = []string{attr}
		}
	}

	return q
}

// firstBareAttribute returns the first attribute mentioned without an
// operator, modifier, or aggregation.
func firstBareAttribute(ents []entities.Entity) string {
	for _, e := range ents {
		if e.Attribute != "" && e.Operator == entities.OpNone &&
			e.Modifier == entities.ModNone && e.Aggregation == entities.AggNone {
			return e.Attribute
		}
	}
	return ""
}

// appendUnique adds attr to sel unless present. Name columns ride along on
// ranked projections so the caller can label rows.
func appendUnique(sel []string, attr string) []string {
	for _, s := range sel {
		if s == attr {
			return sel
		}
	}
	if len(sel) == 0 && attr != cards.AttrName {
		sel = append(sel, cards.AttrName)
	}
	return append(sel, attr)
}
