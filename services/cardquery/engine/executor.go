// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine executes a validated StructuredQuery against a card
// snapshot. Execution is pure, synchronous, in-memory computation: no I/O,
// no clocks beyond the snapshot's, and deterministic for a given input.
package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery/cards"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/entities"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/query"
)

var executionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cardquery",
	Subsystem: "engine",
	Name:      "execution_total",
	Help:      "Query executions by outcome: ok, malformed",
}, []string{"outcome"})

// ExecutionError marks a malformed query reaching the executor. The
// decomposer validates every query first, so this signals an upstream
// invariant violation and is logged as an internal error, never shown to
// the user as-is.
type ExecutionError struct {
	Cause error
}

func (e *ExecutionError) Error() string { return fmt.Sprintf("execution: %v", e.Cause) }
func (e *ExecutionError) Unwrap() error { return e.Cause }

// Row is one result record, keyed by canonical attribute name. Aggregate
// results use the aggregation op as the key ("sum", "avg"). A nil value is
// a null (undefined for that card).
type Row map[string]any

// ExecutionResult is the deterministic output of one query execution.
type ExecutionResult struct {
	Rows      []Row    `json:"rows"`
	Insights  []string `json:"insights,omitempty"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
}

// Executor runs StructuredQueries.
//
// # Thread Safety
//
// Safe for concurrent use; the executor is stateless between calls.
type Executor struct {
	rules  []InsightRule
	logger *slog.Logger
}

// NewExecutor loads the embedded insight rule set.
func NewExecutor(logger *slog.Logger) (*Executor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rules, err := loadInsightRules()
	if err != nil {
		return nil, err
	}
	return &Executor{rules: rules, logger: logger}, nil
}

// Execute runs q against the snapshot.
//
// # Description
//
// Stages always apply in the same order regardless of how the query was
// declared: filter, group, aggregate, sort, select, limit. Insight strings
// are computed over the filtered set and attached as advisory annotations.
//
// The query is re-validated defensively; a malformed query here means a bug
// upstream and returns *ExecutionError.
func (ex *Executor) Execute(q query.StructuredQuery, snap cards.Snapshot) (ExecutionResult, error) {
	if err := q.Validate(); err != nil {
		executionTotal.WithLabelValues("malformed").Inc()
		ex.logger.Error("executor: malformed query reached execution",
			slog.String("error", err.Error()),
		)
		return ExecutionResult{}, &ExecutionError{Cause: err}
	}

	// 1. Filter.
	filtered := ex.filter(q.Filters, snap)

	insights := applyInsights(ex.rules, filtered, snap)

	// 2+3. Group and aggregate reduce to summary rows and short-circuit the
	// card-level stages.
	if q.GroupBy != "" || q.Aggregate != nil {
		rows := ex.grouped(q, filtered, snap)
		executionTotal.WithLabelValues("ok").Inc()
		return ExecutionResult{Rows: rows, Insights: insights, RowCount: len(rows)}, nil
	}

	// 4. Sort.
	if q.Sort != nil {
		ex.sortCards(filtered, q.Sort, snap)
	}

	// 5. Select.
	rows := make([]Row, len(filtered))
	for i := range filtered {
		rows[i] = ex.project(&filtered[i], q.Select, snap)
	}

	// 6. Limit.
	truncated := false
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
		truncated = true
	}

	executionTotal.WithLabelValues("ok").Inc()
	return ExecutionResult{
		Rows:      rows,
		Insights:  insights,
		RowCount:  len(rows),
		Truncated: truncated,
	}, nil
}

// =============================================================================
// Filter
// =============================================================================

// filter returns the cards satisfying every condition. A card with a null
// value for a filtered attribute never matches.
func (ex *Executor) filter(filters []query.Filter, snap cards.Snapshot) []cards.Card {
	if len(filters) == 0 {
		out := make([]cards.Card, len(snap.Cards))
		copy(out, snap.Cards)
		return out
	}

	var out []cards.Card
	for i := range snap.Cards {
		c := &snap.Cards[i]
		match := true
		for _, f := range filters {
			if !ex.matches(c, f, snap) {
				match = false
				break
			}
		}
		if match {
			out = append(out, *c)
		}
	}
	return out
}

// matches evaluates one filter condition against one card.
func (ex *Executor) matches(c *cards.Card, f query.Filter, snap cards.Snapshot) bool {
	raw, known := c.Attr(f.Attribute, snap.Now)
	if !known || raw == nil {
		return false
	}

	switch v := raw.(type) {
	case float64:
		return matchNumber(v, f)
	case string:
		return matchString(v, f)
	default:
		return false
	}
}

func matchNumber(v float64, f query.Filter) bool {
	val := f.Value
	if val == nil {
		return false
	}
	switch f.Operator {
	case entities.OpEq:
		return v == val.Num
	case entities.OpNe:
		return v != val.Num
	case entities.OpGt:
		return v > val.Num
	case entities.OpLt:
		return v < val.Num
	case entities.OpGte:
		return v >= val.Num
	case entities.OpLte:
		return v <= val.Num
	case entities.OpBetween:
		// Inclusive on both bounds.
		return v >= val.Num && v <= val.Num2
	case entities.OpIn:
		for _, s := range val.List {
			if s == fmt.Sprintf("%g", v) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func matchString(v string, f query.Filter) bool {
	val := f.Value
	if val == nil {
		return false
	}
	lv := strings.ToLower(v)
	switch f.Operator {
	case entities.OpEq:
		return lv == strings.ToLower(val.Text)
	case entities.OpNe:
		return lv != strings.ToLower(val.Text)
	case entities.OpContains:
		return strings.Contains(lv, strings.ToLower(val.Text))
	case entities.OpIn:
		for _, s := range val.List {
			if lv == strings.ToLower(s) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// =============================================================================
// Group + Aggregate
// =============================================================================

// grouped reduces the filtered set to summary rows. Without a GroupBy the
// whole set forms one group; without an Aggregate, grouping alone yields the
// distinct values of the group attribute.
func (ex *Executor) grouped(q query.StructuredQuery, filtered []cards.Card, snap cards.Snapshot) []Row {
	if q.GroupBy == "" {
		return []Row{ex.aggregate(q.Aggregate, filtered, snap)}
	}

	groups := map[string][]cards.Card{}
	var keys []string
	for i := range filtered {
		raw, _ := filtered[i].Attr(q.GroupBy, snap.Now)
		key := groupKey(raw)
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], filtered[i])
	}
	sort.Strings(keys) // deterministic group order

	rows := make([]Row, 0, len(keys))
	for _, key := range keys {
		row := Row{q.GroupBy: key}
		if q.Aggregate != nil {
			for k, v := range ex.aggregate(q.Aggregate, groups[key], snap) {
				row[k] = v
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// groupKey normalizes a group-by value; strings group case-insensitively.
func groupKey(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(v)
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// aggregate computes one summary row. Over an empty set: sum and count are
// 0, avg/min/max are null. Cards with a null attribute are skipped.
func (ex *Executor) aggregate(agg *query.Aggregate, set []cards.Card, snap cards.Snapshot) Row {
	if agg.Op == entities.AggCount && agg.Attribute == "" {
		return Row{string(entities.AggCount): float64(len(set))}
	}

	var values []float64
	for i := range set {
		if v, ok := numericAttr(&set[i], agg.Attribute, snap); ok {
			values = append(values, v)
		}
	}

	key := string(agg.Op)
	switch agg.Op {
	case entities.AggCount:
		return Row{key: float64(len(values))}
	case entities.AggSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return Row{key: sum}
	case entities.AggAvg:
		if len(values) == 0 {
			return Row{key: nil}
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		return Row{key: sum / float64(len(values))}
	case entities.AggMin:
		if len(values) == 0 {
			return Row{key: nil}
		}
		best := values[0]
		for _, v := range values[1:] {
			if v < best {
				best = v
			}
		}
		return Row{key: best}
	case entities.AggMax:
		if len(values) == 0 {
			return Row{key: nil}
		}
		best := values[0]
		for _, v := range values[1:] {
			if v > best {
				best = v
			}
		}
		return Row{key: best}
	default:
		return Row{key: nil}
	}
}

// =============================================================================
// Sort + Select
// =============================================================================

// sortCards orders the filtered set in place. The sort is stable and
// NULL-safe: cards with a null sort attribute land last in both directions.
func (ex *Executor) sortCards(set []cards.Card, s *query.Sort, snap cards.Snapshot) {
	sort.SliceStable(set, func(i, j int) bool {
		a, aok := sortableAttr(&set[i], s.Attribute, snap)
		b, bok := sortableAttr(&set[j], s.Attribute, snap)
		if !aok || !bok {
			// Nulls last regardless of direction.
			return aok && !bok
		}
		if s.Descending {
			return less(b, a)
		}
		return less(a, b)
	})
}

func less(a, b any) bool {
	switch av := a.(type) {
	case float64:
		bv, _ := b.(float64)
		return av < bv
	case string:
		bv, _ := b.(string)
		return strings.ToLower(av) < strings.ToLower(bv)
	default:
		return false
	}
}

func sortableAttr(c *cards.Card, attr string, snap cards.Snapshot) (any, bool) {
	raw, known := c.Attr(attr, snap.Now)
	if !known || raw == nil {
		return nil, false
	}
	return raw, true
}

// project builds the result row for one card: the identity columns plus the
// selected attributes, or the full catalog when no projection was asked for.
func (ex *Executor) project(c *cards.Card, sel []string, snap cards.Snapshot) Row {
	row := Row{"id": c.ID, cards.AttrName: c.Name}
	attrs := sel
	if len(attrs) == 0 {
		attrs = cards.Attributes()
	}
	for _, attr := range attrs {
		v, known := c.Attr(attr, snap.Now)
		if !known {
			continue
		}
		row[attr] = v
	}
	return row
}

// numericAttr reads an attribute as a non-null float64.
func numericAttr(c *cards.Card, attr string, snap cards.Snapshot) (float64, bool) {
	raw, known := c.Attr(attr, snap.Now)
	if !known || raw == nil {
		return 0, false
	}
	v, ok := raw.(float64)
	return v, ok
}
