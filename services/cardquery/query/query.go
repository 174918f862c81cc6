// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query defines the structured query representation shared by the
// decomposer (which produces it), the pattern store (which persists it as a
// template), and the execution engine (which runs it). It is a plain data
// package: no I/O, no external calls.
package query

import (
	"fmt"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery/cards"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/entities"
)

// =============================================================================
// Structured Query
// =============================================================================

// Filter is one attribute condition.
type Filter struct {
	Attribute string            `json:"attribute"`
	Operator  entities.Operator `json:"operator"`
	Value     *entities.Value   `json:"value,omitempty"`
}

// Aggregate names a summary computation over one attribute. Count may leave
// Attribute empty (count of rows).
type Aggregate struct {
	Op        entities.Aggregation `json:"op"`
	Attribute string               `json:"attribute,omitempty"`
}

// Sort orders the result rows by one attribute. Rows with a null value for
// the attribute always sort last, regardless of direction.
type Sort struct {
	Attribute  string `json:"attribute"`
	Descending bool   `json:"descending"`
}

// StructuredQuery is the deterministic execution plan for one utterance.
//
// Stage order is fixed: filter, group, aggregate, sort, select, limit.
// A Limit without a Sort is invalid — an unordered truncation would return
// arbitrary rows.
type StructuredQuery struct {
	Filters   []Filter   `json:"filters,omitempty"`
	Aggregate *Aggregate `json:"aggregate,omitempty"`
	GroupBy   string     `json:"group_by,omitempty"`
	Sort      *Sort      `json:"sort,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Select    []string   `json:"select,omitempty"`
}

// IsAggregate reports whether the query reduces rows to a summary value.
func (q *StructuredQuery) IsAggregate() bool { return q.Aggregate != nil }

// =============================================================================
// Validation
// =============================================================================

// ErrorCode classifies a query validation failure.
type ErrorCode string

const (
	// ErrCodeInvalidShape marks a structurally impossible query, such as a
	// limit without a sort.
	ErrCodeInvalidShape ErrorCode = "INVALID_SHAPE"
	// ErrCodeUnknownAttribute marks a reference to an attribute the card
	// catalog does not define.
	ErrCodeUnknownAttribute ErrorCode = "UNKNOWN_ATTRIBUTE"
	// ErrCodeBadValue marks an operator/value mismatch, such as a between
	// without a pair.
	ErrCodeBadValue ErrorCode = "BAD_VALUE"
)

// Error is a structured validation failure. The message is safe to show to
// the user.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// NewError creates a validation error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Validate checks the query against the card attribute catalog and the
// structural invariants. It returns the first problem found as *Error.
func (q *StructuredQuery) Validate() error {
	if q.Limit < 0 {
		return NewError(ErrCodeInvalidShape, "limit must not be negative")
	}
	if q.Limit > 0 && q.Sort == nil {
		return NewError(ErrCodeInvalidShape, "a result limit requires a sort order")
	}

	for _, f := range q.Filters {
		if !cards.IsKnown(f.Attribute) {
			return NewError(ErrCodeUnknownAttribute, fmt.Sprintf("unknown attribute %q", f.Attribute))
		}
		if err := validateFilterValue(f); err != nil {
			return err
		}
	}

	if q.Aggregate != nil {
		if q.Aggregate.Op == "" {
			return NewError(ErrCodeInvalidShape, "aggregate requires an operation")
		}
		if q.Aggregate.Attribute == "" && q.Aggregate.Op != entities.AggCount {
			return NewError(ErrCodeInvalidShape,
				fmt.Sprintf("aggregate %s requires an attribute", q.Aggregate.Op))
		}
		if q.Aggregate.Attribute != "" {
			if !cards.IsKnown(q.Aggregate.Attribute) {
				return NewError(ErrCodeUnknownAttribute,
					fmt.Sprintf("unknown attribute %q", q.Aggregate.Attribute))
			}
			if q.Aggregate.Op != entities.AggCount && cards.KindOf(q.Aggregate.Attribute) != cards.KindNumber {
				return NewError(ErrCodeBadValue,
					fmt.Sprintf("aggregate %s needs a numeric attribute, %q is not", q.Aggregate.Op, q.Aggregate.Attribute))
			}
		}
	}

	if q.GroupBy != "" && !cards.IsKnown(q.GroupBy) {
		return NewError(ErrCodeUnknownAttribute, fmt.Sprintf("unknown attribute %q", q.GroupBy))
	}

	if q.Sort != nil && !cards.IsKnown(q.Sort.Attribute) {
		return NewError(ErrCodeUnknownAttribute, fmt.Sprintf("unknown attribute %q", q.Sort.Attribute))
	}

	for _, sel := range q.Select {
		if !cards.IsKnown(sel) {
			return NewError(ErrCodeUnknownAttribute, fmt.Sprintf("unknown attribute %q", sel))
		}
	}

	return nil
}

// validateFilterValue checks that the operator has a compatible value.
func validateFilterValue(f Filter) error {
	switch f.Operator {
	case entities.OpNone:
		return NewError(ErrCodeInvalidShape,
			fmt.Sprintf("filter on %q has no operator", f.Attribute))
	case entities.OpBetween:
		if f.Value == nil || f.Value.Kind != entities.ValuePair {
			return NewError(ErrCodeBadValue,
				fmt.Sprintf("between on %q requires two bounds", f.Attribute))
		}
	case entities.OpIn:
		if f.Value == nil || f.Value.Kind != entities.ValueList || len(f.Value.List) == 0 {
			return NewError(ErrCodeBadValue,
				fmt.Sprintf("in on %q requires a value list", f.Attribute))
		}
	case entities.OpContains:
		if f.Value == nil || f.Value.Kind != entities.ValueText || f.Value.Text == "" {
			return NewError(ErrCodeBadValue,
				fmt.Sprintf("contains on %q requires text", f.Attribute))
		}
	default:
		if f.Value == nil {
			return NewError(ErrCodeBadValue,
				fmt.Sprintf("filter %s on %q requires a value", f.Operator, f.Attribute))
		}
		if cards.KindOf(f.Attribute) == cards.KindNumber && f.Value.Kind != entities.ValueNumber {
			return NewError(ErrCodeBadValue,
				fmt.Sprintf("filter on numeric attribute %q requires a number", f.Attribute))
		}
	}
	return nil
}
