// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package entities turns one utterance into a flat set of typed entities:
// attribute + operator + literal triples, ranking modifiers, and aggregation
// verbs. It sits on top of the extract parsers and the synonyms mapper.
package entities

import (
	"fmt"
	"strings"
)

// Operator is a canonical comparison operator.
type Operator string

const (
	OpNone     Operator = ""
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpGte      Operator = "gte"
	OpLte      Operator = "lte"
	OpBetween  Operator = "between"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
)

// Aggregation is a canonical aggregation verb.
type Aggregation string

const (
	AggNone  Aggregation = ""
	AggSum   Aggregation = "sum"
	AggAvg   Aggregation = "avg"
	AggCount Aggregation = "count"
	AggMin   Aggregation = "min"
	AggMax   Aggregation = "max"
)

// Modifier is a ranking modifier.
type Modifier string

const (
	ModNone    Modifier = ""
	ModHighest Modifier = "highest"
	ModLowest  Modifier = "lowest"
)

// ValueKind discriminates the literal payload of a Value.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueNumber
	ValuePair
	ValueText
	ValueList
)

// Value is a typed literal extracted from the utterance.
type Value struct {
	Kind ValueKind
	Num  float64
	// Num2 is the upper bound of a between pair.
	Num2 float64
	Text string
	List []string
}

// NumberValue builds a single-number literal.
func NumberValue(n float64) *Value { return &Value{Kind: ValueNumber, Num: n} }

// PairValue builds a between pair, normalized so Num <= Num2.
func PairValue(lo, hi float64) *Value {
	if lo > hi {
		lo, hi = hi, lo
	}
	return &Value{Kind: ValuePair, Num: lo, Num2: hi}
}

// TextValue builds a string literal.
func TextValue(s string) *Value { return &Value{Kind: ValueText, Text: s} }

func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	switch v.Kind {
	case ValueNumber:
		return fmt.Sprintf("%g", v.Num)
	case ValuePair:
		return fmt.Sprintf("[%g,%g]", v.Num, v.Num2)
	case ValueText:
		return v.Text
	case ValueList:
		return strings.Join(v.List, ",")
	default:
		return "<none>"
	}
}

// Entity is one extracted unit of query meaning. Multiple entities may
// coexist for a single utterance (compound filters).
type Entity struct {
	// Attribute is a canonical field name, or empty when the entity carries
	// only an aggregation with no attribute target (e.g. "how many cards").
	Attribute   string
	Operator    Operator
	Value       *Value
	Modifier    Modifier
	Aggregation Aggregation
	// Category is an optional reward-category hint ("dining", "travel").
	Category string
}

// Shape returns the structural fingerprint component for this entity:
// attribute, operator, modifier, and aggregation kinds, independent of the
// literal values. Pattern matching keys off shapes, never literals.
func (e Entity) Shape() string {
	return strings.Join([]string{
		e.Attribute,
		string(e.Operator),
		string(e.Modifier),
		string(e.Aggregation),
	}, "|")
}
