// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package synonyms maps natural-language phrasings onto the canonical
// attribute, operator, aggregation, and modifier vocabulary. The tables are
// data (embedded YAML), not code: adding a phrasing is a YAML edit.
package synonyms

import (
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/agnivade/levenshtein"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Tables
// =============================================================================

//go:embed synonyms.yaml
var defaultSynonymsYAML []byte

// rawTables is the YAML shape of the synonym configuration.
type rawTables struct {
	Attributes   map[string][]string `yaml:"attributes"`
	Operators    map[string][]string `yaml:"operators"`
	Aggregations map[string][]string `yaml:"aggregations"`
	Modifiers    map[string][]string `yaml:"modifiers"`
}

// =============================================================================
// Match Kinds
// =============================================================================

// MatchKind identifies which vocabulary a scanned phrase belongs to.
type MatchKind int

const (
	MatchAttribute MatchKind = iota
	MatchOperator
	MatchAggregation
	MatchModifier
)

func (k MatchKind) String() string {
	switch k {
	case MatchAttribute:
		return "attribute"
	case MatchOperator:
		return "operator"
	case MatchAggregation:
		return "aggregation"
	case MatchModifier:
		return "modifier"
	default:
		return "unknown"
	}
}

// PhraseMatch is one recognized phrase inside a token stream.
// Start/End are token indexes, end-exclusive.
type PhraseMatch struct {
	Kind      MatchKind
	Canonical string
	Phrase    string
	Start     int
	End       int
}

// =============================================================================
// Mapper
// =============================================================================

// tableSet is an immutable compiled view of the synonym tables. The Mapper
// swaps whole tableSets on reload so concurrent readers never observe a
// partially updated table.
type tableSet struct {
	attributes   map[string]string
	operators    map[string]string
	aggregations map[string]string
	modifiers    map[string]string
	maxWords     int
}

// Mapper resolves phrases against the synonym tables.
//
// # Thread Safety
//
// Safe for concurrent use. Lookups read an atomically swapped immutable
// table set; WatchOverrides replaces the whole set on reload.
type Mapper struct {
	tables atomic.Pointer[tableSet]
	logger *slog.Logger
}

// NewMapper builds a Mapper from the embedded default tables.
func NewMapper(logger *slog.Logger) (*Mapper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ts, err := compileTables(defaultSynonymsYAML, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing embedded synonyms.yaml: %w", err)
	}
	m := &Mapper{logger: logger}
	m.tables.Store(ts)
	return m, nil
}

// compileTables parses base YAML, merges an optional override on top, and
// compiles phrase→canonical lookup maps.
func compileTables(base, override []byte) (*tableSet, error) {
	var raw rawTables
	if err := yaml.Unmarshal(base, &raw); err != nil {
		return nil, err
	}
	if len(override) > 0 {
		var extra rawTables
		if err := yaml.Unmarshal(override, &extra); err != nil {
			return nil, fmt.Errorf("parsing override: %w", err)
		}
		mergeRaw(&raw, extra)
	}

	ts := &tableSet{
		attributes:   make(map[string]string),
		operators:    make(map[string]string),
		aggregations: make(map[string]string),
		modifiers:    make(map[string]string),
	}
	for canonical, phrases := range raw.Attributes {
		addPhrases(ts, ts.attributes, canonical, phrases)
	}
	for canonical, phrases := range raw.Operators {
		addPhrases(ts, ts.operators, canonical, phrases)
	}
	for canonical, phrases := range raw.Aggregations {
		addPhrases(ts, ts.aggregations, canonical, phrases)
	}
	for canonical, phrases := range raw.Modifiers {
		addPhrases(ts, ts.modifiers, canonical, phrases)
	}
	return ts, nil
}

func mergeRaw(dst *rawTables, extra rawTables) {
	merge := func(dstMap map[string][]string, src map[string][]string) {
		for canonical, phrases := range src {
			dstMap[canonical] = append(dstMap[canonical], phrases...)
		}
	}
	merge(dst.Attributes, extra.Attributes)
	merge(dst.Operators, extra.Operators)
	merge(dst.Aggregations, extra.Aggregations)
	merge(dst.Modifiers, extra.Modifiers)
}

func addPhrases(ts *tableSet, table map[string]string, canonical string, phrases []string) {
	for _, p := range phrases {
		norm := Normalize(p)
		if norm == "" {
			continue
		}
		table[norm] = canonical
		if n := len(strings.Fields(norm)); n > ts.maxWords {
			ts.maxWords = n
		}
	}
}

// Normalize lowercases a phrase and collapses internal whitespace.
func Normalize(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// =============================================================================
// Lookups
// =============================================================================

// MapAttribute resolves a phrase to a canonical attribute name.
//
// Exact (normalized) matches win. Single-word phrases additionally tolerate
// one edit of spelling drift ("ballance" → balance) via Levenshtein distance.
func (m *Mapper) MapAttribute(phrase string) (string, bool) {
	ts := m.tables.Load()
	norm := Normalize(phrase)
	if norm == "" {
		return "", false
	}
	if canonical, ok := ts.attributes[norm]; ok {
		return canonical, true
	}
	// Fuzzy fallback for single words only; multi-word phrases are too easy
	// to mis-resolve within one edit.
	if !strings.Contains(norm, " ") && len(norm) >= 4 {
		for syn, canonical := range ts.attributes {
			if strings.Contains(syn, " ") {
				continue
			}
			if levenshtein.ComputeDistance(norm, syn) == 1 {
				return canonical, true
			}
		}
	}
	return "", false
}

// MapOperator resolves a phrase to a canonical comparison operator token
// (gt, gte, lt, lte, eq, ne, between, contains).
func (m *Mapper) MapOperator(phrase string) (string, bool) {
	canonical, ok := m.tables.Load().operators[Normalize(phrase)]
	return canonical, ok
}

// MapAggregation resolves a phrase to an aggregation verb (sum, avg, count,
// min, max).
func (m *Mapper) MapAggregation(phrase string) (string, bool) {
	canonical, ok := m.tables.Load().aggregations[Normalize(phrase)]
	return canonical, ok
}

// MapModifier resolves a phrase to a ranking modifier (highest, lowest).
func (m *Mapper) MapModifier(phrase string) (string, bool) {
	canonical, ok := m.tables.Load().modifiers[Normalize(phrase)]
	return canonical, ok
}

// =============================================================================
// Token Scanning
// =============================================================================

// Scan walks a lowercased token stream and returns every recognized phrase,
// longest match first at each position. Overlapping shorter matches are
// dropped, so "statement close" is never shadowed by a generic "close".
// Attribute phrases outrank aggregations, which outrank operators, which
// outrank modifiers when the same span is ambiguous.
func (m *Mapper) Scan(tokens []string) []PhraseMatch {
	ts := m.tables.Load()
	var out []PhraseMatch
	used := make([]bool, len(tokens))

	for i := 0; i < len(tokens); i++ {
		if used[i] {
			continue
		}
		maxN := ts.maxWords
		if rest := len(tokens) - i; rest < maxN {
			maxN = rest
		}
		for n := maxN; n >= 1; n-- {
			end := i + n
			overlap := false
			for j := i; j < end; j++ {
				if used[j] {
					overlap = true
					break
				}
			}
			if overlap {
				continue
			}
			phrase := strings.Join(tokens[i:end], " ")
			match, ok := ts.lookup(phrase)
			if !ok {
				continue
			}
			match.Start = i
			match.End = end
			match.Phrase = phrase
			out = append(out, match)
			for j := i; j < end; j++ {
				used[j] = true
			}
			break
		}
	}
	return out
}

// lookup resolves one normalized phrase across all four tables in
// precedence order.
func (ts *tableSet) lookup(phrase string) (PhraseMatch, bool) {
	if canonical, ok := ts.attributes[phrase]; ok {
		return PhraseMatch{Kind: MatchAttribute, Canonical: canonical}, true
	}
	if canonical, ok := ts.aggregations[phrase]; ok {
		return PhraseMatch{Kind: MatchAggregation, Canonical: canonical}, true
	}
	if canonical, ok := ts.operators[phrase]; ok {
		return PhraseMatch{Kind: MatchOperator, Canonical: canonical}, true
	}
	if canonical, ok := ts.modifiers[phrase]; ok {
		return PhraseMatch{Kind: MatchModifier, Canonical: canonical}, true
	}
	return PhraseMatch{}, false
}
