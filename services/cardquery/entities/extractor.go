// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package entities

import (
	"log/slog"
	"strings"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery/cards"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/extract"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/synonyms"
)

// =============================================================================
// Extractor
// =============================================================================

// defaultWindow is the maximum token distance between a literal and the
// attribute/operator it associates with. Literals further away than this
// from any anchor are discarded as noise.
const defaultWindow = 4

// rewardCategories are the recognized reward-category hints.
var rewardCategories = map[string]bool{
	"dining":      true,
	"restaurants": true,
	"groceries":   true,
	"grocery":     true,
	"travel":      true,
	"gas":         true,
	"fuel":        true,
	"streaming":   true,
	"drugstores":  true,
	"transit":     true,
}

// Extractor scans an utterance for typed entities.
//
// # Thread Safety
//
// Safe for concurrent use; all state is read-only after construction and
// the mapper swaps its tables atomically.
type Extractor struct {
	mapper *synonyms.Mapper
	window int
	logger *slog.Logger
}

// NewExtractor builds an Extractor over the given synonym mapper.
// window <= 0 selects the default association window.
func NewExtractor(mapper *synonyms.Mapper, window int, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &Extractor{mapper: mapper, window: window, logger: logger}
}

// literal is a numeric literal anchored at a token position.
type literal struct {
	pos       int
	value     float64 // percentages held as decimal fraction
	isPercent bool
	used      bool
}

// Extract returns every entity recognizable in the utterance.
//
// # Description
//
// The scan runs in fixed passes:
//
//  1. Tokenize; collect numeric/percentage literals with positions.
//  2. Resolve attribute/operator/aggregation/modifier phrases (longest wins).
//  3. Bind each operator to its nearest attribute (preferring the preceding
//     one) and its nearest following literal inside the association window.
//     "between" consumes two literals.
//  4. Pair leftover attributes with aggregation verbs or ranking modifiers;
//     a leftover small-integer literal near a modifier becomes its count.
//     Attributes still unclaimed become select-only entities.
//  5. An aggregation verb with no attribute becomes a bare-count entity.
//  6. A card reference becomes a name-contains filter entity.
//
// Unassociated literals are discarded. Malformed input never panics; an
// utterance with nothing recognizable yields an empty slice.
func (e *Extractor) Extract(utterance string) []Entity {
	raw := strings.Fields(utterance)
	if len(raw) == 0 {
		return nil
	}

	tokens := make([]string, len(raw))
	for i, tok := range raw {
		tokens[i] = cleanToken(tok)
	}

	literals := e.scanLiterals(raw)
	matches := e.mapper.Scan(tokens)

	var (
		attrs, ops, aggs, mods []synonyms.PhraseMatch
	)
	for _, pm := range matches {
		switch pm.Kind {
		case synonyms.MatchAttribute:
			attrs = append(attrs, pm)
		case synonyms.MatchOperator:
			ops = append(ops, pm)
		case synonyms.MatchAggregation:
			aggs = append(aggs, pm)
		case synonyms.MatchModifier:
			mods = append(mods, pm)
		}
	}

	attrUsed := make([]bool, len(attrs))
	var out []Entity

	// Pass 3: operator-anchored filters.
	for _, op := range ops {
		ai := nearestAttr(attrs, attrUsed, op.Start, e.window)
		if ai < 0 {
			continue
		}
		attr := attrs[ai].Canonical
		operator := Operator(op.Canonical)

		var value *Value
		if operator == OpBetween {
			lo, hi, ok := takeTwoLiterals(literals, op.End, e.window+2)
			if !ok {
				continue
			}
			value = PairValue(scaleLiteral(attr, lo), scaleLiteral(attr, hi))
		} else {
			lit := takeLiteral(literals, op.End, e.window)
			if lit == nil {
				continue
			}
			value = NumberValue(scaleLiteral(attr, *lit))
		}

		attrUsed[ai] = true
		out = append(out, Entity{
			Attribute: attr,
			Operator:  operator,
			Value:     value,
			Category:  e.categoryHint(tokens, attr),
		})
	}

	// Pass 4: aggregations and modifiers over the remaining attributes.
	aggAssigned := false
	for ai, attr := range attrs {
		if attrUsed[ai] {
			continue
		}
		if gi := nearestMatch(aggs, attr.Start, e.window); gi >= 0 && !aggAssigned {
			attrUsed[ai] = true
			aggAssigned = true
			out = append(out, Entity{
				Attribute:   attr.Canonical,
				Aggregation: Aggregation(aggs[gi].Canonical),
				Category:    e.categoryHint(tokens, attr.Canonical),
			})
			continue
		}
		if mi := nearestMatch(mods, attr.Start, e.window); mi >= 0 {
			ent := Entity{
				Attribute: attr.Canonical,
				Modifier:  Modifier(mods[mi].Canonical),
				Category:  e.categoryHint(tokens, attr.Canonical),
			}
			// A leftover small integer near the modifier is a count
			// ("my 3 highest balance cards").
			if lit := takeCountLiteral(literals, mods[mi].Start, e.window); lit != nil {
				ent.Value = NumberValue(lit.value)
			}
			attrUsed[ai] = true
			out = append(out, ent)
		}
	}

	// Bare attribute mentions survive as select-only entities ("whats the
	// balance on ..."); the decomposer turns them into projections.
	for ai, attr := range attrs {
		if attrUsed[ai] {
			continue
		}
		attrUsed[ai] = true
		out = append(out, Entity{
			Attribute: attr.Canonical,
			Category:  e.categoryHint(tokens, attr.Canonical),
		})
	}

	// Pass 5: aggregation with no attribute target ("how many cards").
	if !aggAssigned && len(aggs) > 0 && len(out) == 0 {
		out = append(out, Entity{Aggregation: Aggregation(aggs[0].Canonical)})
	}

	// Pass 6: a concrete card reference filters on the card name.
	if ref, ok := extract.CardReference(utterance); ok {
		out = append(out, Entity{
			Attribute: cards.AttrName,
			Operator:  OpContains,
			Value:     TextValue(ref),
		})
	}

	return out
}

// scanLiterals collects numeric and percentage literals with token positions.
func (e *Extractor) scanLiterals(raw []string) []*literal {
	var out []*literal
	for i := range raw {
		// Give the parser a two-token window so "20 percent" and
		// "5000 dollars" resolve from their leading number.
		text := raw[i]
		if i+1 < len(raw) {
			text += " " + raw[i+1]
		}
		// The window must start with this token's number, not a later one.
		if !startsWithNumberish(raw[i]) {
			continue
		}
		if frac, ok := extract.Percentage(text); ok {
			out = append(out, &literal{pos: i, value: frac, isPercent: true})
			continue
		}
		if amt, ok := extract.Amount(text, extract.AmountOptions{AllowK: true}); ok {
			out = append(out, &literal{pos: i, value: amt})
		}
	}
	return out
}

func startsWithNumberish(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	return c == '$' || (c >= '0' && c <= '9')
}

// scaleLiteral converts a literal to the attribute's storage scale. APR is
// stored in percent points ("under 20%" compares against 19.9), while
// utilization is stored as a 0..1 ratio.
func scaleLiteral(attr string, lit literal) float64 {
	if !lit.isPercent {
		return lit.value
	}
	switch attr {
	case cards.AttrAPR, cards.AttrRewardRate:
		return lit.value * 100
	default:
		return lit.value
	}
}

// nearestAttr finds the unused attribute closest to pos within the window,
// preferring the preceding one on ties.
func nearestAttr(attrs []synonyms.PhraseMatch, used []bool, pos, window int) int {
	best, bestDist := -1, window + 1
	for i, a := range attrs {
		if used[i] {
			continue
		}
		d := tokenDistance(a, pos)
		if d < bestDist || (d == bestDist && a.Start < pos) {
			best, bestDist = i, d
		}
	}
	if bestDist > window {
		return -1
	}
	return best
}

func nearestMatch(ms []synonyms.PhraseMatch, pos, window int) int {
	best, bestDist := -1, window+1
	for i, m := range ms {
		if d := tokenDistance(m, pos); d < bestDist {
			best, bestDist = i, d
		}
	}
	if bestDist > window {
		return -1
	}
	return best
}

func tokenDistance(m synonyms.PhraseMatch, pos int) int {
	if pos < m.Start {
		return m.Start - pos
	}
	if pos >= m.End {
		return pos - m.End + 1
	}
	return 0
}

// takeLiteral claims the first unused literal at or after from within the
// window; when none follows, it falls back to the nearest preceding one.
func takeLiteral(lits []*literal, from, window int) *literal {
	for _, l := range lits {
		if l.used || l.pos < from || l.pos-from > window {
			continue
		}
		l.used = true
		return l
	}
	for i := len(lits) - 1; i >= 0; i-- {
		l := lits[i]
		if l.used || l.pos >= from || from-l.pos > window {
			continue
		}
		l.used = true
		return l
	}
	return nil
}

// takeTwoLiterals claims the next two unused literals after from, for a
// between pair.
func takeTwoLiterals(lits []*literal, from, window int) (literal, literal, bool) {
	var picked []*literal
	for _, l := range lits {
		if l.used || l.pos < from || l.pos-from > window {
			continue
		}
		picked = append(picked, l)
		if len(picked) == 2 {
			picked[0].used = true
			picked[1].used = true
			return *picked[0], *picked[1], true
		}
	}
	return literal{}, literal{}, false
}

// takeCountLiteral claims a small bare integer near pos (a "top N" count).
func takeCountLiteral(lits []*literal, pos, window int) *literal {
	for _, l := range lits {
		if l.used || l.isPercent {
			continue
		}
		d := l.pos - pos
		if d < 0 {
			d = -d
		}
		if d > window {
			continue
		}
		if l.value != float64(int(l.value)) || l.value <= 0 || l.value > 50 {
			continue
		}
		l.used = true
		return l
	}
	return nil
}

// categoryHint surfaces a reward-category word when the entity concerns
// rewards; other attributes ignore category words.
func (e *Extractor) categoryHint(tokens []string, attr string) string {
	if attr != cards.AttrRewardRate {
		return ""
	}
	for _, tok := range tokens {
		if rewardCategories[tok] {
			return tok
		}
	}
	return ""
}

// cleanToken lowercases a raw token and strips surrounding punctuation,
// keeping the interior intact so "5,000" and "20%" survive for the
// literal scanner (which reads the raw tokens anyway).
func cleanToken(tok string) string {
	return strings.Trim(strings.ToLower(tok), ".,!?;:\"'()")
}
