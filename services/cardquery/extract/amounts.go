// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract holds the low-level text parsers for monetary amounts,
// percentages, and card references. Everything here is a pure function:
// deterministic, no I/O, never panics on malformed input.
package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// Amounts
// =============================================================================

// numberRe matches a numeric literal with optional currency symbol, optional
// comma grouping, optional decimal part, optional "k" shorthand, and optional
// currency word.
//
// The digit run is `[0-9][0-9,]*`, NOT a separator-anchored group like
// `\d{1,3}(,\d{3})*`. A separator-anchored pattern silently truncated "$5000"
// to 500 when the user omitted the thousands comma; the full run must be
// captured regardless of comma grouping.
var numberRe = regexp.MustCompile(`(?i)(\$[ \t]*)?([0-9][0-9,]*(?:\.[0-9]+)?)[ \t]*(k\b)?((?:[ \t]*)(?:dollars|dollar|usd|bucks)\b)?`)

// percentTailRe matches a percent marker immediately after a number.
var percentTailRe = regexp.MustCompile(`(?i)^[ \t]*(%|percent\b|pct\b)`)

// AmountOptions tunes Amount's matching.
type AmountOptions struct {
	// AllowK enables the "k" thousands shorthand (1k = 1000).
	AllowK bool

	// MinDigits is the minimum integer-digit count for BARE numeric literals
	// to be accepted. It suppresses spurious matches like the "5" in
	// "5 cards" when callers only care about dollar-sized figures. Literals
	// carrying an explicit currency marker ("$5", "5 bucks") always qualify.
	MinDigits int
}

type amountMatch struct {
	value  float64
	marked bool // carried a currency symbol or currency word
	digits int  // integer digits, commas excluded
}

// Amount extracts the first monetary amount from text.
//
// Handles "$5,000", "$5000", "5000 dollars", "5k" (with AllowK), and bare
// numerals. Percent-suffixed numbers are never amounts. Returns false when
// no qualifying amount exists.
func Amount(text string, opts AmountOptions) (float64, bool) {
	for _, m := range scanAmounts(text, opts.AllowK) {
		if m.marked {
			return m.value, true
		}
		min := opts.MinDigits
		if min < 1 {
			min = 1
		}
		if m.digits >= min {
			return m.value, true
		}
	}
	return 0, false
}

// AllAmounts extracts every monetary amount in order of appearance, with the
// "k" shorthand enabled and no minimum-digit suppression.
func AllAmounts(text string) []float64 {
	matches := scanAmounts(text, true)
	if len(matches) == 0 {
		return nil
	}
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.value)
	}
	return out
}

// scanAmounts finds all non-percentage numeric literals in text.
func scanAmounts(text string, allowK bool) []amountMatch {
	var out []amountMatch
	for _, idx := range numberRe.FindAllStringSubmatchIndex(text, -1) {
		// Group layout: 1=currency symbol, 2=digits, 3=k, 4=currency word.
		digitsRaw := text[idx[4]:idx[5]]
		hasSymbol := idx[2] >= 0
		hasK := idx[6] >= 0
		hasWord := idx[8] >= 0

		// A trailing percent marker makes this a percentage, not an amount.
		if percentTailRe.MatchString(text[idx[1]:]) {
			continue
		}

		cleaned := strings.ReplaceAll(digitsRaw, ",", "")
		value, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			continue
		}
		if hasK && allowK {
			value *= 1000
		}

		intPart := cleaned
		if dot := strings.IndexByte(cleaned, '.'); dot >= 0 {
			intPart = cleaned[:dot]
		}

		out = append(out, amountMatch{
			value:  value,
			marked: hasSymbol || hasWord,
			digits: len(intPart),
		})
	}
	return out
}

// =============================================================================
// Percentages
// =============================================================================

var percentRe = regexp.MustCompile(`(?i)([0-9]+(?:\.[0-9]+)?)[ \t]*(%|percent\b|pct\b)`)

// Percentage extracts the first percentage from text and returns it as a
// decimal fraction ("20%" → 0.20). Returns false when text holds none.
func Percentage(text string) (float64, bool) {
	m := percentRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return value / 100.0, true
}
