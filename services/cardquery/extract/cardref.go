// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"regexp"
	"strings"
)

// =============================================================================
// Card References
// =============================================================================

var (
	// "card ending in 1234" / "card ending 1234"
	lastFourRe = regexp.MustCompile(`(?i)\bcard\s+ending(?:\s+in)?\s+([0-9]{4})\b`)

	// "my chase freedom card", "the sapphire card". The name is capped at
	// three words so the capture cannot swallow a whole clause in sentences
	// like "the balance on my chase freedom card".
	namedCardRe = regexp.MustCompile(`(?i)\b(?:my|the|our)\s+([a-z][a-z0-9&']*(?:[ \t]+[a-z0-9&']+){0,2})[ \t]+card\b`)

	// A quoted card nickname: ask about "old faithful"
	quotedRe = regexp.MustCompile(`"([^"]{2,40})"`)
)

// refStopwords are leading words that carry no identity signal and are
// stripped from a captured reference ("my highest balance card" is a ranking
// request, not a name).
var refStopwords = map[string]bool{
	"credit":  true,
	"debit":   true,
	"new":     true,
	"old":     true,
	"first":   true,
	"second":  true,
	"other":   true,
	"highest": true,
	"lowest":  true,
	"best":    true,
	"worst":   true,
	"next":    true,
}

// attrWords are attribute vocabulary that can precede "card" in ranking or
// filter phrasings ("my highest balance card"). A captured name containing
// one is a query about cards, not a reference to one card.
var attrWords = map[string]bool{
	"balance":     true,
	"apr":         true,
	"interest":    true,
	"limit":       true,
	"fee":         true,
	"fees":        true,
	"utilization": true,
	"reward":      true,
	"rewards":     true,
	"rate":        true,
	"payment":     true,
	"due":         true,
}

// CardReference extracts a reference to a specific card from text: a
// four-digit "ending in" suffix, a quoted nickname, or a "my <name> card"
// phrase. Returns false when the text names no particular card.
func CardReference(text string) (string, bool) {
	if m := lastFourRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	if m := quotedRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := namedCardRe.FindStringSubmatch(text); m != nil {
		words := strings.Fields(strings.ToLower(m[1]))
		for len(words) > 0 && refStopwords[words[0]] {
			words = words[1:]
		}
		if len(words) == 0 {
			return "", false
		}
		for _, w := range words {
			if attrWords[w] {
				return "", false
			}
		}
		return strings.Join(words, " "), true
	}
	return "", false
}
