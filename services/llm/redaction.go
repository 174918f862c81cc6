// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"regexp"
)

// redactionPattern pairs a compiled regex with a labeled replacement so the
// log reader knows what class of value was present without seeing it.
type redactionPattern struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// redactionPatterns is the ordered list of sensitive patterns to redact.
//
// IMPORTANT: Order matters. More specific patterns must appear BEFORE less
// specific ones to prevent partial redaction: a full card number with
// separators has to match before the bare digit-run pattern.
//
// Thread Safety: This slice is initialized once and never modified.
var redactionPatterns = []redactionPattern{
	// Payment card number with separators: 4 groups of 4 digits.
	{
		Pattern:     regexp.MustCompile(`\b(?:\d{4}[ -]){3}\d{4}\b`),
		Replacement: "[REDACTED:card_number]",
	},
	// Bare payment card number: 13-19 contiguous digits.
	{
		Pattern:     regexp.MustCompile(`\b\d{13,19}\b`),
		Replacement: "[REDACTED:card_number]",
	},
	// US SSN: 3-2-4 digits with dashes.
	{
		Pattern:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		Replacement: "[REDACTED:ssn]",
	},
	// OpenAI-compatible API key: sk-<base62, 20+ chars>.
	// Requires 20+ chars after "sk-" to avoid matching strings like "sk-test".
	{
		Pattern:     regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
		Replacement: "[REDACTED:api_key]",
	},
	// Bearer token in Authorization header values.
	{
		Pattern:     regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{10,}`),
		Replacement: "[REDACTED:bearer_token]",
	},
	// API key in URL query parameter: key=<value>.
	{
		Pattern:     regexp.MustCompile(`key=[A-Za-z0-9._-]{10,}`),
		Replacement: "key=[REDACTED]",
	},
}

// SafeLogString redacts card numbers, SSNs, and credential material from a
// string before logging.
//
// Description:
//
//	User utterances and model completions pass through service logs and
//	trace attributes, and people paste full card numbers into chat. Each
//	match is replaced with a labeled placeholder (e.g.
//	[REDACTED:card_number]) so logs stay useful without carrying the value.
//
// Limitations:
//   - Pattern-based detection only. A card number split across lines or
//     spelled out in words will not be caught.
//   - Balances and other plain amounts are intentionally kept; they are
//     the subject matter of the queries.
//
// Thread Safety: This function is safe for concurrent use.
func SafeLogString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range redactionPatterns {
		s = p.Pattern.ReplaceAllString(s, p.Replacement)
	}
	return s
}
