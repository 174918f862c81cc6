// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package synonyms

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestMapper(t *testing.T) *Mapper {
	t.Helper()
	m, err := NewMapper(nil)
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}
	return m
}

func TestMapAttribute(t *testing.T) {
	m := newTestMapper(t)
	tests := []struct {
		phrase string
		want   string
		ok     bool
	}{
		{"limit", "credit_limit", true},
		{"Credit Limit", "credit_limit", true},
		{"max credit", "credit_limit", true},
		{"balance", "balance", true},
		{"interest rate", "apr", true},
		{"grace period", "grace_period_days", true},
		{"usage", "utilization", true},
		{"cash back", "reward_rate", true},
		{"  statement   close ", "statement_close_day", true},
		{"ballance", "balance", true}, // one-edit fuzzy
		{"quux", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := m.MapAttribute(tt.phrase)
		if ok != tt.ok || got != tt.want {
			t.Errorf("MapAttribute(%q) = %q/%v, want %q/%v", tt.phrase, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMapOperator(t *testing.T) {
	m := newTestMapper(t)
	tests := []struct {
		phrase string
		want   string
	}{
		{"over", "gt"},
		{"above", "gt"},
		{"more than", "gt"},
		{"at least", "gte"},
		{"under", "lt"},
		{"at most", "lte"},
		{"between", "between"},
		{"exactly", "eq"},
		{"excluding", "ne"},
	}
	for _, tt := range tests {
		got, ok := m.MapOperator(tt.phrase)
		if !ok || got != tt.want {
			t.Errorf("MapOperator(%q) = %q/%v, want %q/true", tt.phrase, got, ok, tt.want)
		}
	}
	if _, ok := m.MapOperator("sideways"); ok {
		t.Error("MapOperator accepted an unknown phrase")
	}
}

func TestScan_LongestPhraseWins(t *testing.T) {
	m := newTestMapper(t)

	// "statement close" must resolve as one attribute match, not fall
	// through to some shorter capture.
	tokens := strings.Fields("when is the statement close for my cards")
	matches := m.Scan(tokens)

	var found bool
	for _, pm := range matches {
		if pm.Kind == MatchAttribute && pm.Canonical == "statement_close_day" {
			found = true
			if pm.End-pm.Start != 2 {
				t.Errorf("statement close span = [%d,%d), want a 2-token span", pm.Start, pm.End)
			}
		}
	}
	if !found {
		t.Fatalf("Scan did not resolve 'statement close': %+v", matches)
	}
}

func TestScan_CompoundUtterance(t *testing.T) {
	m := newTestMapper(t)
	tokens := strings.Fields("balance over 5000 and apr under 20")
	matches := m.Scan(tokens)

	kinds := map[string]string{}
	for _, pm := range matches {
		kinds[pm.Phrase] = pm.Canonical
	}
	for phrase, want := range map[string]string{
		"balance": "balance",
		"over":    "gt",
		"apr":     "apr",
		"under":   "lt",
	} {
		if kinds[phrase] != want {
			t.Errorf("Scan missed %q → %q (got %q); all: %+v", phrase, want, kinds[phrase], matches)
		}
	}
}

func TestScan_MoreThanIsOneMatch(t *testing.T) {
	m := newTestMapper(t)
	tokens := strings.Fields("cards with more than 2000 available credit")
	matches := m.Scan(tokens)

	for _, pm := range matches {
		if pm.Phrase == "more than" && pm.Canonical != "gt" {
			t.Errorf("'more than' resolved to %q, want gt", pm.Canonical)
		}
		// "more" alone must not surface as a modifier once "more than" won.
		if pm.Phrase == "more" {
			t.Errorf("overlapping shorter match leaked through: %+v", pm)
		}
	}
}

func TestWatchOverrides_MergesNewPhrases(t *testing.T) {
	m := newTestMapper(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "synonyms_override.yaml")

	override := "attributes:\n  apr:\n    - the juice\n"
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.WatchOverrides(ctx, path); err != nil {
		t.Fatalf("WatchOverrides: %v", err)
	}

	// Initial load is synchronous.
	if got, ok := m.MapAttribute("the juice"); !ok || got != "apr" {
		t.Fatalf("override phrase not merged: %q/%v", got, ok)
	}
	// Defaults still present.
	if got, ok := m.MapAttribute("interest rate"); !ok || got != "apr" {
		t.Fatalf("default phrase lost after merge: %q/%v", got, ok)
	}

	// A rewrite is picked up by the watcher.
	updated := "attributes:\n  balance:\n    - the damage\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := m.MapAttribute("the damage"); ok && got == "balance" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("watcher did not pick up the rewritten override file")
}
