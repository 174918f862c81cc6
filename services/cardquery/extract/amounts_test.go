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
	"math"
	"testing"
)

func TestAmount_SeparatorIndependence(t *testing.T) {
	// "$5000" and "$5,000" must parse to the identical value. A previous
	// separator-anchored pattern captured only the first comma group and
	// truncated "$5000" to 500.
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"with separator", "I have $5,000 to pay off", 5000},
		{"without separator", "I have $5000 to pay off", 5000},
		{"budget sentence", "Ive budget of $5000 I want to split between my cards", 5000},
		{"large with separators", "limit is $1,250,000 total", 1250000},
		{"decimal", "pay $1,234.56 now", 1234.56},
		{"decimal no separator", "pay $1234.56 now", 1234.56},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Amount(tt.text, AmountOptions{})
			if !ok {
				t.Fatalf("Amount(%q) found nothing", tt.text)
			}
			if got != tt.want {
				t.Errorf("Amount(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestAmount_WordForms(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{"I owe 5000 dollars on that one", 5000},
		{"around 300 bucks", 300},
		{"balance is 1200 USD", 1200},
	}
	for _, tt := range tests {
		got, ok := Amount(tt.text, AmountOptions{})
		if !ok || got != tt.want {
			t.Errorf("Amount(%q) = %v/%v, want %v/true", tt.text, got, ok, tt.want)
		}
	}
}

func TestAmount_KShorthand(t *testing.T) {
	got, ok := Amount("cards with limit over 10k", AmountOptions{AllowK: true})
	if !ok || got != 10000 {
		t.Fatalf("Amount with AllowK = %v/%v, want 10000/true", got, ok)
	}

	// Without AllowK the bare digits still parse, unscaled.
	got, ok = Amount("cards with limit over 10k", AmountOptions{})
	if !ok || got != 10 {
		t.Fatalf("Amount without AllowK = %v/%v, want 10/true", got, ok)
	}
}

func TestAmount_MinDigitsSuppression(t *testing.T) {
	// "5 cards" must not produce amount=5 when MinDigits=3.
	if got, ok := Amount("show me 5 cards", AmountOptions{MinDigits: 3}); ok {
		t.Errorf("Amount(%q, MinDigits=3) = %v, want no match", "show me 5 cards", got)
	}

	// A currency marker overrides MinDigits: "$5" is still an amount.
	got, ok := Amount("put $5 on each", AmountOptions{MinDigits: 3})
	if !ok || got != 5 {
		t.Errorf("Amount($5, MinDigits=3) = %v/%v, want 5/true", got, ok)
	}
}

func TestAmount_PercentNotAnAmount(t *testing.T) {
	if got, ok := Amount("APR under 20%", AmountOptions{}); ok {
		t.Errorf("Amount(%q) = %v, want no match", "APR under 20%", got)
	}
	if got, ok := Amount("utilization above 30 percent", AmountOptions{}); ok {
		t.Errorf("Amount(%q) = %v, want no match", "utilization above 30 percent", got)
	}
}

func TestAmount_NoMatch(t *testing.T) {
	for _, text := range []string{"", "hello there", "no numbers here"} {
		if got, ok := Amount(text, AmountOptions{}); ok {
			t.Errorf("Amount(%q) = %v, want no match", text, got)
		}
	}
}

func TestAllAmounts(t *testing.T) {
	got := AllAmounts("balance between $2,000 and $5000 or maybe 1k")
	want := []float64{2000, 5000, 1000}
	if len(got) != len(want) {
		t.Fatalf("AllAmounts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AllAmounts[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if got := AllAmounts("nothing numeric"); got != nil {
		t.Errorf("AllAmounts on plain text = %v, want nil", got)
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"APR under 20%", 0.20, true},
		{"over 7.5 percent", 0.075, true},
		{"usage at 30 pct", 0.30, true},
		{"no percent here", 0, false},
		{"$500 is not a rate", 0, false},
	}
	for _, tt := range tests {
		got, ok := Percentage(tt.text)
		if ok != tt.ok {
			t.Errorf("Percentage(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			continue
		}
		if ok && math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Percentage(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestDeterminism(t *testing.T) {
	text := "split $5,000 across 3 cards at 19.9% APR"
	a1, _ := Amount(text, AmountOptions{AllowK: true})
	a2, _ := Amount(text, AmountOptions{AllowK: true})
	p1, _ := Percentage(text)
	p2, _ := Percentage(text)
	if a1 != a2 || p1 != p2 {
		t.Errorf("extraction is not deterministic: %v/%v %v/%v", a1, a2, p1, p2)
	}
}
