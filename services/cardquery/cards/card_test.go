// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cards

import (
	"testing"
	"time"
)

func TestAttr_StoredFields(t *testing.T) {
	c := Card{Name: "Sapphire", Issuer: "Chase", Balance: 6000, CreditLimit: 12000, APR: 18.5}
	now := time.Now()

	tests := []struct {
		attr string
		want any
	}{
		{AttrName, "Sapphire"},
		{AttrIssuer, "Chase"},
		{AttrBalance, 6000.0},
		{AttrCreditLimit, 12000.0},
		{AttrAPR, 18.5},
	}
	for _, tt := range tests {
		got, ok := c.Attr(tt.attr, now)
		if !ok {
			t.Fatalf("Attr(%q) not found", tt.attr)
		}
		if got != tt.want {
			t.Errorf("Attr(%q) = %v, want %v", tt.attr, got, tt.want)
		}
	}
}

func TestAttr_DerivedUtilization(t *testing.T) {
	c := Card{Balance: 6000, CreditLimit: 12000}
	got, ok := c.Attr(AttrUtilization, time.Now())
	if !ok || got != 0.5 {
		t.Fatalf("utilization = %v/%v, want 0.5/true", got, ok)
	}

	avail, _ := c.Attr(AttrAvailableCredit, time.Now())
	if avail != 6000.0 {
		t.Errorf("available_credit = %v, want 6000", avail)
	}
}

func TestAttr_UtilizationWithoutLimitIsNull(t *testing.T) {
	c := Card{Balance: 500}
	got, ok := c.Attr(AttrUtilization, time.Now())
	if !ok {
		t.Fatal("utilization should exist in the catalog")
	}
	if got != nil {
		t.Errorf("utilization without a limit = %v, want nil", got)
	}
}

func TestAttr_UnknownName(t *testing.T) {
	c := Card{}
	if _, ok := c.Attr("cashback_velocity", time.Now()); ok {
		t.Error("unknown attribute should report ok=false")
	}
}

func TestAttr_DaysUntilDue(t *testing.T) {
	// Anchor the clock so the month-rollover arithmetic is deterministic.
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		dueDay int
		want   any
	}{
		{"later this month", 25, 15.0},
		{"today", 10, 0.0},
		{"already passed rolls to next month", 5, 26.0}, // Apr 5 - Mar 10
		{"unset", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Card{DueDay: tt.dueDay}
			got, ok := c.Attr(AttrDaysUntilDue, now)
			if !ok {
				t.Fatal("days_until_due should exist in the catalog")
			}
			if got != tt.want {
				t.Errorf("days_until_due = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAttr_DaysUntilDue_ClampsShortMonth(t *testing.T) {
	now := time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)
	c := Card{DueDay: 31}

	got, _ := c.Attr(AttrDaysUntilDue, now)
	if got != 0.0 {
		t.Errorf("due on the last day = %v, want 0", got)
	}

	// Jan 30 with a due day of 29: the due day has passed, and February has
	// no 29th in 2025, so the rollover clamps to Feb 28.
	now = time.Date(2025, time.January, 30, 0, 0, 0, 0, time.UTC)
	c = Card{DueDay: 29}
	got, _ = c.Attr(AttrDaysUntilDue, now)
	if got != 29.0 {
		t.Errorf("clamped rollover = %v, want 29", got)
	}
}

func TestBestRewardRate(t *testing.T) {
	c := Card{Rewards: map[string]float64{"dining": 3.0, "travel": 5.0, "other": 1.0}}
	if got := c.BestRewardRate(); got != 5.0 {
		t.Errorf("BestRewardRate = %v, want 5", got)
	}

	none := Card{}
	if got := none.BestRewardRate(); got != nil {
		t.Errorf("BestRewardRate without rewards = %v, want nil", got)
	}
}

func TestRewardRate_Category(t *testing.T) {
	c := Card{Rewards: map[string]float64{"dining": 3.0}}
	if got := c.RewardRate("Dining"); got != 3.0 {
		t.Errorf("RewardRate(Dining) = %v, want 3 (case-insensitive)", got)
	}
	if got := c.RewardRate("gas"); got != nil {
		t.Errorf("RewardRate(gas) = %v, want nil", got)
	}
}

func TestNewSnapshot_CopiesCards(t *testing.T) {
	src := []Card{{Name: "original"}}
	snap := NewSnapshot(src, time.Now())

	src[0].Name = "mutated"
	if snap.Cards[0].Name != "original" {
		t.Error("snapshot should not observe mutation of the source slice")
	}
}
