// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cards defines the financial-instrument record that the query
// pipeline operates on, plus the canonical attribute catalog shared by the
// synonym mapper, the decomposer, and the execution engine.
package cards

import (
	"strings"
	"time"
)

// Card is one credit-card record owned by a single user.
//
// # Description
//
// A Card is treated as an immutable snapshot for the lifetime of one query
// execution. Derived attributes (utilization, available credit, days until
// due) are computed on read via Attr and are never stored.
//
// # Thread Safety
//
// Safe for concurrent reads. The pipeline never mutates a Card.
type Card struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Issuer   string `json:"issuer"`
	Network  string `json:"network"`
	Nickname string `json:"nickname"`

	Balance     float64 `json:"balance"`
	CreditLimit float64 `json:"credit_limit"`
	APR         float64 `json:"apr"`
	MinPayment  float64 `json:"min_payment"`
	AnnualFee   float64 `json:"annual_fee"`

	// Day-of-month fields. Zero means "not set" and reads as null.
	StatementCloseDay int `json:"statement_close_day"`
	DueDay            int `json:"due_day"`
	GracePeriodDays   int `json:"grace_period_days"`

	// Rewards maps a spending category to its multiplier (e.g. "dining" → 3.0).
	Rewards map[string]float64 `json:"rewards,omitempty"`
}

// Kind classifies an attribute's value domain for comparison purposes.
type Kind int

const (
	KindUnknown Kind = iota
	KindNumber
	KindString
)

// Canonical attribute names. Every phrase the synonym mapper resolves lands
// on one of these, and the engine refuses anything else.
const (
	AttrName            = "name"
	AttrIssuer          = "issuer"
	AttrNetwork         = "network"
	AttrNickname        = "nickname"
	AttrBalance         = "balance"
	AttrCreditLimit     = "credit_limit"
	AttrAPR             = "apr"
	AttrMinPayment      = "min_payment"
	AttrAnnualFee       = "annual_fee"
	AttrStatementClose  = "statement_close_day"
	AttrDueDay          = "due_day"
	AttrGracePeriod     = "grace_period_days"
	AttrUtilization     = "utilization"
	AttrAvailableCredit = "available_credit"
	AttrDaysUntilDue    = "days_until_due"
	AttrRewardRate      = "reward_rate"
)

// attrKinds is the closed catalog of queryable attributes.
var attrKinds = map[string]Kind{
	AttrName:            KindString,
	AttrIssuer:          KindString,
	AttrNetwork:         KindString,
	AttrNickname:        KindString,
	AttrBalance:         KindNumber,
	AttrCreditLimit:     KindNumber,
	AttrAPR:             KindNumber,
	AttrMinPayment:      KindNumber,
	AttrAnnualFee:       KindNumber,
	AttrStatementClose:  KindNumber,
	AttrDueDay:          KindNumber,
	AttrGracePeriod:     KindNumber,
	AttrUtilization:     KindNumber,
	AttrAvailableCredit: KindNumber,
	AttrDaysUntilDue:    KindNumber,
	AttrRewardRate:      KindNumber,
}

// KindOf returns the value kind for a canonical attribute name, or
// KindUnknown if the attribute is not in the catalog.
func KindOf(attr string) Kind {
	return attrKinds[strings.ToLower(attr)]
}

// IsKnown reports whether attr is a canonical attribute name.
func IsKnown(attr string) bool {
	_, ok := attrKinds[strings.ToLower(attr)]
	return ok
}

// Attributes returns the canonical attribute names in no particular order.
func Attributes() []string {
	out := make([]string, 0, len(attrKinds))
	for name := range attrKinds {
		out = append(out, name)
	}
	return out
}

// Attr reads one attribute of the card by canonical name.
//
// # Description
//
// Returns (value, true) when the attribute is present, (nil, true) when the
// attribute exists in the catalog but has no defined value for this card
// (a null — e.g. utilization with a zero credit limit), and (nil, false)
// for names outside the catalog. Numeric values are float64; string values
// are returned verbatim.
//
// now anchors the derived days_until_due attribute; callers pass the query's
// snapshot time so one execution sees one consistent clock.
func (c *Card) Attr(name string, now time.Time) (any, bool) {
	switch strings.ToLower(name) {
	case AttrName:
		return c.Name, true
	case AttrIssuer:
		return c.Issuer, true
	case AttrNetwork:
		return c.Network, true
	case AttrNickname:
		return c.Nickname, true
	case AttrBalance:
		return c.Balance, true
	case AttrCreditLimit:
		return c.CreditLimit, true
	case AttrAPR:
		return c.APR, true
	case AttrMinPayment:
		return c.MinPayment, true
	case AttrAnnualFee:
		return c.AnnualFee, true
	case AttrStatementClose:
		if c.StatementCloseDay == 0 {
			return nil, true
		}
		return float64(c.StatementCloseDay), true
	case AttrDueDay:
		if c.DueDay == 0 {
			return nil, true
		}
		return float64(c.DueDay), true
	case AttrGracePeriod:
		if c.GracePeriodDays == 0 {
			return nil, true
		}
		return float64(c.GracePeriodDays), true
	case AttrUtilization:
		if c.CreditLimit <= 0 {
			return nil, true
		}
		return c.Balance / c.CreditLimit, true
	case AttrAvailableCredit:
		if c.CreditLimit <= 0 {
			return nil, true
		}
		return c.CreditLimit - c.Balance, true
	case AttrDaysUntilDue:
		return c.daysUntilDue(now), true
	case AttrRewardRate:
		// Without a category hint the best multiplier stands in for the card.
		return c.BestRewardRate(), true
	default:
		return nil, false
	}
}

// RewardRate returns the card's multiplier for one spending category, or nil
// when the card has no reward for it.
func (c *Card) RewardRate(category string) any {
	if c.Rewards == nil {
		return nil
	}
	if rate, ok := c.Rewards[strings.ToLower(category)]; ok {
		return rate
	}
	return nil
}

// BestRewardRate returns the highest multiplier across all categories, or
// nil when the card has no reward structure at all.
func (c *Card) BestRewardRate() any {
	if len(c.Rewards) == 0 {
		return nil
	}
	best := 0.0
	for _, rate := range c.Rewards {
		if rate > best {
			best = rate
		}
	}
	return best
}

// daysUntilDue computes whole days from now until the next occurrence of the
// card's payment due day-of-month. Returns nil when DueDay is unset.
func (c *Card) daysUntilDue(now time.Time) any {
	if c.DueDay <= 0 || c.DueDay > 31 {
		return nil
	}
	day := now.Day()
	if c.DueDay >= day {
		return float64(c.DueDay - day)
	}
	// Due day already passed this month; roll into the next month.
	firstOfNext := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
	due := c.DueDay
	if last := firstOfNext.AddDate(0, 1, -1).Day(); due > last {
		due = last
	}
	dueDate := time.Date(firstOfNext.Year(), firstOfNext.Month(), due, 0, 0, 0, 0, now.Location())
	today := time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, now.Location())
	return float64(int(dueDate.Sub(today).Hours() / 24))
}

// Snapshot is a read-only copy of one user's cards taken before a query
// begins. The copy guarantees the engine never observes concurrent mutation
// of the caller's slice.
type Snapshot struct {
	Cards []Card
	Now   time.Time
}

// NewSnapshot copies cards into a fresh snapshot anchored at now.
func NewSnapshot(cards []Card, now time.Time) Snapshot {
	cp := make([]Card, len(cards))
	copy(cp, cards)
	return Snapshot{Cards: cp, Now: now}
}
