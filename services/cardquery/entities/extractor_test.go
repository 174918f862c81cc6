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
	"testing"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery/synonyms"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	mapper, err := synonyms.NewMapper(nil)
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}
	return NewExtractor(mapper, 0, nil)
}

func findEntity(ents []Entity, attr string) *Entity {
	for i := range ents {
		if ents[i].Attribute == attr {
			return &ents[i]
		}
	}
	return nil
}

func TestExtract_CompoundFilters(t *testing.T) {
	e := newTestExtractor(t)
	ents := e.Extract("cards with balance over 5000 and APR under 20%")
	if len(ents) != 2 {
		t.Fatalf("expected 2 entities, got %d: %+v", len(ents), ents)
	}

	bal := findEntity(ents, "balance")
	if bal == nil || bal.Operator != OpGt || bal.Value == nil || bal.Value.Num != 5000 {
		t.Errorf("balance entity wrong: %+v", bal)
	}

	apr := findEntity(ents, "apr")
	if apr == nil || apr.Operator != OpLt {
		t.Fatalf("apr entity wrong: %+v", apr)
	}
	// APR literals arrive as percentages but compare in percent points.
	if apr.Value == nil || apr.Value.Num != 20 {
		t.Errorf("apr literal = %v, want 20 (points)", apr.Value)
	}
}

func TestExtract_Between(t *testing.T) {
	e := newTestExtractor(t)
	ents := e.Extract("cards with limit between $2,000 and $10,000")
	ent := findEntity(ents, "credit_limit")
	if ent == nil || ent.Operator != OpBetween {
		t.Fatalf("no between entity: %+v", ents)
	}
	if ent.Value == nil || ent.Value.Kind != ValuePair || ent.Value.Num != 2000 || ent.Value.Num2 != 10000 {
		t.Errorf("between pair = %v, want [2000,10000]", ent.Value)
	}
}

func TestExtract_Aggregation(t *testing.T) {
	e := newTestExtractor(t)
	ents := e.Extract("total balance across all cards")
	ent := findEntity(ents, "balance")
	if ent == nil || ent.Aggregation != AggSum {
		t.Fatalf("expected balance sum entity: %+v", ents)
	}
	if ent.Operator != OpNone || ent.Value != nil {
		t.Errorf("aggregation entity should carry no filter parts: %+v", ent)
	}
}

func TestExtract_BareCount(t *testing.T) {
	e := newTestExtractor(t)
	ents := e.Extract("how many cards do I have")
	if len(ents) != 1 || ents[0].Aggregation != AggCount || ents[0].Attribute != "" {
		t.Fatalf("expected a bare count entity: %+v", ents)
	}
}

func TestExtract_ModifierWithCount(t *testing.T) {
	e := newTestExtractor(t)
	ents := e.Extract("show me my 3 highest balance cards")
	ent := findEntity(ents, "balance")
	if ent == nil || ent.Modifier != ModHighest {
		t.Fatalf("expected highest-balance entity: %+v", ents)
	}
	if ent.Value == nil || ent.Value.Num != 3 {
		t.Errorf("count literal = %v, want 3", ent.Value)
	}
}

func TestExtract_ModifierWithoutCount(t *testing.T) {
	e := newTestExtractor(t)
	ents := e.Extract("which card has the longest grace period")
	ent := findEntity(ents, "grace_period_days")
	if ent == nil || ent.Modifier != ModHighest {
		t.Fatalf("'longest grace period' should map to highest grace_period_days: %+v", ents)
	}
	if ent.Value != nil {
		t.Errorf("no explicit count expected, got %v", ent.Value)
	}
}

func TestExtract_CardReference(t *testing.T) {
	e := newTestExtractor(t)
	ents := e.Extract("whats the balance on my chase freedom card")
	var ref *Entity
	for i := range ents {
		if ents[i].Operator == OpContains {
			ref = &ents[i]
		}
	}
	if ref == nil || ref.Attribute != "name" || ref.Value == nil || ref.Value.Text != "chase freedom" {
		t.Fatalf("expected name-contains entity for the card reference: %+v", ents)
	}
}

func TestExtract_RewardCategory(t *testing.T) {
	e := newTestExtractor(t)
	ents := e.Extract("which card has the best cash back for dining")
	ent := findEntity(ents, "reward_rate")
	if ent == nil || ent.Modifier != ModHighest {
		t.Fatalf("expected highest reward_rate entity: %+v", ents)
	}
	if ent.Category != "dining" {
		t.Errorf("category hint = %q, want dining", ent.Category)
	}
}

func TestExtract_NoiseAndEmpty(t *testing.T) {
	e := newTestExtractor(t)
	for _, text := range []string{"hello there", "", "what a lovely day", "?!?!"} {
		if ents := e.Extract(text); len(ents) != 0 {
			t.Errorf("Extract(%q) = %+v, want none", text, ents)
		}
	}
}

func TestExtract_UnassociatedLiteralDiscarded(t *testing.T) {
	e := newTestExtractor(t)
	// "5" has no attribute/operator anchor anywhere near it.
	ents := e.Extract("I made 5 purchases yesterday, hooray")
	if len(ents) != 0 {
		t.Errorf("stray literal should be discarded: %+v", ents)
	}
}
