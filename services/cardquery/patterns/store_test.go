// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patterns

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery/cards"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/entities"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/intent"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/query"
)

func balanceFilterEntities(threshold float64) []entities.Entity {
	return []entities.Entity{{
		Attribute: cards.AttrBalance,
		Operator:  entities.OpGt,
		Value:     entities.NumberValue(threshold),
	}}
}

func balanceFilterQuery(threshold float64) query.StructuredQuery {
	return query.StructuredQuery{Filters: []query.Filter{{
		Attribute: cards.AttrBalance,
		Operator:  entities.OpGt,
		Value:     entities.NumberValue(threshold),
	}}}
}

func TestSignature_IgnoresLiteralsAndOrder(t *testing.T) {
	a := []entities.Entity{
		{Attribute: cards.AttrBalance, Operator: entities.OpGt, Value: entities.NumberValue(5000)},
		{Attribute: cards.AttrAPR, Operator: entities.OpLt, Value: entities.NumberValue(20)},
	}
	b := []entities.Entity{
		{Attribute: cards.AttrAPR, Operator: entities.OpLt, Value: entities.NumberValue(15)},
		{Attribute: cards.AttrBalance, Operator: entities.OpGt, Value: entities.NumberValue(9000)},
	}
	assert.Equal(t, Signature(a, intent.LabelFilter), Signature(b, intent.LabelFilter))
	assert.NotEqual(t, Signature(a, intent.LabelFilter), Signature(a, intent.LabelRank))
}

func TestLearnThenFind_BindsCurrentLiterals(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()

	learned := s.LearnFromSuccess(ctx, balanceFilterQuery(5000), balanceFilterEntities(5000), intent.LabelFilter)
	require.NotNil(t, learned)
	assert.Equal(t, initialConfidence, learned.Confidence)
	assert.Nil(t, learned.Template.Filters[0].Value, "template must not retain literals")

	// Same shape, different literal: the bound query carries the new value.
	p, bound, ok := s.Find(balanceFilterEntities(9000), intent.LabelFilter)
	require.True(t, ok)
	assert.Equal(t, learned.ID, p.ID)
	require.Len(t, bound.Filters, 1)
	require.NotNil(t, bound.Filters[0].Value)
	assert.Equal(t, 9000.0, bound.Filters[0].Value.Num)
}

func TestFind_MissOnDifferentShape(t *testing.T) {
	s := NewStore(nil)
	s.LearnFromSuccess(context.Background(), balanceFilterQuery(5000), balanceFilterEntities(5000), intent.LabelFilter)

	_, _, ok := s.Find([]entities.Entity{{
		Attribute: cards.AttrAnnualFee,
		Operator:  entities.OpEq,
		Value:     entities.NumberValue(95),
	}}, intent.LabelAggregate)
	assert.False(t, ok)
}

func TestReuse_BoostsConfidenceWithCap(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()
	ents := balanceFilterEntities(5000)

	var p *QueryPattern
	for i := 0; i < 10; i++ {
		p = s.LearnFromSuccess(ctx, balanceFilterQuery(5000), ents, intent.LabelFilter)
	}
	assert.Equal(t, 10, p.UsageCount)
	assert.InDelta(t, 1.0, p.Confidence, 1e-9, "confidence is capped at 1.0")
}

func TestRecordFailure_DecaysBelowMatchThreshold(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()
	ents := balanceFilterEntities(5000)

	p := s.LearnFromSuccess(ctx, balanceFilterQuery(5000), ents, intent.LabelFilter)

	// One failed validation halves 0.80 to 0.40, under the floor: evicted.
	s.RecordFailure(ctx, p.ID)
	_, _, ok := s.Find(ents, intent.LabelFilter)
	assert.False(t, ok, "decayed pattern must not match the same signature")
	assert.Empty(t, s.Snapshot())
}

func TestRecordFailure_WellUsedPatternSurvivesOneFailure(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()
	ents := balanceFilterEntities(5000)

	var p *QueryPattern
	for i := 0; i < 5; i++ {
		p = s.LearnFromSuccess(ctx, balanceFilterQuery(5000), ents, intent.LabelFilter)
	}
	require.InDelta(t, 1.0, p.Confidence, 1e-9)

	// 1.0 → 0.5: above the floor, stays stored, but below the 0.8 match
	// threshold so it no longer serves lookups.
	s.RecordFailure(ctx, p.ID)
	require.Len(t, s.Snapshot(), 1)
	_, _, ok := s.Find(ents, intent.LabelFilter)
	assert.False(t, ok)

	// Second failure: 0.25, evicted.
	s.RecordFailure(ctx, p.ID)
	assert.Empty(t, s.Snapshot())
}

func TestSetFloor_AppliesToNextDecay(t *testing.T) {
	s := NewStore(nil)
	s.SetFloor(0.3)
	ctx := context.Background()
	ents := balanceFilterEntities(5000)

	p := s.LearnFromSuccess(ctx, balanceFilterQuery(5000), ents, intent.LabelFilter)

	// 0.80 → 0.40: above the lowered floor, the pattern stays stored.
	s.RecordFailure(ctx, p.ID)
	require.Len(t, s.Snapshot(), 1)
	assert.InDelta(t, 0.40, s.Snapshot()[0].Confidence, 1e-9)

	// 0.40 → 0.20: under the floor, evicted.
	s.RecordFailure(ctx, p.ID)
	assert.Empty(t, s.Snapshot())
}

func TestSetFloor_IgnoresOutOfRangeValues(t *testing.T) {
	s := NewStore(nil, WithFloor(0.3))
	s.SetFloor(0)
	s.SetFloor(1.2)

	ctx := context.Background()
	p := s.LearnFromSuccess(ctx, balanceFilterQuery(5000), balanceFilterEntities(5000), intent.LabelFilter)

	// 0.80 → 0.40: the 0.3 floor from construction still governs.
	s.RecordFailure(ctx, p.ID)
	assert.Len(t, s.Snapshot(), 1)
}

func TestBind_MissingLiteralFails(t *testing.T) {
	tmpl := StripLiterals(balanceFilterQuery(5000))
	_, ok := Bind(tmpl, []entities.Entity{{
		Attribute: cards.AttrBalance,
		Operator:  entities.OpGt, // shape matches but no literal attached
	}})
	assert.False(t, ok)
}

func TestBind_RankCountOverridesTemplateLimit(t *testing.T) {
	tmpl := query.StructuredQuery{
		Sort:  &query.Sort{Attribute: cards.AttrBalance, Descending: true},
		Limit: 3,
	}
	bound, ok := Bind(tmpl, []entities.Entity{{
		Attribute: cards.AttrBalance,
		Modifier:  entities.ModHighest,
		Value:     entities.NumberValue(5),
	}})
	require.True(t, ok)
	assert.Equal(t, 5, bound.Limit)
}

func TestFind_NearSignatureMatch(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()

	// Learn gte; query arrives with gt — edit distance 1 on the signature.
	learnEnts := []entities.Entity{{
		Attribute: cards.AttrBalance,
		Operator:  entities.OpGte,
		Value:     entities.NumberValue(5000),
	}}
	tmplQ := query.StructuredQuery{Filters: []query.Filter{{
		Attribute: cards.AttrBalance,
		Operator:  entities.OpGte,
		Value:     entities.NumberValue(5000),
	}}}
	s.LearnFromSuccess(ctx, tmplQ, learnEnts, intent.LabelFilter)

	// The near pattern's template requires a gte literal, which the current
	// gt entity cannot bind, so the lookup must miss rather than mis-bind.
	_, _, ok := s.Find(balanceFilterEntities(6000), intent.LabelFilter)
	assert.False(t, ok)
}

func TestLoad_KeepsBestPatternPerSignature(t *testing.T) {
	older := &QueryPattern{
		ID: "a", TriggerSignature: "filter::x",
		Confidence: 0.9, LastUsedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := &QueryPattern{
		ID: "b", TriggerSignature: "filter::x",
		Confidence: 0.9, LastUsedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	weaker := &QueryPattern{
		ID: "c", TriggerSignature: "filter::x",
		Confidence: 0.85, LastUsedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}

	s := NewStore(nil, WithPersister(&stubPersister{patterns: []*QueryPattern{older, newer, weaker}}))
	require.NoError(t, s.Load(context.Background()))

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "b", snap[0].ID, "equal confidence resolves to most recent last-use")
}

// stubPersister is an in-memory Persister for tests.
type stubPersister struct {
	patterns []*QueryPattern
}

func (s *stubPersister) SavePattern(context.Context, *QueryPattern) error { return nil }
func (s *stubPersister) DeletePattern(context.Context, string) error     { return nil }
func (s *stubPersister) LoadAll(context.Context) ([]*QueryPattern, error) {
	return s.patterns, nil
}
