// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery/cards"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/entities"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/query"
)

// fiveCards is the reference record set: balances [6000,4000,7000,5000,8000]
// and APRs [18,19,25,15,22].
func fiveCards() cards.Snapshot {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	set := []cards.Card{
		{ID: "c1", Name: "Alpha", Issuer: "Chase", Balance: 6000, CreditLimit: 12000, APR: 18},
		{ID: "c2", Name: "Bravo", Issuer: "Chase", Balance: 4000, CreditLimit: 10000, APR: 19},
		{ID: "c3", Name: "Charlie", Issuer: "Amex", Balance: 7000, CreditLimit: 20000, APR: 25},
		{ID: "c4", Name: "Delta", Issuer: "Citi", Balance: 5000, CreditLimit: 8000, APR: 15},
		{ID: "c5", Name: "Echo", Issuer: "Citi", Balance: 8000, CreditLimit: 9000, APR: 22},
	}
	return cards.NewSnapshot(set, now)
}

func newExecutor(t *testing.T) *Executor {
	t.Helper()
	ex, err := NewExecutor(nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return ex
}

func TestExecute_CompoundFilter(t *testing.T) {
	// balance > 5000 AND apr < 20 keeps only Alpha (6000/18).
	ex := newExecutor(t)
	q := query.StructuredQuery{Filters: []query.Filter{
		{Attribute: cards.AttrBalance, Operator: entities.OpGt, Value: entities.NumberValue(5000)},
		{Attribute: cards.AttrAPR, Operator: entities.OpLt, Value: entities.NumberValue(20)},
	}}

	res, err := ex.Execute(q, fiveCards())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.RowCount != 1 {
		t.Fatalf("RowCount = %d, want 1 (rows: %v)", res.RowCount, res.Rows)
	}
	if res.Rows[0]["id"] != "c1" {
		t.Errorf("matched card = %v, want c1", res.Rows[0]["id"])
	}
	if res.Truncated {
		t.Error("Truncated = true without a limit")
	}
}

func TestExecute_SumAcrossAllCards(t *testing.T) {
	ex := newExecutor(t)
	q := query.StructuredQuery{
		Aggregate: &query.Aggregate{Op: entities.AggSum, Attribute: cards.AttrBalance},
	}

	res, err := ex.Execute(q, fiveCards())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.RowCount != 1 {
		t.Fatalf("RowCount = %d, want a single aggregate row", res.RowCount)
	}
	if got := res.Rows[0]["sum"]; got != 30000.0 {
		t.Errorf("sum = %v, want 30000", got)
	}
}

func TestExecute_TopNWithFewerRowsIsNotTruncated(t *testing.T) {
	// "3 highest balance cards" over 2 matches: 2 rows, descending, not truncated.
	ex := newExecutor(t)
	q := query.StructuredQuery{
		Filters: []query.Filter{
			{Attribute: cards.AttrBalance, Operator: entities.OpGt, Value: entities.NumberValue(6500)},
		},
		Sort:  &query.Sort{Attribute: cards.AttrBalance, Descending: true},
		Limit: 3,
	}

	res, err := ex.Execute(q, fiveCards())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.RowCount != 2 || res.Truncated {
		t.Fatalf("RowCount = %d, Truncated = %v; want 2, false", res.RowCount, res.Truncated)
	}
	if res.Rows[0]["id"] != "c5" || res.Rows[1]["id"] != "c3" {
		t.Errorf("order = %v, %v; want c5, c3", res.Rows[0]["id"], res.Rows[1]["id"])
	}
}

func TestExecute_LimitTruncates(t *testing.T) {
	ex := newExecutor(t)
	q := query.StructuredQuery{
		Sort:  &query.Sort{Attribute: cards.AttrBalance, Descending: true},
		Limit: 2,
	}

	res, err := ex.Execute(q, fiveCards())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.RowCount != 2 || !res.Truncated {
		t.Fatalf("RowCount = %d, Truncated = %v; want 2, true", res.RowCount, res.Truncated)
	}
}

func TestExecute_ZeroRowAggregates(t *testing.T) {
	ex := newExecutor(t)
	noMatch := []query.Filter{
		{Attribute: cards.AttrBalance, Operator: entities.OpGt, Value: entities.NumberValue(1e9)},
	}

	tests := []struct {
		op   entities.Aggregation
		want any
	}{
		{entities.AggSum, 0.0},
		{entities.AggCount, 0.0},
		{entities.AggAvg, nil},
		{entities.AggMin, nil},
		{entities.AggMax, nil},
	}
	for _, tc := range tests {
		q := query.StructuredQuery{
			Filters:   noMatch,
			Aggregate: &query.Aggregate{Op: tc.op, Attribute: cards.AttrBalance},
		}
		res, err := ex.Execute(q, fiveCards())
		if err != nil {
			t.Fatalf("%s over empty set errored: %v", tc.op, err)
		}
		if got := res.Rows[0][string(tc.op)]; got != tc.want {
			t.Errorf("%s over empty set = %v, want %v", tc.op, got, tc.want)
		}
	}
}

func TestExecute_Idempotent(t *testing.T) {
	ex := newExecutor(t)
	q := query.StructuredQuery{
		Filters: []query.Filter{
			{Attribute: cards.AttrAPR, Operator: entities.OpLt, Value: entities.NumberValue(20)},
		},
		Sort: &query.Sort{Attribute: cards.AttrBalance, Descending: true},
	}
	snap := fiveCards()

	first, err := ex.Execute(q, snap)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	second, err := ex.Execute(q, snap)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("executions differ:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestExecute_StringEqualityCaseInsensitive(t *testing.T) {
	ex := newExecutor(t)
	q := query.StructuredQuery{Filters: []query.Filter{
		{Attribute: cards.AttrIssuer, Operator: entities.OpEq, Value: entities.TextValue("chase")},
	}}

	res, err := ex.Execute(q, fiveCards())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2 Chase cards", res.RowCount)
	}
}

func TestExecute_BetweenInclusive(t *testing.T) {
	ex := newExecutor(t)
	q := query.StructuredQuery{Filters: []query.Filter{
		{Attribute: cards.AttrBalance, Operator: entities.OpBetween, Value: entities.PairValue(4000, 6000)},
	}}

	res, err := ex.Execute(q, fiveCards())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// 4000, 5000, 6000 all inclusive.
	if res.RowCount != 3 {
		t.Errorf("RowCount = %d, want 3", res.RowCount)
	}
}

func TestExecute_NullsSortLastBothDirections(t *testing.T) {
	ex := newExecutor(t)
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	snap := cards.NewSnapshot([]cards.Card{
		{ID: "g1", Name: "NoGrace"},                     // grace period unset: null
		{ID: "g2", Name: "Short", GracePeriodDays: 21},
		{ID: "g3", Name: "Long", GracePeriodDays: 25},
	}, now)

	for _, desc := range []bool{true, false} {
		q := query.StructuredQuery{
			Sort: &query.Sort{Attribute: cards.AttrGracePeriod, Descending: desc},
		}
		res, err := ex.Execute(q, snap)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if last := res.Rows[len(res.Rows)-1]["id"]; last != "g1" {
			t.Errorf("desc=%v: null row sorted to %v, want last", desc, last)
		}
	}
}

func TestExecute_GroupByIssuerCount(t *testing.T) {
	ex := newExecutor(t)
	q := query.StructuredQuery{
		GroupBy:   cards.AttrIssuer,
		Aggregate: &query.Aggregate{Op: entities.AggCount},
	}

	res, err := ex.Execute(q, fiveCards())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := map[string]float64{"amex": 1, "chase": 2, "citi": 2}
	if res.RowCount != len(want) {
		t.Fatalf("RowCount = %d, want %d groups", res.RowCount, len(want))
	}
	for _, row := range res.Rows {
		issuer := row[cards.AttrIssuer].(string)
		if got := row["count"]; got != want[issuer] {
			t.Errorf("count[%s] = %v, want %v", issuer, got, want[issuer])
		}
	}
}

func TestExecute_MalformedQueryRejected(t *testing.T) {
	ex := newExecutor(t)
	q := query.StructuredQuery{Limit: 3} // limit without sort

	_, err := ex.Execute(q, fiveCards())
	if err == nil {
		t.Fatal("expected ExecutionError")
	}
	if _, ok := err.(*ExecutionError); !ok {
		t.Errorf("err type = %T, want *ExecutionError", err)
	}
}

func TestExecute_InsightsOverFilteredSet(t *testing.T) {
	ex := newExecutor(t)
	// Echo: utilization 8000/9000 ≈ 0.89 fires the severe rule; APR 22 fires
	// the high-APR rule. Filter keeps only Echo, so no other card contributes.
	q := query.StructuredQuery{Filters: []query.Filter{
		{Attribute: cards.AttrBalance, Operator: entities.OpGt, Value: entities.NumberValue(7500)},
	}}

	res, err := ex.Execute(q, fiveCards())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Insights) == 0 {
		t.Fatal("expected insights for a nearly maxed-out card")
	}
	for _, in := range res.Insights {
		if !strings.Contains(in, "Echo") {
			t.Errorf("insight %q references a filtered-out card", in)
		}
	}
}
