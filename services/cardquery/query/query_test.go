// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"errors"
	"testing"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery/cards"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/entities"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		q        StructuredQuery
		wantCode ErrorCode // "" means valid
	}{
		{
			name: "plain filter",
			q: StructuredQuery{Filters: []Filter{
				{Attribute: cards.AttrBalance, Operator: entities.OpGt, Value: entities.NumberValue(5000)},
			}},
		},
		{
			name:     "limit without sort rejected",
			q:        StructuredQuery{Limit: 3},
			wantCode: ErrCodeInvalidShape,
		},
		{
			name: "limit with sort accepted",
			q: StructuredQuery{
				Sort:  &Sort{Attribute: cards.AttrBalance, Descending: true},
				Limit: 3,
			},
		},
		{
			name:     "negative limit rejected",
			q:        StructuredQuery{Limit: -1},
			wantCode: ErrCodeInvalidShape,
		},
		{
			name: "unknown filter attribute",
			q: StructuredQuery{Filters: []Filter{
				{Attribute: "favorite_color", Operator: entities.OpEq, Value: entities.TextValue("blue")},
			}},
			wantCode: ErrCodeUnknownAttribute,
		},
		{
			name: "filter without operator",
			q: StructuredQuery{Filters: []Filter{
				{Attribute: cards.AttrBalance, Value: entities.NumberValue(5000)},
			}},
			wantCode: ErrCodeInvalidShape,
		},
		{
			name: "between without pair",
			q: StructuredQuery{Filters: []Filter{
				{Attribute: cards.AttrBalance, Operator: entities.OpBetween, Value: entities.NumberValue(5000)},
			}},
			wantCode: ErrCodeBadValue,
		},
		{
			name: "numeric filter with text value",
			q: StructuredQuery{Filters: []Filter{
				{Attribute: cards.AttrAPR, Operator: entities.OpGt, Value: entities.TextValue("twenty")},
			}},
			wantCode: ErrCodeBadValue,
		},
		{
			name: "sum of balance",
			q:    StructuredQuery{Aggregate: &Aggregate{Op: entities.AggSum, Attribute: cards.AttrBalance}},
		},
		{
			name: "bare count",
			q:    StructuredQuery{Aggregate: &Aggregate{Op: entities.AggCount}},
		},
		{
			name:     "sum without attribute",
			q:        StructuredQuery{Aggregate: &Aggregate{Op: entities.AggSum}},
			wantCode: ErrCodeInvalidShape,
		},
		{
			name:     "sum of a string attribute",
			q:        StructuredQuery{Aggregate: &Aggregate{Op: entities.AggSum, Attribute: cards.AttrIssuer}},
			wantCode: ErrCodeBadValue,
		},
		{
			name:     "unknown sort attribute",
			q:        StructuredQuery{Sort: &Sort{Attribute: "nonsense"}},
			wantCode: ErrCodeUnknownAttribute,
		},
		{
			name:     "unknown select attribute",
			q:        StructuredQuery{Select: []string{"nonsense"}},
			wantCode: ErrCodeUnknownAttribute,
		},
		{
			name: "group by issuer with count",
			q: StructuredQuery{
				GroupBy:   cards.AttrIssuer,
				Aggregate: &Aggregate{Op: entities.AggCount},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.q.Validate()
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var qe *Error
			if !errors.As(err, &qe) {
				t.Fatalf("Validate() = %v, want *Error", err)
			}
			if qe.Code != tc.wantCode {
				t.Errorf("code = %s, want %s", qe.Code, tc.wantCode)
			}
		})
	}
}
