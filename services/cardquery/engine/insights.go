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
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery/cards"
)

//go:embed insight_rules.yaml
var insightRulesYAML []byte

// maxInsights caps the advisory strings on one result. More than a handful
// reads as noise.
const maxInsights = 5

// InsightRule is one threshold check over a numeric card attribute.
type InsightRule struct {
	Name      string  `yaml:"name"`
	Attribute string  `yaml:"attribute"`
	Op        string  `yaml:"op"` // gt, gte, lt, lte
	Threshold float64 `yaml:"threshold"`
	Message   string  `yaml:"message"`
}

type insightRuleFile struct {
	Rules []InsightRule `yaml:"rules"`
}

var (
	insightOnce  sync.Once
	insightRules []InsightRule
	insightErr   error
)

// loadInsightRules parses the embedded rule set once.
func loadInsightRules() ([]InsightRule, error) {
	insightOnce.Do(func() {
		var f insightRuleFile
		if err := yaml.Unmarshal(insightRulesYAML, &f); err != nil {
			insightErr = fmt.Errorf("parse insight rules: %w", err)
			return
		}
		for i, r := range f.Rules {
			if !cards.IsKnown(r.Attribute) {
				insightErr = fmt.Errorf("insight rules[%d]: unknown attribute %q", i, r.Attribute)
				return
			}
			switch r.Op {
			case "gt", "gte", "lt", "lte":
			default:
				insightErr = fmt.Errorf("insight rules[%d]: unknown op %q", i, r.Op)
				return
			}
		}
		insightRules = f.Rules
	})
	return insightRules, insightErr
}

// applyInsights evaluates the rule set against the filtered cards. Rules run
// in declaration order; at most one insight fires per card per attribute (the
// first matching rule wins, so order severe rules before mild ones).
func applyInsights(rules []InsightRule, filtered []cards.Card, snap cards.Snapshot) []string {
	var out []string
	for i := range filtered {
		c := &filtered[i]
		fired := map[string]bool{}
		for _, r := range rules {
			if fired[r.Attribute] {
				continue
			}
			v, ok := numericAttr(c, r.Attribute, snap)
			if !ok {
				continue
			}
			if !ruleMatches(r.Op, v, r.Threshold) {
				continue
			}
			fired[r.Attribute] = true
			out = append(out, renderInsight(r.Message, c.Name, v))
			if len(out) >= maxInsights {
				return out
			}
		}
	}
	return out
}

func ruleMatches(op string, v, threshold float64) bool {
	switch op {
	case "gt":
		return v > threshold
	case "gte":
		return v >= threshold
	case "lt":
		return v < threshold
	case "lte":
		return v <= threshold
	default:
		return false
	}
}

// renderInsight substitutes the {name} and {value} placeholders. Fractions
// below 1 render as percentages, whole values as plain numbers.
func renderInsight(msg, name string, v float64) string {
	var value string
	if v > 0 && v < 1 {
		value = strconv.FormatFloat(v*100, 'f', 0, 64) + "%"
	} else {
		value = strconv.FormatFloat(v, 'f', -1, 64)
	}
	msg = strings.ReplaceAll(msg, "{name}", name)
	return strings.ReplaceAll(msg, "{value}", value)
}
