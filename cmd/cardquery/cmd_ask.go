// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/cards"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/engine"
)

var (
	askCardsPath string
	askUser      string
	askYes       bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Run a one-shot query against cards from a JSON file",
	Long: `Runs a single natural-language question through the pipeline.

The cards file is a JSON array of card records:

  [{"id": "c1", "name": "Sapphire", "issuer": "Chase", "balance": 6000,
    "credit_limit": 12000, "apr": 18.5}]`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askCardsPath, "cards", "", "Path to a JSON file with the card records (required)")
	askCmd.Flags().StringVar(&askUser, "user", "", "User ID recorded with the query")
	askCmd.Flags().BoolVarP(&askYes, "yes", "y", false, "Auto-confirm ambiguous interpretations")
	_ = askCmd.MarkFlagRequired("cards")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	cardSet, err := loadCards(askCardsPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	env, err := buildEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	// One-shot mode warms in the foreground; a cold store just means the
	// classifier leans on its fallback tiers.
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if werr := env.warm(warmCtx); werr != nil {
		slog.Warn("Intent corpus warm-up failed", slog.String("error", werr.Error()))
	}
	cancel()

	req := cardquery.Request{
		UserID:    askUser,
		Utterance: question,
		Cards:     cardSet,
		Confirmed: askYes,
	}
	resp, err := env.svc.ProcessQuery(ctx, req)
	if err != nil {
		return err
	}

	if resp.Outcome == cardquery.OutcomeConfirm {
		fmt.Println(resp.Message)
		if !promptYes() {
			fmt.Println("Okay, not running that.")
			return nil
		}
		req.Confirmed = true
		resp, err = env.svc.ProcessQuery(ctx, req)
		if err != nil {
			return err
		}
	}

	printResponse(resp)
	return nil
}

func loadCards(path string) ([]cards.Card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cards file: %w", err)
	}
	var set []cards.Card
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse cards file: %w", err)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("cards file %s holds no cards", path)
	}
	return set, nil
}

func promptYes() bool {
	fmt.Print("Proceed? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func printResponse(resp *cardquery.Response) {
	switch resp.Outcome {
	case cardquery.OutcomeAnswered:
		printRows(resp.Result)
	default:
		fmt.Println(resp.Message)
	}
}

func printRows(res *engine.ExecutionResult) {
	if res == nil || len(res.Rows) == 0 {
		fmt.Println("No cards matched.")
		return
	}

	for i, row := range res.Rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			v := row[k]
			if v == nil {
				v = "-"
			}
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
		fmt.Printf("%2d. %s\n", i+1, strings.Join(parts, "  "))
	}
	if res.Truncated {
		fmt.Println("(more rows were cut by the requested limit)")
	}

	if len(res.Insights) > 0 {
		fmt.Println("\nWorth a look:")
		for _, in := range res.Insights {
			fmt.Printf("  • %s\n", in)
		}
	}
}
