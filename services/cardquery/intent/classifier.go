// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkatragadda/Vitta-sub002/services/llm"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	classificationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cardquery",
		Subsystem: "intent",
		Name:      "classification_total",
		Help:      "Classification outcomes by method: vector, language_model, fallback",
	}, []string{"method", "label"})

	fallbackLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cardquery",
		Subsystem: "intent",
		Name:      "fallback_latency_seconds",
		Help:      "Latency of language-model fallback calls",
		Buckets:   []float64{0.1, 0.5, 1.0, 2.0, 3.0, 5.0},
	})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var classifierTracer = otel.Tracer("vitta.cardquery.intent")

// =============================================================================
// Classifier
// =============================================================================

// fallbackConfidence is assigned to a language-model classification. The
// model gives no calibrated score, so it lands in the confirm-first band.
const fallbackConfidence = 0.65

// Classifier labels an utterance with a query intent.
//
// # Description
//
// Tiers, cheapest first:
//
//  1. Vector: embed the utterance and vote among the nearest corpus
//     examples. Similarity >= HighThreshold auto-executes; similarity in
//     the medium band executes with a confirmation flag.
//  2. Language model: below the medium band (or when embedding is down),
//     ask the fallback model to pick a label. The call is bounded by
//     Config.FallbackTimeout; its answer is validated against the known
//     label set before use.
//  3. Default: everything else is conversational with zero confidence.
//
// A nil completer disables tier 2; a cold vector store skips tier 1. Either
// way the classifier never fails an utterance — it degrades to the default.
//
// # Thread Safety
//
// Safe for concurrent use after the vector store is warmed.
type Classifier struct {
	cfg      Config
	embedder Embedder
	store    VectorStore
	fallback llm.Completer // nil disables the language-model tier
	logger   *slog.Logger
}

// NewClassifier wires the classification tiers. fallback may be nil.
func NewClassifier(cfg Config, embedder Embedder, store VectorStore, fallback llm.Completer, logger *slog.Logger) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		cfg:      cfg,
		embedder: embedder,
		store:    store,
		fallback: fallback,
		logger:   logger,
	}, nil
}

// Classify labels the utterance. Never returns an error for an unclassifiable
// utterance — the conversational default absorbs those.
func (c *Classifier) Classify(ctx context.Context, utterance string) Match {
	ctx, span := classifierTracer.Start(ctx, "intent.Classifier.Classify",
		trace.WithAttributes(
			attribute.String("utterance_preview", truncateForLog(utterance, 80)),
		),
	)
	defer span.End()

	if m, ok := c.classifyByVector(ctx, utterance); ok {
		span.SetAttributes(
			attribute.String("method", string(m.Method)),
			attribute.String("label", string(m.Label)),
			attribute.Float64("confidence", m.Confidence),
		)
		classificationTotal.WithLabelValues(string(m.Method), string(m.Label)).Inc()
		return m
	}

	if m, ok := c.classifyByModel(ctx, utterance); ok {
		span.SetAttributes(
			attribute.String("method", string(m.Method)),
			attribute.String("label", string(m.Label)),
		)
		classificationTotal.WithLabelValues(string(m.Method), string(m.Label)).Inc()
		return m
	}

	span.SetAttributes(attribute.String("method", string(MethodFallback)))
	classificationTotal.WithLabelValues(string(MethodFallback), string(LabelConversational)).Inc()
	return Match{Label: LabelConversational, Confidence: 0, Method: MethodFallback}
}

// classifyByVector runs the embedding tier. ok=false means the tier was
// inconclusive (cold store, embed failure, or similarity below the medium
// band) and the caller should escalate.
func (c *Classifier) classifyByVector(ctx context.Context, utterance string) (Match, bool) {
	embedCtx, cancel := context.WithTimeout(ctx, embedQueryTimeout)
	defer cancel()

	queryVec, err := c.embedder.Embed(embedCtx, utterance)
	if err != nil {
		c.logger.Warn("intent: query embedding failed, escalating to model tier",
			slog.String("error", err.Error()),
		)
		return Match{}, false
	}
	queryUnit := unitNormalize(queryVec)
	if queryUnit == nil {
		return Match{}, false
	}

	neighbors, err := c.store.Search(ctx, queryUnit, c.cfg.TopK)
	if err != nil {
		c.logger.Warn("intent: vector search failed, escalating to model tier",
			slog.String("error", err.Error()),
		)
		return Match{}, false
	}
	if len(neighbors) == 0 {
		return Match{}, false
	}

	label, score := voteNeighbors(neighbors)

	switch {
	case score >= c.cfg.HighThreshold:
		return Match{Label: label, Confidence: score, Method: MethodVector}, true
	case score >= c.cfg.MediumThreshold:
		return Match{Label: label, Confidence: score, Method: MethodVector, NeedsConfirm: true}, true
	default:
		c.logger.Debug("intent: similarity below medium band, escalating",
			slog.String("best_label", string(label)),
			slog.Float64("score", score),
		)
		return Match{}, false
	}
}

// voteNeighbors picks the label with the highest summed similarity among the
// neighbors, then reports the best single score within that label. Summing
// rewards label agreement without letting many weak votes beat one strong one.
func voteNeighbors(neighbors []Neighbor) (Label, float64) {
	sums := make(map[Label]float64, 4)
	best := make(map[Label]float64, 4)
	for _, n := range neighbors {
		sums[n.Label] += n.Score
		if n.Score > best[n.Label] {
			best[n.Label] = n.Score
		}
	}

	var winner Label
	var winnerSum float64
	for label, sum := range sums {
		if sum > winnerSum {
			winner, winnerSum = label, sum
		}
	}
	return winner, best[winner]
}

// classifyByModel asks the fallback completer to pick a label.
func (c *Classifier) classifyByModel(ctx context.Context, utterance string) (Match, bool) {
	if c.fallback == nil {
		return Match{}, false
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.FallbackTimeout)
	defer cancel()

	out, err := c.fallback.Complete(callCtx, buildFallbackPrompt(utterance), llm.GenerationParams{
		Temperature: 0,
		MaxTokens:   8,
	})
	fallbackLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		c.logger.Warn("intent: model fallback failed, using conversational default",
			slog.String("model", c.fallback.Model()),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return Match{}, false
	}

	label := parseLabelCompletion(out)
	if !label.IsKnown() {
		c.logger.Warn("intent: model returned unknown label",
			slog.String("model", c.fallback.Model()),
			slog.String("raw", truncateForLog(out, 40)),
		)
		return Match{}, false
	}

	c.logger.Info("intent: model fallback classified",
		slog.String("label", string(label)),
		slog.Duration("duration", time.Since(start)),
	)
	return Match{Label: label, Confidence: fallbackConfidence, Method: MethodLanguageModel, NeedsConfirm: true}, true
}

// buildFallbackPrompt asks for exactly one label word.
func buildFallbackPrompt(utterance string) string {
	return fmt.Sprintf(`Classify the intent of a question about the user's credit cards.
Answer with exactly one word from this list:
filter aggregate rank compare distinct conversational

Question: %s
Answer:`, utterance)
}

// parseLabelCompletion extracts the first word of the model's answer.
func parseLabelCompletion(out string) Label {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(out)))
	if len(fields) == 0 {
		return ""
	}
	return Label(strings.Trim(fields[0], ".,!\"'"))
}

// truncateForLog shortens a string for span attributes and log lines,
// redacting card numbers and credentials first.
func truncateForLog(s string, max int) string {
	s = llm.SafeLogString(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
