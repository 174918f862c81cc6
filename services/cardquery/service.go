// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cardquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery/analytics"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/cards"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/decompose"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/engine"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/entities"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/intent"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/patterns"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/query"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/synonyms"
	"github.com/mkatragadda/Vitta-sub002/services/llm"
)

// =============================================================================
// Metrics
// =============================================================================

var (
	queryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vitta",
		Subsystem: "cardquery",
		Name:      "queries_total",
		Help:      "Queries processed, by outcome.",
	}, []string{"outcome"})

	queryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vitta",
		Subsystem: "cardquery",
		Name:      "query_latency_seconds",
		Help:      "End-to-end ProcessQuery latency.",
		Buckets:   prometheus.DefBuckets,
	})
)

var serviceTracer = otel.Tracer("vitta.cardquery.service")

// =============================================================================
// Types
// =============================================================================

// Outcome says how a query resolved.
type Outcome string

const (
	// OutcomeAnswered means a StructuredQuery executed and Result is set.
	OutcomeAnswered Outcome = "answered"
	// OutcomeConfirm means the interpretation needs user confirmation before
	// execution. Resubmit the same utterance with Confirmed set.
	OutcomeConfirm Outcome = "confirm"
	// OutcomeClarify means the utterance could not be decomposed and the
	// user should rephrase. Message says why in user-facing terms.
	OutcomeClarify Outcome = "clarify"
	// OutcomeConversational means the utterance was not a card query at all.
	OutcomeConversational Outcome = "conversational"
)

// Request is one natural-language query over a user's cards.
type Request struct {
	UserID    string       `json:"user_id,omitempty"`
	Utterance string       `json:"utterance"`
	Cards     []cards.Card `json:"cards"`
	// Confirmed marks a resubmission after an OutcomeConfirm response.
	Confirmed bool `json:"confirmed,omitempty"`
}

// Response is the pipeline's answer. Result is set only for OutcomeAnswered.
type Response struct {
	Outcome  Outcome                 `json:"outcome"`
	Message  string                  `json:"message,omitempty"`
	Intent   intent.Match            `json:"intent"`
	Entities []entities.Entity       `json:"entities,omitempty"`
	Query    *query.StructuredQuery  `json:"query,omitempty"`
	Result   *engine.ExecutionResult `json:"result,omitempty"`
}

// Deps are the externally-constructed collaborators. The mapper, embedder,
// and vector store are required; everything else is optional. The extractor
// and classifier themselves are built by NewService so that Options (tier
// thresholds, extraction window) is their single source of configuration.
type Deps struct {
	Mapper      *synonyms.Mapper
	Embedder    intent.Embedder
	VectorStore intent.VectorStore
	Fallback    llm.Completer // nil disables the classifier's model tier
	Patterns    *patterns.Store
	Recorder    *analytics.Recorder
}

// Service runs the query pipeline.
//
// # Thread Safety
//
// Safe for concurrent use. All collaborators are concurrency-safe and the
// service itself holds no mutable state.
type Service struct {
	opts       Options
	extractor  *entities.Extractor
	classifier *intent.Classifier
	decomposer *decompose.Decomposer
	executor   *engine.Executor
	patterns   *patterns.Store
	recorder   *analytics.Recorder
	logger     *slog.Logger
}

// NewService validates the options and wires the pipeline. The extractor,
// classifier, decomposer, and executor are built here from opts; the
// collaborators with external lifecycles come in through deps.
func NewService(opts Options, deps Deps, logger *slog.Logger) (*Service, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Mapper == nil || deps.Embedder == nil || deps.VectorStore == nil {
		return nil, errors.New("cardquery: mapper, embedder, and vector store are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	classifier, err := intent.NewClassifier(opts.Intent, deps.Embedder, deps.VectorStore, deps.Fallback, logger)
	if err != nil {
		return nil, fmt.Errorf("cardquery: %w", err)
	}

	store := deps.Patterns
	if !opts.EnablePatternLearning {
		store = nil
	}
	if store != nil && opts.PatternFloor > 0 {
		store.SetFloor(opts.PatternFloor)
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = analytics.NewRecorder(opts.EnableAnalytics, nil, logger)
	}
	executor, err := engine.NewExecutor(logger)
	if err != nil {
		return nil, fmt.Errorf("cardquery: %w", err)
	}

	return &Service{
		opts:       opts,
		extractor:  entities.NewExtractor(deps.Mapper, opts.ExtractionWindow, logger),
		classifier: classifier,
		decomposer: decompose.NewDecomposer(store, logger),
		executor:   executor,
		patterns:   store,
		recorder:   recorder,
		logger:     logger,
	}, nil
}

// =============================================================================
// Pipeline
// =============================================================================

// ProcessQuery runs one utterance through the full pipeline.
//
// # Description
//
// Entity extraction and intent classification run in parallel. A
// conversational intent short-circuits before any query is built. Otherwise
// the decomposer produces a StructuredQuery (learned-pattern fast path
// first), the engine executes it against a snapshot of the supplied cards,
// and on confirmed success the pattern store learns the decomposition.
//
// Recoverable problems (nothing extractable, an invalid query shape, a
// degraded classifier) come back as a Response with a user-facing Message
// and are recorded as analytics failures. The returned error is non-nil only
// for internal faults.
func (s *Service) ProcessQuery(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()
	ctx, span := serviceTracer.Start(ctx, "cardquery.Service.ProcessQuery")
	defer span.End()

	start := time.Now()
	defer func() { queryLatency.Observe(time.Since(start).Seconds()) }()

	if strings.TrimSpace(req.Utterance) == "" {
		return s.finish(ctx, req, start, &Response{
			Outcome: OutcomeClarify,
			Message: "I didn't catch a question. What would you like to know about your cards?",
		}, analytics.FailureAmbiguous), nil
	}

	var (
		ents  []entities.Entity
		match intent.Match
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ents = s.extractor.Extract(req.Utterance)
		return nil
	})
	g.Go(func() error {
		match = s.classifier.Classify(gctx, req.Utterance)
		return nil
	})
	// Neither branch returns an error; Wait keeps the join explicit.
	_ = g.Wait()

	span.SetAttributes(
		attribute.String("intent", string(match.Label)),
		attribute.String("intent_method", string(match.Method)),
		attribute.Int("entity_count", len(ents)),
	)

	resp := &Response{Intent: match, Entities: ents}

	if match.Label == intent.LabelConversational {
		return s.resolveConversational(ctx, req, start, resp), nil
	}

	snap := cards.NewSnapshot(req.Cards, time.Now().UTC())

	result, err := s.decomposer.Decompose(ctx, ents, match)
	if err != nil {
		return s.resolveDecomposeError(ctx, req, start, resp, err)
	}
	resp.Query = &result.Query

	if match.NeedsConfirm && !req.Confirmed {
		resp.Outcome = OutcomeConfirm
		resp.Message = fmt.Sprintf(
			"I think you're asking a %s question: %s. Is that right?",
			match.Label, describeQuery(result.Query),
		)
		// Nothing executed yet: pending confirmation is neither a success nor
		// a failure in the analytics report.
		s.record(ctx, req, start, resp, false, analytics.FailureNone, result)
		queryTotal.WithLabelValues(string(OutcomeConfirm)).Inc()
		return resp, nil
	}

	execRes, err := s.executor.Execute(result.Query, snap)
	if err != nil {
		// Invariant violation inside the engine; not the user's fault.
		s.record(ctx, req, start, resp, false, analytics.FailureExecution, result)
		queryTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	resp.Outcome = OutcomeAnswered
	resp.Result = &execRes

	if s.patterns != nil && confirmedSuccess(result.Query, execRes) {
		s.patterns.LearnFromSuccess(ctx, result.Query, ents, match.Label)
	}

	s.record(ctx, req, start, resp, true, analytics.FailureNone, result)
	queryTotal.WithLabelValues(string(OutcomeAnswered)).Inc()
	return resp, nil
}

// resolveConversational handles the no-query path. When entities were
// extracted but classification still defaulted, the external tiers degraded
// and the honest answer is to ask for a rephrase.
func (s *Service) resolveConversational(ctx context.Context, req Request, start time.Time, resp *Response) *Response {
	if len(resp.Entities) > 0 && resp.Intent.Method == intent.MethodFallback {
		resp.Outcome = OutcomeClarify
		resp.Message = "I couldn't work out what you're asking about your cards. Could you rephrase?"
		return s.finish(ctx, req, start, resp, analytics.FailureExternalService)
	}
	resp.Outcome = OutcomeConversational
	resp.Message = "I can answer questions about your cards, like balances, APRs, due dates, and rewards."
	return s.finish(ctx, req, start, resp, analytics.FailureNone)
}

func (s *Service) resolveDecomposeError(ctx context.Context, req Request, start time.Time, resp *Response, err error) (*Response, error) {
	if errors.Is(err, decompose.ErrNoEntities) {
		resp.Outcome = OutcomeClarify
		resp.Message = "I couldn't find anything card-related in that. Try naming an attribute, like balance or APR."
		return s.finish(ctx, req, start, resp, analytics.FailureAmbiguous), nil
	}
	var qe *query.Error
	if errors.As(err, &qe) {
		resp.Outcome = OutcomeClarify
		resp.Message = qe.Message
		return s.finish(ctx, req, start, resp, analytics.FailureInvalidShape), nil
	}
	queryTotal.WithLabelValues("error").Inc()
	return nil, err
}

// finish records analytics for a non-error terminal response and counts it.
func (s *Service) finish(ctx context.Context, req Request, start time.Time, resp *Response, kind analytics.FailureKind) *Response {
	s.record(ctx, req, start, resp, kind == analytics.FailureNone, kind, decompose.Result{})
	queryTotal.WithLabelValues(string(resp.Outcome)).Inc()
	return resp
}

func (s *Service) record(ctx context.Context, req Request, start time.Time, resp *Response, success bool, kind analytics.FailureKind, dres decompose.Result) {
	rec := analytics.Record{
		UserID:          req.UserID,
		QueryText:       req.Utterance,
		Entities:        resp.Entities,
		StructuredQuery: resp.Query,
		Intent:          resp.Intent,
		ResponseTimeMs:  time.Since(start).Milliseconds(),
		Success:         success,
		FailureKind:     kind,
	}
	if dres.Pattern != nil {
		rec.PatternIDUsed = dres.Pattern.ID
	}
	s.recorder.Append(ctx, rec)
}

// Report exposes the analytics aggregate for the reporting endpoint.
func (s *Service) Report() analytics.Report { return s.recorder.Report() }

// Patterns returns the learned patterns, most confident first. Empty when
// learning is disabled.
func (s *Service) Patterns() []*patterns.QueryPattern {
	if s.patterns == nil {
		return nil
	}
	return s.patterns.Snapshot()
}

// confirmedSuccess is the learning gate: a query counts as successful when it
// returned rows, or when it is an aggregate (a zero-row aggregate is still a
// well-formed answer).
func confirmedSuccess(q query.StructuredQuery, res engine.ExecutionResult) bool {
	return res.RowCount > 0 || q.IsAggregate()
}

// describeQuery renders a StructuredQuery as a short human-readable phrase
// for confirmation prompts.
func describeQuery(q query.StructuredQuery) string {
	var parts []string
	if q.Aggregate != nil {
		if q.Aggregate.Attribute != "" {
			parts = append(parts, fmt.Sprintf("%s of %s", q.Aggregate.Op, q.Aggregate.Attribute))
		} else {
			parts = append(parts, string(q.Aggregate.Op))
		}
	}
	for _, f := range q.Filters {
		parts = append(parts, fmt.Sprintf("%s %s %s", f.Attribute, f.Operator, f.Value))
	}
	if q.GroupBy != "" {
		parts = append(parts, "per "+q.GroupBy)
	}
	if q.Sort != nil {
		dir := "lowest"
		if q.Sort.Descending {
			dir = "highest"
		}
		parts = append(parts, fmt.Sprintf("%s %s", dir, q.Sort.Attribute))
	}
	if q.Limit > 0 {
		parts = append(parts, fmt.Sprintf("top %d", q.Limit))
	}
	if len(parts) == 0 {
		parts = append(parts, "show "+strings.Join(q.Select, ", "))
	}
	return strings.Join(parts, ", ")
}
