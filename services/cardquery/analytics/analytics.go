// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analytics records the inputs, decomposition path, timing, and
// outcome of every query. Records are append-only: once written they are
// never mutated, only read for aggregate reporting and pattern confidence
// recomputation.
package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery/entities"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/intent"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/query"
)

// FailureKind classifies an unsuccessful query for the learning loop.
type FailureKind string

const (
	FailureNone            FailureKind = ""
	FailureAmbiguous       FailureKind = "extraction_ambiguity"
	FailureInvalidShape    FailureKind = "invalid_query_shape"
	FailureExternalService FailureKind = "external_service"
	FailureExecution       FailureKind = "execution"
)

// Record is one query's audit entry. Append-only; never mutated after write.
type Record struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id,omitempty"`
	QueryText       string                 `json:"query_text"`
	Entities        []entities.Entity      `json:"entities,omitempty"`
	StructuredQuery *query.StructuredQuery `json:"structured_query,omitempty"`
	Intent          intent.Match           `json:"intent"`
	ResponseTimeMs  int64                  `json:"response_time_ms"`
	// Success is true only for answered terminal outcomes. A response held
	// for user confirmation is recorded with Success=false and no failure
	// kind; Report counts those as pending, not failed.
	Success       bool        `json:"success"`
	FailureKind   FailureKind `json:"failure_kind,omitempty"`
	PatternIDUsed string      `json:"pattern_id_used,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Sink receives each finished record, for export to external storage.
// Implementations must not block the query path for long; the recorder calls
// them synchronously after the response is already determined.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// Report is the aggregate view over all records held in memory.
type Report struct {
	TotalQueries int `json:"total_queries"`
	Successes    int `json:"successes"`
	Failures     int `json:"failures"`
	// PendingConfirms counts responses awaiting user confirmation; they are
	// excluded from both the success and failure tallies.
	PendingConfirms int            `json:"pending_confirms"`
	PatternHits     int            `json:"pattern_hits"`
	AvgResponseMs   float64        `json:"avg_response_ms"`
	P50ResponseMs   int64          `json:"p50_response_ms"`
	P95ResponseMs   int64          `json:"p95_response_ms"`
	ByMethod        map[string]int `json:"by_method"`
	ByFailureKind   map[string]int `json:"by_failure_kind"`
	ByIntent        map[string]int `json:"by_intent"`
}

// Recorder accumulates records in memory and forwards them to an optional
// sink.
//
// # Thread Safety
//
// Safe for concurrent use. Appends take a short mutex; reads copy.
type Recorder struct {
	mu      sync.RWMutex
	records []Record

	enabled bool
	sink    Sink // nil = in-memory only
	logger  *slog.Logger
}

// NewRecorder creates a recorder. enabled=false turns Append into a no-op,
// for deployments that opt out of tracking. sink may be nil.
func NewRecorder(enabled bool, sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{enabled: enabled, sink: sink, logger: logger}
}

// Append stores one finished record, assigning its ID and timestamp.
// A sink failure is logged and absorbed; the in-memory record survives.
func (r *Recorder) Append(ctx context.Context, rec Record) {
	if !r.enabled {
		return
	}
	rec.ID = uuid.NewString()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()

	if r.sink != nil {
		if err := r.sink.Write(ctx, rec); err != nil {
			r.logger.Warn("analytics: sink write failed",
				slog.String("record_id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Records returns a copy of all records, oldest first.
func (r *Recorder) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Report aggregates the held records.
func (r *Recorder) Report() Report {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rep := Report{
		ByMethod:      map[string]int{},
		ByFailureKind: map[string]int{},
		ByIntent:      map[string]int{},
	}
	var totalMs int64
	latencies := make([]int64, 0, len(r.records))
	for _, rec := range r.records {
		rep.TotalQueries++
		switch {
		case rec.Success:
			rep.Successes++
		case rec.FailureKind == FailureNone:
			rep.PendingConfirms++
		default:
			rep.Failures++
			rep.ByFailureKind[string(rec.FailureKind)]++
		}
		if rec.PatternIDUsed != "" {
			rep.PatternHits++
		}
		rep.ByMethod[string(rec.Intent.Method)]++
		rep.ByIntent[string(rec.Intent.Label)]++
		totalMs += rec.ResponseTimeMs
		latencies = append(latencies, rec.ResponseTimeMs)
	}
	if rep.TotalQueries > 0 {
		rep.AvgResponseMs = float64(totalMs) / float64(rep.TotalQueries)
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		rep.P50ResponseMs = latencies[percentileIndex(len(latencies), 50)]
		rep.P95ResponseMs = latencies[percentileIndex(len(latencies), 95)]
	}
	return rep
}

// percentileIndex maps a percentile onto a sorted-slice index (nearest-rank).
func percentileIndex(n, pct int) int {
	idx := (n*pct + 99) / 100
	if idx > 0 {
		idx--
	}
	return idx
}
