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
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mkatragadda/Vitta-sub002/services/cardquery/entities"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/intent"
	"github.com/mkatragadda/Vitta-sub002/services/cardquery/query"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	patternLookupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cardquery",
		Subsystem: "patterns",
		Name:      "lookup_total",
		Help:      "Pattern lookups by outcome: hit, near_hit, miss",
	}, []string{"outcome"})

	patternMutationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cardquery",
		Subsystem: "patterns",
		Name:      "mutation_total",
		Help:      "Pattern store mutations: learned, reinforced, decayed, evicted",
	}, []string{"kind"})
)

// =============================================================================
// Tuning Constants
// =============================================================================

const (
	// initialConfidence is assigned at learning time. Exactly at the match
	// threshold: a fresh pattern is immediately reusable, and a single
	// validation failure takes it out of rotation.
	initialConfidence = 0.80

	// matchThreshold is the minimum confidence for a pattern to be returned
	// from Find.
	matchThreshold = 0.80

	// reuseBoost is added on each confirmed successful reuse, capped at 1.0.
	reuseBoost = 0.05

	// decayFactor halves confidence when the bound query fails validation.
	decayFactor = 0.5

	// nearDistance is the maximum Levenshtein distance between signatures
	// for a near match. Signatures are long strings; a tiny edit distance
	// tolerates one shape differing in a single operator or modifier token.
	nearDistance = 4
)

// defaultFloor is the confidence below which a pattern is evicted.
const defaultFloor = 0.5

// Persister stores pattern records durably. Nil disables persistence.
//
// Implementations must be safe for concurrent use.
type Persister interface {
	SavePattern(ctx context.Context, p *QueryPattern) error
	DeletePattern(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]*QueryPattern, error)
}

// table is the immutable published view of the store.
type table struct {
	bySig map[string]*QueryPattern
}

// Store holds learned patterns behind an atomically swapped immutable table.
//
// # Description
//
// Lookups are lock-free: readers load the current table pointer and never
// see a partial write. Mutations (learn, reinforce, decay) serialize on a
// writer mutex, build a replacement table with cloned records, and swap it
// in whole. One pattern per signature: highest confidence wins at insert,
// ties broken by most recent last-use.
//
// # Thread Safety
//
// Safe for concurrent use.
type Store struct {
	current atomic.Pointer[table]
	writeMu sync.Mutex

	floor     float64
	persister Persister // nil = in-memory-only
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithFloor overrides the eviction floor.
func WithFloor(floor float64) Option {
	return func(s *Store) {
		if floor > 0 {
			s.floor = floor
		}
	}
}

// WithPersister attaches durable storage.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty pattern store.
func NewStore(logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		floor:  defaultFloor,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&table{bySig: map[string]*QueryPattern{}})
	return s
}

// SetFloor replaces the eviction floor. Values outside (0,1) are ignored.
// The next decay observes the new floor.
func (s *Store) SetFloor(floor float64) {
	if floor <= 0 || floor >= 1 {
		return
	}
	s.writeMu.Lock()
	s.floor = floor
	s.writeMu.Unlock()
}

// Load restores persisted patterns. Call once at startup, before serving.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	loaded, err := s.persister.LoadAll(ctx)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := map[string]*QueryPattern{}
	for _, p := range loaded {
		if existing, ok := next[p.TriggerSignature]; ok && !betterThan(p, existing) {
			continue
		}
		next[p.TriggerSignature] = p
	}
	s.current.Store(&table{bySig: next})

	s.logger.Info("pattern store: loaded",
		slog.Int("pattern_count", len(next)),
	)
	return nil
}

// Find returns the learned pattern for the entity set and intent label, with
// the template already bound to the current literals.
//
// # Description
//
// Exact signature match first, then a near match within a small edit
// distance. Only patterns at or above the match threshold are returned, and
// the bound query still must pass validation downstream — a pattern never
// bypasses structural checks.
//
// Returns (nil, zero query, false) on miss.
func (s *Store) Find(ents []entities.Entity, label intent.Label) (*QueryPattern, query.StructuredQuery, bool) {
	sig := Signature(ents, label)
	tbl := s.current.Load()

	if p, ok := tbl.bySig[sig]; ok && p.Confidence >= matchThreshold {
		if bound, ok := Bind(p.Template, ents); ok {
			patternLookupTotal.WithLabelValues("hit").Inc()
			return p, bound, true
		}
	}

	// Near match: tolerate one small shape difference.
	var best *QueryPattern
	bestDist := nearDistance + 1
	for candSig, p := range tbl.bySig {
		if p.Confidence < matchThreshold || candSig == sig {
			continue
		}
		d := levenshtein.ComputeDistance(sig, candSig)
		if d < bestDist || (d == bestDist && best != nil && betterThan(p, best)) {
			best, bestDist = p, d
		}
	}
	if best != nil && bestDist <= nearDistance {
		if bound, ok := Bind(best.Template, ents); ok {
			patternLookupTotal.WithLabelValues("near_hit").Inc()
			return best, bound, true
		}
	}

	patternLookupTotal.WithLabelValues("miss").Inc()
	return nil, query.StructuredQuery{}, false
}

// LearnFromSuccess records a confirmed-successful decomposition.
//
// # Description
//
// Called only after execution succeeded. If the signature is already known,
// the existing pattern is reinforced: usage count incremented and confidence
// nudged up, capped at 1.0. Otherwise a new pattern is created from the
// query with its literals stripped.
func (s *Store) LearnFromSuccess(ctx context.Context, q query.StructuredQuery, ents []entities.Entity, label intent.Label) *QueryPattern {
	sig := Signature(ents, label)
	now := s.now()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tbl := s.current.Load()

	var updated *QueryPattern
	if existing, ok := tbl.bySig[sig]; ok {
		updated = existing.clone()
		updated.UsageCount++
		updated.Confidence = min(updated.Confidence+reuseBoost, 1.0)
		updated.LastUsedAt = now
		patternMutationTotal.WithLabelValues("reinforced").Inc()
	} else {
		updated = &QueryPattern{
			ID:               uuid.NewString(),
			TriggerSignature: sig,
			Template:         StripLiterals(q),
			Confidence:       initialConfidence,
			UsageCount:       1,
			LastUsedAt:       now,
			CreatedAt:        now,
		}
		patternMutationTotal.WithLabelValues("learned").Inc()
		s.logger.Info("pattern store: learned",
			slog.String("pattern_id", updated.ID),
			slog.String("signature", sig),
		)
	}

	s.swapIn(tbl, sig, updated)
	s.persist(ctx, updated)
	return updated
}

// RecordFailure decays a pattern whose bound query failed validation on
// reuse. Confidence is halved; below the floor the pattern is evicted and
// the next identical signature will miss.
func (s *Store) RecordFailure(ctx context.Context, patternID string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tbl := s.current.Load()
	var target *QueryPattern
	for _, p := range tbl.bySig {
		if p.ID == patternID {
			target = p
			break
		}
	}
	if target == nil {
		return
	}

	updated := target.clone()
	updated.FailureCount++
	updated.Confidence *= decayFactor

	if updated.Confidence < s.floor {
		s.evict(tbl, updated)
		if s.persister != nil {
			if err := s.persister.DeletePattern(ctx, updated.ID); err != nil {
				s.logger.Warn("pattern store: delete failed",
					slog.String("pattern_id", updated.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		return
	}

	patternMutationTotal.WithLabelValues("decayed").Inc()
	s.logger.Info("pattern store: decayed",
		slog.String("pattern_id", updated.ID),
		slog.Float64("confidence", updated.Confidence),
		slog.Int("failure_count", updated.FailureCount),
	)
	s.swapIn(tbl, updated.TriggerSignature, updated)
	s.persist(ctx, updated)
}

// Snapshot returns all current patterns for reporting, most confident first.
// The slice is a copy.
func (s *Store) Snapshot() []*QueryPattern {
	tbl := s.current.Load()
	out := make([]*QueryPattern, 0, len(tbl.bySig))
	for _, p := range tbl.bySig {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return betterThan(out[i], out[j]) })
	return out
}

// swapIn publishes a replacement table with updated stored under sig.
// Caller holds writeMu.
func (s *Store) swapIn(tbl *table, sig string, updated *QueryPattern) {
	next := make(map[string]*QueryPattern, len(tbl.bySig)+1)
	for k, v := range tbl.bySig {
		next[k] = v
	}
	next[sig] = updated
	s.current.Store(&table{bySig: next})
}

// evict publishes a replacement table without the pattern. Caller holds writeMu.
func (s *Store) evict(tbl *table, p *QueryPattern) {
	next := make(map[string]*QueryPattern, len(tbl.bySig))
	for k, v := range tbl.bySig {
		if v.ID == p.ID {
			continue
		}
		next[k] = v
	}
	s.current.Store(&table{bySig: next})

	patternMutationTotal.WithLabelValues("evicted").Inc()
	s.logger.Info("pattern store: evicted",
		slog.String("pattern_id", p.ID),
		slog.Float64("confidence", p.Confidence),
		slog.Int("failure_count", p.FailureCount),
	)
}

// persist saves one pattern, logging on failure. In-memory state is already
// updated; a persistence failure costs durability, not correctness.
func (s *Store) persist(ctx context.Context, p *QueryPattern) {
	if s.persister == nil {
		return
	}
	if err := s.persister.SavePattern(ctx, p); err != nil {
		s.logger.Warn("pattern store: persist failed",
			slog.String("pattern_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

// betterThan ranks two patterns: highest confidence wins, ties broken by
// most recent last-use.
func betterThan(a, b *QueryPattern) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.LastUsedAt.After(b.LastUsedAt)
}
