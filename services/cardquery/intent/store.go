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
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// warmConcurrency is the number of parallel embedding calls during warm-up.
const warmConcurrency = 10

// Neighbor is one example retrieved by similarity search.
type Neighbor struct {
	Label Label
	Text  string
	Score float64 // cosine similarity in [0,1]
}

// VectorStore answers nearest-neighbor queries over the example corpus.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use after warm-up.
type VectorStore interface {
	// Search returns up to topK neighbors of queryVec, best first. A nil
	// result with nil error signals the store is unavailable and the caller
	// should degrade to the next classification tier.
	Search(ctx context.Context, queryVec []float32, topK int) ([]Neighbor, error)
}

// =============================================================================
// MemoryStore
// =============================================================================

// storedExample is one warmed corpus entry.
type storedExample struct {
	label Label
	text  string
	vec   []float32 // unit-normalized
}

// MemoryStore holds the embedded example corpus in RAM and scans it linearly.
//
// # Description
//
// The corpus is tens of examples, so a brute-force dot-product scan beats any
// index. Vectors are unit-normalized at warm-up; cosine similarity is then a
// plain dot product.
//
// Warm-up checks the BadgerDB cache first (keyed by corpus hash) and only
// calls the embedder on a miss. If the embedder is unreachable the store
// stays unwarmed and Search returns (nil, nil) so the classifier degrades to
// its language-model tier.
//
// # Thread Safety
//
// Safe for concurrent use after Warm() completes.
type MemoryStore struct {
	mu       sync.RWMutex
	examples []storedExample
	warmed   bool

	embedder Embedder
	cache    EmbeddingCacheStore // nil = in-memory-only
	logger   *slog.Logger
}

// NewMemoryStore creates an unwarmed store. cache may be nil to disable
// persistence (correct for tests).
func NewMemoryStore(embedder Embedder, cache EmbeddingCacheStore, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{embedder: embedder, cache: cache, logger: logger}
}

// Warm embeds every corpus example, loading from the persistent cache when
// the corpus hash matches.
//
// # Description
//
// Embedding calls run in parallel (up to warmConcurrency). A single example
// failing to embed is logged and skipped; it simply never matches. If every
// example fails, the store stays unwarmed and Search degrades gracefully.
//
// Not safe to call concurrently. Call once at service startup.
func (s *MemoryStore) Warm(ctx context.Context, examples []Example) error {
	if len(examples) == 0 {
		return nil
	}

	labelOf := make(map[string]Label, len(examples))
	for _, ex := range examples {
		labelOf[ex.Text] = ex.Label
	}

	corpusHash := computeCorpusHash(examples, s.embedder.Model())
	if s.cache != nil {
		cached, err := s.cache.LoadEmbeddings(ctx, corpusHash)
		if err != nil {
			s.logger.Warn("intent store: cache load failed, continuing with embed warm-up",
				slog.String("error", err.Error()),
			)
		} else if len(cached) > 0 {
			s.install(cached, labelOf)
			s.logger.Info("intent store: loaded corpus vectors from cache",
				slog.Int("example_count", len(cached)),
				slog.String("corpus_hash", shortHash(corpusHash)),
			)
			return nil
		}
	}

	s.logger.Info("intent store: starting embed warm-up",
		slog.Int("example_count", len(examples)),
		slog.String("model", s.embedder.Model()),
	)

	type result struct {
		text string
		vec  []float32
	}

	resultCh := make(chan result, len(examples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)

	for _, ex := range examples {
		ex := ex
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, ex.Text)
			if err != nil {
				s.logger.Warn("intent store: failed to embed example",
					slog.String("text", ex.Text),
					slog.String("error", err.Error()),
				)
				// Individual failure is not fatal.
				return nil
			}
			resultCh <- result{text: ex.Text, vec: vec}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("intent store warm-up: %w", err)
	}
	close(resultCh)

	vectors := make(map[string][]float32, len(examples))
	for r := range resultCh {
		if unit := unitNormalize(r.vec); unit != nil {
			vectors[r.text] = unit
		}
	}
	s.install(vectors, labelOf)

	s.logger.Info("intent store: warm-up complete",
		slog.Int("embedded_examples", len(vectors)),
		slog.Int("requested_examples", len(examples)),
	)

	// Persistence failure is non-fatal: vectors are already in RAM.
	if len(vectors) > 0 && s.cache != nil {
		if err := s.cache.SaveEmbeddings(ctx, corpusHash, vectors); err != nil {
			s.logger.Warn("intent store: failed to persist corpus vectors",
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// install swaps in the warmed corpus under lock.
func (s *MemoryStore) install(vectors map[string][]float32, labelOf map[string]Label) {
	stored := make([]storedExample, 0, len(vectors))
	for text, vec := range vectors {
		label, ok := labelOf[text]
		if !ok {
			continue
		}
		stored = append(stored, storedExample{label: label, text: text, vec: vec})
	}
	// Deterministic scan order.
	sort.Slice(stored, func(i, j int) bool { return stored[i].text < stored[j].text })

	s.mu.Lock()
	s.examples = stored
	s.warmed = len(stored) > 0
	s.mu.Unlock()
}

// Vectors returns a copy of the warmed corpus vectors keyed by example text,
// for seeding an external vector store. Empty before Warm.
func (s *MemoryStore) Vectors() map[string][]float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]float32, len(s.examples))
	for _, ex := range s.examples {
		out[ex.text] = ex.vec
	}
	return out
}

// IsWarmed reports whether the corpus has been embedded.
func (s *MemoryStore) IsWarmed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warmed
}

// Search scans the corpus and returns the topK most similar examples.
// Returns (nil, nil) when the store was never warmed.
func (s *MemoryStore) Search(ctx context.Context, queryVec []float32, topK int) ([]Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.warmed {
		return nil, nil
	}

	out := make([]Neighbor, 0, len(s.examples))
	for _, ex := range s.examples {
		sim := float64(dotProduct(queryVec, ex.vec))
		if sim <= 0 {
			continue
		}
		out = append(out, Neighbor{Label: ex.label, Text: ex.text, Score: sim})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
