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

// =============================================================================
// EmbeddingCacheStore — Example Vector Persistence
// =============================================================================
//
// Example embeddings are expensive to compute (one Ollama call per example)
// but change only when the example corpus or embedding model changes. This
// store persists them in BadgerDB between service restarts.
//
// The corpus hash (SHA256 of sorted label/text pairs plus the model name) is
// the cache key: any edit to the corpus or a model switch produces a different
// hash, so stale vectors become unreachable and expire via TTL. No explicit
// invalidation API is needed.
//
// Storage layout:
//
//	intent/emb/v1/{corpusHash}  →  gob-encoded map[string][]float32
//	                               (example text → unit-normalized vector)
//	                               TTL: 7 days

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	badgerstore "github.com/mkatragadda/Vitta-sub002/services/cardquery/storage/badger"
)

// embeddingCacheDefaultTTL is the lifetime of a cached corpus entry. 7 days
// survives weekends and short deployments without hoarding stale data.
const embeddingCacheDefaultTTL = 7 * 24 * time.Hour

// embeddingCacheKeyPrefix is prepended to the corpus hash. Versioned (v1) to
// allow future format changes without collision.
const embeddingCacheKeyPrefix = "intent/emb/v1/"

// errCacheMiss distinguishes "key not found" from a genuine storage error.
var errCacheMiss = errors.New("cache miss")

// EmbeddingCacheStore persists example embedding vectors across restarts.
//
// Both methods are nil-safe at the call sites: MemoryStore checks for a nil
// store and skips persistence, operating in in-memory-only mode. Correct for
// tests and deployments without a cache directory configured.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type EmbeddingCacheStore interface {
	// LoadEmbeddings retrieves cached unit-normalized example vectors for the
	// given corpus hash. Returns (nil, nil) on cache miss.
	LoadEmbeddings(ctx context.Context, corpusHash string) (map[string][]float32, error)

	// SaveEmbeddings persists unit-normalized example vectors under the given
	// corpus hash with a TTL. Failure is non-fatal to callers: vectors are
	// already in RAM and will be recomputed on the next restart.
	SaveEmbeddings(ctx context.Context, corpusHash string, vectors map[string][]float32) error
}

// BadgerEmbeddingCache implements EmbeddingCacheStore on BadgerDB.
//
// Vectors are gob-encoded as map[string][]float32 keyed by example text.
// TTL is enforced by BadgerDB's native GC; expired keys read as a miss.
//
// # Thread Safety
//
// Safe for concurrent use.
type BadgerEmbeddingCache struct {
	db     *badgerstore.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadgerEmbeddingCache creates a cache backed by the given DB. The caller
// owns the DB lifecycle. ttl <= 0 selects the 7-day default.
func NewBadgerEmbeddingCache(db *badgerstore.DB, ttl time.Duration, logger *slog.Logger) *BadgerEmbeddingCache {
	if db == nil {
		panic("NewBadgerEmbeddingCache: db must not be nil")
	}
	if ttl <= 0 {
		ttl = embeddingCacheDefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerEmbeddingCache{db: db, ttl: ttl, logger: logger}
}

// LoadEmbeddings retrieves the cached corpus vectors, or (nil, nil) on miss.
func (s *BadgerEmbeddingCache) LoadEmbeddings(ctx context.Context, corpusHash string) (map[string][]float32, error) {
	key := []byte(embeddingCacheKeyPrefix + corpusHash)

	var raw []byte
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})

	if errors.Is(err, errCacheMiss) {
		s.logger.Debug("embedding cache: miss", slog.String("hash", shortHash(corpusHash)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embedding cache load: %w", err)
	}

	var vectors map[string][]float32
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("embedding cache decode: %w", err)
	}

	s.logger.Debug("embedding cache: hit",
		slog.String("hash", shortHash(corpusHash)),
		slog.Int("example_count", len(vectors)),
	)
	return vectors, nil
}

// SaveEmbeddings persists the corpus vectors with the configured TTL.
func (s *BadgerEmbeddingCache) SaveEmbeddings(ctx context.Context, corpusHash string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vectors); err != nil {
		return fmt.Errorf("embedding cache encode: %w", err)
	}

	key := []byte(embeddingCacheKeyPrefix + corpusHash)
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		entry := dgbadger.NewEntry(key, buf.Bytes()).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("embedding cache save: %w", err)
	}

	s.logger.Debug("embedding cache: saved",
		slog.String("hash", shortHash(corpusHash)),
		slog.Int("example_count", len(vectors)),
		slog.Duration("ttl", s.ttl),
	)
	return nil
}

// =============================================================================
// Corpus Hash
// =============================================================================

// computeCorpusHash hashes every label/text pair plus the embedding model
// name. Examples are sorted for determinism regardless of YAML ordering.
func computeCorpusHash(examples []Example, model string) string {
	sorted := make([]Example, len(examples))
	copy(sorted, examples)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Label != sorted[j].Label {
			return sorted[i].Label < sorted[j].Label
		}
		return sorted[i].Text < sorted[j].Text
	})

	h := sha256.New()
	for _, ex := range sorted {
		fmt.Fprintf(h, "%s\t%s\n", ex.Label, ex.Text)
	}
	fmt.Fprintf(h, "model=%s\n", model)

	return hex.EncodeToString(h.Sum(nil))
}

// shortHash returns the first 8 characters of a hash for log display.
func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8] + "..."
	}
	return h
}
