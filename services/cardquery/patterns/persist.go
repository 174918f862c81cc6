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
	"encoding/json"
	"fmt"
	"log/slog"

	dgbadger "github.com/dgraph-io/badger/v4"

	badgerstore "github.com/mkatragadda/Vitta-sub002/services/cardquery/storage/badger"
)

// patternKeyPrefix namespaces pattern records. Versioned (v1) to allow
// format changes without collision.
const patternKeyPrefix = "patterns/v1/"

// BadgerPersister implements Persister on BadgerDB. Records are JSON so a
// cache dump stays human-readable; pattern counts are small, so encoding
// cost is irrelevant.
//
// # Thread Safety
//
// Safe for concurrent use.
type BadgerPersister struct {
	db     *badgerstore.DB
	logger *slog.Logger
}

// NewBadgerPersister creates a persister backed by the given DB. The caller
// owns the DB lifecycle.
func NewBadgerPersister(db *badgerstore.DB, logger *slog.Logger) *BadgerPersister {
	if db == nil {
		panic("NewBadgerPersister: db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerPersister{db: db, logger: logger}
}

// SavePattern upserts one pattern record.
func (b *BadgerPersister) SavePattern(ctx context.Context, p *QueryPattern) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("pattern encode: %w", err)
	}
	key := []byte(patternKeyPrefix + p.ID)
	err = b.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(key, raw)
	})
	if err != nil {
		return fmt.Errorf("pattern save: %w", err)
	}
	return nil
}

// DeletePattern removes an evicted pattern record.
func (b *BadgerPersister) DeletePattern(ctx context.Context, id string) error {
	key := []byte(patternKeyPrefix + id)
	err := b.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("pattern delete: %w", err)
	}
	return nil
}

// LoadAll scans the pattern prefix and decodes every record. A record that
// fails to decode is logged and skipped, never fatal — one corrupt entry
// must not block startup.
func (b *BadgerPersister) LoadAll(ctx context.Context) ([]*QueryPattern, error) {
	var out []*QueryPattern
	err := b.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.Prefix = []byte(patternKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("copy value: %w", err)
			}
			var p QueryPattern
			if err := json.Unmarshal(raw, &p); err != nil {
				b.logger.Warn("pattern load: skipping corrupt record",
					slog.String("key", string(item.Key())),
					slog.String("error", err.Error()),
				)
				continue
			}
			out = append(out, &p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pattern load: %w", err)
	}
	return out, nil
}
