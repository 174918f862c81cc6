// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger wraps a BadgerDB instance behind context-aware transaction
// helpers. Embedding caches and the learned-pattern store both persist here:
// embedded key-value storage needs no network hop and survives restarts.
package badger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// gcInterval is how often the background value-log GC runs.
const gcInterval = 10 * time.Minute

// gcDiscardRatio passed to BadgerDB's RunValueLogGC. 0.5 rewrites a log file
// when at least half of it is stale.
const gcDiscardRatio = 0.5

// DB owns a BadgerDB handle plus a background GC goroutine.
//
// # Thread Safety
//
// Safe for concurrent use. BadgerDB transactions are per-goroutine.
type DB struct {
	db     *dgbadger.DB
	logger *slog.Logger
	stopGC chan struct{}
}

// Open opens (or creates) a BadgerDB at path and starts the GC loop.
//
// # Inputs
//
//   - path: Directory for the database files. Created if absent.
//   - logger: Logger for GC diagnostics. May be nil.
//
// # Outputs
//
//   - *DB: Opened database. Caller must Close it.
//   - error: Non-nil if BadgerDB fails to open (bad path, lock held).
func Open(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := dgbadger.DefaultOptions(path)
	opts.Logger = nil // BadgerDB's own logger is too chatty; we log GC ourselves

	handle, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open %s: %w", path, err)
	}

	d := &DB{db: handle, logger: logger, stopGC: make(chan struct{})}
	go d.gcLoop()
	return d, nil
}

// Close stops the GC loop and closes the underlying database.
func (d *DB) Close() error {
	close(d.stopGC)
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("badger close: %w", err)
	}
	return nil
}

// WithTxn runs fn inside a read-write transaction. The context is checked
// before the transaction starts; BadgerDB transactions themselves are not
// cancellable mid-flight.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(fn)
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(fn)
}

// gcLoop periodically reclaims value-log space. RunValueLogGC returns
// ErrNoRewrite when there is nothing to collect, which is normal.
func (d *DB) gcLoop() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			if err := d.db.RunValueLogGC(gcDiscardRatio); err != nil && err != dgbadger.ErrNoRewrite {
				d.logger.Warn("badger GC failed", slog.String("error", err.Error()))
			}
		}
	}
}
