// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package synonyms

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// Override Hot Reload
// =============================================================================

// WatchOverrides merges an on-disk YAML override file into the synonym
// tables and keeps watching it for changes until ctx is cancelled.
//
// # Description
//
// The override file uses the same shape as synonyms.yaml; its phrases are
// appended to the embedded defaults, so operators can teach the mapper new
// phrasings without a redeploy. Each successful parse swaps the whole
// compiled table set atomically; a malformed edit is logged and skipped,
// leaving the previous tables in place.
//
// A missing file is not an error — the watcher waits for it to appear.
//
// # Thread Safety
//
// Safe to call once per Mapper. Lookups remain lock-free during reloads.
func (m *Mapper) WatchOverrides(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("override path must not be empty")
	}

	if err := m.loadOverride(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating synonyms watcher: %w", err)
	}

	// Watch the directory, not the file: editors replace files on save and
	// a file-level watch would go stale after the first rename.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := m.loadOverride(path); err != nil {
					m.logger.Warn("synonyms: override reload failed, keeping previous tables",
						slog.String("path", path),
						slog.String("error", err.Error()),
					)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Warn("synonyms: watcher error",
					slog.String("error", err.Error()),
				)
			}
		}
	}()

	return nil
}

// loadOverride reads the override file and swaps in freshly compiled tables.
func (m *Mapper) loadOverride(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ts, err := compileTables(defaultSynonymsYAML, data)
	if err != nil {
		return err
	}
	m.tables.Store(ts)
	m.logger.Info("synonyms: override tables loaded",
		slog.String("path", path),
	)
	return nil
}
