// Package scanner walks directory trees and reconciles the file index
// against the filesystem. It supports a full rebuild under a root, an
// incremental pass that only applies changes detected via modification
// times, and single-file operations driven by watcher events.
package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glancesearch/glance/internal/exclude"
	"github.com/glancesearch/glance/internal/filetype"
	"github.com/glancesearch/glance/internal/store"
)

const (
	// DefaultBatchSize is the number of entries committed per transaction.
	DefaultBatchSize = 1000

	// DefaultMinFileSize is the smallest file worth indexing, in bytes.
	DefaultMinFileSize = 100

	// batchYield is how long the scanner pauses between batch commits so a
	// long scan only delays readers by the duration of one commit.
	batchYield = 2 * time.Millisecond
)

// Config tunes scanner behavior.
type Config struct {
	// MinFileSize is the minimum file size in bytes (0 = default).
	MinFileSize int64

	// BatchSize is the number of entries per committed batch (0 = default).
	BatchSize int
}

// Scanner applies the exclusion policy while walking trees and writes
// resulting entries to the store. It holds no state across invocations;
// batch buffers are local to each call.
type Scanner struct {
	store   *store.Store
	policy  *exclude.Policy
	minSize int64
	batch   int
}

// New creates a Scanner writing to st under policy.
func New(st *store.Store, policy *exclude.Policy, cfg Config) *Scanner {
	minSize := cfg.MinFileSize
	if minSize <= 0 {
		minSize = DefaultMinFileSize
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Scanner{
		store:   st,
		policy:  policy,
		minSize: minSize,
		batch:   batch,
	}
}

// ScanFull rebuilds the index under root: existing entries under root are
// deleted first so stale paths cannot linger, then the tree is re-walked and
// re-indexed in batches. Returns the number of files indexed.
func (s *Scanner) ScanFull(ctx context.Context, root string) (int, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return 0, err
	}
	if info, err := os.Stat(absRoot); err != nil {
		return 0, err
	} else if !info.IsDir() {
		return 0, &fs.PathError{Op: "scan", Path: absRoot, Err: fs.ErrInvalid}
	}

	// Clean slate under the root. Files removed or renamed while we were
	// not watching would otherwise survive as ghosts.
	if err := s.store.DeleteByPathPrefix(ctx, absRoot); err != nil {
		return 0, err
	}

	indexed := 0
	batch := make([]store.Entry, 0, s.batch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.store.BatchUpsert(ctx, batch); err != nil {
			return err
		}
		indexed += len(batch)
		batch = batch[:0]
		time.Sleep(batchYield)
		return nil
	}

	err = s.walk(ctx, absRoot, func(path string, info fs.FileInfo) error {
		batch = append(batch, s.entryFor(path, info))
		if len(batch) >= s.batch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return indexed, err
	}
	if err := flush(); err != nil {
		return indexed, err
	}
	return indexed, nil
}

// ScanIncremental reconciles the index under root with the filesystem in two
// passes: first it deletes entries whose backing file is gone, then it walks
// the tree and upserts only files that are new or whose modification time
// differs from the stored one. Running it twice with no filesystem change
// performs zero writes the second time.
func (s *Scanner) ScanIncremental(ctx context.Context, root string) (updated, deleted int, err error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return 0, 0, err
	}

	known, err := s.store.ModTimesUnder(ctx, absRoot)
	if err != nil {
		return 0, 0, err
	}

	// Pass 1: deletion detection.
	for path := range known {
		if _, statErr := os.Lstat(path); os.IsNotExist(statErr) {
			if delErr := s.store.DeleteByPath(ctx, path); delErr != nil {
				slog.Warn("incremental_delete_failed",
					slog.String("path", path),
					slog.String("error", delErr.Error()))
				continue
			}
			deleted++
		}
	}

	// Pass 2: addition and modification detection. Unchanged files cost a
	// stat but produce no write.
	batch := make([]store.Entry, 0, s.batch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.store.BatchUpsert(ctx, batch); err != nil {
			return err
		}
		updated += len(batch)
		batch = batch[:0]
		time.Sleep(batchYield)
		return nil
	}

	err = s.walk(ctx, absRoot, func(path string, info fs.FileInfo) error {
		if mtime, ok := known[path]; ok && mtime == info.ModTime().Unix() {
			return nil
		}
		batch = append(batch, s.entryFor(path, info))
		if len(batch) >= s.batch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return updated, deleted, err
	}
	if err := flush(); err != nil {
		return updated, deleted, err
	}
	return updated, deleted, nil
}

// IndexOne stats and upserts a single file, used for create/modify events.
// Excluded, undersized, or unreadable paths are ignored.
func (s *Scanner) IndexOne(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if s.policy.IsExcluded(abs) {
		return nil
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			// Vanished between the event and the stat.
			return nil
		}
		return err
	}
	if info.IsDir() || info.Size() < s.minSize {
		return nil
	}
	return s.store.Upsert(ctx, s.entryFor(abs, info))
}

// RemoveOne deletes a single path from the index, used for delete events.
func (s *Scanner) RemoveOne(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return s.store.DeleteByPath(ctx, abs)
}

// walk traverses absRoot top-down, pruning excluded directories before
// descending and applying the exclusion policy and size threshold to files.
// Transient per-file errors are skipped; only context cancellation and
// callback errors abort the walk.
func (s *Scanner) walk(ctx context.Context, absRoot string, fn func(path string, info fs.FileInfo) error) error {
	return filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			slog.Debug("walk_error", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}

		if d.IsDir() {
			if path != absRoot && s.policy.IsExcludedDir(path) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are not followed; a dangling link would otherwise
		// produce a phantom entry.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if s.policy.IsExcluded(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Debug("stat_failed", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		if info.Size() < s.minSize {
			return nil
		}

		return fn(path, info)
	})
}

// entryFor builds the index row for a file.
func (s *Scanner) entryFor(path string, info fs.FileInfo) store.Entry {
	return store.Entry{
		Path:           path,
		ParentPath:     filepath.Dir(path),
		Name:           filepath.Base(path),
		LastModifiedAt: info.ModTime().Unix(),
		Size:           info.Size(),
		FileType:       filetype.Detect(path),
		RelevancyScore: 1.0,
	}
}
