// Package indexer provides the process-wide file indexing service: a
// persistent index store, a single background worker consuming a FIFO of
// scan and update events, and a ranked search path callable concurrently
// with the worker. The service object is constructed once by the
// application's composition root and passed by reference to consumers.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/glancesearch/glance/internal/exclude"
	"github.com/glancesearch/glance/internal/scanner"
	"github.com/glancesearch/glance/internal/store"
)

const (
	// idleTimeout bounds how long the worker blocks on an empty queue
	// before re-checking for shutdown.
	idleTimeout = 500 * time.Millisecond

	// searchCacheSize bounds the query result cache.
	searchCacheSize = 128

	// defaultSearchLimit applies when a caller passes limit <= 0.
	defaultSearchLimit = 50
)

// FileResult is one ranked search hit, as exposed to external callers.
type FileResult = store.ScoredEntry

// ScanInfo summarizes the most recent completed scan.
type ScanInfo struct {
	Time       time.Time `json:"time"`
	DurationMS int64     `json:"duration_ms"`
	FileCount  int       `json:"file_count"`
}

// Config configures the indexing service.
type Config struct {
	// Root is the directory tree to index.
	Root string

	// IndexPath is the on-disk index location. Empty means in-memory,
	// used by tests.
	IndexPath string

	// Scanner tunes batch size and the minimum file size threshold.
	Scanner scanner.Config

	// StopTimeout bounds how long Stop waits for the worker to drain.
	StopTimeout time.Duration
}

// Service is the indexer facade. Exactly one worker goroutine performs all
// writes; any number of caller threads may search and query status
// concurrently with it.
type Service struct {
	cfg    Config
	policy *exclude.Policy

	store *store.Store
	scan  *scanner.Scanner
	queue *eventQueue
	lock  *flock.Flock
	cache *lru.Cache[string, []FileResult]

	// generation counts completed writes; it keys the search cache so
	// results from before a write can never be served after it.
	generation atomic.Uint64

	mu           sync.Mutex
	running      bool
	ready        bool
	fileCount    int
	lastScanTime time.Time
	lastScanDur  time.Duration
	stopCh       chan struct{}
	doneCh       chan struct{}
}

// New creates a Service. No resources are opened until Start.
func New(cfg Config, policy *exclude.Policy) *Service {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	if policy == nil {
		policy = exclude.New()
	}
	// lru.New only fails on a non-positive size.
	cache, _ := lru.New[string, []FileResult](searchCacheSize)
	return &Service{
		cfg:    cfg,
		policy: policy,
		cache:  cache,
	}
}

// Start opens the index store, spawns the background worker, and enqueues an
// initial full scan. Calling Start while running is a no-op.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	st, err := store.Open(s.cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("failed to open index store: %w", err)
	}

	// One indexer per index file, across processes.
	if s.cfg.IndexPath != "" {
		lock := flock.New(s.cfg.IndexPath + ".lock")
		acquired, lockErr := lock.TryLock()
		if lockErr != nil {
			_ = st.Close()
			return fmt.Errorf("failed to acquire index lock: %w", lockErr)
		}
		if !acquired {
			_ = st.Close()
			return fmt.Errorf("index at %s is locked by another process", s.cfg.IndexPath)
		}
		s.lock = lock
	}

	s.store = st
	s.scan = scanner.New(st, s.policy, s.cfg.Scanner)
	s.queue = newEventQueue()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running = true
	s.ready = false

	go s.worker()

	s.queue.Enqueue(Event{Type: EventFullScan, Path: s.cfg.Root, Timestamp: time.Now()})

	slog.Info("indexer_started", slog.String("root", s.cfg.Root), slog.String("index", s.cfg.IndexPath))
	return nil
}

// Stop shuts the worker down and closes the store. The join is bounded by
// StopTimeout; an in-flight batch commit still finishes, but no new events
// are dequeued. Calling Stop while stopped is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.ready = false
	close(s.stopCh)
	s.queue.Close()
	doneCh := s.doneCh
	s.mu.Unlock()

	select {
	case <-doneCh:
	case <-time.After(s.cfg.StopTimeout):
		slog.Warn("indexer_stop_timeout", slog.Duration("timeout", s.cfg.StopTimeout))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}
	if s.lock != nil {
		_ = s.lock.Unlock()
		s.lock = nil
	}
	slog.Info("indexer_stopped")
}

// SearchFiles runs a ranked prefix search over indexed names. It returns an
// empty slice before the first scan completes, for an empty query, and on
// any storage error; it never propagates an error to the caller.
func (s *Service) SearchFiles(query string, limit int) []FileResult {
	s.mu.Lock()
	ready := s.ready
	st := s.store
	s.mu.Unlock()

	if !ready || st == nil || strings.TrimSpace(query) == "" {
		return []FileResult{}
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	key := fmt.Sprintf("%d:%d:%s", s.generation.Load(), limit, query)
	if hit, ok := s.cache.Get(key); ok {
		return hit
	}

	results, err := st.Search(context.Background(), query, limit)
	if err != nil {
		slog.Warn("search_failed", slog.String("query", query), slog.String("error", err.Error()))
		return []FileResult{}
	}
	if results == nil {
		results = []FileResult{}
	}
	s.cache.Add(key, results)
	return results
}

// IsReady reports whether at least one scan has completed successfully.
func (s *Service) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// IsRunning reports whether the worker is alive.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// FileCount returns the total number of indexed files.
func (s *Service) FileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileCount
}

// LastScanInfo returns the time, duration, and file count of the most recent
// completed scan.
func (s *Service) LastScanInfo() ScanInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ScanInfo{
		Time:       s.lastScanTime,
		DurationMS: s.lastScanDur.Milliseconds(),
		FileCount:  s.fileCount,
	}
}

// ForceReindex drops readiness and enqueues a fresh full scan.
// Fire-and-forget; a no-op when the service is not running.
func (s *Service) ForceReindex() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.ready = false
	q := s.queue
	s.mu.Unlock()

	q.Enqueue(Event{Type: EventFullScan, Path: s.cfg.Root, Timestamp: time.Now()})
}

// TriggerIncrementalScan enqueues an incremental reconciliation of the root.
// Used by the watcher and the periodic rescan ticker.
func (s *Service) TriggerIncrementalScan() {
	s.enqueue(Event{Type: EventIncrementalScan, Path: s.cfg.Root, Timestamp: time.Now()})
}

// NotifyCreated enqueues indexing of a newly created file.
func (s *Service) NotifyCreated(path string) {
	s.enqueue(Event{Type: EventFileCreated, Path: path, Timestamp: time.Now()})
}

// NotifyModified enqueues re-indexing of a modified file.
func (s *Service) NotifyModified(path string) {
	s.enqueue(Event{Type: EventFileModified, Path: path, Timestamp: time.Now()})
}

// NotifyRemoved enqueues removal of a deleted file from the index.
func (s *Service) NotifyRemoved(path string) {
	s.enqueue(Event{Type: EventFileDeleted, Path: path, Timestamp: time.Now()})
}

func (s *Service) enqueue(ev Event) {
	s.mu.Lock()
	q := s.queue
	running := s.running
	s.mu.Unlock()
	if running && q != nil {
		q.Enqueue(ev)
	}
}

// worker is the single background consumer. It is the only writer to the
// store. Event failures are logged and the loop continues; nothing here is
// allowed to kill the loop short of shutdown.
func (s *Service) worker() {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		ev, ok := s.queue.Dequeue(idleTimeout)
		if !ok {
			// Idle timeout or closed queue; the running check at the
			// top of the loop decides whether to exit.
			continue
		}
		s.dispatch(ev)
	}
}

// dispatch runs one event to completion. Scans are not cancellable once
// dequeued; they run to success or failure.
func (s *Service) dispatch(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker_panic",
				slog.String("event", ev.Type.String()),
				slog.String("path", ev.Path),
				slog.Any("panic", r))
		}
	}()

	ctx := context.Background()

	switch ev.Type {
	case EventFullScan:
		s.runFullScan(ctx, ev.Path)
	case EventIncrementalScan:
		s.runIncrementalScan(ctx, ev.Path)
	case EventFileCreated, EventFileModified:
		if err := s.scan.IndexOne(ctx, ev.Path); err != nil {
			slog.Warn("index_one_failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
			return
		}
		s.refreshCount(ctx)
		s.generation.Add(1)
	case EventFileDeleted:
		if err := s.scan.RemoveOne(ctx, ev.Path); err != nil {
			slog.Warn("remove_one_failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
			return
		}
		s.refreshCount(ctx)
		s.generation.Add(1)
	default:
		slog.Warn("unknown_event", slog.Int("type", int(ev.Type)))
	}
}

func (s *Service) runFullScan(ctx context.Context, root string) {
	recID, err := s.store.CreateScanRecord(ctx, root, store.ScanTypeFull)
	if err != nil {
		slog.Error("scan_record_failed", slog.String("error", err.Error()))
	}

	start := time.Now()
	indexed, scanErr := s.scan.ScanFull(ctx, root)
	dur := time.Since(start)

	if scanErr != nil {
		s.finalizeScan(ctx, recID, store.ScanStatusFailed, indexed, dur, scanErr.Error())
		slog.Error("full_scan_failed",
			slog.String("root", root),
			slog.Int("indexed", indexed),
			slog.String("error", scanErr.Error()))
		return
	}

	s.finalizeScan(ctx, recID, store.ScanStatusSucceeded, indexed, dur, "")

	s.mu.Lock()
	s.ready = true
	s.fileCount = indexed
	s.lastScanTime = start
	s.lastScanDur = dur
	s.mu.Unlock()
	s.generation.Add(1)

	slog.Info("full_scan_complete",
		slog.String("root", root),
		slog.Int("indexed", indexed),
		slog.Duration("duration", dur))
}

func (s *Service) runIncrementalScan(ctx context.Context, root string) {
	recID, err := s.store.CreateScanRecord(ctx, root, store.ScanTypeIncremental)
	if err != nil {
		slog.Error("scan_record_failed", slog.String("error", err.Error()))
	}

	start := time.Now()
	updated, deleted, scanErr := s.scan.ScanIncremental(ctx, root)
	dur := time.Since(start)

	if scanErr != nil {
		s.finalizeScan(ctx, recID, store.ScanStatusFailed, updated, dur, scanErr.Error())
		slog.Error("incremental_scan_failed",
			slog.String("root", root),
			slog.String("error", scanErr.Error()))
		return
	}

	// The record carries the update count; deletions are logged only.
	s.finalizeScan(ctx, recID, store.ScanStatusSucceeded, updated, dur, "")

	s.refreshCount(ctx)
	s.mu.Lock()
	s.lastScanTime = start
	s.lastScanDur = dur
	s.mu.Unlock()
	if updated > 0 || deleted > 0 {
		s.generation.Add(1)
	}

	slog.Info("incremental_scan_complete",
		slog.String("root", root),
		slog.Int("updated", updated),
		slog.Int("deleted", deleted),
		slog.Duration("duration", dur))
}

func (s *Service) finalizeScan(ctx context.Context, id int64, status store.ScanStatus, count int, dur time.Duration, errMsg string) {
	if id == 0 {
		return
	}
	if err := s.store.FinalizeScanRecord(ctx, id, status, count, dur.Milliseconds(), errMsg); err != nil {
		slog.Error("scan_finalize_failed", slog.Int64("id", id), slog.String("error", err.Error()))
	}
}

func (s *Service) refreshCount(ctx context.Context) {
	n, err := s.store.Count(ctx)
	if err != nil {
		slog.Warn("count_failed", slog.String("error", err.Error()))
		return
	}
	s.mu.Lock()
	s.fileCount = n
	s.mu.Unlock()
}
