// Package watcher turns filesystem notifications into index events. It is a
// scan-trigger mechanism, not a full filesystem mirror: fine-grained file
// events feed the indexer queue directly, and anything coarser (directory
// churn, event overflow) falls back to triggering an incremental scan.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/glancesearch/glance/internal/exclude"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one debounced filesystem event.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Sink receives the watcher's output. The indexer service implements it.
type Sink interface {
	NotifyCreated(path string)
	NotifyModified(path string)
	NotifyRemoved(path string)
	TriggerIncrementalScan()
}

// Options configures the watcher.
type Options struct {
	// DebounceWindow is how long to coalesce rapid events before emitting.
	// Default: 200ms.
	DebounceWindow time.Duration
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow == 0 {
		o.DebounceWindow = 200 * time.Millisecond
	}
	return o
}

// Watcher watches a directory tree and forwards debounced events to a Sink.
type Watcher struct {
	root     string
	policy   *exclude.Policy
	sink     Sink
	opts     Options
	debounce *Debouncer

	mu       sync.Mutex
	fw       *fsnotify.Watcher
	watched  map[string]struct{}
	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a Watcher for root. Events under excluded directories are
// never emitted.
func New(root string, policy *exclude.Policy, sink Sink, opts Options) *Watcher {
	if policy == nil {
		policy = exclude.New()
	}
	return &Watcher{
		root:    root,
		policy:  policy,
		sink:    sink,
		opts:    opts.WithDefaults(),
		watched: make(map[string]struct{}),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins watching. It registers the root and every non-excluded
// subdirectory, then forwards debounced events until Stop is called or the
// context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fw = fw
	w.debounce = NewDebouncer(w.opts.DebounceWindow)
	w.started = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		_ = fw.Close()
		return err
	}

	go w.loop(ctx)
	go w.deliver(ctx)
	return nil
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		fw := w.fw
		w.mu.Unlock()
		if fw != nil {
			_ = fw.Close()
		}
		if w.debounce != nil {
			w.debounce.Stop()
		}
	})
}

// addRecursive registers dir and all non-excluded subdirectories.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, skip
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.policy.IsExcludedDir(path) {
			return filepath.SkipDir
		}
		if addErr := w.fw.Add(path); addErr != nil {
			slog.Debug("watch_add_failed", slog.String("path", path), slog.String("error", addErr.Error()))
			return nil
		}
		w.mu.Lock()
		w.watched[path] = struct{}{}
		w.mu.Unlock()
		return nil
	})
}

// loop reads raw fsnotify events and feeds the debouncer.
func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handleRaw(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			// Kernel-side overflow or similar; the incremental scan
			// catches whatever was missed.
			slog.Warn("watcher_error", slog.String("error", err.Error()))
			w.sink.TriggerIncrementalScan()
		}
	}
}

// handleRaw maps one fsnotify event onto debounced file events or, for
// directory-level changes, an incremental scan trigger.
func (w *Watcher) handleRaw(ev fsnotify.Event) {
	path := ev.Name
	if w.policy.IsExcluded(path) {
		return
	}
	now := time.Now()

	switch {
	case ev.Op.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err != nil {
			return // vanished already
		}
		if info.IsDir() {
			// New subtree: watch it and let a scan pick up its contents.
			if err := w.addRecursive(path); err != nil {
				slog.Debug("watch_add_failed", slog.String("path", path), slog.String("error", err.Error()))
			}
			w.sink.TriggerIncrementalScan()
			return
		}
		w.debounce.Add(FileEvent{Path: path, Operation: OpCreate, Timestamp: now})

	case ev.Op.Has(fsnotify.Write):
		w.debounce.Add(FileEvent{Path: path, Operation: OpModify, Timestamp: now})

	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.mu.Lock()
		_, wasDir := w.watched[path]
		if wasDir {
			delete(w.watched, path)
		}
		w.mu.Unlock()
		if wasDir {
			// A whole directory went away; its descendants need a scan
			// pass, not a per-file delete.
			w.sink.TriggerIncrementalScan()
			return
		}
		w.debounce.Add(FileEvent{Path: path, Operation: OpDelete, Timestamp: now})
	}
}

// deliver consumes debounced batches and forwards them to the sink.
func (w *Watcher) deliver(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debounce.Output():
			if !ok {
				return
			}
			for _, ev := range batch {
				switch ev.Operation {
				case OpCreate:
					w.sink.NotifyCreated(ev.Path)
				case OpModify:
					w.sink.NotifyModified(ev.Path)
				case OpDelete:
					w.sink.NotifyRemoved(ev.Path)
				}
			}
		}
	}
}
