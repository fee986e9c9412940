package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glancesearch/glance/internal/exclude"
	"github.com/glancesearch/glance/internal/store"
)

func newTestScanner(t *testing.T) (*Scanner, *store.Store) {
	t.Helper()
	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, exclude.New(), Config{}), st
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", size)), 0o644))
}

// Builds a tree exercising exclusion, the size threshold, and nesting:
//
//	root/
//	  report.txt          200 bytes  -> indexed
//	  tiny.txt             10 bytes  -> below threshold
//	  app.log             500 bytes  -> glob-excluded
//	  docs/guide.md       300 bytes  -> indexed
//	  .git/config          50 bytes  -> dir-excluded
//	  node_modules/x.js   400 bytes  -> dir-excluded
func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "report.txt"), 200)
	writeFile(t, filepath.Join(root, "tiny.txt"), 10)
	writeFile(t, filepath.Join(root, "app.log"), 500)
	writeFile(t, filepath.Join(root, "docs", "guide.md"), 300)
	writeFile(t, filepath.Join(root, ".git", "config"), 50)
	writeFile(t, filepath.Join(root, "node_modules", "x.js"), 400)
	return root
}

func TestScanFull(t *testing.T) {
	sc, st := newTestScanner(t)
	root := buildTree(t)
	ctx := context.Background()

	indexed, err := sc.ScanFull(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 2, indexed, "only report.txt and docs/guide.md qualify")

	results, err := st.Search(ctx, "report", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, filepath.Join(root, "report.txt"), results[0].Path)
	assert.Equal(t, "text/plain", results[0].FileType)
	assert.Equal(t, int64(200), results[0].Size)

	results, err = st.Search(ctx, "config", 10)
	require.NoError(t, err)
	assert.Empty(t, results, "excluded paths never reach the index")
}

func TestScanFullRemovesGhosts(t *testing.T) {
	sc, st := newTestScanner(t)
	root := buildTree(t)
	ctx := context.Background()

	_, err := sc.ScanFull(ctx, root)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "report.txt")))

	indexed, err := sc.ScanFull(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 1, indexed)

	results, err := st.Search(ctx, "report", 10)
	require.NoError(t, err)
	assert.Empty(t, results, "a full scan starts from a clean slate")
}

func TestScanFullErrors(t *testing.T) {
	sc, _ := newTestScanner(t)
	ctx := context.Background()

	_, err := sc.ScanFull(ctx, filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "plain.txt")
	writeFile(t, file, 200)
	_, err = sc.ScanFull(ctx, file)
	assert.Error(t, err, "root must be a directory")
}

func TestScanFullStopsOnCancel(t *testing.T) {
	sc, _ := newTestScanner(t)
	root := buildTree(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sc.ScanFull(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanIncremental(t *testing.T) {
	sc, st := newTestScanner(t)
	root := buildTree(t)
	ctx := context.Background()

	_, err := sc.ScanFull(ctx, root)
	require.NoError(t, err)

	// No changes: the second pass performs zero writes.
	updated, deleted, err := sc.ScanIncremental(ctx, root)
	require.NoError(t, err)
	assert.Zero(t, updated)
	assert.Zero(t, deleted)

	// New file, modified file, deleted file.
	writeFile(t, filepath.Join(root, "fresh.txt"), 150)
	newMtime := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(root, "report.txt"), newMtime, newMtime))
	require.NoError(t, os.Remove(filepath.Join(root, "docs", "guide.md")))

	updated, deleted, err = sc.ScanIncremental(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 2, updated, "fresh.txt added, report.txt re-indexed")
	assert.Equal(t, 1, deleted)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := st.Search(ctx, "guide", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestScanIncrementalOnEmptyIndex(t *testing.T) {
	sc, st := newTestScanner(t)
	root := buildTree(t)
	ctx := context.Background()

	// Incremental against a never-scanned root degenerates to a full pass.
	updated, deleted, err := sc.ScanIncremental(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	assert.Zero(t, deleted)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIndexOne(t *testing.T) {
	sc, st := newTestScanner(t)
	root := t.TempDir()
	ctx := context.Background()

	path := filepath.Join(root, "single.txt")
	writeFile(t, path, 150)
	require.NoError(t, sc.IndexOne(ctx, path))

	results, err := st.Search(ctx, "single", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// Excluded, undersized, vanished, and directory paths are silent no-ops.
	excluded := filepath.Join(root, ".git", "HEAD")
	writeFile(t, excluded, 150)
	require.NoError(t, sc.IndexOne(ctx, excluded))

	small := filepath.Join(root, "small.txt")
	writeFile(t, small, 10)
	require.NoError(t, sc.IndexOne(ctx, small))

	require.NoError(t, sc.IndexOne(ctx, filepath.Join(root, "ghost.txt")))
	require.NoError(t, sc.IndexOne(ctx, root))

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRemoveOne(t *testing.T) {
	sc, st := newTestScanner(t)
	root := t.TempDir()
	ctx := context.Background()

	path := filepath.Join(root, "doomed.txt")
	writeFile(t, path, 150)
	require.NoError(t, sc.IndexOne(ctx, path))
	require.NoError(t, sc.RemoveOne(ctx, path))

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, sc.RemoveOne(ctx, path), "removing twice is fine")
}

func TestWalkSkipsSymlinks(t *testing.T) {
	sc, st := newTestScanner(t)
	root := t.TempDir()
	ctx := context.Background()

	writeFile(t, filepath.Join(root, "real.txt"), 150)
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	indexed, err := sc.ScanFull(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 1, indexed)

	results, err := st.Search(ctx, "link", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMinFileSizeConfig(t *testing.T) {
	st, err := store.Open("")
	require.NoError(t, err)
	defer st.Close()

	sc := New(st, exclude.New(), Config{MinFileSize: 1})
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "tiny.txt"), 10)

	indexed, err := sc.ScanFull(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, indexed)
}
