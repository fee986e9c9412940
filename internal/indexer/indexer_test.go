package indexer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glancesearch/glance/internal/exclude"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", size)), 0o644))
}

func newTestService(t *testing.T, root string) *Service {
	t.Helper()
	svc := New(Config{Root: root}, exclude.New())
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)
	return svc
}

func waitReady(t *testing.T, svc *Service) {
	t.Helper()
	require.Eventually(t, svc.IsReady, 5*time.Second, 10*time.Millisecond,
		"initial full scan did not complete")
}

func TestStartScansAndServesSearch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "report.txt"), 200)
	writeFile(t, filepath.Join(root, "notes", "meeting.md"), 300)
	writeFile(t, filepath.Join(root, ".git", "config"), 500)

	svc := newTestService(t, root)

	assert.True(t, svc.IsRunning())
	waitReady(t, svc)

	assert.Equal(t, 2, svc.FileCount())

	info := svc.LastScanInfo()
	assert.False(t, info.Time.IsZero())
	assert.Equal(t, 2, info.FileCount)

	results := svc.SearchFiles("rep", 10)
	require.Len(t, results, 1)
	assert.Equal(t, "report.txt", results[0].Name)

	assert.Empty(t, svc.SearchFiles("config", 10), "excluded paths are not indexed")
}

func TestSearchBeforeReadyReturnsEmpty(t *testing.T) {
	svc := New(Config{Root: t.TempDir()}, nil)

	// Not started at all.
	assert.Empty(t, svc.SearchFiles("anything", 10))
	assert.False(t, svc.IsReady())
	assert.Zero(t, svc.FileCount())
}

func TestSearchEmptyQueryReturnsEmpty(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "file.txt"), 200)

	svc := newTestService(t, root)
	waitReady(t, svc)

	assert.Empty(t, svc.SearchFiles("", 10))
	assert.Empty(t, svc.SearchFiles("   ", 10))
}

func TestSearchReflectsFileEvents(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "base.txt"), 200)

	svc := newTestService(t, root)
	waitReady(t, svc)

	// Create.
	created := filepath.Join(root, "created.txt")
	writeFile(t, created, 200)
	svc.NotifyCreated(created)
	require.Eventually(t, func() bool {
		return len(svc.SearchFiles("created", 10)) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, svc.FileCount())

	// Delete.
	require.NoError(t, os.Remove(created))
	svc.NotifyRemoved(created)
	require.Eventually(t, func() bool {
		return len(svc.SearchFiles("created", 10)) == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, svc.FileCount())
}

func TestForceReindex(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "one.txt"), 200)

	svc := newTestService(t, root)
	waitReady(t, svc)
	require.Equal(t, 1, svc.FileCount())

	writeFile(t, filepath.Join(root, "two.txt"), 200)
	svc.ForceReindex()

	require.Eventually(t, func() bool {
		return svc.IsReady() && svc.FileCount() == 2
	}, 5*time.Second, 10*time.Millisecond)

	results := svc.SearchFiles("two", 10)
	assert.Len(t, results, 1)
}

func TestTriggerIncrementalScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "one.txt"), 200)

	svc := newTestService(t, root)
	waitReady(t, svc)

	writeFile(t, filepath.Join(root, "two.txt"), 200)
	require.NoError(t, os.Remove(filepath.Join(root, "one.txt")))
	svc.TriggerIncrementalScan()

	require.Eventually(t, func() bool {
		return len(svc.SearchFiles("two", 10)) == 1 &&
			len(svc.SearchFiles("one", 10)) == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, svc.FileCount())
}

func TestStopIsIdempotentAndStartRestarts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "file.txt"), 200)

	svc := New(Config{Root: root}, exclude.New())
	require.NoError(t, svc.Start())
	require.NoError(t, svc.Start(), "second Start is a no-op")
	waitReady(t, svc)

	svc.Stop()
	svc.Stop() // no-op

	assert.False(t, svc.IsRunning())
	assert.Empty(t, svc.SearchFiles("file", 10), "stopped service serves nothing")

	require.NoError(t, svc.Start())
	waitReady(t, svc)
	assert.Len(t, svc.SearchFiles("file", 10), 1)
	svc.Stop()
}

func TestSingleInstanceLock(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "file.txt"), 200)
	indexPath := filepath.Join(t.TempDir(), "index.db")

	first := New(Config{Root: root, IndexPath: indexPath}, exclude.New())
	require.NoError(t, first.Start())
	defer first.Stop()

	second := New(Config{Root: root, IndexPath: indexPath}, exclude.New())
	err := second.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}

func TestRankingIsStableAcrossRepeatedQueries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "alpha-report.txt"), 200)
	writeFile(t, filepath.Join(root, "beta-report.txt"), 200)
	writeFile(t, filepath.Join(root, "gamma-report.txt"), 200)

	svc := newTestService(t, root)
	waitReady(t, svc)

	first := svc.SearchFiles("report", 10)
	require.Len(t, first, 3)
	for i := 0; i < 5; i++ {
		again := svc.SearchFiles("report", 10)
		require.Equal(t, first, again, "same query over an unchanged index must return identical order")
	}
}
