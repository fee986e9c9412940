package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// maxSearchResults is the hard cap on results per query, regardless of the
// limit a caller requests.
const maxSearchResults = 256

// Store is the durable file index. All access goes through a single
// long-lived connection guarded by a mutex; each method holds the lock only
// for the duration of one transaction, so long scans never starve readers
// for more than a single batch commit.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// validateIntegrity checks a SQLite index file before opening it for real.
// Returns nil if the file is absent or healthy, an error describing the
// corruption otherwise.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// Open opens (or creates) the index at path and applies the schema.
// An empty path opens an in-memory index for testing. A corrupt index file
// is cleared and recreated; the caller is expected to trigger a full scan
// afterwards anyway, so nothing is lost beyond the rebuild cost.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory %s: %w", dir, err)
		}

		if validErr := validateIntegrity(path); validErr != nil {
			slog.Warn("index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, full rescan required"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer connection to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite; DSN params
	// may be ignored.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -32768",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema idempotently creates the entries table, the FTS5 text index,
// the triggers that keep the two transactionally consistent, and the scan
// history log.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS files (
		path             TEXT PRIMARY KEY,
		parent_path      TEXT NOT NULL,
		name             TEXT NOT NULL,
		last_modified_at INTEGER NOT NULL,
		size             INTEGER NOT NULL,
		file_type        TEXT NOT NULL,
		relevancy_score  REAL NOT NULL DEFAULT 1.0
	);

	CREATE INDEX IF NOT EXISTS idx_files_parent ON files(parent_path);

	-- External-content FTS5 table over name. The triggers below fire inside
	-- the same transaction as the row mutation, so the text index is never
	-- observably out of sync with the files table.
	CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
		name,
		content='files',
		content_rowid='rowid',
		tokenize='unicode61'
	);

	CREATE TRIGGER IF NOT EXISTS files_ai AFTER INSERT ON files BEGIN
		INSERT INTO files_fts(rowid, name) VALUES (new.rowid, new.name);
	END;
	CREATE TRIGGER IF NOT EXISTS files_ad AFTER DELETE ON files BEGIN
		INSERT INTO files_fts(files_fts, rowid, name) VALUES ('delete', old.rowid, old.name);
	END;
	CREATE TRIGGER IF NOT EXISTS files_au AFTER UPDATE ON files BEGIN
		INSERT INTO files_fts(files_fts, rowid, name) VALUES ('delete', old.rowid, old.name);
		INSERT INTO files_fts(rowid, name) VALUES (new.rowid, new.name);
	END;

	CREATE TABLE IF NOT EXISTS scan_history (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		status             TEXT NOT NULL,
		scan_type          TEXT NOT NULL,
		entrypoint         TEXT NOT NULL,
		created_at         INTEGER NOT NULL,
		indexed_file_count INTEGER NOT NULL DEFAULT 0,
		duration_ms        INTEGER NOT NULL DEFAULT 0,
		error              TEXT NOT NULL DEFAULT ''
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// upsertSQL inserts or updates one entry by path. The WHERE clause makes
// re-upserting an unchanged entry a true no-op: no row version churn, no
// trigger fire, no FTS rewrite. A stored relevancy score survives updates.
const upsertSQL = `
INSERT INTO files (path, parent_path, name, last_modified_at, size, file_type, relevancy_score)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
	parent_path      = excluded.parent_path,
	name             = excluded.name,
	last_modified_at = excluded.last_modified_at,
	size             = excluded.size,
	file_type        = excluded.file_type
WHERE files.last_modified_at != excluded.last_modified_at
   OR files.size != excluded.size
   OR files.name != excluded.name
   OR files.file_type != excluded.file_type`

// Upsert inserts or replaces a single entry by path.
func (s *Store) Upsert(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	score := e.RelevancyScore
	if score == 0 {
		score = 1.0
	}
	_, err := s.db.ExecContext(ctx, upsertSQL,
		e.Path, e.ParentPath, e.Name, e.LastModifiedAt, e.Size, e.FileType, score)
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", e.Path, err)
	}
	return nil
}

// BatchUpsert applies the same semantics as repeated Upsert calls, committed
// as a single transaction. Either the whole batch lands (entries table and
// text index together) or none of it does.
func (s *Store) BatchUpsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		score := e.RelevancyScore
		if score == 0 {
			score = 1.0
		}
		if _, err := stmt.ExecContext(ctx,
			e.Path, e.ParentPath, e.Name, e.LastModifiedAt, e.Size, e.FileType, score); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", e.Path, err)
		}
	}

	return tx.Commit()
}

// DeleteByPath removes one entry; the delete trigger keeps the text index in
// sync. Deleting a missing path is a no-op.
func (s *Store) DeleteByPath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// DeleteByPathPrefix removes every entry at or under prefix.
func (s *Store) DeleteByPathPrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	pattern := likeEscape(strings.TrimSuffix(prefix, "/")) + "/%"
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM files WHERE path = ? OR path LIKE ? ESCAPE '\'`, prefix, pattern)
	if err != nil {
		return fmt.Errorf("failed to delete under %s: %w", prefix, err)
	}
	return nil
}

// ModTimesUnder returns path -> last_modified_at for every entry at or under
// root. The incremental scanner uses this single read to drive both its
// deletion-detection and change-detection passes.
func (s *Store) ModTimesUnder(ctx context.Context, root string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	pattern := likeEscape(strings.TrimSuffix(root, "/")) + "/%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, last_modified_at FROM files WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		root, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries under %s: %w", root, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var path string
		var mtime int64
		if err := rows.Scan(&path, &mtime); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out[path] = mtime
	}
	return out, rows.Err()
}

// Count returns the total number of indexed entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

// Search runs a ranked prefix query over indexed names. Each whitespace
// separated term matches as a prefix and all terms are ANDed. Results are
// ordered by -bm25 (text relevance, higher is better) plus the stored
// relevancy score, descending, with rowid as the tiebreak. A query the FTS
// layer rejects yields an empty result rather than an error.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]ScoredEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	match := buildMatchQuery(query)
	if match == "" {
		return []ScoredEntry{}, nil
	}

	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}

	// FTS5 bm25() is negative where lower = better, so -bm25 is a positive
	// "higher is better" text score; the stored relevancy score is a
	// secondary additive boost.
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.path, f.parent_path, f.name, f.last_modified_at, f.size,
		       f.file_type, f.relevancy_score,
		       (-bm25(files_fts) + f.relevancy_score) AS score
		FROM files_fts
		JOIN files f ON f.rowid = files_fts.rowid
		WHERE files_fts MATCH ?
		ORDER BY score DESC, f.rowid ASC
		LIMIT ?`, match, limit)
	if err != nil {
		// FTS5 reports malformed match expressions as query errors;
		// treat those as no results.
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return []ScoredEntry{}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var results []ScoredEntry
	for rows.Next() {
		var se ScoredEntry
		if err := rows.Scan(&se.Path, &se.ParentPath, &se.Name, &se.LastModifiedAt,
			&se.Size, &se.FileType, &se.RelevancyScore, &se.Score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, se)
	}
	return results, rows.Err()
}

// buildMatchQuery turns a free-form query into an FTS5 match expression:
// each whitespace-separated term becomes a quoted prefix term, ANDed.
// Returns "" when the query has no usable terms.
func buildMatchQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		// Double quotes are the only character with meaning inside an
		// FTS5 string literal.
		t = strings.ReplaceAll(t, `"`, `""`)
		parts = append(parts, `"`+t+`"*`)
	}
	return strings.Join(parts, " ")
}

// CreateScanRecord appends a scan_history row in the running state and
// returns its id.
func (s *Store) CreateScanRecord(ctx context.Context, entrypoint string, scanType ScanType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_history (status, scan_type, entrypoint, created_at)
		VALUES (?, ?, ?, ?)`,
		string(ScanStatusRunning), string(scanType), entrypoint, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to create scan record: %w", err)
	}
	return res.LastInsertId()
}

// FinalizeScanRecord sets the terminal status of a scan record. Called
// exactly once per record.
func (s *Store) FinalizeScanRecord(ctx context.Context, id int64, status ScanStatus, fileCount int, durationMS int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE scan_history
		SET status = ?, indexed_file_count = ?, duration_ms = ?, error = ?
		WHERE id = ?`,
		string(status), fileCount, durationMS, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to finalize scan record %d: %w", id, err)
	}
	return nil
}

// LastScan returns the most recent finalized scan record, or nil if no scan
// has completed yet.
func (s *Store) LastScan(ctx context.Context) (*ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, scan_type, entrypoint, created_at, indexed_file_count, duration_ms, error
		FROM scan_history
		WHERE status != ?
		ORDER BY id DESC
		LIMIT 1`, string(ScanStatusRunning))

	var rec ScanRecord
	var status, scanType string
	err := row.Scan(&rec.ID, &status, &scanType, &rec.Entrypoint, &rec.CreatedAt,
		&rec.IndexedFileCount, &rec.DurationMS, &rec.Error)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last scan: %w", err)
	}
	rec.Status = ScanStatus(status)
	rec.Type = ScanType(scanType)
	return &rec, nil
}

// Path returns the on-disk location of the index, empty for in-memory.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the index. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

// likeEscape escapes LIKE metacharacters so a path prefix matches literally.
func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
