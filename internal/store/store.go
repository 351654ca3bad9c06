package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/fileorg/organizer/internal/ferrors"
)

const schemaVersion = 1

const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	size INTEGER NOT NULL DEFAULT 0,
	mtime INTEGER NOT NULL DEFAULT 0,
	ctime INTEGER NOT NULL DEFAULT 0,
	fast_hash TEXT NOT NULL DEFAULT '',
	full_hash TEXT NOT NULL DEFAULT '',
	hash TEXT NOT NULL DEFAULT '',
	mime TEXT NOT NULL DEFAULT '',
	extension TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'new',
	first_seen INTEGER NOT NULL,
	last_seen INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_hash ON files(hash);
CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);

CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id INTEGER NOT NULL REFERENCES files(id),
	hash TEXT NOT NULL,
	start INTEGER NOT NULL,
	end_off INTEGER NOT NULL,
	text_preview TEXT NOT NULL DEFAULT '',
	UNIQUE(file_id, hash)
);
CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id);

CREATE TABLE IF NOT EXISTS metadata (
	file_id INTEGER NOT NULL REFERENCES files(id),
	key TEXT NOT NULL,
	value TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	UNIQUE(file_id, key)
);

CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS file_tags (
	file_id INTEGER NOT NULL REFERENCES files(id),
	tag_id INTEGER NOT NULL REFERENCES tags(id),
	confidence REAL NOT NULL DEFAULT 0,
	source TEXT NOT NULL DEFAULT '',
	UNIQUE(file_id, tag_id)
);
CREATE INDEX IF NOT EXISTS idx_file_tags_file ON file_tags(file_id);

CREATE TABLE IF NOT EXISTS rules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	priority INTEGER NOT NULL DEFAULT 0,
	enabled INTEGER NOT NULL DEFAULT 1,
	condition_json TEXT NOT NULL,
	action_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS actions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id INTEGER NOT NULL REFERENCES files(id),
	kind TEXT NOT NULL,
	payload_json TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'planned',
	error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	executed_at INTEGER,
	undo_token TEXT NOT NULL DEFAULT '',
	backup_path TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_actions_file ON actions(file_id);
CREATE INDEX IF NOT EXISTS idx_actions_status ON actions(status);

CREATE TABLE IF NOT EXISTS dirty (
	path TEXT PRIMARY KEY,
	reason TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	action_id INTEGER,
	event TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
`

// Store is the relational metadata store. One Store wraps one *sql.DB; all
// methods are safe for concurrent use, relying on SQLite's own write
// serialization and the connection pool sizing applied at Open.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if absent) the SQLite database at path and applies
// the schema. A sibling "<path>.lock" file, held via gofrs/flock for the
// duration of schema initialization when it can be taken within 50ms,
// guards first-run table creation against concurrent processes racing to
// initialize the same store; if the lock is not acquired in that time,
// Open proceeds without it.
//
// path == "" or ":memory:" opens a private in-memory database, sized for a
// single connection since in-memory databases are not shared across
// connections.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	inMemory := path == "" || path == ":memory:"

	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, ferrors.Wrap(ferrors.CodeFileNotFound, err)
		}
		lock := flock.New(path + ".lock")
		locked, err := lock.TryLockContext(context.Background(), 50*time.Millisecond)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.CodeDBCorrupt, err)
		}
		if locked {
			defer func() { _ = lock.Unlock() }()
		}
	}

	dsn := path
	if inMemory {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDBCorrupt, err)
	}

	if inMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-65536",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, ferrors.Wrap(ferrors.CodeDBCorrupt, err)
		}
	}

	if !inMemory {
		db, err = validateIntegrity(db, path, logger)
		if err != nil {
			return nil, err
		}
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, ferrors.Wrap(ferrors.CodeMigrationFailed, err)
	}
	if err := ensureSchemaVersion(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, path: path, logger: logger}, nil
}

func ensureSchemaVersion(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return ferrors.Wrap(ferrors.CodeMigrationFailed, err)
	}
	if count == 0 {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return ferrors.Wrap(ferrors.CodeMigrationFailed, err)
		}
	}
	return nil
}

// validateIntegrity runs PRAGMA integrity_check and, on corruption, removes
// the database file and its WAL/SHM sidecars, returning a fresh connection
// pool to the recreated (empty) file.
func validateIntegrity(db *sql.DB, path string, logger *slog.Logger) (*sql.DB, error) {
	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDBCorrupt, err)
	}
	if result == "ok" {
		return db, nil
	}
	logger.Warn("store: database failed integrity check, recreating", "path", path, "result", result)
	_ = db.Close()
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
	fresh, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDBCorrupt, err)
	}
	fresh.SetMaxOpenConns(5)
	fresh.SetMaxIdleConns(5)
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-65536",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := fresh.Exec(p); err != nil {
			return nil, ferrors.Wrap(ferrors.CodeDBCorrupt, err)
		}
	}
	return fresh, nil
}

// Close checkpoints the WAL and closes the underlying connection pool.
func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for packages that need to compose their
// own queries.
func (s *Store) DB() *sql.DB { return s.db }

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// UpsertFile inserts or updates a file row per the scanner's upsert
// semantics (spec.md §4.1): on conflict, size/mtime/hash are only updated
// when one of them actually differs, and only then is the file considered
// "changed" (the caller enqueues it dirty on Changed==true). last_seen is
// refreshed on every call.
func (s *Store) UpsertFile(ctx context.Context, in ScanUpsert) (UpsertResult, error) {
	now := time.Now()

	var existing struct {
		id                int64
		size              int64
		mtime             int64
		hash, fast, full string
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, size, mtime, hash, fast_hash, full_hash FROM files WHERE path = ?`, in.Path)
	err := row.Scan(&existing.id, &existing.size, &existing.mtime, &existing.hash, &existing.fast, &existing.full)

	ext := filepath.Ext(in.Path)

	if err == sql.ErrNoRows {
		res, execErr := s.db.ExecContext(ctx, `
			INSERT INTO files (path, size, mtime, ctime, fast_hash, full_hash, hash, extension, status, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			in.Path, in.Size, unixMillis(in.ModTime), unixMillis(in.CTime),
			fastHashOf(in), fullHashOf(in), in.Hash, ext, string(FileStatusNew), unixMillis(now), unixMillis(now))
		if execErr != nil {
			return UpsertResult{}, ferrors.Wrap(ferrors.CodeInternal, execErr)
		}
		id, _ := res.LastInsertId()
		return UpsertResult{FileID: id, Created: true, Changed: true}, nil
	}
	if err != nil {
		return UpsertResult{}, ferrors.Wrap(ferrors.CodeInternal, err)
	}

	changed := existing.size != in.Size || existing.mtime != unixMillis(in.ModTime) ||
		(in.Hash != "" && in.Hash != existing.hash)

	if !changed {
		_, err := s.db.ExecContext(ctx, `UPDATE files SET last_seen = ? WHERE id = ?`, unixMillis(now), existing.id)
		if err != nil {
			return UpsertResult{}, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		return UpsertResult{FileID: existing.id, Changed: false}, nil
	}

	fast, full := existing.fast, existing.full
	hash := existing.hash
	if in.Hash != "" {
		if in.HashIsFull {
			full = in.Hash
		} else {
			fast = in.Hash
		}
		hash = in.Hash
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE files SET size = ?, mtime = ?, ctime = ?, fast_hash = ?, full_hash = ?, hash = ?, extension = ?, status = ?, last_seen = ?
		WHERE id = ?`,
		in.Size, unixMillis(in.ModTime), unixMillis(in.CTime), fast, full, hash, ext, string(FileStatusSeen), unixMillis(now), existing.id)
	if err != nil {
		return UpsertResult{}, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return UpsertResult{FileID: existing.id, Changed: true}, nil
}

func fastHashOf(in ScanUpsert) string {
	if !in.HashIsFull {
		return in.Hash
	}
	return ""
}

func fullHashOf(in ScanUpsert) string {
	if in.HashIsFull {
		return in.Hash
	}
	return ""
}

// BackfillHash writes hash only if it is currently unset, per the spec's
// resolved open question: prefer the already-stored value; never downgrade
// a full hash to a fast hash on a later run.
func (s *Store) BackfillHash(ctx context.Context, fileID int64, hash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE files SET hash = ? WHERE id = ? AND (hash IS NULL OR hash = '')`, hash, fileID)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return nil
}

// SetFileMIME updates the detected MIME type for a file.
func (s *Store) SetFileMIME(ctx context.Context, fileID int64, mime string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE files SET mime = ? WHERE id = ?`, mime, fileID)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return nil
}

func scanFile(row interface {
	Scan(dest ...any) error
}) (File, error) {
	var f File
	var mtime, ctime, firstSeen, lastSeen int64
	err := row.Scan(&f.ID, &f.Path, &f.Size, &mtime, &ctime, &f.FastHash, &f.FullHash, &f.Hash, &f.MIME, &f.Extension, &f.Status, &firstSeen, &lastSeen)
	if err != nil {
		return File{}, err
	}
	f.ModTime = fromMillis(mtime)
	f.CTime = fromMillis(ctime)
	f.FirstSeen = fromMillis(firstSeen)
	f.LastSeen = fromMillis(lastSeen)
	return f, nil
}

const fileColumns = `id, path, size, mtime, ctime, fast_hash, full_hash, hash, mime, extension, status, first_seen, last_seen`

// GetFileByPath returns the file row for path, or (File{}, false, nil) if absent.
func (s *Store) GetFileByPath(ctx context.Context, path string) (File, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE path = ?`, path)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return File{}, false, nil
	}
	if err != nil {
		return File{}, false, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return f, true, nil
}

// GetFileByID returns the file row for id.
func (s *Store) GetFileByID(ctx context.Context, id int64) (File, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return File{}, false, nil
	}
	if err != nil {
		return File{}, false, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return f, true, nil
}

// FindFilesByHash returns all files sharing the given full/legacy hash,
// used by dedupe detection. Results are ordered oldest-first so callers can
// treat the first result as canonical.
func (s *Store) FindFilesByHash(ctx context.Context, hash string) ([]File, error) {
	if hash == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM files WHERE hash = ? ORDER BY first_seen ASC`, hash)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	defer rows.Close()
	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListFiles returns all files, optionally filtered by status.
func (s *Store) ListFiles(ctx context.Context, status FileStatus) ([]File, error) {
	query := `SELECT ` + fileColumns + ` FROM files`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	defer rows.Close()
	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListUntaggedFiles returns files with no row in file_tags, for the
// classifier's "select files not yet tagged" step.
func (s *Store) ListUntaggedFiles(ctx context.Context) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files f
		WHERE NOT EXISTS (SELECT 1 FROM file_tags ft WHERE ft.file_id = f.id)
		AND f.status != ?`, string(FileStatusGone))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	defer rows.Close()
	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// MarkFileGone flips a file's status to "gone" without deleting it;
// deletion cascade is a separate, explicit PurgeFile call driven by the
// watcher once it is sure the path is gone for good.
func (s *Store) MarkFileGone(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE files SET status = ? WHERE path = ?`, string(FileStatusGone), path)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return nil
}

// PurgeFile cascades a deletion: actions, chunks, metadata, file_tags, then
// the file row itself, inside one transaction. It returns the chunk hashes
// and file hash the caller needs to clean up the vector store and keyword
// index with.
func (s *Store) PurgeFile(ctx context.Context, path string) (PurgeResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PurgeResult{}, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	defer func() { _ = tx.Rollback() }()

	var fileID int64
	var fileHash string
	err = tx.QueryRowContext(ctx, `SELECT id, hash FROM files WHERE path = ?`, path).Scan(&fileID, &fileHash)
	if err == sql.ErrNoRows {
		return PurgeResult{Path: path}, nil
	}
	if err != nil {
		return PurgeResult{}, ferrors.Wrap(ferrors.CodeInternal, err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT hash FROM chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return PurgeResult{}, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	var chunkHashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return PurgeResult{}, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		chunkHashes = append(chunkHashes, h)
	}
	rows.Close()

	stmts := []string{
		`DELETE FROM actions WHERE file_id = ?`,
		`DELETE FROM chunks WHERE file_id = ?`,
		`DELETE FROM metadata WHERE file_id = ?`,
		`DELETE FROM file_tags WHERE file_id = ?`,
		`DELETE FROM files WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, fileID); err != nil {
			return PurgeResult{}, ferrors.Wrap(ferrors.CodeInternal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return PurgeResult{}, ferrors.Wrap(ferrors.CodeInternal, err)
	}

	return PurgeResult{FileID: fileID, Path: path, FileHash: fileHash, ChunkHashes: chunkHashes}, nil
}

// ReplaceChunks performs the extractor's chunk-set diff (spec.md §4.2):
// stored chunks whose hash is absent from incoming are deleted; incoming
// chunks whose hash is absent from stored are inserted; unchanged chunks
// are left untouched.
func (s *Store) ReplaceChunks(ctx context.Context, fileID int64, incoming []Chunk) (ChunkDiff, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ChunkDiff{}, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id, hash, start, end_off, text_preview FROM chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return ChunkDiff{}, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	stored := map[string]Chunk{}
	for rows.Next() {
		var c Chunk
		var start, end int64
		if err := rows.Scan(&c.ID, &c.Hash, &start, &end, &c.TextPreview); err != nil {
			rows.Close()
			return ChunkDiff{}, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		c.FileID = fileID
		c.Start, c.End = uint64(start), uint64(end)
		stored[c.Hash] = c
	}
	rows.Close()

	incomingByHash := make(map[string]Chunk, len(incoming))
	for _, c := range incoming {
		incomingByHash[c.Hash] = c
	}

	var diff ChunkDiff
	for hash, c := range stored {
		if _, ok := incomingByHash[hash]; !ok {
			if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, c.ID); err != nil {
				return ChunkDiff{}, ferrors.Wrap(ferrors.CodeInternal, err)
			}
			diff.Deleted = append(diff.Deleted, c)
		}
	}
	for hash, c := range incomingByHash {
		if _, ok := stored[hash]; ok {
			continue
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO chunks (file_id, hash, start, end_off, text_preview) VALUES (?, ?, ?, ?, ?)`,
			fileID, hash, int64(c.Start), int64(c.End), c.TextPreview)
		if err != nil {
			return ChunkDiff{}, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		c.ID, _ = res.LastInsertId()
		c.FileID = fileID
		diff.Inserted = append(diff.Inserted, c)
	}

	if err := tx.Commit(); err != nil {
		return ChunkDiff{}, ferrors.Wrap(ferrors.CodeInternal, err)
	}

	sort.Slice(diff.Inserted, func(i, j int) bool { return diff.Inserted[i].Start < diff.Inserted[j].Start })
	return diff, nil
}

// GetChunksByFile returns all chunks owned by fileID, ordered by start offset.
func (s *Store) GetChunksByFile(ctx context.Context, fileID int64) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, hash, start, end_off, text_preview FROM chunks WHERE file_id = ? ORDER BY start ASC`, fileID)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		var c Chunk
		var start, end int64
		if err := rows.Scan(&c.ID, &c.Hash, &start, &end, &c.TextPreview); err != nil {
			return nil, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		c.FileID = fileID
		c.Start, c.End = uint64(start), uint64(end)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListChunksForEmbedding returns every chunk joined with its owning file's
// path/MIME/extension/mtime/hash, the exact shape the embedder needs to
// build a vector payload (spec.md §4.3). When fileIDs is empty, all files
// are considered.
func (s *Store) ListChunksForEmbedding(ctx context.Context, fileIDs []int64) ([]ChunkWithFile, error) {
	query := `
		SELECT c.id, c.hash, c.start, c.end_off, c.text_preview,
		       f.id, f.path, f.mime, f.extension, f.mtime, f.hash
		FROM chunks c
		JOIN files f ON f.id = c.file_id`
	args := []any{}
	if len(fileIDs) > 0 {
		placeholders := make([]string, len(fileIDs))
		for i, id := range fileIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += ` WHERE c.file_id IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY f.id ASC, c.start ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	defer rows.Close()

	var out []ChunkWithFile
	for rows.Next() {
		var cf ChunkWithFile
		var start, end, mtime int64
		if err := rows.Scan(&cf.Chunk.ID, &cf.Chunk.Hash, &start, &end, &cf.Chunk.TextPreview,
			&cf.FileID, &cf.Path, &cf.MIME, &cf.Extension, &mtime, &cf.FileHash); err != nil {
			return nil, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		cf.Chunk.FileID = cf.FileID
		cf.Chunk.Start, cf.Chunk.End = uint64(start), uint64(end)
		cf.MTime = time.UnixMilli(mtime).UTC()
		out = append(out, cf)
	}
	return out, rows.Err()
}

// UpsertMetadata sets a (file_id, key) pair, overwriting any existing value.
func (s *Store) UpsertMetadata(ctx context.Context, m Metadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (file_id, key, value, source) VALUES (?, ?, ?, ?)
		ON CONFLICT(file_id, key) DO UPDATE SET value = excluded.value, source = excluded.source`,
		m.FileID, m.Key, m.Value, m.Source)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return nil
}

// GetMetadata returns all metadata rows for a file, keyed by metadata key.
func (s *Store) GetMetadata(ctx context.Context, fileID int64) (map[string]Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, source FROM metadata WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	defer rows.Close()
	out := map[string]Metadata{}
	for rows.Next() {
		m := Metadata{FileID: fileID}
		if err := rows.Scan(&m.Key, &m.Value, &m.Source); err != nil {
			return nil, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		out[m.Key] = m
	}
	return out, rows.Err()
}

// EnsureTag inserts a tag if absent and returns its id either way.
func (s *Store) EnsureTag(ctx context.Context, name string) (int64, error) {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return id, nil
}

// TagFile attaches tagName to fileID with the given confidence and source,
// inserting the tag row if it does not already exist. Re-tagging with the
// same (file, tag) pair is a no-op (insert-or-ignore), per spec.md §3/§4.4.
func (s *Store) TagFile(ctx context.Context, fileID int64, tagName string, confidence float64, source string) error {
	tagID, err := s.EnsureTag(ctx, tagName)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO file_tags (file_id, tag_id, confidence, source) VALUES (?, ?, ?, ?)
		ON CONFLICT(file_id, tag_id) DO NOTHING`,
		fileID, tagID, confidence, source)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return nil
}

// GetTagsForFile returns every tag attached to fileID.
func (s *Store) GetTagsForFile(ctx context.Context, fileID int64) ([]FileTag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ft.file_id, ft.tag_id, t.name, ft.confidence, ft.source
		FROM file_tags ft JOIN tags t ON t.id = ft.tag_id
		WHERE ft.file_id = ?`, fileID)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	defer rows.Close()
	var out []FileTag
	for rows.Next() {
		var ft FileTag
		if err := rows.Scan(&ft.FileID, &ft.TagID, &ft.TagName, &ft.Confidence, &ft.Source); err != nil {
			return nil, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		out = append(out, ft)
	}
	return out, rows.Err()
}

// CopyFileTags copies every tag on fromFileID onto toFileID, deduplicated by
// (file, tag), used when a merge_duplicate action folds a duplicate's tags
// onto the canonical file.
func (s *Store) CopyFileTags(ctx context.Context, fromFileID, toFileID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_tags (file_id, tag_id, confidence, source)
		SELECT ?, tag_id, confidence, source FROM file_tags WHERE file_id = ?
		ON CONFLICT(file_id, tag_id) DO NOTHING`, toFileID, fromFileID)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return nil
}

// FindFilesByTag returns files carrying the given tag name, used by search's
// tag filter.
func (s *Store) FindFilesByTag(ctx context.Context, tagName string) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files f
		JOIN file_tags ft ON ft.file_id = f.id
		JOIN tags t ON t.id = ft.tag_id
		WHERE t.name = ?`, tagName)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	defer rows.Close()
	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SearchFilesByPathLike is the DB fallback for the keyword half of hybrid
// search when no keyword index is available (spec.md §4.9), matching path
// substrings case-insensitively via SQL LIKE.
func (s *Store) SearchFilesByPathLike(ctx context.Context, query string, limit int) ([]File, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + strings.ReplaceAll(strings.ReplaceAll(query, "%", "\\%"), "_", "\\_") + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files
		WHERE path LIKE ? ESCAPE '\' ORDER BY last_seen DESC LIMIT ?`, pattern, limit)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	defer rows.Close()
	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpsertRule inserts or updates a rule by name (the update key, per
// spec.md §4.5/§6).
func (s *Store) UpsertRule(ctx context.Context, r Rule) error {
	enabled := 0
	if r.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (name, priority, enabled, condition_json, action_json) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET priority = excluded.priority, enabled = excluded.enabled,
			condition_json = excluded.condition_json, action_json = excluded.action_json`,
		r.Name, r.Priority, enabled, r.ConditionJSON, r.ActionJSON)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return nil
}

// ListEnabledRules returns enabled rules ordered by ascending priority.
func (s *Store) ListEnabledRules(ctx context.Context) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, priority, enabled, condition_json, action_json FROM rules WHERE enabled = 1 ORDER BY priority ASC, name ASC`)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	defer rows.Close()
	var out []Rule
	for rows.Next() {
		var r Rule
		var enabled int
		if err := rows.Scan(&r.ID, &r.Name, &r.Priority, &enabled, &r.ConditionJSON, &r.ActionJSON); err != nil {
			return nil, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		r.Enabled = enabled != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreatePlannedAction inserts a new planned action. payload is marshaled to
// JSON.
func (s *Store) CreatePlannedAction(ctx context.Context, fileID int64, kind ActionKind, payload any) (int64, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.CodeInvalidPayload, err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO actions (file_id, kind, payload_json, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		fileID, string(kind), string(buf), string(ActionStatusPlanned), unixMillis(time.Now()))
	if err != nil {
		return 0, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return res.LastInsertId()
}

func scanAction(row interface{ Scan(dest ...any) error }) (Action, error) {
	var a Action
	var createdAt int64
	var executedAt sql.NullInt64
	err := row.Scan(&a.ID, &a.FileID, &a.Kind, &a.Payload, &a.Status, &a.Error, &createdAt, &executedAt, &a.UndoToken, &a.BackupPath)
	if err != nil {
		return Action{}, err
	}
	a.CreatedAt = fromMillis(createdAt)
	if executedAt.Valid {
		t := fromMillis(executedAt.Int64)
		a.ExecutedAt = &t
	}
	return a, nil
}

const actionColumns = `id, file_id, kind, payload_json, status, error, created_at, executed_at, undo_token, backup_path`

// GetAction returns a single action by id.
func (s *Store) GetAction(ctx context.Context, id int64) (Action, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return Action{}, false, nil
	}
	if err != nil {
		return Action{}, false, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return a, true, nil
}

// ListActionsByStatus returns actions in the given status, optionally
// restricted to an id set (pass nil for all).
func (s *Store) ListActionsByStatus(ctx context.Context, status ActionStatus, ids []int64) ([]Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE status = ?`
	args := []any{string(status)}
	if len(ids) > 0 {
		placeholders := ""
		for i, id := range ids {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, id)
		}
		query += fmt.Sprintf(" AND id IN (%s)", placeholders)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	defer rows.Close()
	var out []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// HasPlannedActionOfKind reports whether fileID already has a planned
// action of one of the given kinds, used by the suggester's exclusion
// invariant (spec.md §4.5) to avoid stacking moves/renames.
func (s *Store) HasPlannedActionOfKind(ctx context.Context, fileID int64, kinds ...ActionKind) (bool, error) {
	if len(kinds) == 0 {
		return false, nil
	}
	placeholders := ""
	args := []any{fileID, string(ActionStatusPlanned)}
	for i, k := range kinds {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, string(k))
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM actions WHERE file_id = ? AND status = ? AND kind IN (%s)`, placeholders)
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return count > 0, nil
}

// MarkActionExecuted transitions a planned action to executed.
func (s *Store) MarkActionExecuted(ctx context.Context, id int64, backupPath, undoToken string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE actions SET status = ?, executed_at = ?, backup_path = ?, undo_token = ?, error = '' WHERE id = ?`,
		string(ActionStatusExecuted), unixMillis(time.Now()), backupPath, undoToken, id)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return nil
}

// MarkActionError transitions a planned action to the terminal error state.
func (s *Store) MarkActionError(ctx context.Context, id int64, message string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE actions SET status = ?, error = ? WHERE id = ?`, string(ActionStatusError), message, id)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return nil
}

// MarkActionUndone transitions an executed action back to planned, clearing
// executed_at, per the undo engine's state machine (spec.md §4.6/§4.7).
func (s *Store) MarkActionUndone(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE actions SET status = ?, executed_at = NULL WHERE id = ?`, string(ActionStatusPlanned), id)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return nil
}

// MarkDirty upserts a dirty-queue entry for path.
func (s *Store) MarkDirty(ctx context.Context, path, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dirty (path, reason, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET reason = excluded.reason, updated_at = excluded.updated_at`,
		path, reason, unixMillis(time.Now()))
	if err != nil {
		return ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return nil
}

// ListDirty returns up to limit dirty entries (0 means unlimited), ordered
// oldest-first.
func (s *Store) ListDirty(ctx context.Context, limit int) ([]DirtyEntry, error) {
	query := `SELECT path, reason, updated_at FROM dirty ORDER BY updated_at ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	defer rows.Close()
	var out []DirtyEntry
	for rows.Next() {
		var e DirtyEntry
		var updatedAt int64
		if err := rows.Scan(&e.Path, &e.Reason, &updatedAt); err != nil {
			return nil, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		e.UpdatedAt = fromMillis(updatedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClearDirty removes a path's dirty-queue entry. Consumers (extractor,
// keyword-index refresher) call this only after they've done their work.
func (s *Store) ClearDirty(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dirty WHERE path = ?`, path)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return nil
}

// RecordAudit appends an audit log entry.
func (s *Store) RecordAudit(ctx context.Context, actionID *int64, event string, detail any) error {
	buf, err := json.Marshal(detail)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeInvalidPayload, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO audit (action_id, event, detail, created_at) VALUES (?, ?, ?, ?)`,
		actionID, event, string(buf), unixMillis(time.Now()))
	if err != nil {
		return ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return nil
}

// ListAudit returns the most recent audit entries, newest first, capped at limit.
func (s *Store) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, action_id, event, detail, created_at FROM audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var actionID sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&e.ID, &actionID, &e.Event, &e.Detail, &createdAt); err != nil {
			return nil, ferrors.Wrap(ferrors.CodeInternal, err)
		}
		if actionID.Valid {
			id := actionID.Int64
			e.ActionID = &id
		}
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
