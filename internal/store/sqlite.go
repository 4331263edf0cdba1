package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO
)

// SQLiteMetadataStore persists Files, Chunks, Entities, and Definitions in
// SQLite, backed by WAL mode for concurrent access, and answers definition
// lookups through a FTS5 virtual table keyed by entity name and content.
type SQLiteMetadataStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	path TEXT UNIQUE NOT NULL,
	origin TEXT NOT NULL,
	sha256 TEXT NOT NULL,
	size INTEGER NOT NULL,
	mod_time INTEGER NOT NULL,
	is_header INTEGER NOT NULL,
	is_implementation INTEGER NOT NULL,
	indexed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	total_chunks INTEGER NOT NULL,
	byte_length INTEGER NOT NULL,
	content TEXT NOT NULL,
	vector_index INTEGER NOT NULL,
	has_uproperty INTEGER NOT NULL,
	has_uclass INTEGER NOT NULL,
	has_ufunction INTEGER NOT NULL,
	has_ustruct INTEGER NOT NULL,
	has_uenum INTEGER NOT NULL,
	entities_json TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id);
CREATE INDEX IF NOT EXISTS idx_chunks_vector_index ON chunks(vector_index);
CREATE INDEX IF NOT EXISTS idx_chunks_file_index ON chunks(file_id, chunk_index);

CREATE TABLE IF NOT EXISTS definitions (
	file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	origin TEXT NOT NULL,
	entity_name TEXT NOT NULL,
	entity_kind TEXT NOT NULL,
	line_start INTEGER NOT NULL,
	line_end INTEGER NOT NULL,
	content TEXT NOT NULL,
	members_json TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (file_id, entity_name, line_start)
);
CREATE INDEX IF NOT EXISTS idx_definitions_entity ON definitions(entity_name);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_definitions USING fts5(
	entity_name,
	content,
	file_id UNINDEXED,
	line_start UNINDEXED,
	line_end UNINDEXED,
	tokenize='unicode61'
);

CREATE TABLE IF NOT EXISTS kv_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// validateSQLiteIntegrity checks a metadata database for corruption before
// opening it for real use.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
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

// NewSQLiteMetadataStore opens (creating if necessary) the relational
// metadata store at path. An empty path opens an in-memory database, used
// by tests.
func NewSQLiteMetadataStore(path string) (*SQLiteMetadataStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("metadata_store_corrupted", slog.String("path", path), slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("metadata store corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("metadata_store_cleared", slog.String("path", path), slog.String("reason", "corruption detected, please reindex"))
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	s := &SQLiteMetadataStore{db: db, path: path}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteMetadataStore) SaveFiles(ctx context.Context, files []*File) error {
	if len(files) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (id, path, origin, sha256, size, mod_time, is_header, is_implementation, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			sha256=excluded.sha256, size=excluded.size, mod_time=excluded.mod_time,
			is_header=excluded.is_header, is_implementation=excluded.is_implementation,
			indexed_at=excluded.indexed_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, f.ID, f.Path, string(f.Origin), f.SHA256, f.Size,
			f.ModTime.Unix(), boolToInt(f.IsHeader), boolToInt(f.IsImplementation), f.IndexedAt.Unix()); err != nil {
			return fmt.Errorf("save file %s: %w", f.Path, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteMetadataStore) GetFileByPath(ctx context.Context, path string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT id, path, origin, sha256, size, mod_time, is_header, is_implementation, indexed_at FROM files WHERE path = ?`, path)
	return scanFile(row)
}

func (s *SQLiteMetadataStore) GetChangedFiles(ctx context.Context, since time.Time) ([]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, path, origin, sha256, size, mod_time, is_header, is_implementation, indexed_at FROM files WHERE indexed_at >= ?`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*File
	for rows.Next() {
		f, err := scanFileRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteMetadataStore) DeleteFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM fts_definitions WHERE file_id = ?`, fileID)
	return err
}

func (s *SQLiteMetadataStore) DeleteFilesByOrigin(ctx context.Context, origin Origin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.fileIDsByOrigin(ctx, origin)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE origin = ?`, string(origin)); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM fts_definitions WHERE file_id IN (`+placeholders+`)`, args...)
	return err
}

func (s *SQLiteMetadataStore) fileIDsByOrigin(ctx context.Context, origin Origin) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM files WHERE origin = ?`, string(origin))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteMetadataStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
		(id, file_id, path, chunk_index, total_chunks, byte_length, content, vector_index,
		 has_uproperty, has_uclass, has_ufunction, has_ustruct, has_uenum, entities_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		entitiesJSON, err := json.Marshal(c.Entities)
		if err != nil {
			return fmt.Errorf("marshal entities for chunk %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.FileID, c.Path, c.ChunkIndex, c.TotalChunks,
			c.ByteLength, c.Content, c.VectorIndex, boolToInt(c.HasUProperty), boolToInt(c.HasUClass),
			boolToInt(c.HasUFunction), boolToInt(c.HasUStruct), boolToInt(c.HasUEnum), string(entitiesJSON)); err != nil {
			return fmt.Errorf("save chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteMetadataStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, chunkSelectSQL+` WHERE id = ?`, id)
	return scanChunk(row)
}

func (s *SQLiteMetadataStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, chunkSelectSQL+` WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteMetadataStore) GetChunksByFile(ctx context.Context, fileID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, chunkSelectSQL+` WHERE file_id = ? ORDER BY chunk_index`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteMetadataStore) GetAdjacentChunk(ctx context.Context, fileID string, chunkIndex int) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, chunkSelectSQL+` WHERE file_id = ? AND chunk_index = ?`, fileID, chunkIndex)
	return scanChunk(row)
}

// ListChunkSearchMeta joins chunks with their owning file to produce the
// denormalized per-row projection Filtered Semantic Search scans to build
// its filter masks, ordered by vector_index so callers can index directly
// by row number.
func (s *SQLiteMetadataStore) ListChunkSearchMeta(ctx context.Context) ([]ChunkSearchMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.vector_index, c.path, c.chunk_index, c.total_chunks, f.origin,
		       f.is_header, f.is_implementation,
		       c.has_uproperty, c.has_uclass, c.has_ufunction, c.has_ustruct, c.has_uenum,
		       c.entities_json
		FROM chunks c
		JOIN files f ON f.id = c.file_id
		ORDER BY c.vector_index
	`)
	if err != nil {
		return nil, fmt.Errorf("list chunk search meta: %w", err)
	}
	defer rows.Close()

	var out []ChunkSearchMeta
	for rows.Next() {
		var m ChunkSearchMeta
		var origin string
		var isHeader, isImpl, hp, hc, hf, hs, he int
		var entitiesJSON string
		if err := rows.Scan(&m.VectorIndex, &m.Path, &m.ChunkIndex, &m.TotalChunks, &origin,
			&isHeader, &isImpl, &hp, &hc, &hf, &hs, &he, &entitiesJSON); err != nil {
			return nil, err
		}
		m.Origin = Origin(origin)
		m.IsHeader, m.IsImplementation = isHeader != 0, isImpl != 0
		m.HasUProperty, m.HasUClass, m.HasUFunction, m.HasUStruct, m.HasUEnum = hp != 0, hc != 0, hf != 0, hs != 0, he != 0
		_ = json.Unmarshal([]byte(entitiesJSON), &m.Entities)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteMetadataStore) DeleteChunksByFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID)
	return err
}

func (s *SQLiteMetadataStore) SaveDefinitions(ctx context.Context, fileID string, defs []*Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM definitions WHERE file_id = ?`, fileID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_definitions WHERE file_id = ?`, fileID); err != nil {
		return err
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO definitions (file_id, path, origin, entity_name, entity_kind, line_start, line_end, content, members_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer insert.Close()

	ftsInsert, err := tx.PrepareContext(ctx, `
		INSERT INTO fts_definitions (entity_name, content, file_id, line_start, line_end)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer ftsInsert.Close()

	for _, d := range defs {
		membersJSON := marshalMembers(d.Members)
		if _, err := insert.ExecContext(ctx, fileID, d.Path, string(d.Origin), d.EntityName, string(d.EntityKind),
			d.LineStart, d.LineEnd, d.Content, membersJSON); err != nil {
			return fmt.Errorf("save definition %s: %w", d.EntityName, err)
		}
		if _, err := ftsInsert.ExecContext(ctx, d.EntityName, d.Content, fileID, d.LineStart, d.LineEnd); err != nil {
			return fmt.Errorf("index definition %s: %w", d.EntityName, err)
		}
	}
	return tx.Commit()
}

// SearchDefinitions runs an FTS5 MATCH query over entity name and content,
// falling back to an exact entity-name lookup (GetDefinitionsByEntity) if
// the query is rejected as FTS5 syntax.
func (s *SQLiteMetadataStore) SearchDefinitions(ctx context.Context, query string, limit int) ([]*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.file_id, d.path, d.origin, d.entity_name, d.entity_kind, d.line_start, d.line_end, d.content, d.members_json
		FROM fts_definitions f
		JOIN definitions d ON d.file_id = f.file_id AND d.entity_name = f.entity_name AND d.line_start = f.line_start
		WHERE fts_definitions MATCH ?
		ORDER BY bm25(fts_definitions)
		LIMIT ?
	`, ftsQueryFor(query), limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return s.GetDefinitionsByEntity(ctx, query)
		}
		return nil, fmt.Errorf("search definitions: %w", err)
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

func (s *SQLiteMetadataStore) GetDefinitionsByEntity(ctx context.Context, entityName string) ([]*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id, path, origin, entity_name, entity_kind, line_start, line_end, content, members_json
		FROM definitions WHERE entity_name = ?
	`, entityName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

func (s *SQLiteMetadataStore) DeleteDefinitionsByFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM definitions WHERE file_id = ?`, fileID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM fts_definitions WHERE file_id = ?`, fileID)
	return err
}

func (s *SQLiteMetadataStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteMetadataStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv_state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

func (s *SQLiteMetadataStore) SaveIndexCheckpoint(ctx context.Context, stage string, total, embeddedCount int, embedderModel string) error {
	for k, v := range map[string]string{
		StateKeyCheckpointStage:         stage,
		StateKeyCheckpointTotal:         fmt.Sprint(total),
		StateKeyCheckpointEmbedded:      fmt.Sprint(embeddedCount),
		StateKeyCheckpointTimestamp:     fmt.Sprint(time.Now().Unix()),
		StateKeyCheckpointEmbedderModel: embedderModel,
	} {
		if err := s.SetState(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteMetadataStore) LoadIndexCheckpoint(ctx context.Context) (*IndexCheckpoint, error) {
	stage, err := s.GetState(ctx, StateKeyCheckpointStage)
	if err != nil || stage == "" {
		return nil, err
	}
	total, _ := s.GetState(ctx, StateKeyCheckpointTotal)
	embedded, _ := s.GetState(ctx, StateKeyCheckpointEmbedded)
	model, _ := s.GetState(ctx, StateKeyCheckpointEmbedderModel)
	ts, _ := s.GetState(ctx, StateKeyCheckpointTimestamp)
	return &IndexCheckpoint{
		Stage:         stage,
		Total:         atoiOr(total, 0),
		EmbeddedCount: atoiOr(embedded, 0),
		Timestamp:     time.Unix(int64(atoiOr(ts, 0)), 0),
		EmbedderModel: model,
	}, nil
}

func (s *SQLiteMetadataStore) ClearIndexCheckpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_state WHERE key LIKE 'checkpoint_%'`)
	return err
}

func (s *SQLiteMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

const chunkSelectSQL = `
	SELECT id, file_id, path, chunk_index, total_chunks, byte_length, content, vector_index,
	       has_uproperty, has_uclass, has_ufunction, has_ustruct, has_uenum, entities_json
	FROM chunks
`

type scanner interface {
	Scan(dest ...any) error
}

func scanChunk(row scanner) (*Chunk, error) {
	var c Chunk
	var hp, hc, hf, hs, he int
	var entitiesJSON string
	err := row.Scan(&c.ID, &c.FileID, &c.Path, &c.ChunkIndex, &c.TotalChunks, &c.ByteLength, &c.Content,
		&c.VectorIndex, &hp, &hc, &hf, &hs, &he, &entitiesJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.HasUProperty, c.HasUClass, c.HasUFunction, c.HasUStruct, c.HasUEnum = hp != 0, hc != 0, hf != 0, hs != 0, he != 0
	_ = json.Unmarshal([]byte(entitiesJSON), &c.Entities)
	return &c, nil
}

func scanChunks(rows *sql.Rows) ([]*Chunk, error) {
	var out []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanFile(row scanner) (*File, error) {
	var f File
	var origin string
	var modTime, indexedAt int64
	var isHeader, isImpl int
	err := row.Scan(&f.ID, &f.Path, &origin, &f.SHA256, &f.Size, &modTime, &isHeader, &isImpl, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.Origin = Origin(origin)
	f.ModTime = time.Unix(modTime, 0)
	f.IndexedAt = time.Unix(indexedAt, 0)
	f.IsHeader = isHeader != 0
	f.IsImplementation = isImpl != 0
	return &f, nil
}

func scanFileRows(rows *sql.Rows) (*File, error) {
	return scanFile(rows)
}

func scanDefinitions(rows *sql.Rows) ([]*Definition, error) {
	var out []*Definition
	for rows.Next() {
		var d Definition
		var origin, kind, membersJSON string
		if err := rows.Scan(&d.FileID, &d.Path, &origin, &d.EntityName, &kind, &d.LineStart, &d.LineEnd, &d.Content, &membersJSON); err != nil {
			return nil, err
		}
		d.Origin = Origin(origin)
		d.EntityKind = EntityKind(kind)
		d.Members = unmarshalMembers(membersJSON)
		out = append(out, &d)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func atoiOr(s string, def int) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return def
	}
	return n
}

// ftsQueryFor wraps a free-text query for FTS5, quoting it so that
// identifier punctuation (e.g. "::") does not trip the MATCH parser.
func ftsQueryFor(query string) string {
	escaped := strings.ReplaceAll(query, `"`, `""`)
	return `"` + escaped + `"`
}

func marshalMembers(members []Member) string {
	if len(members) == 0 {
		return "[]"
	}
	b, err := json.Marshal(members)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalMembers(raw string) []Member {
	if raw == "" {
		return nil
	}
	var members []Member
	if err := json.Unmarshal([]byte(raw), &members); err != nil {
		return nil
	}
	return members
}
