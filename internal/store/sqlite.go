package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

// SQLiteStore keeps session chunks and their embeddings in SQLite. With the
// default in-memory DSN nothing outlives the process.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

func NewSQLiteStore(dataSourceName string, log *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A shared-cache memory database reports "table is locked" on concurrent
	// writers, so all access goes through one connection.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db, log: log}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS session_chunks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        position INTEGER NOT NULL,
        content TEXT NOT NULL,
        source_file TEXT NOT NULL,
        candidate_name TEXT NOT NULL,
        page INTEGER NOT NULL,
        embedding_json TEXT NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_session_chunks_session ON session_chunks (session_id, position);
    `
	_, err := s.db.Exec(schema)
	return err
}

// BuildIndex writes all chunks of a session in one transaction, so a
// session is either fully present or absent.
func (s *SQLiteStore) BuildIndex(ctx context.Context, sessionID string, chunks []PageChunk, vectors [][]float32) (VectorIndex, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin chunk insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO session_chunks
        (session_id, position, content, source_file, candidate_name, page, embedding_json)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		embeddingBytes, err := json.Marshal(vectors[i])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, sessionID, chunk.Position, chunk.Text, chunk.SourceFile,
			chunk.CandidateName, chunk.Page, string(embeddingBytes)); err != nil {
			return nil, fmt.Errorf("failed to insert chunk %d: %w", chunk.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit session chunks: %w", err)
	}

	return &sqliteIndex{store: s, sessionID: sessionID, size: len(chunks)}, nil
}

func (s *SQLiteStore) loadChunks(ctx context.Context, sessionID string) ([]PageChunk, [][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position, content, source_file, candidate_name, page, embedding_json
        FROM session_chunks WHERE session_id = ? ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query session chunks: %w", err)
	}
	defer rows.Close()

	var (
		chunks  []PageChunk
		vectors [][]float32
	)
	for rows.Next() {
		var (
			chunk         PageChunk
			embeddingJSON string
			embedding     []float32
		)
		if err := rows.Scan(&chunk.Position, &chunk.Text, &chunk.SourceFile, &chunk.CandidateName, &chunk.Page, &embeddingJSON); err != nil {
			return nil, nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &embedding); err != nil {
			s.log.Warn("skipping chunk with unreadable embedding",
				zap.String("session_id", sessionID),
				zap.Int("position", chunk.Position),
				zap.Error(err))
			continue
		}
		chunks = append(chunks, chunk)
		vectors = append(vectors, embedding)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read chunk rows: %w", err)
	}
	return chunks, vectors, nil
}

func (s *SQLiteStore) deleteSession(sessionID string) error {
	if _, err := s.db.Exec("DELETE FROM session_chunks WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session chunks: %w", err)
	}
	return nil
}

// CountChunks reports how many chunk rows a session owns.
func (s *SQLiteStore) CountChunks(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM session_chunks WHERE session_id = ?", sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count session chunks: %w", err)
	}
	return n, nil
}

type sqliteIndex struct {
	store     *SQLiteStore
	sessionID string
	size      int
	closed    atomic.Bool
}

// Search fails with ErrSessionNotFound once the index is closed, including
// when eviction lands while the rows are being read.
func (i *sqliteIndex) Search(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	if i.closed.Load() {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, i.sessionID)
	}
	chunks, vectors, err := i.store.loadChunks(ctx, i.sessionID)
	if err != nil {
		return nil, err
	}
	if i.closed.Load() {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, i.sessionID)
	}
	return rankBySimilarity(query, chunks, vectors, k)
}

func (i *sqliteIndex) Len() int { return i.size }

// Close drops the session's rows. It runs when the session is evicted.
func (i *sqliteIndex) Close() error {
	i.closed.Store(true)
	return i.store.deleteSession(i.sessionID)
}
