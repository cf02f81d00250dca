package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/csvagent/internal/ai"
	"github.com/KaramelBytes/csvagent/internal/logging"
	"github.com/KaramelBytes/csvagent/internal/retrieval"
	"github.com/KaramelBytes/csvagent/internal/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	namespace  TEXT NOT NULL,
	text       TEXT NOT NULL,
	vector     TEXT NOT NULL,
	model      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_namespace ON memories(namespace);
`

// chunkTokens bounds each stored passage.
const chunkTokens = 300

// Store persists embedded text passages per namespace in sqlite.
type Store struct {
	mu    sync.Mutex
	db    *sql.DB
	emb   ai.Embedder
	model string
	log   *zap.Logger
}

// Open creates or opens the store at path.
func Open(path string, emb ai.Embedder, model string, log *zap.Logger) (*Store, error) {
	if emb == nil {
		return nil, errors.New("memory store needs an embedder")
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init memory db: %w", err)
		}
	}
	return &Store{db: db, emb: emb, model: model, log: logging.OrNop(log)}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Add embeds and stores text in namespace, split into passages.
func (s *Store) Add(ctx context.Context, namespace, text string) (int, error) {
	chunks := retrieval.ChunkByTokens(text, chunkTokens, 0)
	if len(chunks) == 0 {
		return 0, nil
	}
	vecs, err := s.emb.Embed(ctx, s.model, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed memory: %w", err)
	}
	if len(vecs) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d passages", len(vecs), len(chunks))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO memories (id, namespace, text, vector, model, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	now := time.Now().UTC()
	for i, c := range chunks {
		v, err := json.Marshal(vecs[i])
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), namespace, c, string(v), s.model, now); err != nil {
			return 0, fmt.Errorf("insert memory: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.log.Debug("memory stored", zap.String("namespace", namespace), zap.Int("passages", len(chunks)))
	return len(chunks), nil
}

// Search returns the passages of namespace closest to query.
func (s *Store) Search(ctx context.Context, namespace, query string, topK int) ([]retrieval.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	cands, err := s.candidates(ctx, namespace)
	if err != nil || len(cands) == 0 {
		return nil, err
	}
	vecs, err := s.emb.Embed(ctx, s.model, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return retrieval.Rank(vecs[0], cands, topK, 0.1), nil
}

func (s *Store) candidates(ctx context.Context, namespace string) ([]retrieval.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Vectors from another embedding model are not comparable.
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, vector FROM memories WHERE namespace = ? AND model = ? ORDER BY created_at`, namespace, s.model)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()
	var out []retrieval.Candidate
	for rows.Next() {
		var c retrieval.Candidate
		var raw string
		if err := rows.Scan(&c.ID, &c.Text, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &c.Vector); err != nil {
			s.log.Warn("skipping unreadable memory vector", zap.String("id", c.ID), zap.Error(err))
			continue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of passages stored for namespace.
func (s *Store) Count(ctx context.Context, namespace string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE namespace = ?`, namespace).Scan(&n)
	return n, err
}

// Clear removes every passage of namespace.
func (s *Store) Clear(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE namespace = ?`, namespace)
	return err
}
