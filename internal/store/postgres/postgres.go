// Package postgres stores parents and children in PostgreSQL, using
// pgvector for cosine search over child embeddings.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dgallion1/docrag/internal/chunk"
	"github.com/dgallion1/docrag/internal/store"
)

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger enables debug logs with timing for every operation.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

type Store struct {
	pool   *pgxpool.Pool
	owned  bool
	logger *slog.Logger
}

// New wraps an existing pool. The caller keeps ownership of the pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open connects to dsn, creates the schema and returns a Store that owns
// its pool.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	s := New(pool, opts...)
	s.owned = true
	if err := s.Init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Init creates the pgvector extension and tables. Safe to call repeatedly.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS rag_parents (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			document_name TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rag_children (
			seq BIGSERIAL PRIMARY KEY,
			file_name TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			parent_id TEXT NOT NULL,
			text TEXT NOT NULL,
			embedding vector NOT NULL,
			UNIQUE (file_name, chunk_index)
		)`,
		`CREATE INDEX IF NOT EXISTS rag_children_parent_idx ON rag_children(parent_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}

func (s *Store) UpsertParents(ctx context.Context, parents []chunk.Parent) error {
	if err := store.ValidateParents(parents); err != nil {
		return err
	}
	now := time.Now().Unix()
	batch := &pgx.Batch{}
	for _, p := range parents {
		batch.Queue(`INSERT INTO rag_parents (id, content, document_name, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				document_name = EXCLUDED.document_name,
				updated_at = EXCLUDED.updated_at`,
			p.ID, p.Content, p.DocumentName, now)
	}
	return s.sendBatch(ctx, "upsert parents", batch)
}

func (s *Store) GetParents(ctx context.Context, ids []string) ([]chunk.Parent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, content, document_name FROM rag_parents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: get parents: %w", err)
	}
	defer rows.Close()

	var out []chunk.Parent
	for rows.Next() {
		var p chunk.Parent
		if err := rows.Scan(&p.ID, &p.Content, &p.DocumentName); err != nil {
			return nil, fmt.Errorf("postgres: scan parent: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertChildren keeps the seq of rows it updates, so ties still rank by
// first insertion.
func (s *Store) UpsertChildren(ctx context.Context, children []chunk.Child) error {
	if err := store.ValidateChildren(children); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, c := range children {
		batch.Queue(`INSERT INTO rag_children (file_name, chunk_index, parent_id, text, embedding)
			VALUES ($1, $2, $3, $4, $5::vector)
			ON CONFLICT (file_name, chunk_index) DO UPDATE SET
				parent_id = EXCLUDED.parent_id,
				text = EXCLUDED.text,
				embedding = EXCLUDED.embedding`,
			c.FileName, c.Index, c.ParentID, c.Text, serializeEmbedding(c.Embedding))
	}
	return s.sendBatch(ctx, "upsert children", batch)
}

func (s *Store) SearchChildren(ctx context.Context, vector []float32, topK int) ([]chunk.ScoredChild, error) {
	if topK <= 0 {
		return nil, nil
	}
	start := time.Now()
	rows, err := s.pool.Query(ctx,
		`SELECT file_name, chunk_index, parent_id, text, 1 - (embedding <=> $1::vector) AS score
		 FROM rag_children
		 WHERE vector_dims(embedding) = $2
		 ORDER BY embedding <=> $1::vector, seq
		 LIMIT $3`,
		serializeEmbedding(vector), len(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("postgres: search children: %w", err)
	}
	defer rows.Close()

	var out []chunk.ScoredChild
	for rows.Next() {
		var (
			h     chunk.ScoredChild
			score float64
		)
		if err := rows.Scan(&h.FileName, &h.Index, &h.ParentID, &h.Text, &score); err != nil {
			return nil, fmt.Errorf("postgres: scan child: %w", err)
		}
		h.Score = float32(score)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: search children: %w", err)
	}
	s.logger.Debug("postgres: search children", "returned", len(out), "duration", time.Since(start))
	return out, nil
}

func (s *Store) sendBatch(ctx context.Context, op string, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	start := time.Now()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: %s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: %s: %w", op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: %s: commit: %w", op, err)
	}
	s.logger.Debug("postgres: "+op, "count", batch.Len(), "duration", time.Since(start))
	return nil
}

// serializeEmbedding renders a vector in pgvector text form, e.g. "[0.1,0.2]".
func serializeEmbedding(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
