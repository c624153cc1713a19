// Package sqlite stores parents and children in a local SQLite file using
// the pure-Go modernc driver. Vector search is brute-force cosine in process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/dgallion1/docrag/internal/chunk"
	"github.com/dgallion1/docrag/internal/store"
	"github.com/dgallion1/docrag/internal/store/sqlite/migrations"
)

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger enables debug logs with timing for every operation.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the database at path and applies pending
// migrations. A single connection serializes writers.
func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(s)
	}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	s.logger.Debug("sqlite: store opened", "path", path)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies NNN_name.up.sql files newer than the recorded version.
func (s *Store) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		ddl, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(ddl)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) UpsertParents(ctx context.Context, parents []chunk.Parent) error {
	if err := store.ValidateParents(parents); err != nil {
		return err
	}
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO parents (id, content, document_name, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			document_name = excluded.document_name,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare parent upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, p := range parents {
		if _, err := stmt.ExecContext(ctx, p.ID, p.Content, p.DocumentName, now); err != nil {
			return fmt.Errorf("upsert parent %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit parents: %w", err)
	}
	s.logger.Debug("sqlite: upsert parents", "count", len(parents), "duration", time.Since(start))
	return nil
}

func (s *Store) GetParents(ctx context.Context, ids []string) ([]chunk.Parent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, document_name FROM parents WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("query parents: %w", err)
	}
	defer rows.Close()

	var out []chunk.Parent
	for rows.Next() {
		var p chunk.Parent
		if err := rows.Scan(&p.ID, &p.Content, &p.DocumentName); err != nil {
			return nil, fmt.Errorf("scan parent: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertChildren writes children in one transaction. An existing row with
// the same (file_name, chunk_index) is updated in place and keeps its seq.
func (s *Store) UpsertChildren(ctx context.Context, children []chunk.Child) error {
	if err := store.ValidateChildren(children); err != nil {
		return err
	}
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO children (file_name, chunk_index, parent_id, text, embedding, dimension)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_name, chunk_index) DO UPDATE SET
			parent_id = excluded.parent_id,
			text = excluded.text,
			embedding = excluded.embedding,
			dimension = excluded.dimension`)
	if err != nil {
		return fmt.Errorf("prepare child upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range children {
		if _, err := stmt.ExecContext(ctx, c.FileName, c.Index, c.ParentID, c.Text,
			encodeVector(c.Embedding), len(c.Embedding)); err != nil {
			return fmt.Errorf("upsert child %s: %w", c.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit children: %w", err)
	}
	s.logger.Debug("sqlite: upsert children", "count", len(children), "duration", time.Since(start))
	return nil
}

// SearchChildren scores every child with the query's dimension.
func (s *Store) SearchChildren(ctx context.Context, vector []float32, topK int) ([]chunk.ScoredChild, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, file_name, chunk_index, parent_id, text, embedding FROM children WHERE dimension = ?", len(vector))
	if err != nil {
		return nil, fmt.Errorf("query children: %w", err)
	}
	defer rows.Close()

	var hits []store.Ranked
	for rows.Next() {
		var (
			r    store.Ranked
			blob []byte
		)
		if err := rows.Scan(&r.Seq, &r.FileName, &r.Index, &r.ParentID, &r.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		r.Embedding = decodeVector(blob)
		r.Score = store.CosineSimilarity(vector, r.Embedding)
		hits = append(hits, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children: %w", err)
	}

	out := store.TopK(hits, topK)
	s.logger.Debug("sqlite: search children", "scanned", len(hits), "returned", len(out), "duration", time.Since(start))
	return out, nil
}

// encodeVector packs floats little-endian, four bytes each.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
