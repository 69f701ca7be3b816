package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// SQL stores the documents of one collection as JSON rows of a shared
// documents table.
type SQL struct {
	db         *sql.DB
	dialect    Dialect
	collection string
}

const schemaDDL = `CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	body       TEXT NOT NULL,
	PRIMARY KEY (collection, id)
)`

// OpenSQLite opens (or creates) a SQLite database at path. Use ":memory:"
// for a throwaway store.
func OpenSQLite(ctx context.Context, path, collection string) (*SQL, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQL(ctx, db, SQLite, collection)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres stores documents through an existing Postgres client.
func NewPostgres(ctx context.Context, client *postgres.Client, collection string) (*SQL, error) {
	return NewSQL(ctx, client.DB, Postgres, collection)
}

func NewSQL(ctx context.Context, db *sql.DB, dialect Dialect, collection string) (*SQL, error) {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return nil, fmt.Errorf("creating documents table: %w", err)
	}
	return &SQL{db: db, dialect: dialect, collection: collection}, nil
}

// q rewrites ? placeholders for the dialect.
func (s *SQL) q(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) Store(ctx context.Context, id string, doc schema.Document) (bool, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encoding document %s: %w", id, err)
	}
	res, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO documents (collection, id, body) VALUES (?, ?, ?) ON CONFLICT (collection, id) DO NOTHING`),
		s.collection, id, string(body))
	if err != nil {
		return false, fmt.Errorf("storing document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storing document %s: %w", id, err)
	}
	return n == 1, nil
}

func (s *SQL) Get(ctx context.Context, id string) (schema.Document, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT body FROM documents WHERE collection = ? AND id = ?`), s.collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading document %s: %w", id, err)
	}
	doc, err := decode(body)
	if err != nil {
		return nil, false, fmt.Errorf("decoding document %s: %w", id, err)
	}
	return doc, true, nil
}

func (s *SQL) GetMultiple(ctx context.Context, ids []string) ([]schema.Document, error) {
	out := make([]schema.Document, len(ids))
	for i, id := range ids {
		doc, _, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out[i] = doc
	}
	return out, nil
}

func (s *SQL) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM documents WHERE collection = ? AND id = ?`), s.collection, id)
	if err != nil {
		return false, fmt.Errorf("removing document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("removing document %s: %w", id, err)
	}
	return n == 1, nil
}

func (s *SQL) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT COUNT(*) FROM documents WHERE collection = ?`), s.collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

func (s *SQL) All(ctx context.Context) (map[string]schema.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id, body FROM documents WHERE collection = ?`), s.collection)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	out := make(map[string]schema.Document)
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc, err := decode(body)
		if err != nil {
			return nil, fmt.Errorf("decoding document %s: %w", id, err)
		}
		out[id] = doc
	}
	return out, rows.Err()
}

// Close closes the database handle. Stores sharing a Postgres client should
// close the client instead.
func (s *SQL) Close() error {
	return s.db.Close()
}

func decode(body string) (schema.Document, error) {
	var doc schema.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
