package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps documents in a single sqlite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database file at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create sqlite directory")
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	conn.SetMaxOpenConns(1)

	s := &SQLiteStore{db: conn}
	if err := s.InitTable(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) InitTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			doc_key TEXT NOT NULL,
			version INTEGER NOT NULL,
			body BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (collection, doc_key)
		);
	`
	_, err := s.db.ExecContext(ctx, query)
	return errors.Wrap(err, "create documents table")
}

func (s *SQLiteStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	query := `SELECT doc_key, version, body, updated_at FROM documents WHERE collection = ? AND doc_key = ?`
	row := s.db.QueryRowContext(ctx, query, collection, key)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%s", collection, key)
	}
	return doc, nil
}

func (s *SQLiteStore) Create(ctx context.Context, collection, key string, data []byte) error {
	query := `
		INSERT INTO documents (collection, doc_key, version, body, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(collection, doc_key) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query, collection, key, data, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrapf(err, "create %s/%s", collection, key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *SQLiteStore) CompareAndUpdate(ctx context.Context, collection, key string, expectedVersion int64, data []byte) error {
	query := `
		UPDATE documents SET body = ?, version = version + 1, updated_at = ?
		WHERE collection = ? AND doc_key = ? AND version = ?
	`
	res, err := s.db.ExecContext(ctx, query, data, time.Now().UTC().Format(time.RFC3339Nano), collection, key, expectedVersion)
	if err != nil {
		return errors.Wrapf(err, "update %s/%s", collection, key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 1 {
		return nil
	}
	if _, err := s.Get(ctx, collection, key); err != nil {
		return err
	}
	return ErrVersionConflict
}

func (s *SQLiteStore) List(ctx context.Context, collection string) ([]*Document, error) {
	query := `SELECT doc_key, version, body, updated_at FROM documents WHERE collection = ? ORDER BY doc_key`
	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", collection)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var updatedAt string
	if err := row.Scan(&doc.Key, &doc.Version, &doc.Data, &updatedAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, err
	}
	doc.UpdatedAt = t
	return &doc, nil
}
