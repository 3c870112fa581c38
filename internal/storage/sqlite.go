//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"nodenet/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveNodenet(ctx context.Context, record model.NodenetRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeNodenet(record)
	if err != nil {
		return err
	}

	summary := summarize(record)
	_, err = db.ExecContext(ctx, `
		INSERT INTO nodenets (uid, name, owner, step, node_count, link_count, version, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			name = excluded.name,
			owner = excluded.owner,
			step = excluded.step,
			node_count = excluded.node_count,
			link_count = excluded.link_count,
			version = excluded.version,
			payload = excluded.payload
	`, summary.UID, summary.Name, summary.Owner, summary.Step, summary.Nodes, summary.Links, record.Version, payload)
	return err
}

func (s *SQLiteStore) GetNodenet(ctx context.Context, uid string) (model.NodenetRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.NodenetRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM nodenets WHERE uid = ?`, uid).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NodenetRecord{}, false, nil
		}
		return model.NodenetRecord{}, false, err
	}

	record, err := DecodeNodenet(payload)
	if err != nil {
		return model.NodenetRecord{}, false, fmt.Errorf("decode nodenet %s: %w", uid, err)
	}
	return record, true, nil
}

func (s *SQLiteStore) ListNodenets(ctx context.Context) ([]Summary, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT uid, name, owner, step, node_count, link_count
		FROM nodenets
		ORDER BY uid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Summary, 0)
	for rows.Next() {
		var summary Summary
		if err := rows.Scan(&summary.UID, &summary.Name, &summary.Owner, &summary.Step, &summary.Nodes, &summary.Links); err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteNodenet(ctx context.Context, uid string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM nodenets WHERE uid = ?`, uid)
	return err
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS nodenets (
			uid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			owner TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_count INTEGER NOT NULL,
			link_count INTEGER NOT NULL,
			version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
