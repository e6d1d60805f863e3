// Package sqlitestore persists transcript snapshots in SQLite.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/koscakluka/ema-studio/core/transcript"
)

type Store struct {
	db *sql.DB
}

var _ transcript.SnapshotStore = &Store{}

func New(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("sqlite snapshot store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DSNForFile returns a DSN opening path in WAL mode.
func DSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite snapshot store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, key string, entries []transcript.Entry) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite snapshot store: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("sqlite snapshot store: key is empty")
	}
	data, err := transcript.MarshalSnapshot(entries)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transcript_snapshots (snapshot_key, entries_json, entry_count, updated_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(snapshot_key) DO UPDATE SET
			entries_json = excluded.entries_json,
			entry_count = excluded.entry_count,
			updated_at_ms = excluded.updated_at_ms
	`, key, string(data), len(entries), time.Now().UnixMilli())
	if err != nil {
		return errors.Wrap(err, "sqlite snapshot store: upsert snapshot")
	}
	return nil
}

func (s *Store) Load(ctx context.Context, key string) ([]transcript.Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite snapshot store: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("sqlite snapshot store: key is empty")
	}

	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT entries_json FROM transcript_snapshots WHERE snapshot_key = ?
	`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlite snapshot store: select snapshot")
	}

	entries, err := transcript.UnmarshalSnapshot([]byte(data))
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite snapshot store: decode snapshot %q", key)
	}
	return entries, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite snapshot store: db is nil")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transcript_snapshots WHERE snapshot_key = ?`, key); err != nil {
		return errors.Wrap(err, "sqlite snapshot store: delete snapshot")
	}
	return nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcript_snapshots (
		  snapshot_key TEXT PRIMARY KEY,
		  entries_json TEXT NOT NULL,
		  entry_count INTEGER NOT NULL DEFAULT 0,
		  updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS transcript_snapshots_by_updated
		  ON transcript_snapshots(updated_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite snapshot store: migrate")
		}
	}
	return nil
}
