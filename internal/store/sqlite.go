package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteKV implements KV using modernc.org/sqlite.
type SQLiteKV struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path, configures WAL mode,
// and returns a Store on top of it.
func NewSQLite(dsn string) (*RecordStore, error) {
	kv, err := NewSQLiteKV(dsn)
	if err != nil {
		return nil, err
	}
	return NewRecordStore(kv), nil
}

// NewSQLiteKV opens the raw KV backend.
func NewSQLiteKV(dsn string) (*SQLiteKV, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteKV{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS comparison_records (
	project_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (project_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_comparison_records_kind ON comparison_records(kind);
`

func (s *SQLiteKV) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteKV) Close() error {
	return s.db.Close()
}

func (s *SQLiteKV) Get(ctx context.Context, projectID, kind string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM comparison_records WHERE project_id = ? AND kind = ?`,
		projectID, kind,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s/%s", projectID, kind)
	}
	return []byte(data), nil
}

func (s *SQLiteKV) Put(ctx context.Context, projectID, kind string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO comparison_records (project_id, kind, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(project_id, kind) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		projectID, kind, string(data), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put %s/%s", projectID, kind)
}

func (s *SQLiteKV) Delete(ctx context.Context, projectID string, kinds ...string) error {
	if len(kinds) == 0 {
		return nil
	}
	args := []any{projectID}
	for _, k := range kinds {
		args = append(args, k)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(kinds)), ",")
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM comparison_records WHERE project_id = ? AND kind IN (`+placeholders+`)`,
		args...,
	)
	return eris.Wrapf(err, "sqlite: delete %s", projectID)
}

func (s *SQLiteKV) Projects(ctx context.Context, kind string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id FROM comparison_records WHERE kind = ? ORDER BY project_id`,
		kind,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list projects")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan project id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list projects iterate")
}
