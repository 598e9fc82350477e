package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/clarioo/compare-cli/internal/db"
	"github.com/clarioo/compare-cli/internal/resilience"
)

// PostgresKV implements KV using pgxpool.
type PostgresKV struct {
	pool  db.Pool
	retry resilience.RetryConfig
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a Store backed by a Postgres connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*RecordStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return NewRecordStore(NewPostgresKV(pool)), nil
}

// NewPostgresKV wraps an existing pool.
func NewPostgresKV(pool db.Pool) *PostgresKV {
	cfg := resilience.StoreRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("postgres", "put")
	return &PostgresKV{pool: pool, retry: cfg}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS comparison_records (
	project_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (project_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_comparison_records_kind ON comparison_records(kind);
`

func (s *PostgresKV) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresKV) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresKV) Get(ctx context.Context, projectID, kind string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM comparison_records WHERE project_id = $1 AND kind = $2`,
		projectID, kind,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s/%s", projectID, kind)
	}
	return data, nil
}

func (s *PostgresKV) Put(ctx context.Context, projectID, kind string, data []byte) error {
	err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO comparison_records (project_id, kind, data, updated_at) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (project_id, kind) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
			projectID, kind, string(data), time.Now().UTC(),
		)
		return err
	})
	return eris.Wrapf(err, "postgres: put %s/%s", projectID, kind)
}

func (s *PostgresKV) Delete(ctx context.Context, projectID string, kinds ...string) error {
	if len(kinds) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM comparison_records WHERE project_id = $1 AND kind = ANY($2)`,
		projectID, kinds,
	)
	return eris.Wrapf(err, "postgres: delete %s", projectID)
}

func (s *PostgresKV) Projects(ctx context.Context, kind string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT project_id FROM comparison_records WHERE kind = $1 ORDER BY project_id`,
		kind,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list projects")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan project id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list projects iterate")
}
