package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-audit/internal/db"
	"github.com/sells-group/policy-audit/internal/model"
)

// PostgresStore implements Store using pgxpool and a tsvector index.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var pageColumns = []string{"filename", "page_number", "content"}

const runColumns = `id, source, status, question_count, verdicts, error, created_at, updated_at`

const searchPagesSQL = `SELECT filename, page_number, content, ts_rank(tsv, to_tsquery('english', $1)) AS score
FROM policy_pages
WHERE tsv @@ to_tsquery('english', $1)
ORDER BY score DESC, filename, page_number
LIMIT $2`

const saveRunSQL = `INSERT INTO audit_runs (id, source, status, question_count, verdicts, error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	question_count = EXCLUDED.question_count,
	verdicts = EXCLUDED.verdicts,
	error = EXCLUDED.error,
	updated_at = EXCLUDED.updated_at`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
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
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS policy_pages (
	id          BIGSERIAL PRIMARY KEY,
	filename    TEXT NOT NULL,
	page_number INTEGER NOT NULL,
	content     TEXT NOT NULL,
	tsv         tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED
);

CREATE INDEX IF NOT EXISTS idx_policy_pages_tsv ON policy_pages USING GIN (tsv);

CREATE TABLE IF NOT EXISTS audit_runs (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source         TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'running',
	question_count INTEGER NOT NULL DEFAULT 0,
	verdicts       JSONB,
	error          TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_audit_runs_status ON audit_runs(status);
CREATE INDEX IF NOT EXISTS idx_audit_runs_created_at ON audit_runs(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Search ranks pages with ts_rank over an OR of the query's terms.
func (s *PostgresStore) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	terms := searchTerms(query)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, searchPagesSQL, strings.Join(terms, " | "), limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search")
	}
	defer rows.Close()

	var results []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		var score float32
		if err := rows.Scan(&r.Filename, &r.PageNumber, &r.Content, &score); err != nil {
			return nil, eris.Wrap(err, "postgres: scan search result")
		}
		r.Score = float64(score)
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: search iterate")
}

// ReplacePages truncates the corpus and COPYs the new pages in one
// transaction, then refreshes planner statistics for the text index.
func (s *PostgresStore) ReplacePages(ctx context.Context, pages []model.PolicyPage) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin replace pages")
	}

	rollback := func(cause error) (int, error) {
		_ = tx.Rollback(ctx)
		return 0, cause
	}

	if _, err := tx.Exec(ctx, `TRUNCATE policy_pages RESTART IDENTITY`); err != nil {
		return rollback(eris.Wrap(err, "postgres: clear pages"))
	}

	rows := make([][]any, len(pages))
	for i, p := range pages {
		rows[i] = []any{p.Filename, p.PageNumber, p.Content}
	}
	n, err := db.CopyFrom(ctx, tx, "policy_pages", pageColumns, rows)
	if err != nil {
		return rollback(eris.Wrap(err, "postgres: load pages"))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit replace pages")
	}

	if _, err := s.pool.Exec(ctx, `ANALYZE policy_pages`); err != nil {
		return int(n), eris.Wrap(err, "postgres: analyze pages")
	}
	return int(n), nil
}

func (s *PostgresStore) CountPages(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM policy_pages`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count pages")
	}
	return n, nil
}

// SaveRun inserts or updates run. An empty ID is assigned a new UUID.
func (s *PostgresStore) SaveRun(ctx context.Context, run *model.AuditRun) error {
	now := time.Now().UTC()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	verdictsJSON, err := json.Marshal(run.Verdicts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal verdicts")
	}

	_, err = s.pool.Exec(ctx, saveRunSQL,
		run.ID, run.Source, string(run.Status), run.QuestionCount, verdictsJSON, run.Error, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save run %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.AuditRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM audit_runs WHERE id = $1`, id,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.AuditRun, error) {
	filter = normalizeFilter(filter)

	query := `SELECT ` + runColumns + ` FROM audit_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.AuditRun
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPgRun(row pgx.Row) (*model.AuditRun, error) {
	var r model.AuditRun
	var status string
	var verdictsJSON []byte

	if err := row.Scan(&r.ID, &r.Source, &status, &r.QuestionCount, &verdictsJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if len(verdictsJSON) > 0 {
		if err := json.Unmarshal(verdictsJSON, &r.Verdicts); err != nil {
			return nil, eris.Wrap(err, "unmarshal verdicts")
		}
	}
	return &r, nil
}
