package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/policy-audit/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite with an FTS5 index.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas are applied by the driver to every pooled connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// sqliteDSN appends the connection pragmas to dsn as _pragma query
// parameters, leaving any pragma the caller already set alone.
func sqliteDSN(dsn string) string {
	var params []string
	for _, p := range sqlitePragmas {
		name := p[:strings.IndexByte(p, '(')]
		if strings.Contains(dsn, "_pragma="+name) {
			continue
		}
		params = append(params, "_pragma="+p)
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// NewSQLite opens a SQLite database at the given path in WAL mode. The
// pragmas travel in the DSN so every connection the pool opens gets them.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: connect")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE VIRTUAL TABLE IF NOT EXISTS policy_pages USING fts5(
	filename UNINDEXED,
	page_number UNINDEXED,
	content,
	tokenize = 'porter unicode61'
);

CREATE TABLE IF NOT EXISTS audit_runs (
	id             TEXT PRIMARY KEY,
	source         TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'running',
	question_count INTEGER NOT NULL DEFAULT 0,
	verdicts       TEXT,
	error          TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_audit_runs_status ON audit_runs(status);
CREATE INDEX IF NOT EXISTS idx_audit_runs_created_at ON audit_runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Search ranks pages with FTS5 bm25. bm25 is lower-is-better, so the score
// is negated to keep SearchResult.Score higher-is-better.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	terms := searchTerms(query)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT filename, page_number, content, bm25(policy_pages) AS score
		 FROM policy_pages
		 WHERE policy_pages MATCH ?
		 ORDER BY score, filename, page_number
		 LIMIT ?`,
		strings.Join(quoted, " OR "), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search")
	}
	defer rows.Close()

	var results []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		var rank float64
		if err := rows.Scan(&r.Filename, &r.PageNumber, &r.Content, &rank); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan search result")
		}
		r.Score = -rank
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: search iterate")
}

// ReplacePages swaps the whole corpus in one transaction, then merges the
// FTS5 index segments.
func (s *SQLiteStore) ReplacePages(ctx context.Context, pages []model.PolicyPage) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin replace pages")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM policy_pages`); err != nil {
		return 0, eris.Wrap(err, "sqlite: clear pages")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO policy_pages (filename, page_number, content) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare page insert")
	}
	defer stmt.Close()

	for _, p := range pages {
		if _, err := stmt.ExecContext(ctx, p.Filename, p.PageNumber, p.Content); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert page %s:%d", p.Filename, p.PageNumber)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit replace pages")
	}

	if _, err := s.db.ExecContext(ctx, `INSERT INTO policy_pages(policy_pages) VALUES('optimize')`); err != nil {
		return len(pages), eris.Wrap(err, "sqlite: optimize index")
	}
	return len(pages), nil
}

func (s *SQLiteStore) CountPages(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM policy_pages`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count pages")
	}
	return n, nil
}

// SaveRun inserts or updates run. An empty ID is assigned a new UUID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.AuditRun) error {
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
		return eris.Wrap(err, "sqlite: marshal verdicts")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_runs (id, source, status, question_count, verdicts, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			question_count = excluded.question_count,
			verdicts = excluded.verdicts,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		run.ID, run.Source, string(run.Status), run.QuestionCount, string(verdictsJSON), run.Error, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save run %s", run.ID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.AuditRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, question_count, verdicts, error, created_at, updated_at FROM audit_runs WHERE id = ?`,
		id,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.AuditRun, error) {
	filter = normalizeFilter(filter)

	query := `SELECT id, source, status, question_count, verdicts, error, created_at, updated_at FROM audit_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.AuditRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.AuditRun, error) {
	var r model.AuditRun
	var verdictsJSON sql.NullString

	if err := row.Scan(&r.ID, &r.Source, &r.Status, &r.QuestionCount, &verdictsJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if verdictsJSON.Valid && verdictsJSON.String != "" {
		if err := json.Unmarshal([]byte(verdictsJSON.String), &r.Verdicts); err != nil {
			return nil, eris.Wrap(err, "unmarshal verdicts")
		}
	}
	return &r, nil
}
