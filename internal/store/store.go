package store

import (
	"context"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-audit/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// maxSearchTerms bounds the OR-query built from a question.
const maxSearchTerms = 64

// RunFilter specifies criteria for listing audit runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store is the persistence interface: a full-text searchable corpus of
// policy pages plus a record of past audits.
type Store interface {
	// Policy pages
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error)
	ReplacePages(ctx context.Context, pages []model.PolicyPage) (int, error)
	CountPages(ctx context.Context) (int, error)

	// Audit runs
	SaveRun(ctx context.Context, run *model.AuditRun) error
	GetRun(ctx context.Context, id string) (*model.AuditRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.AuditRun, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

var termPattern = regexp.MustCompile(`[a-z0-9]+`)

// searchTerms lower-cases query and returns its unique alphanumeric terms in
// first-seen order. Any term matches, mirroring a text index's OR semantics;
// the backend's ranking decides relevance.
func searchTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range termPattern.FindAllString(strings.ToLower(query), -1) {
		if seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
		if len(terms) == maxSearchTerms {
			break
		}
	}
	return terms
}

func normalizeFilter(filter RunFilter) RunFilter {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return filter
}
