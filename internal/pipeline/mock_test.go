package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/policy-audit/internal/model"
)

// --- Searcher Mock ---

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SearchResult), args.Error(1)
}

// --- Generator Mock ---

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// --- Extractor Mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) ExtractPages(ctx context.Context, path string) ([]string, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// --- Run Recorder Mock ---

type mockRunRecorder struct {
	mock.Mock
	saved []model.AuditRun
}

func (m *mockRunRecorder) SaveRun(ctx context.Context, run *model.AuditRun) error {
	m.saved = append(m.saved, *run)
	args := m.Called(ctx, run)
	return args.Error(0)
}

func page(filename string, n int, content string) model.SearchResult {
	return model.SearchResult{PolicyPage: model.PolicyPage{Filename: filename, PageNumber: n, Content: content}}
}
