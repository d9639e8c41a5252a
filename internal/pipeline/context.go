package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/policy-audit/internal/model"
)

// Sentinel contexts returned in place of policy text.
const (
	NoContextFound = "No relevant policy documents found."
	SearchFailed   = "Error searching database."
)

const unknownDocument = "Unknown Document"

// Searcher is the full-text page search the assembler depends on.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error)
}

// AssemblerConfig controls retrieval and the context budget.
type AssemblerConfig struct {
	SnippetMode bool
	TopK        int
	Snippets    SnippetOptions
	MaxChars    int
}

// DefaultAssemblerConfig returns snippet mode over the top 7 pages with an
// 18000 byte ceiling.
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		SnippetMode: true,
		TopK:        7,
		Snippets:    DefaultSnippetOptions(),
		MaxChars:    18000,
	}
}

// Assembler builds the delimited policy context for a question.
type Assembler struct {
	search Searcher
	cfg    AssemblerConfig
}

// NewAssembler creates an Assembler over search.
func NewAssembler(search Searcher, cfg AssemblerConfig) *Assembler {
	return &Assembler{search: search, cfg: cfg}
}

// blockLabel renders the shared START/END marker identity.
func blockLabel(filename string, page int) string {
	if filename == "" {
		filename = unknownDocument
	}
	p := "N/A"
	if page > 0 {
		p = strconv.Itoa(page)
	}
	return fmt.Sprintf("(Filename: %s, Page: %s)", filename, p)
}

func startMarker(label string) string { return "--- START " + label + " ---" }
func endMarker(label string) string   { return "--- END " + label + " ---" }

// Block renders one page as a context block. In snippet mode it returns ""
// when the page yields no snippets.
func (a *Assembler) Block(question string, page model.PolicyPage) string {
	label := blockLabel(page.Filename, page.PageNumber)

	if !a.cfg.SnippetMode {
		return "\n\n" + startMarker(label) + "\n\n" + page.Content + "\n\n" + endMarker(label) + "\n\n"
	}

	snippets := PickSnippets(page.Content, question, a.cfg.Snippets)
	if len(snippets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(snippets)+2)
	parts = append(parts, startMarker(label))
	parts = append(parts, snippets...)
	parts = append(parts, endMarker(label))
	return strings.Join(parts, "\n\n") + "\n\n"
}

// Context returns the policy context for question, or one of the sentinel
// strings. Blocks are added in relevance order while the total stays within
// MaxChars; the first block is always kept.
func (a *Assembler) Context(ctx context.Context, question string) string {
	log := zap.L().With(zap.String("question", truncate(question, 80)))

	results, err := a.search.Search(ctx, question, a.cfg.TopK)
	if err != nil {
		log.Warn("pipeline: context search failed", zap.Error(err))
		return SearchFailed
	}

	var b strings.Builder
	accepted := 0
	for _, r := range results {
		block := a.Block(question, r.PolicyPage)
		if block == "" {
			continue
		}
		if accepted > 0 && b.Len()+len(block) > a.cfg.MaxChars {
			break
		}
		b.WriteString(block)
		accepted++
	}

	if accepted == 0 {
		log.Info("pipeline: no relevant context found")
		return NoContextFound
	}

	log.Debug("pipeline: assembled context",
		zap.Int("blocks", accepted),
		zap.Int("chars", b.Len()),
		zap.Bool("snippets", a.cfg.SnippetMode),
	)
	return b.String()
}
