package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionPhrases(t *testing.T) {
	t.Parallel()
	tokens := tokenize("Does the policy require annual security training?")
	// Stop words removed: does policy require annual security training
	phrases := questionPhrases(tokens)
	assert.Equal(t, []string{
		"does policy require annual security",
		"policy require annual security training",
		"does policy require annual",
		"policy require annual security",
		"require annual security training",
		"does policy require",
		"policy require annual",
		"require annual security",
		"annual security training",
	}, phrases)
}

func TestQuestionPhrases_TooFewTokens(t *testing.T) {
	t.Parallel()
	assert.Empty(t, questionPhrases(tokenize("Is it the policy?")))
}

func TestPickSnippets_PhraseWindow(t *testing.T) {
	t.Parallel()
	content := strings.Repeat("x", 1000) + " Staff complete annual security training each March. " + strings.Repeat("y", 1000)
	snippets := PickSnippets(content, "Do staff complete annual security training?", SnippetOptions{PerDoc: 3, MaxChars: 2000})
	require.NotEmpty(t, snippets)
	assert.Contains(t, snippets[0], "Staff complete annual security training")
	// Window is at most 400 bytes before the hit and 500 after it.
	assert.LessOrEqual(t, len(snippets[0]), 400+len("staff complete annual security training")+500)
}

func TestPickSnippets_CaseInsensitive(t *testing.T) {
	t.Parallel()
	// A phrase hit returns one window spanning both short paragraphs; the
	// paragraph fallback would have returned two entries.
	content := "Intro paragraph.\n\nThe Board performs an ANNUAL SECURITY REVIEW each year."
	snippets := PickSnippets(content, "Is there an annual security review process?", DefaultSnippetOptions())
	require.Len(t, snippets, 1)
	assert.Equal(t, content, snippets[0])
}

func TestPickSnippets_PerDocAndMaxChars(t *testing.T) {
	t.Parallel()
	content := strings.Repeat("staff receive annual security training yearly. ", 200)
	opts := SnippetOptions{PerDoc: 2, MaxChars: 100}
	snippets := PickSnippets(content, "Do staff receive annual security training yearly?", opts)
	assert.Len(t, snippets, 2)
	for _, s := range snippets {
		assert.LessOrEqual(t, len(s), 100)
	}
}

func TestPickSnippets_ParagraphFallback(t *testing.T) {
	t.Parallel()
	content := "Welcome to the handbook.\n\nVacation accrues monthly for employees.\n\n  \n\nEmployees accrue vacation and sick leave monthly."
	snippets := PickSnippets(content, "How does vacation leave accrue?", SnippetOptions{PerDoc: 2, MaxChars: 800})
	require.Len(t, snippets, 2)
	assert.Equal(t, "Employees accrue vacation and sick leave monthly.", snippets[0])
	assert.Equal(t, "Vacation accrues monthly for employees.", snippets[1])
}

func TestPickSnippets_FallbackStableOnTies(t *testing.T) {
	t.Parallel()
	content := "alpha one\n\nbeta two\n\ngamma three"
	snippets := PickSnippets(content, "Unrelated question text here?", SnippetOptions{PerDoc: 2, MaxChars: 800})
	assert.Equal(t, []string{"alpha one", "beta two"}, snippets)
}

func TestPickSnippets_Empty(t *testing.T) {
	t.Parallel()
	assert.Nil(t, PickSnippets("", "Does the policy require annual review?", DefaultSnippetOptions()))
}

func TestPickSnippets_Deterministic(t *testing.T) {
	t.Parallel()
	content := strings.Repeat("filler text. ", 50) + "policy require annual review " + strings.Repeat("more filler. ", 50) + "require annual review process"
	q := "Does the policy require annual review process?"
	first := PickSnippets(content, q, DefaultSnippetOptions())
	for range 20 {
		assert.Equal(t, first, PickSnippets(content, q, DefaultSnippetOptions()))
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	t.Parallel()
	s := "héllo"
	got := truncate(s, 2)
	assert.Equal(t, "h", got)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, s, truncate(s, 100))
}
