package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegmentQuestions_NumberedList(t *testing.T) {
	t.Parallel()
	got := SegmentQuestions("1. Does the policy require X?\n2. Short?\n")
	assert.Equal(t, []string{"1. Does the policy require X?"}, got)
}

func TestSegmentQuestions_JoinsWrappedLines(t *testing.T) {
	t.Parallel()
	text := "3. Does the plan describe how members\nmay file a grievance?\n"
	got := SegmentQuestions(text)
	assert.Equal(t, []string{"3. Does the plan describe how members may file a grievance?"}, got)
}

func TestSegmentQuestions_RejoinsHyphenation(t *testing.T) {
	t.Parallel()
	text := "Does the policy require annual re-\ncredentialing of providers?"
	got := SegmentQuestions(text)
	assert.Equal(t, []string{"Does the policy require annual recredentialing of providers?"}, got)
}

func TestSegmentQuestions_StripsPrefixes(t *testing.T) {
	t.Parallel()
	text := strings.Join([]string{
		"(Reference: APL 21-004) Does the MCP notify members within ten days?",
		"Yes No Citation: Is there a documented appeals process for members?",
		"yes no: Are interpreter services offered at no cost?",
		"Citation: Is the grievance log reviewed every quarter?",
	}, "\n")
	got := SegmentQuestions(text)
	assert.Equal(t, []string{
		"Does the MCP notify members within ten days?",
		"Is there a documented appeals process for members?",
		"Are interpreter services offered at no cost?",
		"Is the grievance log reviewed every quarter?",
	}, got)
}

func TestSegmentQuestions_EnumeratorResetsUnterminated(t *testing.T) {
	t.Parallel()
	// Capitalized continuation lines are not soft-joined, so "2." starts a
	// fresh line while "1." is still pending.
	text := "1. Section heading without a question mark\n2. Does the policy cover\nRemote workers and contractors?\n"
	got := SegmentQuestions(text)
	assert.Equal(t, []string{"2. Does the policy cover Remote workers and contractors?"}, got)
}

func TestSegmentQuestions_NoQuestionMark(t *testing.T) {
	t.Parallel()
	assert.Empty(t, SegmentQuestions("This is a statement with many words in it.\nAnother long line of text here."))
}

func TestSegmentQuestions_ShortFragments(t *testing.T) {
	t.Parallel()
	assert.Empty(t, SegmentQuestions("Yes?\nIs it done?\nOne two three four?"))
	assert.Equal(t, []string{"One two three four five?"}, SegmentQuestions("One two three four five?"))
}

func TestSegmentQuestions_Empty(t *testing.T) {
	t.Parallel()
	assert.Nil(t, SegmentQuestions(""))
	assert.Nil(t, SegmentQuestions(" \n\t\n"))
}

func TestSegmentQuestions_NormalizesCompatibilityForms(t *testing.T) {
	t.Parallel()
	// U+FB01 (fi ligature) folds to "fi" under NFKC.
	got := SegmentQuestions("Is the ﬁnal report filed with the state?")
	assert.Equal(t, []string{"Is the final report filed with the state?"}, got)
}

func TestSegmentQuestions_EveryQuestionEndsWithMark(t *testing.T) {
	t.Parallel()
	text := "Intro text\n1. Does the policy require training for all staff?\nfollowed by notes\n2. Are records retained for ten years?\ntrailing words"
	for _, q := range SegmentQuestions(text) {
		assert.True(t, strings.HasSuffix(q, "?"), q)
		assert.Greater(t, len(strings.Fields(q)), 4, q)
	}
}
