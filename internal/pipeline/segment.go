package pipeline

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// minQuestionWords is the smallest word count that is still a question
// rather than a stray fragment such as "Yes?".
const minQuestionWords = 5

var (
	hyphenWrapRe  = regexp.MustCompile(`-\s*\n\s*`)
	softBreakRe   = regexp.MustCompile(`([a-z,;])\s*\n\s*([a-z])`)
	linePrefixRe  = regexp.MustCompile(`(?i)^\s*(\(\s*reference:[^)]+\)|yes\s*no\s*citation:|yes\s*no:|citation:)\s*`)
	enumeratorRe  = regexp.MustCompile(`^\s*\d+\.`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// SegmentQuestions splits text extracted from an audit document into
// discrete questions. Pages should be joined with newlines before calling.
// It never fails: unreadable or question-free text yields nil.
func SegmentQuestions(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	text = norm.NFKC.String(text)
	text = hyphenWrapRe.ReplaceAllString(text, "")
	text = softBreakRe.ReplaceAllString(text, "$1 $2")

	var (
		questions []string
		pending   []string
	)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(linePrefixRe.ReplaceAllString(raw, ""))
		if line == "" {
			continue
		}

		if strings.HasSuffix(line, "?") {
			pending = append(pending, line)
			q := collapseWhitespace(strings.Join(pending, " "))
			if len(strings.Fields(q)) >= minQuestionWords {
				questions = append(questions, q)
			} else {
				zap.L().Debug("pipeline: skipping short question fragment", zap.String("fragment", q))
			}
			pending = nil
			continue
		}

		// A new enumerator abandons an unterminated candidate.
		if enumeratorRe.MatchString(line) && len(pending) > 0 {
			zap.L().Debug("pipeline: dropping unterminated question",
				zap.String("fragment", truncate(strings.Join(pending, " "), 100)))
			pending = []string{line}
			continue
		}
		pending = append(pending, line)
	}

	return questions
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
