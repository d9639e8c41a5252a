package pipeline

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Snippet window geometry around a phrase hit, in bytes.
const (
	snippetLead  = 400
	snippetTrail = 500
)

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "for": true, "on": true, "by": true, "with": true,
	"is": true, "are": true, "be": true, "as": true, "at": true, "that": true,
	"this": true, "it": true, "from": true,
}

// SnippetOptions bounds snippet selection for one page.
type SnippetOptions struct {
	PerDoc   int
	MaxChars int
}

// DefaultSnippetOptions returns 3 snippets of at most 800 bytes.
func DefaultSnippetOptions() SnippetOptions {
	return SnippetOptions{PerDoc: 3, MaxChars: 800}
}

// tokenize lower-cases ASCII letters only, so byte offsets into the result
// match offsets into s.
func tokenize(s string) []string {
	return tokenRe.FindAllString(asciiLower(s), -1)
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// questionPhrases returns the distinct 5, 4 and 3 token windows over the
// question's non-stop-word tokens, longest first and then in question order.
func questionPhrases(tokens []string) []string {
	var content []string
	for _, t := range tokens {
		if !stopWords[t] {
			content = append(content, t)
		}
	}

	seen := make(map[string]bool)
	var phrases []string
	for n := 5; n >= 3; n-- {
		for i := 0; i+n <= len(content); i++ {
			ph := strings.Join(content[i:i+n], " ")
			if seen[ph] {
				continue
			}
			seen[ph] = true
			phrases = append(phrases, ph)
		}
	}
	return phrases
}

// PickSnippets selects up to opts.PerDoc windows of content likely to
// answer question. Windows around verbatim question phrases are preferred;
// otherwise the paragraphs sharing the most question tokens are returned.
// Every snippet is at most opts.MaxChars bytes.
func PickSnippets(content, question string, opts SnippetOptions) []string {
	if content == "" || opts.PerDoc <= 0 {
		return nil
	}

	qTokens := tokenize(question)
	lower := asciiLower(content)

	var windows []string
	for _, ph := range questionPhrases(qTokens) {
		idx := strings.Index(lower, ph)
		if idx < 0 {
			continue
		}
		start := max(0, idx-snippetLead)
		end := min(len(content), idx+len(ph)+snippetTrail)
		for start > 0 && !utf8.RuneStart(content[start]) {
			start++
		}
		for end < len(content) && !utf8.RuneStart(content[end]) {
			end--
		}
		windows = append(windows, truncate(content[start:end], opts.MaxChars))
		if len(windows) >= opts.PerDoc {
			break
		}
	}
	if len(windows) > 0 {
		return windows
	}

	return topParagraphs(content, qTokens, opts)
}

var paragraphBreakRe = regexp.MustCompile(`\n\s*\n`)

func topParagraphs(content string, qTokens []string, opts SnippetOptions) []string {
	type scored struct {
		text  string
		score int
	}

	want := make(map[string]bool, len(qTokens))
	for _, t := range qTokens {
		want[t] = true
	}

	var paras []scored
	for _, p := range paragraphBreakRe.Split(content, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		have := make(map[string]bool)
		for _, t := range tokenize(p) {
			have[t] = true
		}
		score := 0
		for t := range want {
			if have[t] {
				score++
			}
		}
		paras = append(paras, scored{text: p, score: score})
	}

	sort.SliceStable(paras, func(i, j int) bool { return paras[i].score > paras[j].score })

	var out []string
	for i := 0; i < len(paras) && i < opts.PerDoc; i++ {
		out = append(out, truncate(paras[i].text, opts.MaxChars))
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n < 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
