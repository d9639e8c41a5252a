package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/policy-audit/internal/model"
)

// Diagnostics recorded as evidence when a Met answer is malformed.
const (
	MissingEvidence = "STATUS was 'Met' but no EVIDENCE: section was found."
	EmptyEvidence   = "Evidence section was found but was empty."
)

var (
	statusMetRe = regexp.MustCompile(`(?i)STATUS:\s*Met`)
	evidenceRe  = regexp.MustCompile(`(?is)EVIDENCE:(.*)`)
	quoteRe     = regexp.MustCompile(`(?s)(["“])(.*?)["”]`)
	citationRe  = regexp.MustCompile(`(?i)\(\s*From\s+Filename:\s*(.+?)\s*,\s*Page:\s*(\d+|N/A)\s*\)`)
	// Filenames may contain commas; the lazy group stops at the first
	// ", Page: N) ---" that completes the marker.
	blockOpenRe = regexp.MustCompile(`(?i)--- START \(Filename: (.+?), Page: (\d+|N/A)\) ---\n\n`)
)

// ScoreFunc scores a quote found at byte offset pos of a normalized block.
// Higher wins; ties keep the earlier block.
type ScoreFunc func(pos int) float64

// PositionScore favors the block where the quote starts earliest.
func PositionScore(pos int) float64 {
	return 1.0 / float64(pos+1)
}

// ContextBlock is one START/END delimited region of a context.
type ContextBlock struct {
	Filename string
	Page     string
	Text     string
}

// ScanBlocks returns the blocks of policyContext whose START and END
// markers carry the same filename and page, in order.
func ScanBlocks(policyContext string) []ContextBlock {
	var blocks []ContextBlock
	pos := 0
	for pos < len(policyContext) {
		loc := blockOpenRe.FindStringSubmatchIndex(policyContext[pos:])
		if loc == nil {
			break
		}
		fname := policyContext[pos+loc[2] : pos+loc[3]]
		page := policyContext[pos+loc[4] : pos+loc[5]]
		bodyStart := pos + loc[1]

		closeRe := regexp.MustCompile(`(?i)--- END \(Filename: ` + regexp.QuoteMeta(fname) + `, Page: ` + regexp.QuoteMeta(page) + `\) ---`)
		end := closeRe.FindStringIndex(policyContext[bodyStart:])
		if end == nil {
			// Unpaired START; resume scanning just past it.
			pos += loc[0] + 1
			continue
		}
		blocks = append(blocks, ContextBlock{
			Filename: fname,
			Page:     page,
			Text:     policyContext[bodyStart : bodyStart+end[0]],
		})
		pos = bodyStart + end[1]
	}
	return blocks
}

// answerState is the parse state of a model answer.
type answerState int

const (
	stateNoStatus answerState = iota
	stateNotMet
	stateMetNoEvidence
	stateMetWithEvidence
)

// Verifier turns raw model answers into verdict status and evidence,
// re-deriving citations from the context the model was shown.
type Verifier struct {
	score ScoreFunc
}

// NewVerifier creates a Verifier. A nil score uses PositionScore.
func NewVerifier(score ScoreFunc) *Verifier {
	if score == nil {
		score = PositionScore
	}
	return &Verifier{score: score}
}

func classifyAnswer(answer string) (answerState, string) {
	if strings.TrimSpace(answer) == "" {
		return stateNoStatus, ""
	}
	if !statusMetRe.MatchString(answer) {
		return stateNotMet, ""
	}
	m := evidenceRe.FindStringSubmatch(answer)
	if m == nil {
		return stateMetNoEvidence, ""
	}
	return stateMetWithEvidence, strings.TrimSpace(m[1])
}

// Verify parses answer against policyContext. Anything other than a Met
// status is Not Met with "N/A" evidence. It never panics; a parse fault
// yields StatusError with a diagnostic.
func (v *Verifier) Verify(answer, policyContext string) (status model.Status, evidence string) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("pipeline: failed to parse model answer", zap.Any("panic", r))
			status, evidence = model.StatusError, fmt.Sprintf("Failed to parse AI response: %v", r)
		}
	}()

	state, evidenceText := classifyAnswer(answer)
	switch state {
	case stateNoStatus, stateNotMet:
		return model.StatusNotMet, model.EvidenceNA
	case stateMetNoEvidence:
		return model.StatusMet, MissingEvidence
	}

	if evidenceText == "" {
		return model.StatusMet, EmptyEvidence
	}
	return model.StatusMet, v.resolveEvidence(evidenceText, policyContext)
}

// resolveEvidence formats a verified citation for the quoted text, falling
// back to the model's own citation and then to the raw evidence.
func (v *Verifier) resolveEvidence(evidenceText, policyContext string) string {
	var quote string
	if m := quoteRe.FindStringSubmatch(evidenceText); m != nil {
		quote = strings.TrimSpace(m[2])
	}
	if quote == "" {
		return evidenceText
	}

	var fname, page string
	if m := citationRe.FindStringSubmatch(evidenceText); m != nil {
		fname, page = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}

	if policyContext != "" {
		if b, ok := v.locate(quote, policyContext); ok {
			if b.Filename != fname || b.Page != page {
				zap.L().Debug("pipeline: corrected citation",
					zap.String("claimed", fname+":"+page),
					zap.String("actual", b.Filename+":"+b.Page),
				)
			}
			fname, page = b.Filename, b.Page
		}
	}

	if fname == "" || page == "" {
		return evidenceText
	}
	return fmt.Sprintf(`(From Filename: %s, Page: %s) "%s"`, fname, page, quote)
}

// locate finds the best-scoring block containing quote, comparing with
// whitespace collapsed and case folded.
func (v *Verifier) locate(quote, policyContext string) (ContextBlock, bool) {
	needle := normalizeForMatch(quote)
	if needle == "" {
		return ContextBlock{}, false
	}

	var best ContextBlock
	bestScore := -1.0
	found := false
	for _, b := range ScanBlocks(policyContext) {
		pos := strings.Index(normalizeForMatch(b.Text), needle)
		if pos < 0 {
			continue
		}
		if s := v.score(pos); s > bestScore {
			best, bestScore, found = b, s, true
		}
	}
	return best, found
}

func normalizeForMatch(s string) string {
	return strings.ToLower(whitespaceRun.ReplaceAllString(s, " "))
}
