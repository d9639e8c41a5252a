package model

// Status is the outcome of auditing one question.
type Status string

const (
	StatusMet    Status = "Met"
	StatusNotMet Status = "Not Met"
	StatusError  Status = "Error"
)

// EvidenceNA is the evidence value for verdicts that carry no citation.
const EvidenceNA = "N/A"

// Verdict is the final, immutable result for a single question.
type Verdict struct {
	Question string `json:"question"`
	Status   Status `json:"status"`
	Evidence string `json:"evidence"`
}

// ErrorVerdict builds an Error verdict carrying a diagnostic message.
func ErrorVerdict(question, msg string) Verdict {
	return Verdict{Question: question, Status: StatusError, Evidence: msg}
}

// VerdictSummary tallies verdicts by status.
type VerdictSummary struct {
	Total  int `json:"total"`
	Met    int `json:"met"`
	NotMet int `json:"not_met"`
	Errors int `json:"errors"`
}

// Summarize counts verdicts by status.
func Summarize(verdicts []Verdict) VerdictSummary {
	s := VerdictSummary{Total: len(verdicts)}
	for _, v := range verdicts {
		switch v.Status {
		case StatusMet:
			s.Met++
		case StatusNotMet:
			s.NotMet++
		default:
			s.Errors++
		}
	}
	return s
}
