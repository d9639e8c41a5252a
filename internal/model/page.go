package model

// PolicyPage is one stored page of a policy document.
type PolicyPage struct {
	Filename   string `json:"filename"`
	PageNumber int    `json:"page_number"`
	Content    string `json:"content"`
}

// SearchResult is a PolicyPage ranked by a full-text search.
// Higher scores are more relevant.
type SearchResult struct {
	PolicyPage
	Score float64 `json:"score"`
}
