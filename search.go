package medic

import "context"

// SearchQuery is one web search request.
type SearchQuery struct {
	Query      string
	Depth      string // basic or advanced
	Topic      string // general, news or finance
	MaxResults int
}

// SearchResult is one ranked hit with its source attribution.
type SearchResult struct {
	Title   string
	URL     string
	Content string
	Score   float64
}

// Searcher is a web search backend.
type Searcher interface {
	Search(ctx context.Context, q SearchQuery) ([]SearchResult, error)
}
