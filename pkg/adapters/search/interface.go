package search

import "context"

// Snippet is one search result fragment used to ground a response.
type Snippet struct {
	Title   string
	Content string
}

// Searcher defines the contract for a web search provider.
type Searcher interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Search runs the query and returns grounding snippets, most
	// relevant first.
	Search(ctx context.Context, query string) ([]Snippet, error)
}
