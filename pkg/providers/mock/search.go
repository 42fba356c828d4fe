package mock

import (
	"context"

	"github.com/sorenkast/voxen/pkg/adapters/search"
)

type SearchConfig struct {
	Snippets []search.Snippet
	Err      error
}

type Searcher struct {
	cfg SearchConfig
}

func NewSearcher(cfg SearchConfig) *Searcher {
	return &Searcher{cfg: cfg}
}

func (s *Searcher) Name() string { return "mock_search" }

func (s *Searcher) Search(_ context.Context, _ string) ([]search.Snippet, error) {
	if s.cfg.Err != nil {
		return nil, s.cfg.Err
	}
	return s.cfg.Snippets, nil
}

var _ search.Searcher = (*Searcher)(nil)
