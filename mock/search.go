package mock

import (
	"context"

	"github.com/fwojciec/medic"
)

var _ medic.Searcher = (*Searcher)(nil)

// Searcher is a test double for medic.Searcher.
type Searcher struct {
	SearchFn func(ctx context.Context, q medic.SearchQuery) ([]medic.SearchResult, error)
}

// Search delegates to SearchFn.
func (s *Searcher) Search(ctx context.Context, q medic.SearchQuery) ([]medic.SearchResult, error) {
	return s.SearchFn(ctx, q)
}
