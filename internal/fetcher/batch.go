package fetcher

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchResult pairs a request with its outcome.
type BatchResult struct {
	Request Request
	Result  *Result
	Err     error
}

// FetchMany runs independent fetches with at most concurrency in flight
// (unbounded when concurrency <= 0). Results keep the order of reqs; one
// failed request never affects the others.
func (s *Service) FetchMany(ctx context.Context, reqs []Request, concurrency int) []BatchResult {
	out := make([]BatchResult, len(reqs))
	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, req := range reqs {
		g.Go(func() error {
			res, err := s.Fetch(ctx, req)
			out[i] = BatchResult{Request: req, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
