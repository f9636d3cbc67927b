package pipeline

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/slotpress/slotpress/tools/web_search"
	"github.com/slotpress/slotpress/tools/web_search/models"
)

// SearchStage fans out over the planned queries concurrently and merges
// the results, deduplicated by URL in first-seen order. A failed query is
// logged and excluded, never fatal.
type SearchStage struct {
	Searcher   web_search.WebSearcher
	MaxResults int
	Logger     *log.Logger
}

func (s *SearchStage) Name() string { return "broad_search" }

func (s *SearchStage) Run(ctx context.Context, state *RunState) error {
	if len(state.SearchQueries) == 0 {
		state.SearchResults = nil
		return nil
	}

	perQuery := make([][]models.Result, len(state.SearchQueries))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, query := range state.SearchQueries {
		g.Go(func() error {
			results, err := s.Searcher.Search(gctx, query, s.MaxResults)
			if err != nil {
				s.Logger.Printf("WARNING: search %q failed: %v", query, err)
				return nil
			}
			mu.Lock()
			perQuery[i] = results
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stageError(s.Name(), err)
	}

	seen := map[string]bool{}
	var merged []models.Result
	for _, results := range perQuery {
		for _, r := range results {
			if r.URL == "" || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			merged = append(merged, r)
		}
	}
	s.Logger.Printf("broad search found %d unique results", len(merged))
	state.SearchResults = merged
	return nil
}
