package pipeline

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/slotpress/slotpress/internal/retrieval"
	"github.com/slotpress/slotpress/tools/web_fetch"
	"github.com/slotpress/slotpress/utils"
)

// Researcher is the ephemeral store lifecycle the pipeline drives. One
// instance is shared by the indexer, writer and compiler stages of a
// single run and by nothing else.
type Researcher interface {
	Init(sessionID string) error
	Index(ctx context.Context, chunks []string) error
	Retrieve(ctx context.Context, query string, k int) []retrieval.Hit
	Cleanup()
}

// IndexStage scrapes the search-result pages concurrently, splits them
// into labeled chunks and loads the run's ephemeral index. Scrape errors
// are per-URL and non-fatal.
type IndexStage struct {
	Fetcher   web_fetch.WebFetcher
	Store     Researcher
	ChunkSize int
	Overlap   int
	Logger    *log.Logger
}

func (s *IndexStage) Name() string { return "scrape_index" }

func (s *IndexStage) Run(ctx context.Context, state *RunState) error {
	sessionID := utils.SessionID(state.Topic)
	if err := s.Store.Init(sessionID); err != nil {
		return stageError(s.Name(), err)
	}

	var urls []string
	for _, r := range state.SearchResults {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	if len(urls) == 0 {
		s.Logger.Printf("WARNING: no URLs to scrape for %q", state.Topic)
		return nil
	}

	s.Logger.Printf("scraping %d URLs", len(urls))
	contents := make([]string, len(urls))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, url := range urls {
		g.Go(func() error {
			content, err := s.Fetcher.Fetch(gctx, url)
			if err != nil {
				s.Logger.Printf("WARNING: skipping %s: %v", url, err)
				return nil
			}
			mu.Lock()
			contents[i] = content
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stageError(s.Name(), err)
	}

	var allChunks []string
	for i, content := range contents {
		if content == "" {
			continue
		}
		chunks := retrieval.SplitMarkdown(content, urls[i], s.ChunkSize, s.Overlap)
		allChunks = append(allChunks, chunks...)
	}
	s.Logger.Printf("generated %d clean chunks", len(allChunks))
	if len(allChunks) == 0 {
		return nil
	}

	if err := s.Store.Index(ctx, allChunks); err != nil {
		return stageError(s.Name(), err)
	}
	state.ChunksIndexed = len(allChunks)
	return nil
}
