package pipeline

import (
	"log"
	"path/filepath"

	"github.com/slotpress/slotpress/config"
	"github.com/slotpress/slotpress/internal/retrieval"
	"github.com/slotpress/slotpress/tools/web_fetch"
	"github.com/slotpress/slotpress/tools/web_search"
)

// Deps are the long-lived collaborators shared across runs. Everything
// per-run (the retrieval session, stage instances) is constructed fresh
// inside NewArticlePipeline.
type Deps struct {
	Cfg       *config.Config
	Catalog   GameFinder
	Generator Generator
	Embedder  retrieval.Embedder
	Searcher  web_search.WebSearcher
	Fetcher   web_fetch.WebFetcher
	Logger    *log.Logger
}

// NewArticlePipeline wires the standard stage sequence for one topic.
// Call it once per topic: the orchestrator it returns owns an ephemeral
// retrieval store that must not outlive the run.
func NewArticlePipeline(deps Deps) *Orchestrator {
	store := retrieval.NewStore(deps.Cfg.Retrieval, deps.Embedder, deps.Logger)
	stages := []Stage{
		&DBCheckStage{Catalog: deps.Catalog, Logger: deps.Logger},
		&QueryPlanStage{Generator: deps.Generator, Logger: deps.Logger},
		&SearchStage{Searcher: deps.Searcher, MaxResults: deps.Cfg.Search.MaxResults, Logger: deps.Logger},
		&ValidateStage{Generator: deps.Generator, Logger: deps.Logger},
		&OutlineStage{Generator: deps.Generator, Logger: deps.Logger},
		&IndexStage{
			Fetcher:   deps.Fetcher,
			Store:     store,
			ChunkSize: deps.Cfg.Retrieval.ChunkSize,
			Overlap:   deps.Cfg.Retrieval.ChunkOverlap,
			Logger:    deps.Logger,
		},
		&WriteStage{Generator: deps.Generator, Store: store, TopK: deps.Cfg.Retrieval.TopK, Logger: deps.Logger},
		&CompileStage{
			ArticlesDir: filepath.Join(deps.Cfg.General.OutputDir, "articles"),
			Logger:      deps.Logger,
		},
	}
	return NewOrchestrator(stages, store, deps.Logger)
}
