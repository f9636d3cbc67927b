package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/slotpress/slotpress/config"
	"github.com/slotpress/slotpress/internal/catalog"
	"github.com/slotpress/slotpress/internal/notify"
	"github.com/slotpress/slotpress/internal/pipeline"
	"github.com/slotpress/slotpress/internal/publish"
	"github.com/slotpress/slotpress/internal/scheduler"
	"github.com/slotpress/slotpress/provider"
	"github.com/slotpress/slotpress/tools/web_fetch"
	"github.com/slotpress/slotpress/tools/web_search"
)

// app bundles the long-lived collaborators every command needs. The game
// catalog is optional: without Postgres the pipeline still writes generic
// articles, only the daemon refuses to start.
type app struct {
	cfg       *config.Config
	logger    *log.Logger
	prov      provider.Provider
	db        *sql.DB
	catalog   *catalog.Store
	tiers     *catalog.TierBook
	searcher  web_search.WebSearcher
	fetcher   web_fetch.WebFetcher
	publisher *publish.Client
	notifier  *notify.Notifier
}

func buildApp(cfgPath string) (*app, error) {
	cfg := config.LoadConfig(cfgPath)
	logger := log.New(os.Stdout, "[SLOTPRESS] ", log.LstdFlags)

	prov, err := provider.NewProvider(provider.OpenAI, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating model provider: %w", err)
	}

	hostOrKey := cfg.Search.Host
	if web_search.Provider(cfg.Search.Provider) == web_search.SerperProvider {
		hostOrKey = cfg.Search.APIKey
	}
	searcher, err := web_search.NewWebSearcher(web_search.Provider(cfg.Search.Provider), hostOrKey)
	if err != nil {
		return nil, fmt.Errorf("creating web searcher: %w", err)
	}

	fetcher, err := web_fetch.NewWebFetcher(web_fetch.FetcherType(cfg.Fetch.Provider), cfg.Fetch.JinaAPIKey, cfg.Fetch.Timeout, cfg.Fetch.MaxChars)
	if err != nil {
		return nil, fmt.Errorf("creating web fetcher: %w", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		prov:      prov,
		searcher:  searcher,
		fetcher:   fetcher,
		tiers:     catalog.LoadTierBook(cfg.Catalog.TiersFile, logger),
		publisher: publish.NewClient(cfg.Publish, logger),
		notifier:  notify.NewNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, logger),
	}

	if dsn, err := cfg.Catalog.Postgres.DSN(); err == nil {
		db, err := catalog.Open(dsn)
		if err != nil {
			return nil, fmt.Errorf("connecting to game catalog: %w", err)
		}
		a.db = db
		a.catalog = catalog.NewStore(db, logger)
	} else {
		logger.Printf("WARNING: game catalog disabled: %v", err)
	}

	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

// runFunc returns the per-topic pipeline entry point. Each call builds a
// fresh pipeline so runs never share a retrieval session.
func (a *app) runFunc() scheduler.RunFunc {
	deps := pipeline.Deps{
		Cfg:       a.cfg,
		Generator: a.prov,
		Embedder:  a.prov,
		Searcher:  a.searcher,
		Fetcher:   a.fetcher,
		Logger:    a.logger,
	}
	if a.catalog != nil {
		deps.Catalog = a.catalog
	}
	return func(ctx context.Context, topic string) (*pipeline.RunState, pipeline.Outcome, error) {
		return pipeline.NewArticlePipeline(deps).Run(ctx, topic)
	}
}
