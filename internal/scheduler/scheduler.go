package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/slotpress/slotpress/config"
	"github.com/slotpress/slotpress/internal/catalog"
	"github.com/slotpress/slotpress/internal/pipeline"
	"github.com/slotpress/slotpress/internal/publish"
	"github.com/slotpress/slotpress/internal/server"
	"github.com/slotpress/slotpress/provider"
	"github.com/slotpress/slotpress/utils"
)

const runLockKey = "slotpress:daemon:lock"
const runLockTTL = 5 * time.Minute

// midnightExpr drives the daily counter reset.
var midnightExpr = cronexpr.MustParse("0 0 * * *")

// Game is one catalog entry with its provider tier resolved. The daemon
// walks games in tier order, tier 1 first, id order within a tier.
type Game struct {
	ID   int
	Name string
	Slug string
	Tier int
}

// GameSource lists the catalog rows the rotation is built from.
type GameSource interface {
	ListGames(ctx context.Context) ([]catalog.GameRef, error)
}

// TierSource resolves a provider name to its popularity tier.
type TierSource interface {
	TierOf(provider string) int
}

// Publisher is the CMS surface the daemon needs: connection check,
// published history and the upload itself.
type Publisher interface {
	CheckConnection(ctx context.Context) error
	PublishedSets(ctx context.Context) (topics, slugs map[string]bool, err error)
	UploadArticle(ctx context.Context, article publish.Article) error
}

// Messenger delivers progress notifications. All methods are best effort.
type Messenger interface {
	Notify(ctx context.Context, text string)
	SendPhoto(ctx context.Context, photoPath, caption string) error
	SendDocument(ctx context.Context, docPath, caption string) error
}

// RunFunc produces one article. A fresh pipeline must back every call so
// runs never share retrieval sessions.
type RunFunc func(ctx context.Context, topic string) (*pipeline.RunState, pipeline.Outcome, error)

// Daemon is the production loop: it walks the game rotation, pulls
// unwritten topics from the backlog, runs the pipeline once per topic and
// pushes the result to the CMS. It runs until the context is cancelled or
// the generation provider trips its failure breaker.
type Daemon struct {
	Cfg       config.SchedulerConfig
	OutputDir string

	Games     GameSource
	Tiers     TierSource
	Pipeline  RunFunc
	Publisher Publisher
	Images    CoverGenerator
	Notifier  Messenger
	Rdb       *redis.Client
	Logger    *log.Logger

	mu     sync.Mutex
	status map[string]any

	// test hooks
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Status implements server.StatusSource.
func (d *Daemon) Status() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]any, len(d.status))
	for k, v := range d.status {
		out[k] = v
	}
	return out
}

func (d *Daemon) publishStatus(st State, games int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = map[string]any{
		"last_run_date":      st.LastRunDate,
		"daily_count":        st.DailyCount,
		"daily_limit":        d.Cfg.DailyLimit,
		"current_game_index": st.CurrentGameIndex,
		"pending_topics":     len(st.PendingTopics),
		"games":              games,
	}
}

// Run executes the daemon loop. It returns on context cancellation, on a
// failed startup precondition, or when the provider failure breaker trips;
// everything else is logged and survived.
func (d *Daemon) Run(ctx context.Context) error {
	if d.Logger == nil {
		d.Logger = log.New(os.Stdout, "[DAEMON] ", log.LstdFlags)
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.sleep == nil {
		d.sleep = ctxSleep
	}

	release, err := d.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer release()

	published := map[string]bool{}
	slugs := map[string]bool{}
	if d.Publisher != nil {
		if err := d.Publisher.CheckConnection(ctx); err != nil {
			return fmt.Errorf("cms connection check failed: %w", err)
		}
		published, slugs, err = d.Publisher.PublishedSets(ctx)
		if err != nil {
			return fmt.Errorf("loading published articles: %w", err)
		}
		d.Logger.Printf("cms reports %d published topics", len(published))
	} else {
		d.Logger.Printf("WARNING: cms not configured, publishing disabled")
	}

	games, err := d.loadGamesOrdered(ctx)
	if err != nil {
		return err
	}
	if len(games) == 0 {
		return fmt.Errorf("no games in catalog")
	}
	d.Logger.Printf("rotation over %d games", len(games))

	st := LoadState(d.Cfg.StateFile, d.Logger)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.refreshLock(ctx)

		today := d.now().Format("2006-01-02")
		if st.LastRunDate != today {
			st.LastRunDate = today
			st.DailyCount = 0
			SaveState(d.Cfg.StateFile, st, d.Logger)
			server.DailyCount.Set(0)
			cleanupTopicCache(d.Cfg.CacheDir, d.Cfg.CacheTTL, d.now(), d.Logger)
			if d.Publisher != nil {
				if t, s, err := d.Publisher.PublishedSets(ctx); err == nil {
					published, slugs = t, s
				} else {
					d.Logger.Printf("ERROR: refreshing published sets: %v", err)
				}
			}
		}
		d.publishStatus(st, len(games))

		remaining := d.Cfg.DailyLimit - st.DailyCount
		if remaining <= 0 {
			wait := untilMidnight(d.now())
			d.Logger.Printf("daily limit reached, sleeping %s", wait.Round(time.Second))
			if err := d.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		batch := d.selectBatch(&st, games, published, remaining)
		SaveState(d.Cfg.StateFile, st, d.Logger)
		if len(batch) == 0 {
			d.Logger.Printf("no available topics, sleeping %s", d.Cfg.NoWorkBackoff)
			if err := d.sleep(ctx, d.Cfg.NoWorkBackoff); err != nil {
				return err
			}
			continue
		}

		for _, t := range batch {
			if err := d.processTopic(ctx, &st, t, published, slugs); err != nil {
				return err
			}
			d.publishStatus(st, len(games))
		}
	}
}

// loadGamesOrdered builds the rotation: catalog rows with their provider
// tier, sorted tier ascending then id ascending.
func (d *Daemon) loadGamesOrdered(ctx context.Context) ([]Game, error) {
	refs, err := d.Games.ListGames(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}
	games := make([]Game, 0, len(refs))
	for _, r := range refs {
		if r.Name == "" || r.Slug == "" {
			continue
		}
		tier := catalog.DefaultTier
		if d.Tiers != nil {
			tier = d.Tiers.TierOf(r.Provider)
		}
		games = append(games, Game{ID: r.ID, Name: r.Name, Slug: r.Slug, Tier: tier})
	}
	sort.SliceStable(games, func(i, j int) bool {
		if games[i].Tier != games[j].Tier {
			return games[i].Tier < games[j].Tier
		}
		return games[i].ID < games[j].ID
	})
	return games, nil
}

// selectBatch fills up to limit topics. The pending queue of the current
// game is drained completely before the rotation index advances; a full
// pass over the rotation without finding work returns whatever was
// collected so the caller can back off.
func (d *Daemon) selectBatch(st *State, games []Game, published map[string]bool, limit int) []Topic {
	var batch []Topic
	scanned := 0
	for len(batch) < limit {
		if len(st.PendingTopics) > 0 {
			need := limit - len(batch)
			if need > len(st.PendingTopics) {
				need = len(st.PendingTopics)
			}
			batch = append(batch, st.PendingTopics[:need]...)
			st.PendingTopics = st.PendingTopics[need:]
			if len(st.PendingTopics) == 0 {
				st.CurrentGameIndex++
			}
			continue
		}

		if scanned > len(games) {
			break
		}
		idx := st.CurrentGameIndex
		if idx >= len(games) {
			d.Logger.Printf("all games processed, restarting rotation")
			st.CurrentGameIndex = 0
			idx = 0
		}
		game := games[idx]
		scanned++
		d.Logger.Printf("checking game %d/%d: %s (tier %d)", idx+1, len(games), game.Name, game.Tier)

		pending := d.pendingForGame(game, published)
		if len(pending) == 0 {
			d.Logger.Printf("no pending topics for %s, moving on", game.Name)
			st.CurrentGameIndex++
			continue
		}
		d.Logger.Printf("found %d pending topics for %s", len(pending), game.Name)
		st.PendingTopics = pending
	}
	return batch
}

// pendingForGame returns the game's cached topics that the CMS does not
// know yet, stamped with the game they came from.
func (d *Daemon) pendingForGame(game Game, published map[string]bool) []Topic {
	cachePath, err := ensureTopicCache(d.Cfg.CacheDir, d.Cfg.BacklogFile, game, d.Logger)
	if err != nil {
		d.Logger.Printf("ERROR: topic cache for %s: %v", game.Name, err)
		return nil
	}
	var pending []Topic
	for _, t := range loadCachedTopics(cachePath, d.Logger) {
		if published[utils.NormalizeTopic(t.Topic)] {
			continue
		}
		t.GameName = game.Name
		t.GameSlug = game.Slug
		pending = append(pending, t)
	}
	return pending
}

// processTopic runs the full produce-and-publish cycle for one topic. The
// only errors it returns are fatal for the whole daemon: context
// cancellation and the provider failure breaker.
func (d *Daemon) processTopic(ctx context.Context, st *State, t Topic, published, slugs map[string]bool) error {
	topic := strings.TrimSpace(t.Topic)
	if topic == "" {
		return nil
	}

	d.Logger.Printf("STATUS | today: %d/%d | game: %s (%s) | pending: %d",
		st.DailyCount, d.Cfg.DailyLimit, t.GameName, t.GameSlug, len(st.PendingTopics))

	// Re-check against the live sets: another topic in this batch may have
	// published the same slug already.
	if published[utils.NormalizeTopic(topic)] {
		d.Logger.Printf("SKIP: topic already published: %s", topic)
		return nil
	}
	safeName := utils.SafeFilename(topic)
	if slugs[safeName] {
		d.Logger.Printf("SKIP: slug already in cms: %s", safeName)
		return nil
	}

	coverCtx, cancelCover := context.WithCancel(ctx)
	defer cancelCover()
	coverCh := d.startCover(coverCtx, topic, safeName)

	d.Logger.Printf("starting run for: %s", topic)
	start := d.now()
	run, outcome, err := d.Pipeline(ctx, topic)
	server.PipelineDuration.Observe(d.now().Sub(start).Seconds())
	if err != nil {
		cancelCover()
		if errors.Is(err, provider.ErrConsecutiveFailures) {
			d.Logger.Printf("FATAL: %v, stopping daemon", err)
			if d.Notifier != nil {
				d.Notifier.Notify(ctx, fmt.Sprintf("🛑 Daemon stopped: %v", err))
			}
		}
		return err
	}
	server.ArticlesTotal.WithLabelValues(string(outcome)).Inc()

	if outcome != pipeline.OutcomeSuccess || run.ArtifactPath == "" {
		cancelCover()
		d.Logger.Printf("%s | no artifact for %q", outcome, topic)
		return nil
	}

	var cover coverResult
	select {
	case cover = <-coverCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	uploaded := false
	if d.Publisher != nil {
		if err := d.Publisher.UploadArticle(ctx, buildArticle(topic, run, cover)); err != nil {
			server.PublishTotal.WithLabelValues("error").Inc()
			d.Logger.Printf("ERROR: cms upload for %q: %v", topic, err)
		} else {
			server.PublishTotal.WithLabelValues("ok").Inc()
			uploaded = true
			published[utils.NormalizeTopic(topic)] = true
			slugs[safeName] = true
		}
	}

	// The daily limit caps how many articles get produced, not how many
	// the CMS accepted. A failed upload stays on disk for a manual retry
	// and the topic is not marked published, so it comes around again.
	st.DailyCount++
	SaveState(d.Cfg.StateFile, *st, d.Logger)
	server.DailyCount.Set(float64(st.DailyCount))
	d.Logger.Printf("SUCCESS | saved %s | cms upload: %v", run.ArtifactPath, uploaded)

	d.notifyResult(ctx, topic, run.ArtifactPath, cover, uploaded)
	return nil
}

func buildArticle(topic string, run *pipeline.RunState, cover coverResult) publish.Article {
	article := publish.Article{
		Topic: topic,
		Title: topic,
		Body:  utils.StripFrontmatter(run.ArtifactText),
	}
	if run.Outline != nil {
		if run.Outline.MainTitle != "" {
			article.Title = run.Outline.MainTitle
		}
		article.Description = run.Outline.MetaDescription
		article.Keywords = run.Outline.Keywords
	}
	article.ImagePath = cover.Path
	if article.ImagePath == "" {
		article.ImagePath = cover.URL
	}
	return article
}

func (d *Daemon) notifyResult(ctx context.Context, topic, artifactPath string, cover coverResult, uploaded bool) {
	if d.Notifier == nil {
		return
	}
	status := "not uploaded ❌"
	if uploaded {
		status = "published 🚀"
	}
	caption := fmt.Sprintf("✅ Success: %s\nCMS: %s", topic, status)
	if cover.Path != "" {
		if err := d.Notifier.SendPhoto(ctx, cover.Path, caption); err != nil {
			d.Logger.Printf("ERROR: telegram photo: %v", err)
		}
	} else {
		d.Notifier.Notify(ctx, caption)
	}
	if artifactPath != "" {
		if err := d.Notifier.SendDocument(ctx, artifactPath, "📄 "+filepath.Base(artifactPath)); err != nil {
			d.Logger.Printf("ERROR: telegram document: %v", err)
		}
	}
}

func (d *Daemon) acquireLock(ctx context.Context) (func(), error) {
	if d.Rdb == nil {
		return func() {}, nil
	}
	ok, err := d.Rdb.SetNX(ctx, runLockKey, "1", runLockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another daemon instance holds the run lock")
	}
	return func() { d.Rdb.Del(context.Background(), runLockKey) }, nil
}

func (d *Daemon) refreshLock(ctx context.Context) {
	if d.Rdb != nil {
		d.Rdb.Expire(ctx, runLockKey, runLockTTL)
	}
}

func untilMidnight(now time.Time) time.Duration {
	wait := midnightExpr.Next(now).Sub(now)
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
