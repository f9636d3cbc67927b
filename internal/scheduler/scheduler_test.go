package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/slotpress/slotpress/config"
	"github.com/slotpress/slotpress/internal/catalog"
	"github.com/slotpress/slotpress/internal/pipeline"
	"github.com/slotpress/slotpress/internal/publish"
	"github.com/slotpress/slotpress/provider"
)

type fakeGames struct {
	refs []catalog.GameRef
	err  error
}

func (f *fakeGames) ListGames(ctx context.Context) ([]catalog.GameRef, error) {
	return f.refs, f.err
}

type fakeTiers struct{ tiers map[string]int }

func (f *fakeTiers) TierOf(provider string) int {
	if t, ok := f.tiers[provider]; ok {
		return t
	}
	return 3
}

type fakePublisher struct {
	topics    map[string]bool
	slugs     map[string]bool
	uploads   []publish.Article
	checkErr  error
	uploadErr error
}

func (f *fakePublisher) CheckConnection(ctx context.Context) error { return f.checkErr }

func (f *fakePublisher) PublishedSets(ctx context.Context) (map[string]bool, map[string]bool, error) {
	if f.topics == nil {
		f.topics = map[string]bool{}
	}
	if f.slugs == nil {
		f.slugs = map[string]bool{}
	}
	return f.topics, f.slugs, nil
}

func (f *fakePublisher) UploadArticle(ctx context.Context, article publish.Article) error {
	f.uploads = append(f.uploads, article)
	return f.uploadErr
}

type fakeNotifier struct {
	messages  []string
	photos    []string
	documents []string
}

func (f *fakeNotifier) Notify(ctx context.Context, text string) { f.messages = append(f.messages, text) }

func (f *fakeNotifier) SendPhoto(ctx context.Context, path, caption string) error {
	f.photos = append(f.photos, path)
	return nil
}

func (f *fakeNotifier) SendDocument(ctx context.Context, path, caption string) error {
	f.documents = append(f.documents, path)
	return nil
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	dir := t.TempDir()
	return &Daemon{
		Cfg: config.SchedulerConfig{
			DailyLimit:    5,
			BacklogFile:   filepath.Join(dir, "generated_topics.csv"),
			CacheDir:      filepath.Join(dir, "topic_cache"),
			CacheTTL:      168 * time.Hour,
			StateFile:     filepath.Join(dir, "daemon_state.json"),
			NoWorkBackoff: time.Hour,
		},
		OutputDir: dir,
		Logger:    log.New(io.Discard, "", 0),
		now:       func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) },
		sleep:     func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func writeBacklog(t *testing.T, path string, rows [][2]string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("type,topic\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s,%s\n", r[0], r[1])
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("writing backlog: %v", err)
	}
}

func TestSelectBatchDrainsPendingBeforeAdvance(t *testing.T) {
	d := newTestDaemon(t)
	writeBacklog(t, d.Cfg.BacklogFile, [][2]string{
		{"review", "Gates of Olympus review"},
		{"guide", "Gates of Olympus bonus guide"},
		{"strategy", "Gates of Olympus strategy tips"},
		{"review", "Book of Dead review"},
	})
	games := []Game{
		{ID: 1, Name: "Gates of Olympus", Slug: "gates-of-olympus", Tier: 1},
		{ID: 2, Name: "Book of Dead", Slug: "book-of-dead", Tier: 2},
	}
	st := State{}
	published := map[string]bool{}

	batch := d.selectBatch(&st, games, published, 2)
	if len(batch) != 2 {
		t.Fatalf("expected batch of 2, got %d", len(batch))
	}
	if st.CurrentGameIndex != 0 {
		t.Fatalf("index advanced to %d with %d topics still pending", st.CurrentGameIndex, len(st.PendingTopics))
	}
	if len(st.PendingTopics) != 1 {
		t.Fatalf("expected 1 pending topic, got %d", len(st.PendingTopics))
	}

	batch = d.selectBatch(&st, games, published, 2)
	if len(batch) != 2 {
		t.Fatalf("expected batch of 2, got %d", len(batch))
	}
	if batch[0].Topic != "Gates of Olympus strategy tips" {
		t.Fatalf("pending not drained first, got %q", batch[0].Topic)
	}
	if batch[1].GameName != "Book of Dead" {
		t.Fatalf("expected next game's topic, got %+v", batch[1])
	}
	if st.CurrentGameIndex != 2 {
		t.Fatalf("expected index 2 after both games drained, got %d", st.CurrentGameIndex)
	}
}

func TestSelectBatchSkipsPublishedAndTerminates(t *testing.T) {
	d := newTestDaemon(t)
	writeBacklog(t, d.Cfg.BacklogFile, [][2]string{
		{"review", "Starburst review"},
	})
	games := []Game{
		{ID: 1, Name: "Starburst", Slug: "starburst", Tier: 1},
		{ID: 2, Name: "Bonanza", Slug: "bonanza", Tier: 2},
	}
	st := State{}
	published := map[string]bool{"starburst review": true}

	batch := d.selectBatch(&st, games, published, 5)
	if len(batch) != 0 {
		t.Fatalf("expected empty batch, got %d topics", len(batch))
	}
}

func TestLoadGamesOrderedSortsByTier(t *testing.T) {
	d := newTestDaemon(t)
	d.Games = &fakeGames{refs: []catalog.GameRef{
		{ID: 1, Name: "Niche Slot", Slug: "niche-slot", Provider: "Smallco"},
		{ID: 2, Name: "Big Slot", Slug: "big-slot", Provider: "Pragmatic Play"},
		{ID: 3, Name: "Mid Slot", Slug: "mid-slot", Provider: "Push Gaming"},
		{ID: 4, Name: "", Slug: "broken"},
	}}
	d.Tiers = &fakeTiers{tiers: map[string]int{"Pragmatic Play": 1, "Push Gaming": 2}}

	games, err := d.loadGamesOrdered(context.Background())
	if err != nil {
		t.Fatalf("loadGamesOrdered: %v", err)
	}
	if len(games) != 3 {
		t.Fatalf("expected 3 games, got %d", len(games))
	}
	if games[0].Name != "Big Slot" || games[1].Name != "Mid Slot" || games[2].Name != "Niche Slot" {
		t.Fatalf("wrong order: %+v", games)
	}
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	logger := log.New(io.Discard, "", 0)
	st := State{
		LastRunDate:      "2026-03-14",
		DailyCount:       7,
		CurrentGameIndex: 3,
		PendingTopics:    []Topic{{Type: "review", Topic: "Starburst review", GameName: "Starburst", GameSlug: "starburst"}},
	}
	SaveState(path, st, logger)
	got := LoadState(path, logger)
	if got.DailyCount != 7 || got.CurrentGameIndex != 3 || got.LastRunDate != "2026-03-14" {
		t.Fatalf("state mismatch: %+v", got)
	}
	if len(got.PendingTopics) != 1 || got.PendingTopics[0].GameSlug != "starburst" {
		t.Fatalf("pending topics lost: %+v", got.PendingTopics)
	}
}

func TestLoadStateCorruptStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := LoadState(path, log.New(io.Discard, "", 0))
	if got.DailyCount != 0 || got.LastRunDate != "" {
		t.Fatalf("expected zero state, got %+v", got)
	}
}

func TestEnsureTopicCacheMatchesGameName(t *testing.T) {
	d := newTestDaemon(t)
	writeBacklog(t, d.Cfg.BacklogFile, [][2]string{
		{"review", "Sweet Bonanza review"},
		{"guide", "How to play SWEET BONANZA on mobile"},
		{"review", "Starburst review"},
	})
	game := Game{ID: 1, Name: "Sweet Bonanza", Slug: "sweet-bonanza"}

	path, err := ensureTopicCache(d.Cfg.CacheDir, d.Cfg.BacklogFile, game, d.Logger)
	if err != nil {
		t.Fatalf("ensureTopicCache: %v", err)
	}
	topics := loadCachedTopics(path, d.Logger)
	if len(topics) != 2 {
		t.Fatalf("expected 2 matching topics, got %d: %+v", len(topics), topics)
	}

	// The cache is reused as-is even after the backlog changes.
	writeBacklog(t, d.Cfg.BacklogFile, [][2]string{{"review", "Sweet Bonanza jackpot list"}})
	path2, err := ensureTopicCache(d.Cfg.CacheDir, d.Cfg.BacklogFile, game, d.Logger)
	if err != nil {
		t.Fatalf("ensureTopicCache reuse: %v", err)
	}
	if got := loadCachedTopics(path2, d.Logger); len(got) != 2 {
		t.Fatalf("cache rebuilt instead of reused, got %d topics", len(got))
	}
}

func TestCleanupTopicCacheTTL(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(io.Discard, "", 0)
	stale := filepath.Join(dir, "old-game.jsonl")
	fresh := filepath.Join(dir, "new-game.jsonl")
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("{\"topic\":\"x\"}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now()
	if err := os.Chtimes(stale, now.Add(-200*time.Hour), now.Add(-200*time.Hour)); err != nil {
		t.Fatal(err)
	}

	cleanupTopicCache(dir, 168*time.Hour, now, logger)

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale cache not removed: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh cache removed: %v", err)
	}
}

func TestProcessTopicDoubleChecksPublished(t *testing.T) {
	d := newTestDaemon(t)
	calls := 0
	d.Pipeline = func(ctx context.Context, topic string) (*pipeline.RunState, pipeline.Outcome, error) {
		calls++
		return pipeline.NewRunState(topic), pipeline.OutcomeSuccess, nil
	}
	st := State{}
	published := map[string]bool{"starburst review": true}
	slugs := map[string]bool{}

	err := d.processTopic(context.Background(), &st, Topic{Topic: "  Starburst Review "}, published, slugs)
	if err != nil {
		t.Fatalf("processTopic: %v", err)
	}
	if calls != 0 {
		t.Fatalf("pipeline ran for an already published topic")
	}

	err = d.processTopic(context.Background(), &st, Topic{Topic: "Bonanza Guide"}, published, map[string]bool{"bonanza_guide": true})
	if err != nil {
		t.Fatalf("processTopic: %v", err)
	}
	if calls != 0 {
		t.Fatalf("pipeline ran for an already published slug")
	}
}

func TestProcessTopicPublishesSuccess(t *testing.T) {
	d := newTestDaemon(t)
	artifact := filepath.Join(d.OutputDir, "starburst_review.md")
	body := "---\ntitle: \"Starburst Review\"\n---\n\n# Starburst Review\n\nBody text."
	if err := os.WriteFile(artifact, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	d.Pipeline = func(ctx context.Context, topic string) (*pipeline.RunState, pipeline.Outcome, error) {
		run := pipeline.NewRunState(topic)
		run.Outline = &pipeline.Outline{MainTitle: "Starburst Review 2026", MetaDescription: "All about Starburst", Keywords: []string{"starburst"}}
		run.ArtifactPath = artifact
		run.ArtifactText = body
		return run, pipeline.OutcomeSuccess, nil
	}
	pub := &fakePublisher{topics: map[string]bool{}, slugs: map[string]bool{}}
	d.Publisher = pub
	notifier := &fakeNotifier{}
	d.Notifier = notifier

	st := State{LastRunDate: "2026-03-14"}
	published := map[string]bool{}
	slugs := map[string]bool{}

	if err := d.processTopic(context.Background(), &st, Topic{Topic: "Starburst Review", GameName: "Starburst"}, published, slugs); err != nil {
		t.Fatalf("processTopic: %v", err)
	}

	if len(pub.uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(pub.uploads))
	}
	up := pub.uploads[0]
	if up.Title != "Starburst Review 2026" {
		t.Fatalf("title not taken from outline: %q", up.Title)
	}
	if strings.Contains(up.Body, "---\ntitle") {
		t.Fatalf("frontmatter not stripped: %q", up.Body)
	}
	if !strings.HasPrefix(up.Body, "# Starburst Review") {
		t.Fatalf("unexpected body: %q", up.Body)
	}
	if st.DailyCount != 1 {
		t.Fatalf("daily count not incremented: %d", st.DailyCount)
	}
	if !published["starburst review"] || !slugs["starburst_review"] {
		t.Fatalf("published sets not updated: %v %v", published, slugs)
	}
	if got := LoadState(d.Cfg.StateFile, d.Logger); got.DailyCount != 1 {
		t.Fatalf("state not persisted: %+v", got)
	}
	if len(notifier.documents) != 1 || notifier.documents[0] != artifact {
		t.Fatalf("article not sent to telegram: %+v", notifier.documents)
	}
}

func TestProcessTopicCountsProductionWhenUploadFails(t *testing.T) {
	d := newTestDaemon(t)
	artifact := filepath.Join(d.OutputDir, "bonanza_guide.md")
	if err := os.WriteFile(artifact, []byte("# Bonanza Guide\n\nBody."), 0o644); err != nil {
		t.Fatal(err)
	}
	d.Pipeline = func(ctx context.Context, topic string) (*pipeline.RunState, pipeline.Outcome, error) {
		run := pipeline.NewRunState(topic)
		run.ArtifactPath = artifact
		run.ArtifactText = "# Bonanza Guide\n\nBody."
		return run, pipeline.OutcomeSuccess, nil
	}
	pub := &fakePublisher{uploadErr: errors.New("cms down")}
	d.Publisher = pub

	st := State{}
	published := map[string]bool{}
	slugs := map[string]bool{}
	if err := d.processTopic(context.Background(), &st, Topic{Topic: "Bonanza Guide"}, published, slugs); err != nil {
		t.Fatalf("processTopic: %v", err)
	}
	if st.DailyCount != 1 {
		t.Fatalf("a produced article counts against the limit even when the CMS rejects it, got %d", st.DailyCount)
	}
	if published["bonanza guide"] || slugs["bonanza_guide"] {
		t.Fatalf("a failed upload must leave the topic unpublished for a retry: %v %v", published, slugs)
	}
}

func TestProcessTopicPartialSkipsPublish(t *testing.T) {
	d := newTestDaemon(t)
	d.Pipeline = func(ctx context.Context, topic string) (*pipeline.RunState, pipeline.Outcome, error) {
		run := pipeline.NewRunState(topic)
		run.ChunksIndexed = 12
		return run, pipeline.OutcomePartial, nil
	}
	pub := &fakePublisher{}
	d.Publisher = pub

	st := State{}
	if err := d.processTopic(context.Background(), &st, Topic{Topic: "Bonanza tips"}, map[string]bool{}, map[string]bool{}); err != nil {
		t.Fatalf("processTopic: %v", err)
	}
	if len(pub.uploads) != 0 {
		t.Fatalf("partial outcome must not publish")
	}
	if st.DailyCount != 0 {
		t.Fatalf("partial outcome must not count against the daily limit")
	}
}

func TestRunStopsOnConsecutiveFailures(t *testing.T) {
	d := newTestDaemon(t)
	writeBacklog(t, d.Cfg.BacklogFile, [][2]string{{"review", "Starburst review"}})
	d.Games = &fakeGames{refs: []catalog.GameRef{{ID: 1, Name: "Starburst", Slug: "starburst", Provider: "NetEnt"}}}
	d.Tiers = &fakeTiers{}
	calls := 0
	d.Pipeline = func(ctx context.Context, topic string) (*pipeline.RunState, pipeline.Outcome, error) {
		calls++
		return pipeline.NewRunState(topic), pipeline.OutcomeFailed, fmt.Errorf("stage validate: %w", provider.ErrConsecutiveFailures)
	}
	notifier := &fakeNotifier{}
	d.Notifier = notifier

	err := d.Run(context.Background())
	if !errors.Is(err, provider.ErrConsecutiveFailures) {
		t.Fatalf("expected breaker error to stop the daemon, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("daemon kept dispatching after the breaker tripped: %d runs", calls)
	}
	if len(notifier.messages) == 0 || !strings.Contains(notifier.messages[0], "Daemon stopped") {
		t.Fatalf("expected stop notification, got %+v", notifier.messages)
	}
}

func TestRunResetsDailyCountOnNewDay(t *testing.T) {
	d := newTestDaemon(t)
	writeBacklog(t, d.Cfg.BacklogFile, [][2]string{{"review", "Starburst review"}})
	d.Games = &fakeGames{refs: []catalog.GameRef{{ID: 1, Name: "Starburst", Slug: "starburst", Provider: "NetEnt"}}}
	d.Tiers = &fakeTiers{}

	artifact := filepath.Join(d.OutputDir, "starburst_review.md")
	if err := os.WriteFile(artifact, []byte("# Starburst Review\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	d.Pipeline = func(ctx context.Context, topic string) (*pipeline.RunState, pipeline.Outcome, error) {
		run := pipeline.NewRunState(topic)
		run.ArtifactPath = artifact
		run.ArtifactText = "# Starburst Review\n"
		return run, pipeline.OutcomeSuccess, nil
	}
	pub := &fakePublisher{topics: map[string]bool{}, slugs: map[string]bool{}}
	d.Publisher = pub

	// Yesterday's state maxed out the limit; the new day must reset it.
	SaveState(d.Cfg.StateFile, State{LastRunDate: "2026-03-13", DailyCount: d.Cfg.DailyLimit}, d.Logger)

	errStop := errors.New("stop")
	d.sleep = func(ctx context.Context, wait time.Duration) error { return errStop }

	if err := d.Run(context.Background()); !errors.Is(err, errStop) {
		t.Fatalf("expected stop sentinel, got %v", err)
	}
	if len(pub.uploads) != 1 {
		t.Fatalf("article not produced after reset, uploads: %d", len(pub.uploads))
	}
	got := LoadState(d.Cfg.StateFile, d.Logger)
	if got.LastRunDate != "2026-03-14" || got.DailyCount != 1 {
		t.Fatalf("state after reset wrong: %+v", got)
	}
}

func TestRunSleepsUntilMidnightAtLimit(t *testing.T) {
	d := newTestDaemon(t)
	d.Games = &fakeGames{refs: []catalog.GameRef{{ID: 1, Name: "Starburst", Slug: "starburst"}}}
	d.Tiers = &fakeTiers{}
	SaveState(d.Cfg.StateFile, State{LastRunDate: "2026-03-14", DailyCount: d.Cfg.DailyLimit}, d.Logger)

	var slept time.Duration
	errStop := errors.New("stop")
	d.sleep = func(ctx context.Context, wait time.Duration) error {
		slept = wait
		return errStop
	}

	if err := d.Run(context.Background()); !errors.Is(err, errStop) {
		t.Fatalf("expected stop sentinel, got %v", err)
	}
	if slept != 12*time.Hour {
		t.Fatalf("expected sleep until midnight (12h from noon), got %s", slept)
	}
}

func TestUntilMidnight(t *testing.T) {
	now := time.Date(2026, 3, 14, 23, 59, 30, 0, time.UTC)
	wait := untilMidnight(now)
	if wait != 30*time.Second {
		t.Fatalf("expected 30s to midnight, got %s", wait)
	}
}
