package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
)

// GameSpecs is one row of the games table. Everything except the ID is
// stored as text because the upstream feed is inconsistent ("96.5%",
// "96,50", empty).
type GameSpecs struct {
	ID       int
	Name     string
	Slug     string
	Provider string
	RTP      string
	Type     string
	Themes   string
	MinBet   string
	MaxBet   string
	MaxWin   string
	Autoplay string
}

// GameRef is the light listing row the daemon iterates over.
type GameRef struct {
	ID       int
	Name     string
	Slug     string
	Provider string
}

// Store reads the slot game catalog from Postgres.
type Store struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	logger *log.Logger
}

func NewStore(db *sql.DB, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stdout, "[CATALOG] ", log.LstdFlags)
	}
	return &Store{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger: logger,
	}
}

// Open connects to Postgres and pings it.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return db, nil
}

// FindGameInTopic scans all game names for the longest one mentioned in the
// topic, case insensitive. Returns nil with no error when the topic names no
// known game; the pipeline then falls back to the generic article path.
func (s *Store) FindGameInTopic(ctx context.Context, topic string) (*GameSpecs, error) {
	rows, err := s.sb.Select("id", "name").From("games").RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing game names: %w", err)
	}
	defer rows.Close()

	topicLower := strings.ToLower(topic)
	bestID := 0
	bestLen := 0
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning game name: %w", err)
		}
		if name == "" {
			continue
		}
		if strings.Contains(topicLower, strings.ToLower(name)) && len(name) > bestLen {
			bestID = id
			bestLen = len(name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating game names: %w", err)
	}
	if bestID == 0 {
		return nil, nil
	}
	return s.GetGameSpecs(ctx, bestID)
}

// GetGameSpecs loads the full spec row for one game.
func (s *Store) GetGameSpecs(ctx context.Context, id int) (*GameSpecs, error) {
	row := s.sb.
		Select("id", "name", "slug", "provider", "rtp", "type", "themes",
			"min_bet", "max_bet", "max_win_per_spin", "autoplay").
		From("games").
		Where(sq.Eq{"id": id}).
		RunWith(s.db).
		QueryRowContext(ctx)

	var g GameSpecs
	var slug, provider, rtp, typ, themes, minBet, maxBet, maxWin, autoplay sql.NullString
	if err := row.Scan(&g.ID, &g.Name, &slug, &provider, &rtp, &typ, &themes,
		&minBet, &maxBet, &maxWin, &autoplay); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("loading game %d: %w", id, err)
	}
	g.Slug = slug.String
	g.Provider = provider.String
	g.RTP = rtp.String
	g.Type = typ.String
	g.Themes = themes.String
	g.MinBet = minBet.String
	g.MaxBet = maxBet.String
	g.MaxWin = maxWin.String
	g.Autoplay = autoplay.String
	return &g, nil
}

// ListGames returns every game with a provider, ordered by id. The daemon
// re-orders them by provider tier before walking the catalog.
func (s *Store) ListGames(ctx context.Context) ([]GameRef, error) {
	rows, err := s.sb.
		Select("id", "name", "slug", "provider").
		From("games").
		Where(sq.And{sq.NotEq{"provider": nil}, sq.NotEq{"provider": ""}}).
		OrderBy("id ASC").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}
	defer rows.Close()

	var out []GameRef
	for rows.Next() {
		var g GameRef
		var slug, provider sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &slug, &provider); err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		g.Slug = slug.String
		g.Provider = provider.String
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating games: %w", err)
	}
	return out, nil
}

// ProviderCounts returns provider names with their game counts, most games
// first. Used to seed tier classification.
func (s *Store) ProviderCounts(ctx context.Context) ([]ProviderCount, error) {
	rows, err := s.sb.
		Select("provider", "COUNT(*) AS c").
		From("games").
		Where(sq.And{sq.NotEq{"provider": nil}, sq.NotEq{"provider": ""}}).
		GroupBy("provider").
		OrderBy("c DESC").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting providers: %w", err)
	}
	defer rows.Close()

	var out []ProviderCount
	for rows.Next() {
		var pc ProviderCount
		if err := rows.Scan(&pc.Provider, &pc.Count); err != nil {
			return nil, fmt.Errorf("scanning provider count: %w", err)
		}
		out = append(out, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provider counts: %w", err)
	}
	return out, nil
}

type ProviderCount struct {
	Provider string
	Count    int
}
