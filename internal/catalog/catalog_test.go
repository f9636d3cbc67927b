package catalog

import (
	"context"
	"log"
	"os"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db, log.New(os.Stderr, "[CATALOG] ", 0)), mock
}

func TestFindGameInTopicLongestMatch(t *testing.T) {
	store, mock := newMockStore(t)

	names := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(1, "Gates").
		AddRow(2, "Gates of Olympus").
		AddRow(3, "Sweet Bonanza")
	mock.ExpectQuery("SELECT id, name FROM games").WillReturnRows(names)

	specs := sqlmock.NewRows([]string{
		"id", "name", "slug", "provider", "rtp", "type", "themes",
		"min_bet", "max_bet", "max_win_per_spin", "autoplay",
	}).AddRow(2, "Gates of Olympus", "gates-of-olympus", "Pragmatic Play",
		"96.5%", "Video Slots", "Greek Mythology", "0.20", "100", "5000x", "yes")
	mock.ExpectQuery("SELECT id, name, slug, provider").
		WithArgs(2).
		WillReturnRows(specs)

	g, err := store.FindGameInTopic(context.Background(), "Why Gates of Olympus RTP beats the average")
	if err != nil {
		t.Fatalf("FindGameInTopic: %v", err)
	}
	if g == nil {
		t.Fatalf("expected a match")
	}
	if g.ID != 2 || g.Provider != "Pragmatic Play" {
		t.Fatalf("wrong game matched: %+v", g)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindGameInTopicNoMatch(t *testing.T) {
	store, mock := newMockStore(t)

	names := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(1, "Sweet Bonanza")
	mock.ExpectQuery("SELECT id, name FROM games").WillReturnRows(names)

	g, err := store.FindGameInTopic(context.Background(), "best blackjack strategies for beginners")
	if err != nil {
		t.Fatalf("FindGameInTopic: %v", err)
	}
	if g != nil {
		t.Fatalf("expected no match, got %+v", g)
	}
}

func TestFindGameInTopicCaseInsensitive(t *testing.T) {
	store, mock := newMockStore(t)

	names := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(7, "Book of Dead")
	mock.ExpectQuery("SELECT id, name FROM games").WillReturnRows(names)

	specs := sqlmock.NewRows([]string{
		"id", "name", "slug", "provider", "rtp", "type", "themes",
		"min_bet", "max_bet", "max_win_per_spin", "autoplay",
	}).AddRow(7, "Book of Dead", "book-of-dead", "Play'n GO",
		"96.21%", "Video Slots", "Egypt", "0.01", "100", "5000x", "yes")
	mock.ExpectQuery("SELECT id, name, slug, provider").
		WithArgs(7).
		WillReturnRows(specs)

	g, err := store.FindGameInTopic(context.Background(), "BOOK OF DEAD free spins explained")
	if err != nil {
		t.Fatalf("FindGameInTopic: %v", err)
	}
	if g == nil || g.ID != 7 {
		t.Fatalf("expected case-insensitive match, got %+v", g)
	}
}

func TestListGames(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "name", "slug", "provider"}).
		AddRow(1, "Gates of Olympus", "gates-of-olympus", "Pragmatic Play").
		AddRow(2, "Starburst", "starburst", "NetEnt")
	mock.ExpectQuery("SELECT id, name, slug, provider FROM games").WillReturnRows(rows)

	games, err := store.ListGames(context.Background())
	if err != nil {
		t.Fatalf("ListGames: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("expected 2 games, got %d", len(games))
	}
	if games[1].Provider != "NetEnt" {
		t.Fatalf("unexpected row: %+v", games[1])
	}
}

func TestProviderCounts(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"provider", "c"}).
		AddRow("Pragmatic Play", 250).
		AddRow("NetEnt", 120)
	mock.ExpectQuery("SELECT provider, COUNT").WillReturnRows(rows)

	counts, err := store.ProviderCounts(context.Background())
	if err != nil {
		t.Fatalf("ProviderCounts: %v", err)
	}
	if len(counts) != 2 || counts[0].Count != 250 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}
