package pipeline

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/slotpress/slotpress/tools/web_search/models"
)

func plLogger() *log.Logger { return log.New(os.Stderr, "[PIPELINE] ", 0) }

type cannedGenerator struct {
	response string
	err      error
	calls    int
}

func (g *cannedGenerator) Generate(_ context.Context, _ string, _ float64) (string, error) {
	g.calls++
	return g.response, g.err
}

func TestStrategyForFixedMapping(t *testing.T) {
	cases := map[MatchStatus]WritingStrategy{
		ExactMatch:          DirectReview,
		FeatureMismatch:     MythBuster,
		NonExistentGame:     GenreOverview,
		LogicalContradction: StrategyGuide,
		GenericQuery:        GenericGuide,
	}
	for status, want := range cases {
		if got := StrategyFor(status); got != want {
			t.Fatalf("StrategyFor(%s) = %s, want %s", status, got, want)
		}
	}
	if got := StrategyFor(MatchStatus("NOT_A_STATUS")); got != GenericGuide {
		t.Fatalf("unknown status should map to GENERIC_GUIDE, got %s", got)
	}
}

func TestValidateStrategyNotOverridableByModel(t *testing.T) {
	// the model claims DIRECT_REVIEW for a FEATURE_MISMATCH; the table wins
	gen := &cannedGenerator{response: `{
		"analysis": {"query_intent": "GAME_SPECIFIC", "detected_game_name": "Starburst", "is_real_game": true},
		"decision": {"match_status": "FEATURE_MISMATCH", "selected_writing_strategy": "DIRECT_REVIEW", "pivot_reason": "none"},
		"facts": {"provider": "NetEnt", "rtp": null, "volatility": null, "has_jackpot": false, "features": []},
		"technical_specs": {"mechanics_type": "PAYLINES", "rtp_single_value": "96.09%", "currency_format": {"min_bet": "$0.10", "max_bet": "$100"}}
	}`}
	stage := &ValidateStage{Generator: gen, Logger: plLogger()}
	state := NewRunState("Starburst progressive jackpot")
	if err := stage.Run(context.Background(), state); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := state.Passport().Decision.WritingStrategy; got != MythBuster {
		t.Fatalf("strategy = %s, want MYTH_BUSTER from the fixed table", got)
	}
}

func TestValidateDefaultPassportOnGarbage(t *testing.T) {
	gen := &cannedGenerator{response: "I am sorry, I cannot help with that."}
	stage := &ValidateStage{Generator: gen, Logger: plLogger()}
	state := NewRunState("best high rtp slots")
	if err := stage.Run(context.Background(), state); err != nil {
		t.Fatalf("Run: %v", err)
	}
	p := state.Passport()
	if p == nil {
		t.Fatalf("expected a default passport")
	}
	if p.Decision.MatchStatus != GenericQuery || p.Decision.WritingStrategy != GenericGuide {
		t.Fatalf("default passport decision wrong: %+v", p.Decision)
	}
	if p.TechnicalSpecs.MechanicsType != Paylines {
		t.Fatalf("default mechanics should be PAYLINES, got %s", p.TechnicalSpecs.MechanicsType)
	}
	if p.TechnicalSpecs.CurrencyFormat.MinBet != "$0.10" || p.TechnicalSpecs.CurrencyFormat.MaxBet != "$100" {
		t.Fatalf("default currency wrong: %+v", p.TechnicalSpecs.CurrencyFormat)
	}
}

func TestValidateHighestRTPWins(t *testing.T) {
	gen := &cannedGenerator{response: `{
		"analysis": {"query_intent": "GAME_SPECIFIC", "detected_game_name": "Some Slot", "is_real_game": true},
		"decision": {"match_status": "EXACT_MATCH", "selected_writing_strategy": "DIRECT_REVIEW", "pivot_reason": "match"},
		"facts": {"provider": null, "rtp": "95.2%", "volatility": null, "has_jackpot": false, "features": []},
		"technical_specs": {"mechanics_type": "PAYLINES", "rtp_single_value": "95.2%", "currency_format": {"min_bet": "$0.20", "max_bet": "$100"}}
	}`}
	stage := &ValidateStage{Generator: gen, Logger: plLogger()}
	state := NewRunState("Some Slot RTP")
	state.SearchResults = []models.Result{
		{URL: "https://a.example", Title: "Some Slot review", Description: "RTP of 95.2% reported"},
		{URL: "https://b.example", Title: "Some Slot stats", Description: "the provider lists 96.8% RTP"},
	}
	if err := stage.Run(context.Background(), state); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := state.Passport().TechnicalSpecs.RTPSingleValue; got != "96.8%" {
		t.Fatalf("rtp_single_value = %q, want 96.8%%", got)
	}
}

func TestMechanicsFromEvidence(t *testing.T) {
	if got := mechanicsFromEvidence("this game uses scatter pays on a 6x5 grid"); got != PayAnywhere {
		t.Fatalf("scatter pays should classify as PAY_ANYWHERE, got %s", got)
	}
	if got := mechanicsFromEvidence("wins form in a cluster of five"); got != ClusterPays {
		t.Fatalf("cluster should classify as CLUSTER_PAYS, got %s", got)
	}
	if got := mechanicsFromEvidence("a megaways title with up to 117649 ways"); got != Megaways {
		t.Fatalf("megaways should classify as MEGAWAYS, got %s", got)
	}
	if got := mechanicsFromEvidence("ten fixed lines"); got != Mechanics("") {
		t.Fatalf("no evidence should return empty, got %s", got)
	}
}

func TestNormalizeCurrency(t *testing.T) {
	if got := normalizeCurrency("20", true); got != "$0.20" {
		t.Fatalf("bare min bet 20 = %q, want $0.20", got)
	}
	if got := normalizeCurrency("100", false); got != "$100" {
		t.Fatalf("bare max bet 100 = %q, want $100", got)
	}
	if got := normalizeCurrency("€0.25", true); got != "€0.25" {
		t.Fatalf("symbolled value should pass through, got %q", got)
	}
	if got := normalizeCurrency("", true); got != "$0.10" {
		t.Fatalf("empty min bet = %q, want default", got)
	}
	if got := normalizeCurrency("not a number", false); got != "$100" {
		t.Fatalf("junk max bet = %q, want default", got)
	}
}

func TestSetPassportOnce(t *testing.T) {
	state := NewRunState("topic")
	first := DefaultPassport("first")
	if err := state.SetPassport(first); err != nil {
		t.Fatalf("first SetPassport: %v", err)
	}
	if err := state.SetPassport(DefaultPassport("second")); err == nil {
		t.Fatalf("second SetPassport should fail")
	}
	if state.Passport() != first {
		t.Fatalf("passport identity changed after rejected overwrite")
	}
}
