package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/slotpress/slotpress/tools/web_search/models"
)

var rtpValueRe = regexp.MustCompile(`(\d{2}(?:[.,]\d{1,2})?)\s*%`)

// ValidateStage turns search snippets into the run's passport. It never
// fails the run: unparseable model output degrades to the default passport
// and the article pivots to the generic-guide path.
type ValidateStage struct {
	Generator Generator
	Logger    *log.Logger
}

func (s *ValidateStage) Name() string { return "fact_validation" }

func (s *ValidateStage) Run(ctx context.Context, state *RunState) error {
	prompt := validatePrompt(state.Topic, state.SearchResults)
	response, err := s.Generator.Generate(ctx, prompt, 0.0)
	if err != nil {
		return stageError(s.Name(), err)
	}

	passport := parsePassport(response)
	if passport == nil {
		s.Logger.Printf("WARNING: passport unparseable for %q, using safe default", state.Topic)
		passport = DefaultPassport("Fallback due to parse error")
	}
	normalizePassport(passport, state.SearchResults)

	s.Logger.Printf("passport: %s -> %s", passport.Decision.MatchStatus, passport.Decision.WritingStrategy)
	return state.SetPassport(passport)
}

func parsePassport(response string) *Passport {
	raw := sanitizeJSON(extractJSONObject(response))
	if raw == "" {
		return nil
	}
	var p Passport
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil
	}
	return &p
}

// normalizePassport repairs missing sub-records and applies the
// deterministic post-extraction rules: the strategy table, highest RTP
// wins, keyword mechanics evidence, currency formatting.
func normalizePassport(p *Passport, results []models.Result) {
	if _, ok := strategyFor[p.Decision.MatchStatus]; !ok {
		p.Decision.MatchStatus = GenericQuery
		if p.Decision.PivotReason == "" {
			p.Decision.PivotReason = "Fallback: Missing decision data in model response."
		}
	}
	// strategy mapping is fixed; whatever the model suggested is discarded
	p.Decision.WritingStrategy = StrategyFor(p.Decision.MatchStatus)

	if p.Facts.Features == nil {
		p.Facts.Features = []string{}
	}

	snippetText := strings.ToLower(collectSnippetText(results))

	if rtp := highestRTP(p.TechnicalSpecs.RTPSingleValue, p.Facts.RTP, snippetText); rtp != "" {
		p.TechnicalSpecs.RTPSingleValue = rtp
	} else if p.TechnicalSpecs.RTPSingleValue == "" {
		p.TechnicalSpecs.RTPSingleValue = "Unknown"
	}

	if m := mechanicsFromEvidence(snippetText); m != "" {
		p.TechnicalSpecs.MechanicsType = m
	} else if !validMechanics(p.TechnicalSpecs.MechanicsType) {
		p.TechnicalSpecs.MechanicsType = Paylines
	}

	p.TechnicalSpecs.CurrencyFormat.MinBet = normalizeCurrency(p.TechnicalSpecs.CurrencyFormat.MinBet, true)
	p.TechnicalSpecs.CurrencyFormat.MaxBet = normalizeCurrency(p.TechnicalSpecs.CurrencyFormat.MaxBet, false)
}

func collectSnippetText(results []models.Result) string {
	var b strings.Builder
	for _, r := range results {
		b.WriteString(r.Title)
		b.WriteString(" ")
		b.WriteString(r.Description)
		b.WriteString(" ")
	}
	return b.String()
}

// highestRTP scans all candidate sources for percentage values and keeps
// the highest plausible one, formatted as it appeared.
func highestRTP(sources ...string) string {
	best := ""
	bestVal := 0.0
	for _, src := range sources {
		for _, m := range rtpValueRe.FindAllStringSubmatch(src, -1) {
			text := strings.ReplaceAll(m[1], ",", ".")
			val, err := strconv.ParseFloat(text, 64)
			if err != nil || val < 50 || val > 100 {
				continue
			}
			if val > bestVal {
				bestVal = val
				best = text + "%"
			}
		}
	}
	return best
}

func mechanicsFromEvidence(snippetText string) Mechanics {
	switch {
	case strings.Contains(snippetText, "scatter pays"),
		strings.Contains(snippetText, "pay anywhere"),
		strings.Contains(snippetText, "wins all ways"):
		return PayAnywhere
	case strings.Contains(snippetText, "cluster"):
		return ClusterPays
	case strings.Contains(snippetText, "megaways"):
		return Megaways
	}
	return ""
}

// normalizeCurrency turns bare numbers into currency strings. A bare min
// bet of 20 is read as cents ($0.20); max bets keep their magnitude.
func normalizeCurrency(v string, isMin bool) string {
	v = strings.TrimSpace(v)
	if v == "" {
		if isMin {
			return "$0.10"
		}
		return "$100"
	}
	if strings.ContainsAny(v, "$€£") {
		return v
	}
	val, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
	if err != nil {
		if isMin {
			return "$0.10"
		}
		return "$100"
	}
	if isMin && val >= 1 {
		val = val / 100
	}
	if val == float64(int64(val)) {
		return fmt.Sprintf("$%d", int64(val))
	}
	return fmt.Sprintf("$%.2f", val)
}

func validatePrompt(topic string, results []models.Result) string {
	var summary strings.Builder
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = "No Title"
		}
		desc := r.Description
		if desc == "" {
			desc = "No Description"
		}
		fmt.Fprintf(&summary, "- Title: %s\n  Snippet: %s\n", title, desc)
	}

	return fmt.Sprintf(`Role: You are an expert Gambling Fact-Checker and Content Strategist.
Your goal is to validate the user's query against search results to prevent AI hallucinations.

USER QUERY: "%s"

SEARCH SNIPPETS:
%s

---
TASK:
Analyze if the User Query corresponds to a real, existing game with the requested features.
Determine the "Truth Status" and select the best writing strategy.

definitions:
1. EXACT_MATCH: Game exists AND has the requested feature (e.g., "Starburst NetEnt").
2. FEATURE_MISMATCH: Game exists, but requested feature is missing (e.g., "Starburst Progressive Jackpot").
3. NON_EXISTENT_GAME: Query looks like a game name, but no such game exists in snippets.
4. LOGICAL_CONTRADICTION: Query asks for impossible combo (e.g., "Safe High Volatility Slot").
5. GENERIC_QUERY: Query is about a genre/type, not a specific game name (e.g., "Best high rtp slots").

MAPPING RULES (match_status -> selected_writing_strategy):
- EXACT_MATCH -> DIRECT_REVIEW
- FEATURE_MISMATCH -> MYTH_BUSTER
- NON_EXISTENT_GAME -> GENRE_OVERVIEW
- LOGICAL_CONTRADICTION -> STRATEGY_GUIDE
- GENERIC_QUERY -> GENERIC_GUIDE

OUTPUT SCHEMA (JSON Only):
{
  "analysis": {
    "query_intent": "GAME_SPECIFIC | GENERIC | BRAND",
    "detected_game_name": "String OR null",
    "is_real_game": true/false
  },
  "decision": {
    "match_status": "Status from definitions",
    "selected_writing_strategy": "Strategy from mapping",
    "pivot_reason": "Explain why this strategy was chosen."
  },
  "facts": {
    "provider": "String OR null",
    "rtp": "String OR null",
    "volatility": "String OR null",
    "has_jackpot": true/false,
    "features": ["found feature 1", "found feature 2"]
  },
  "technical_specs": {
    "mechanics_type": "PAYLINES | CLUSTER_PAYS | PAY_ANYWHERE | MEGAWAYS | INSTANT_WIN",
    "rtp_single_value": "96.50%%",
    "currency_format": {
      "min_bet": "$0.20",
      "max_bet": "$100"
    }
  }
}

INSTRUCTIONS:
- Be strict. If the specific game name shows no results, mark NON_EXISTENT_GAME.
- Extract ONLY verified facts from snippets. Do not hallucinate RTP or Provider.
- If NON_EXISTENT_GAME, 'facts' should be empty or general.

NORMALIZATION RULES (CRITICAL):
1. RTP Fix: If multiple RTPs found (95.5, 96.5), select the HIGHEST ONE and put it in 'rtp_single_value'.
2. Mechanics Classifier:
    - If snippets contain "Scatter Pays", "Pay Anywhere", "Wins all ways" -> "PAY_ANYWHERE".
    - If snippets contain "Cluster", "Group of 5+" -> "CLUSTER_PAYS".
    - If "Megaways" -> "MEGAWAYS".
    - Default/Standard -> "PAYLINES".
3. Currency Normalizer:
    - Convert bare numbers to currency strings.
    - If "min bet: 20", assume it is 0.20 unless High Limit Context. -> "$0.20".
    - Always include symbol ($/EUR/GBP).`, topic, summary.String())
}
