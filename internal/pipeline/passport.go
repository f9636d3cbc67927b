package pipeline

// MatchStatus is the truth status of a topic against search evidence.
type MatchStatus string

const (
	ExactMatch          MatchStatus = "EXACT_MATCH"
	FeatureMismatch     MatchStatus = "FEATURE_MISMATCH"
	NonExistentGame     MatchStatus = "NON_EXISTENT_GAME"
	LogicalContradction MatchStatus = "LOGICAL_CONTRADICTION"
	GenericQuery        MatchStatus = "GENERIC_QUERY"
)

// WritingStrategy is the narrative template for the article.
type WritingStrategy string

const (
	DirectReview  WritingStrategy = "DIRECT_REVIEW"
	MythBuster    WritingStrategy = "MYTH_BUSTER"
	GenreOverview WritingStrategy = "GENRE_OVERVIEW"
	StrategyGuide WritingStrategy = "STRATEGY_GUIDE"
	GenericGuide  WritingStrategy = "GENERIC_GUIDE"
)

// strategyFor is the fixed status-to-strategy mapping. The model's own
// strategy suggestion is always discarded in favor of this table.
var strategyFor = map[MatchStatus]WritingStrategy{
	ExactMatch:          DirectReview,
	FeatureMismatch:     MythBuster,
	NonExistentGame:     GenreOverview,
	LogicalContradction: StrategyGuide,
	GenericQuery:        GenericGuide,
}

// StrategyFor returns the writing strategy for a match status. Unknown
// statuses fall back to the generic pair.
func StrategyFor(status MatchStatus) WritingStrategy {
	if s, ok := strategyFor[status]; ok {
		return s
	}
	return GenericGuide
}

// Mechanics classifies how a slot pays out.
type Mechanics string

const (
	Paylines    Mechanics = "PAYLINES"
	ClusterPays Mechanics = "CLUSTER_PAYS"
	PayAnywhere Mechanics = "PAY_ANYWHERE"
	Megaways    Mechanics = "MEGAWAYS"
	InstantWin  Mechanics = "INSTANT_WIN"
)

func validMechanics(m Mechanics) bool {
	switch m {
	case Paylines, ClusterPays, PayAnywhere, Megaways, InstantWin:
		return true
	}
	return false
}

// Passport is the single authoritative fact set for one article. It is
// created once by fact validation and read-only afterward; the outline and
// every section draft defer to it over anything found in scraped context.
type Passport struct {
	Analysis       Analysis       `json:"analysis"`
	Decision       Decision       `json:"decision"`
	Facts          Facts          `json:"facts"`
	TechnicalSpecs TechnicalSpecs `json:"technical_specs"`
}

type Analysis struct {
	QueryIntent      string `json:"query_intent"`
	DetectedGameName string `json:"detected_game_name"`
	IsRealGame       bool   `json:"is_real_game"`
}

type Decision struct {
	MatchStatus     MatchStatus     `json:"match_status"`
	WritingStrategy WritingStrategy `json:"selected_writing_strategy"`
	PivotReason     string          `json:"pivot_reason"`
}

type Facts struct {
	Provider   string   `json:"provider"`
	RTP        string   `json:"rtp"`
	Volatility string   `json:"volatility"`
	HasJackpot bool     `json:"has_jackpot"`
	Features   []string `json:"features"`
}

type CurrencyFormat struct {
	MinBet string `json:"min_bet"`
	MaxBet string `json:"max_bet"`
}

type TechnicalSpecs struct {
	MechanicsType  Mechanics      `json:"mechanics_type"`
	RTPSingleValue string         `json:"rtp_single_value"`
	CurrencyFormat CurrencyFormat `json:"currency_format"`
}

// DefaultPassport is the documented safe fallback when validation output
// cannot be parsed. It routes the article down the generic-guide path.
func DefaultPassport(reason string) *Passport {
	return &Passport{
		Analysis: Analysis{QueryIntent: "GENERIC"},
		Decision: Decision{
			MatchStatus:     GenericQuery,
			WritingStrategy: GenericGuide,
			PivotReason:     reason,
		},
		Facts: Facts{Features: []string{}},
		TechnicalSpecs: TechnicalSpecs{
			MechanicsType:  Paylines,
			RTPSingleValue: "Unknown",
			CurrencyFormat: CurrencyFormat{MinBet: "$0.10", MaxBet: "$100"},
		},
	}
}
