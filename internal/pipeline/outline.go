package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/slotpress/slotpress/utils"
)

// OutlineSection is one planned H2 block of the article.
type OutlineSection struct {
	ID             int      `json:"id"`
	Title          string   `json:"title"`
	UserIntent     string   `json:"user_intent"`
	KeyPoints      []string `json:"key_points"`
	RetrievalQuery string   `json:"rag_query"`
	Description    string   `json:"description"`
}

// Outline is the article plan produced by the strategist step.
type Outline struct {
	MainTitle       string           `json:"main_title"`
	SEOSlug         string           `json:"seo_slug"`
	MetaDescription string           `json:"meta_description"`
	Keywords        []string         `json:"keywords"`
	Sections        []OutlineSection `json:"sections"`
}

// OutlineStage plans the article structure under the passport's strategy.
// A parse failure leaves the outline nil; the writer and compiler detect
// that and short-circuit, so the run ends PARTIAL instead of crashing.
type OutlineStage struct {
	Generator Generator
	Logger    *log.Logger
}

func (s *OutlineStage) Name() string { return "outline_plan" }

func (s *OutlineStage) Run(ctx context.Context, state *RunState) error {
	prompt := outlinePrompt(state.Topic, state)
	response, err := s.Generator.Generate(ctx, prompt, 0.4)
	if err != nil {
		return stageError(s.Name(), err)
	}

	outline := parseOutline(response)
	if outline == nil {
		s.Logger.Printf("ERROR: outline unparseable for %q", state.Topic)
		return nil
	}
	if outline.SEOSlug == "" {
		outline.SEOSlug = utils.SafeFilename(state.Topic)
	}
	s.Logger.Printf("outline %q with %d sections", outline.MainTitle, len(outline.Sections))
	state.Outline = outline
	return nil
}

func parseOutline(response string) *Outline {
	raw := sanitizeJSON(extractJSONObject(response))
	if raw == "" {
		return nil
	}
	var outline Outline
	if err := json.Unmarshal([]byte(raw), &outline); err != nil {
		return nil
	}
	// section IDs are reassigned sequentially regardless of model output
	for i := range outline.Sections {
		outline.Sections[i].ID = i + 1
	}
	return &outline
}

func outlinePrompt(topic string, state *RunState) string {
	var summary strings.Builder
	for _, r := range state.SearchResults {
		title := r.Title
		if title == "" {
			title = "No Title"
		}
		desc := r.Description
		if desc == "" {
			desc = "No Description"
		}
		fmt.Fprintf(&summary, "- %s: %s\n", title, desc)
	}

	specsStr := "No specific game data found in DB."
	if state.GameSpecs != nil {
		if data, err := json.MarshalIndent(state.GameSpecs, "", "  "); err == nil {
			specsStr = string(data)
		}
	}

	return fmt.Sprintf(`Role: You are a Senior Content Strategist.
Your goal is to create a structured article outline based on the provided topic, facts, and writing strategy.

TOPIC: "%s"

%s

SPECS:
%s

SEARCH SUMMARY:
%s

OUTPUT SCHEMA:
Return a JSON object with keys: 'main_title' (string), 'seo_slug' (string), 'meta_description' (string), 'keywords' (list of strings), 'sections' (list of objects).
Each section object must have: 'id' (integer), 'title', 'user_intent', 'key_points', 'rag_query', 'description'.

ADDITIONAL REQUIREMENTS:
- Each section must have distinct key_points. Do not repeat the same metric (RTP, volatility, max win) in more than one section.
- Ensure the outline creates a clear progression: hook -> facts -> features -> alternatives/where-to-play -> conclusion.

EXAMPLE JSON:
{
  "main_title": "Title Here",
  "seo_slug": "url-slug",
  "meta_description": "One-sentence summary.",
  "keywords": ["keyword one", "keyword two"],
  "sections": [
    {
      "id": 1,
      "title": "Introduction",
      "user_intent": "Hook the reader",
      "key_points": ["Discuss RTP", "Mention max win"],
      "rag_query": "game basic info"
    }
  ]
}

STRICT JSON. No comments. No trailing commas.`, topic, strategyBlock(state.Passport()), specsStr, summary.String())
}

// strategyBlock renders the passport as binding instructions for the
// outline. The pivot guidelines keep a mismatched topic from turning into
// a fabricated review.
func strategyBlock(p *Passport) string {
	if p == nil {
		return ""
	}
	facts, _ := json.MarshalIndent(p.Facts, "", "  ")
	return fmt.Sprintf(`--- PIVOT STRATEGY INSTRUCTIONS (MUST FOLLOW) ---
MATCH STATUS: %s
STRATEGY: %s
REASON: %s

VERIFIED FACTS (Use these, ignore hallucinations):
%s

STRATEGY GUIDELINES:
- IF DIRECT_REVIEW: Standard extensive review.
- IF MYTH_BUSTER: Debunk the myth with a compelling, unique title. Vary your title structure. Never use the same title pattern twice.
- IF GENRE_OVERVIEW: Do NOT review a single game. Review the category/provider.
- IF STRATEGY_GUIDE: Focus on "How to Play/Win" rather than specs.
- Avoid repeating the same facts across multiple sections. Distribute key specs so each section has a unique angle.
- For MYTH_BUSTER, include at least one section with a practical alternative path (demo play, bonus types, low-wagering options, where to play) without naming specific casinos or inventing offers.
-------------------------------------------------`,
		p.Decision.MatchStatus, p.Decision.WritingStrategy, p.Decision.PivotReason, facts)
}
