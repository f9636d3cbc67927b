package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
)

var (
	inlineLinkRe = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	rawURLRe     = regexp.MustCompile(`https?://\S+`)
	bareDomainRe = regexp.MustCompile(`\b\w+\.(com|org|net|io|world)\b`)
)

// WriteStage drafts each outline section against retrieved context, under
// the passport's one-truth policy. With no outline it skips without error.
type WriteStage struct {
	Generator Generator
	Store     Researcher
	TopK      int
	Logger    *log.Logger
}

func (s *WriteStage) Name() string { return "section_writer" }

func (s *WriteStage) Run(ctx context.Context, state *RunState) error {
	if state.Outline == nil {
		s.Logger.Printf("no outline, skipping writing for %q", state.Topic)
		return nil
	}

	specsText := formatSpecs(state)
	for _, section := range state.Outline.Sections {
		query := strings.TrimSpace(section.Title + " " + section.Description)
		if section.RetrievalQuery != "" {
			query = section.RetrievalQuery
		}
		var contextText string
		if s.Store != nil {
			hits := s.Store.Retrieve(ctx, query, s.TopK)
			parts := make([]string, 0, len(hits))
			for _, h := range hits {
				parts = append(parts, h.Text)
			}
			contextText = strings.Join(parts, "\n\n")
		}

		content, err := s.Generator.Generate(ctx, sectionPrompt(state.Topic, section, specsText, contextText, state.Passport()), 0.7)
		if err != nil {
			return stageError(s.Name(), err)
		}
		state.SectionDrafts[section.ID] = stripLinks(content)
		s.Logger.Printf("completed section %d: %s", section.ID, section.Title)
	}
	return nil
}

// stripLinks removes hyperlinks, raw URLs and bare domains so the writer
// cannot echo source sites into the article.
func stripLinks(content string) string {
	content = inlineLinkRe.ReplaceAllString(content, "$1")
	content = rawURLRe.ReplaceAllString(content, "")
	content = bareDomainRe.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

func formatSpecs(state *RunState) string {
	if state.GameSpecs == nil {
		return "No verifiable data specs available from database."
	}
	g := state.GameSpecs
	lines := []string{"--- GAME DATABASE SPECS (AXIOM) ---"}
	add := func(label, v string) {
		if strings.TrimSpace(v) != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", label, v))
		}
	}
	add("name", g.Name)
	add("provider", g.Provider)
	add("rtp", g.RTP)
	add("type", g.Type)
	add("themes", g.Themes)
	add("min_bet", g.MinBet)
	add("max_bet", g.MaxBet)
	add("max_win", g.MaxWin)
	lines = append(lines, "-----------------------------------")
	return strings.Join(lines, "\n")
}

func sectionPrompt(topic string, section OutlineSection, specsText, contextText string, p *Passport) string {
	intent := section.UserIntent
	if intent == "" {
		intent = "Inform and engage"
	}
	points := "Cover the section topic comprehensively."
	if len(section.KeyPoints) > 0 {
		var b strings.Builder
		for _, kp := range section.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", kp)
		}
		points = b.String()
	}

	return fmt.Sprintf(`Role: You are a Conversion-Focused iGaming Copywriter.
Your goal is to write a compelling section for a slot review that drives player interest while remaining factual.

TOPIC: "%s"
SECTION TITLE: "%s"
PLAYER INTENT: %s

INPUT DATA:
1. HARD SPECS (Axioms - Never deviate):
%s

2. STRATEGY POINTS (Must cover these):
%s

3. RESEARCH CONTEXT (Use for depth/details):
%s

4. STRATEGY COMPLIANCE:
%s

--------------------------------------------------
STRICT PROHIBITIONS (Violations = Failure):
1. NO EXTERNAL LINKS: Do not include URLs, domain names, or hyperlinks.
2. NO CITATIONS: Do not write "According to [Source]". Integrate facts naturally.
3. NO FAKE CASINOS: Do not invent casino names. Use generic terms like "top-rated online casinos", "trusted operators", or "licensed sites".
4. NO COMPETITOR MENTIONS: Do not mention other review sites.
--------------------------------------------------

WRITING INSTRUCTIONS:
- Tone: Expert, enthusiastic, but grounded in math (RTP/Volatility).
- Formatting: Use clean Markdown ONLY. Use **bold** for key metrics (NOT HTML tags like <b>).
- Structure: Divide content into logical subsections with ## H2 or ### H3 headers where appropriate. Do not write one solid block of text.
- Conflict Resolution: If Research Context contradicts Hard Specs, TRUST HARD SPECS.
- Flow: Do not start with "In this section...". Jump straight into the value.
- Anti-repetition: Do not repeat the same metric (RTP, volatility, max win) more than once in this section. If it is not essential to this section, omit it.
- Anti-repetition: Avoid reusing identical phrases from other sections. This section must add new value or angle.
- Advice: Prefer 2-3 concrete, actionable tips over generic filler.

OUTPUT:
Write ONLY the content for the section "%s".
Do NOT prefix content with labels like "Hook:", "Introduction:", "Key Points:", etc. Start directly with the content.`,
		topic, section.Title, intent, specsText, points, contextText, compliance(p), section.Title)
}

// compliance renders the one-truth policy: the passport's RTP, bets and
// mechanics terminology override anything the research context says.
func compliance(p *Passport) string {
	if p == nil {
		return ""
	}
	facts, _ := json.Marshal(p.Facts)
	return fmt.Sprintf(`STRICT STRATEGY INSTRUCTIONS:
- Strategy: %s
- Pivot Reason: %s
- Verified Facts: %s

--- CRITICAL: ONE TRUTH POLICY (Overrides all other data) ---
1. RTP: You MUST use "%s" as the definitive RTP. Ignore all other RTP values found in context.
2. BETS: You MUST use "%s" to "%s". Never use bare numbers like "20".
3. MECHANICS:
   - Type: %s
   - IF 'PAY_ANYWHERE': DO NOT use words 'lines', 'connected', 'adjacent', 'touching'. Use '8+ matching symbols anywhere'.
   - IF 'CLUSTER_PAYS': Use 'touching horizontally or vertically'.
   - IF 'PAYLINES': Use standard paylines terminology.
-------------------------------------------------------------
- Do not invent facts not listed in the 'Verified Facts' section.`,
		p.Decision.WritingStrategy, p.Decision.PivotReason, facts,
		p.TechnicalSpecs.RTPSingleValue,
		p.TechnicalSpecs.CurrencyFormat.MinBet, p.TechnicalSpecs.CurrencyFormat.MaxBet,
		p.TechnicalSpecs.MechanicsType)
}
