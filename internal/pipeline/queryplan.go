package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/slotpress/slotpress/internal/catalog"
)

// Generator is the text-generation slice of the model provider.
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// QueryPlanStage derives 3-5 search queries for the topic, searching only
// for gaps in what the catalog already knows. It never leaves the query
// list empty: parse failures fall back to templated queries.
type QueryPlanStage struct {
	Generator Generator
	Logger    *log.Logger
}

func (s *QueryPlanStage) Name() string { return "query_plan" }

func (s *QueryPlanStage) Run(ctx context.Context, state *RunState) error {
	prompt := queryPlanPrompt(state.Topic, state.GameSpecs)
	response, err := s.Generator.Generate(ctx, prompt, 0.5)
	if err != nil {
		return stageError(s.Name(), err)
	}

	queries := parseQueries(response)
	if len(queries) == 0 {
		s.Logger.Printf("WARNING: query planning unparseable for %q, using templates", state.Topic)
		queries = fallbackQueries(state.Topic)
	}
	queries = clampQueries(queries, state.Topic)
	s.Logger.Printf("planned %d search queries", len(queries))
	state.SearchQueries = queries
	return nil
}

// clampQueries holds the plan to the 3-5 range the prompt asks for. A model
// that under-delivers gets topped up from the templates, one that rambles
// gets cut.
func clampQueries(queries []string, topic string) []string {
	if len(queries) > 5 {
		return queries[:5]
	}
	if len(queries) >= 3 {
		return queries
	}
	seen := make(map[string]bool, len(queries))
	for _, q := range queries {
		seen[strings.ToLower(q)] = true
	}
	for _, q := range fallbackQueries(topic) {
		if len(queries) >= 3 {
			break
		}
		if !seen[strings.ToLower(q)] {
			queries = append(queries, q)
		}
	}
	return queries
}

func fallbackQueries(topic string) []string {
	year := time.Now().Year()
	return []string{
		fmt.Sprintf("%s review", topic),
		fmt.Sprintf("%s bonuses %d", topic, year),
		fmt.Sprintf("%s strategy", topic),
	}
}

func parseQueries(response string) []string {
	raw := sanitizeJSON(extractJSONObject(response))
	if raw == "" {
		return nil
	}
	var wrapper struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
		return nil
	}
	var out []string
	for _, q := range wrapper.Queries {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

func queryPlanPrompt(topic string, specs *catalog.GameSpecs) string {
	year := time.Now().Year()
	return fmt.Sprintf(`Role: You are an elite SEO Strategist designed to construct high-precision search queries for Google.

Task: Generate a list of 3-5 Google search queries to gather comprehensive data for an article on:
TOPIC: "%s"

%s
---

Guidelines:
1. **Focus on Gaps:** Compare the TOPIC with the Context Data. Search ONLY for missing information.
2. **Intent Diversity:** Cover these angles:
   - *Commercial:* Best casinos/bonuses (include "%d").
   - *Informational:* Rules, hidden features, free play.
   - *Social Proof:* Real discussions (e.g., use "site:reddit.com").
3. **Language:** English.

Output Format:
Return a valid JSON object with a single key "queries" containing the list of strings.
STRICT JSON ONLY. No comments (// or #). No intro text.
Example: { "queries": ["query 1", "query 2", "query 3"] }`, topic, specsContext(specs), year)
}

// specsContext renders what is already known so the model does not waste
// queries on it, and calls out the fields we still lack.
func specsContext(specs *catalog.GameSpecs) string {
	if specs == nil {
		return "Context Data: None (Find everything via search)."
	}

	var known []string
	add := func(label, v string) {
		if strings.TrimSpace(v) != "" {
			known = append(known, fmt.Sprintf("- %s: %s", label, v))
		}
	}
	add("Game Name", specs.Name)
	add("Provider", specs.Provider)
	add("Game Type", specs.Type)
	add("RTP", specs.RTP)
	add("Max Win", specs.MaxWin)
	add("Themes", specs.Themes)

	var missing []string
	if strings.TrimSpace(specs.RTP) == "" {
		missing = append(missing, "RTP")
	}
	if strings.TrimSpace(specs.MaxWin) == "" {
		missing = append(missing, "Max Win")
	}
	if strings.TrimSpace(specs.MinBet) == "" {
		missing = append(missing, "Min/Max Bets")
	}

	out := "KNOWN FACTS (Do not search for these):\n" + strings.Join(known, "\n")
	if len(missing) > 0 {
		out += "\n\nMISSING DATA (PRIORITY to search):\nWe explicitly lack: " +
			strings.Join(missing, ", ") + ". Please generate queries to find these specifically."
	}
	return out
}
