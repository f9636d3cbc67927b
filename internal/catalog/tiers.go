package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const tierBatchSize = 120

// DefaultTier is assigned when classification fails or a provider is
// unknown; unknown studios are assumed niche.
const DefaultTier = 3

var (
	jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)
	digitsRe     = regexp.MustCompile(`\d+`)
)

// Generator is the slice of the model provider tier classification needs.
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// TierBook maps provider names to popularity tiers 1..3. It is backed by a
// user-editable JSON file: the model classifies providers the file does not
// know yet and the result is appended, so a hand edit is never overwritten.
type TierBook struct {
	path   string
	tiers  map[string]int
	logger *log.Logger
}

func LoadTierBook(path string, logger *log.Logger) *TierBook {
	if logger == nil {
		logger = log.New(os.Stdout, "[CATALOG] ", log.LstdFlags)
	}
	book := &TierBook{path: path, tiers: map[string]int{}, logger: logger}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Printf("WARNING: reading tier config %s: %v, starting fresh", path, err)
		}
		return book
	}
	if err := json.Unmarshal(data, &book.tiers); err != nil {
		logger.Printf("WARNING: parsing tier config %s: %v, starting fresh", path, err)
		book.tiers = map[string]int{}
	}
	return book
}

// TierOf returns the provider's tier, defaulting to tier 3.
func (b *TierBook) TierOf(provider string) int {
	if t, ok := b.tiers[provider]; ok {
		return t
	}
	return DefaultTier
}

// EnsureClassified classifies any providers missing from the book and
// appends them to the backing file. Classification failures fall back to
// tier 3 and are still recorded so they are not re-asked next run.
func (b *TierBook) EnsureClassified(ctx context.Context, gen Generator, providers []string) error {
	var missing []string
	for _, p := range providers {
		if _, ok := b.tiers[p]; !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	b.logger.Printf("classifying %d providers missing from tier config", len(missing))

	for start := 0; start < len(missing); start += tierBatchSize {
		end := start + tierBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]
		classified, err := classifyBatch(ctx, gen, batch)
		if err != nil {
			b.logger.Printf("WARNING: classifying batch: %v", err)
		}
		for name, tier := range classified {
			b.tiers[name] = tier
		}
	}

	// record failures as tier 3 so they are not re-asked next run
	for _, p := range missing {
		if _, ok := b.tiers[p]; !ok {
			b.tiers[p] = DefaultTier
		}
	}
	return b.save()
}

func classifyBatch(ctx context.Context, gen Generator, batch []string) (map[string]int, error) {
	prompt := fmt.Sprintf(`Act as an iGaming Industry Expert.
Classify these Casino Game Providers into 3 Tiers based on GLOBAL POPULARITY and REPUTATION.

Providers: %s

Return ONLY a raw JSON object: {"ProviderName": TierNumber}.

Tier 1: Absolute Market Leaders (e.g. Pragmatic, Evolution, NetEnt, Play'n GO, Games Global, IGT, Amusnet).
Tier 2: Strong Popular Studios (e.g. Nolimit, Push Gaming, Spinomenal, Playson, Betsoft, Spribe, BGaming).
Tier 3: Classic, Niche, Small or Unknown Studios.

JSON ONLY. No markdown.`, strings.Join(batch, ", "))

	response, err := gen.Generate(ctx, prompt, 0.1)
	if err != nil {
		return nil, err
	}
	raw := parseTierResponse(response)
	out := make(map[string]int, len(raw))
	for name, v := range raw {
		if tier, ok := coerceTier(v); ok {
			out[name] = tier
		} else {
			out[name] = DefaultTier
		}
	}
	return out, nil
}

func parseTierResponse(response string) map[string]any {
	clean := strings.ReplaceAll(response, "```json", "")
	clean = strings.TrimSpace(strings.ReplaceAll(clean, "```", ""))

	var raw map[string]any
	if m := jsonObjectRe.FindString(clean); m != "" {
		if err := json.Unmarshal([]byte(m), &raw); err == nil {
			return raw
		}
	}
	if strings.HasPrefix(clean, "{") {
		if err := json.Unmarshal([]byte(clean), &raw); err == nil {
			return raw
		}
	}
	return nil
}

// coerceTier accepts numbers, numeric strings and prose like "Tier 2".
func coerceTier(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		n := int(t)
		if n >= 1 && n <= 3 {
			return n, true
		}
	case string:
		if d := digitsRe.FindString(t); d != "" {
			if n, err := strconv.Atoi(d); err == nil && n >= 1 && n <= 3 {
				return n, true
			}
		}
	}
	return 0, false
}

func (b *TierBook) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("creating tier config dir: %w", err)
	}
	keys := make([]string, 0, len(b.tiers))
	for k := range b.tiers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]int, len(keys))
	for _, k := range keys {
		ordered[k] = b.tiers[k]
	}
	data, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tier config: %w", err)
	}
	if err := os.WriteFile(b.path, data, 0o644); err != nil {
		return fmt.Errorf("writing tier config: %w", err)
	}
	return nil
}
