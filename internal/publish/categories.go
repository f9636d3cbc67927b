package publish

import "strings"

var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"strategy", []string{"strategy", "guide", "tips", "how to", "tactics", "professional", "tutorial"}},
	{"bankroll", []string{"bankroll", "budget", "stakes", "money", "low", "high roller", "budget-friendly"}},
	{"features", []string{"feature", "bonus", "free spins", "rtp", "volatility", "mechanics"}},
	{"reviews", []string{"vs", "comparison", "best", "top", "review", "rated"}},
	{"mobile", []string{"mobile", "ios", "android", "app", "download"}},
	{"free-play", []string{"free", "demo", "play for fun", "no deposit"}},
	{"real-money", []string{"real money", "cash", "win", "payout", "withdrawal"}},
	{"new", []string{"new", "2025", "2026", "release", "latest", "fresh"}},
}

var tagStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "for": true, "with": true, "and": true,
	"or": true, "in": true, "on": true, "at": true, "to": true, "of": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"being": true, "have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "that": true, "this": true, "these": true,
	"those": true, "it": true, "its": true, "as": true, "but": true, "by": true,
	"from": true, "players": true, "playing": true, "play": true, "game": true,
	"games": true, "slot": true, "slots": true,
}

// CategoriesAndTags derives CMS taxonomy from the topic text without a
// model call. Capped at three each to keep the CMS from generating
// endless archive pages.
func CategoriesAndTags(topic string, keywords []string) (categories, tags []string) {
	lower := strings.ToLower(topic)

	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(lower, w) {
				categories = append(categories, ck.category)
				break
			}
		}
		if len(categories) == 3 {
			break
		}
	}
	if len(categories) == 0 {
		categories = []string{"general"}
	}

	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && len(tags) < 2 {
			tags = append(tags, k)
		}
	}
	for _, word := range strings.Fields(topic) {
		word = strings.ToLower(strings.Trim(word, ".,!?;:'\"()"))
		if len(word) <= 4 || tagStopWords[word] {
			continue
		}
		if len(tags) >= 3 {
			break
		}
		dup := false
		for _, t := range tags {
			if t == word {
				dup = true
				break
			}
		}
		if !dup {
			tags = append(tags, word)
		}
	}
	return categories, tags
}
