package retrieval

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	headerRe       = regexp.MustCompile(`(?m)^(#{1,3})\s+(.+)$`)
	markdownLinkRe = regexp.MustCompile(`\[.*?\]\(.*?\)`)
)

// criticalTriggers mark a chunk as unusable on a single hit. They cover
// bot walls, auth prompts, geo blocks and player-widget noise that reader
// APIs return with a clean 200.
var criticalTriggers = []string{
	"verify you are human", "checking your browser", "access denied",
	"403 forbidden", "blocked by network security", "cloudflare", "ray id:",
	"confirm you are a human", "target url returned error",

	"session expired", "forgot password", "two factor authentication",
	"create account", "join today and get", "enter your e-mail address",

	"based on your ip address", "detected that you are visiting",
	"gambling regulations in germany",

	"html local storage", "indexeddb", "storage duration",
	"ytidb", "yt-remote", "last_result_entry_key",
	"tap to unmute", "you're signed out", "videos you watch may be added",

	"consent selection", "do not sell or share", "powered by cookiebot",
	"strictly necessary cookies",
}

// cookieTriggers individually appear in legitimate prose, so a chunk is
// dropped only when two or more match.
var cookieTriggers = []string{
	"cookie declaration", "consent id", "marketing cookies",
	"withdraw your consent", "google analytics", "privacy policy",
	"use cookies", "all rights reserved", "cookie settings",
	"we use cookies", "personalise content",
}

// IsGarbage reports whether a chunk body is boilerplate rather than content.
func IsGarbage(text string) bool {
	if len(text) < 100 {
		return true
	}
	lower := strings.ToLower(text)

	for _, trigger := range criticalTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}

	matches := 0
	for _, trigger := range cookieTriggers {
		if strings.Contains(lower, trigger) {
			matches++
		}
	}
	if matches >= 2 {
		return true
	}

	links := markdownLinkRe.FindAllString(text, -1)
	linkChars := 0
	for _, l := range links {
		linkChars += len(l)
	}
	if float64(linkChars)/float64(len(text)) > 0.4 {
		return true
	}

	return false
}

type headerSection struct {
	breadcrumb string // "H1 > H2 > H3" path down to this section
	body       string
}

// SplitMarkdown splits a fetched page into labeled chunks. Header context
// is preserved as a breadcrumb so the writer model sees where a fragment
// came from, and boilerplate chunks are filtered out before labeling.
func SplitMarkdown(markdown, sourceURL string, size, overlap int) []string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return nil
	}
	if size <= 0 {
		size = 1000
	}
	// overlap must stay under half the window or the cursor stops advancing
	if overlap < 0 || overlap*2 >= size {
		overlap = size / 10
	}

	var out []string
	for _, sec := range splitByHeaders(markdown) {
		context := sec.breadcrumb
		if context == "" {
			context = "General"
		}
		for _, part := range windowSplit(sec.body, size, overlap) {
			if IsGarbage(part) {
				continue
			}
			out = append(out, fmt.Sprintf("Source: %s\nContext: %s\n\n%s", sourceURL, context, part))
		}
	}
	return out
}

func splitByHeaders(markdown string) []headerSection {
	lines := strings.Split(markdown, "\n")
	var sections []headerSection
	// crumbs[0..2] hold the current H1/H2/H3 titles
	var crumbs [3]string
	var body []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		if text == "" {
			return
		}
		var parts []string
		for _, c := range crumbs {
			if c != "" {
				parts = append(parts, c)
			}
		}
		sections = append(sections, headerSection{breadcrumb: strings.Join(parts, " > "), body: text})
	}

	for _, line := range lines {
		m := headerRe.FindStringSubmatch(line)
		if m == nil {
			body = append(body, line)
			continue
		}
		flush()
		level := len(m[1]) - 1
		crumbs[level] = strings.TrimSpace(m[2])
		for i := level + 1; i < len(crumbs); i++ {
			crumbs[i] = ""
		}
	}
	flush()
	return sections
}

func windowSplit(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}
	var parts []string
	for start := 0; start < len(text); {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		// prefer breaking at a paragraph or sentence boundary
		cut := end
		if end < len(text) {
			if i := strings.LastIndex(text[start:end], "\n\n"); i > size/2 {
				cut = start + i
			} else if i := strings.LastIndex(text[start:end], ". "); i > size/2 {
				cut = start + i + 1
			}
		}
		parts = append(parts, strings.TrimSpace(text[start:cut]))
		if cut >= len(text) {
			break
		}
		start = cut - overlap
		if start < 0 {
			start = 0
		}
	}
	return parts
}
