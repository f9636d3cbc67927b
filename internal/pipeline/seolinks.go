package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	tokenSplitRe = regexp.MustCompile(`[\s\-]+`)
	anchorRe     = regexp.MustCompile(`(?i)<a\s+href="[^"]*">([^<]+)</a>`)
	labelRe      = regexp.MustCompile(`(?m)^(Hook|Introduction|Conclusion|Key Points|Bottom Line|Final Verdict):\s*`)
)

// gamePattern matches the game name allowing any whitespace or hyphen run
// between its words.
func gamePattern(gameName string) *regexp.Regexp {
	tokens := tokenSplitRe.Split(strings.TrimSpace(gameName), -1)
	var quoted []string
	for _, t := range tokens {
		if t != "" {
			quoted = append(quoted, regexp.QuoteMeta(t))
		}
	}
	if len(quoted) == 0 {
		return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(gameName))
	}
	return regexp.MustCompile(`(?i)\b` + strings.Join(quoted, `[\s\-]+`) + `\b`)
}

func linkableLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len(trimmed) < 30 {
		return false
	}
	switch trimmed[0] {
	case '|', '-', '*', '<', '>':
		return false
	}
	return true
}

// applyGameLinks rewrites the compiled body so mentions of the game link
// to its /games/{slug} page. Headers are never linked (existing anchors in
// them are stripped), lines that already carry the game link are left
// alone, and list/table/short lines are skipped. Leftover section label
// prefixes from the writer are removed at the same time.
func applyGameLinks(text, gameName, gameSlug string) string {
	if gameName == "" || gameSlug == "" {
		return text
	}

	frontmatter := ""
	body := text
	if strings.HasPrefix(text, "---") {
		if parts := strings.SplitN(text, "---", 3); len(parts) == 3 {
			frontmatter = "---" + parts[1] + "---"
			body = parts[2]
		}
	}

	pattern := gamePattern(gameName)
	linkPrefix := "/games/" + gameSlug
	anchor := func(match string) string {
		return fmt.Sprintf(`<a href="%s">%s</a>`, linkPrefix, match)
	}

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		stripped := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(stripped, "#") {
			lines[i] = anchorRe.ReplaceAllString(line, "$1")
			continue
		}
		if strings.Contains(line, linkPrefix) {
			continue
		}
		if !pattern.MatchString(line) || !linkableLine(line) {
			continue
		}
		lines[i] = pattern.ReplaceAllStringFunc(line, anchor)
	}

	body = labelRe.ReplaceAllString(strings.Join(lines, "\n"), "")
	return frontmatter + body
}
