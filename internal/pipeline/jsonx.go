package pipeline

import (
	"regexp"
	"strings"
)

var (
	lineCommentRe   = regexp.MustCompile(`(?m)^\s*//.*$`)
	blockCommentRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	trailingCommaRe = regexp.MustCompile(`,\s*([\]}])`)
)

// extractJSONObject pulls the outermost JSON object out of a model reply,
// tolerating markdown fences and prose around it. Returns "" when no
// object is present.
func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	if strings.Contains(text, "```") {
		for _, part := range strings.Split(text, "```") {
			if strings.Contains(part, "{") && strings.Contains(part, "}") {
				text = strings.TrimPrefix(strings.TrimSpace(part), "json")
				break
			}
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}

// sanitizeJSON removes comments and trailing commas some models emit
// despite being told not to.
func sanitizeJSON(text string) string {
	text = lineCommentRe.ReplaceAllString(text, "")
	text = blockCommentRe.ReplaceAllString(text, "")
	return trailingCommaRe.ReplaceAllString(text, "$1")
}
