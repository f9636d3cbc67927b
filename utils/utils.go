package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	nonWordRE    = regexp.MustCompile(`[^\w\s-]`)
	separatorsRE = regexp.MustCompile(`[\s_-]+`)
)

// SafeFilename derives a deterministic, filesystem-safe name from a topic.
// The same topic always yields the same name, which lets callers check for
// an existing article before running the pipeline.
func SafeFilename(topic string) string {
	s := strings.ToLower(strings.TrimSpace(topic))
	s = nonWordRE.ReplaceAllString(s, "")
	s = separatorsRE.ReplaceAllString(s, "_")
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}

// NormalizeTopic lowercases and trims a topic for published-set comparisons.
func NormalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

// SessionID sanitizes a topic into an index session identifier, strict
// alphanumeric so it is safe as a directory name.
func SessionID(topic string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(topic) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 50 {
		s = s[:50]
	}
	if s == "" {
		return "generic_index"
	}
	return s
}

// StripFrontmatter drops a leading YAML frontmatter block from a markdown
// document. Text without a complete block is returned unchanged.
func StripFrontmatter(text string) string {
	if !strings.HasPrefix(text, "---\n") {
		return text
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		return text
	}
	return strings.TrimLeft(rest[end+len("\n---\n"):], "\n")
}

func Str(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
