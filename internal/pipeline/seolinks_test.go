package pipeline

import (
	"strings"
	"testing"
)

func TestApplyGameLinksLinksEligibleMentions(t *testing.T) {
	text := "---\ntitle: Gates of Olympus Review\n---\n\n# Gates of Olympus Review\n\n" +
		"Gates of Olympus is a tumbling-reels slot where GATES-OF-OLYMPUS multipliers stack between drops.\n\n" +
		"- Gates of Olympus bullet entries are never rewritten into links\n\n" +
		"Short Gates of Olympus line\n"

	got := applyGameLinks(text, "Gates of Olympus", "gates-of-olympus")

	if !strings.HasPrefix(got, "---\ntitle: Gates of Olympus Review\n---") {
		t.Fatalf("frontmatter must survive untouched: %q", got)
	}
	if !strings.Contains(got, "# Gates of Olympus Review\n") || strings.Contains(got, "# <a") {
		t.Fatalf("headers must never be linked: %q", got)
	}
	if !strings.Contains(got, `<a href="/games/gates-of-olympus">Gates of Olympus</a> is a tumbling-reels slot`) {
		t.Fatalf("eligible mention not linked: %q", got)
	}
	if !strings.Contains(got, `<a href="/games/gates-of-olympus">GATES-OF-OLYMPUS</a>`) {
		t.Fatalf("case and hyphen variants should still match: %q", got)
	}
	if !strings.Contains(got, "- Gates of Olympus bullet entries are never rewritten into links") {
		t.Fatalf("list line must stay plain: %q", got)
	}
	if !strings.Contains(got, "Short Gates of Olympus line") || strings.Contains(got, `Short <a`) {
		t.Fatalf("short line must stay plain: %q", got)
	}
}

func TestApplyGameLinksCleansHeadersAndLabels(t *testing.T) {
	text := "## <a href=\"/games/starburst\">Starburst</a> Features\n\n" +
		"Hook: The expanding wilds in Starburst trigger a respin whenever they land on the middle reels.\n\n" +
		"A paragraph that already links <a href=\"/games/starburst\">Starburst</a> once keeps its single anchor.\n"

	got := applyGameLinks(text, "Starburst", "starburst")

	if !strings.Contains(got, "## Starburst Features") {
		t.Fatalf("header anchor not stripped: %q", got)
	}
	if strings.Contains(got, "Hook:") {
		t.Fatalf("label prefix not removed: %q", got)
	}
	if !strings.Contains(got, `The expanding wilds in <a href="/games/starburst">Starburst</a> trigger`) {
		t.Fatalf("labeled paragraph should still be linked: %q", got)
	}
	if strings.Count(got, `<a href="/games/starburst">`) != 2 {
		t.Fatalf("already-linked paragraph must not gain a second anchor: %q", got)
	}
}

func TestApplyGameLinksNoopWithoutGame(t *testing.T) {
	text := "A perfectly linkable paragraph about some slot machine mechanics.\n"
	if got := applyGameLinks(text, "", "some-slug"); got != text {
		t.Fatalf("missing name must be a no-op: %q", got)
	}
	if got := applyGameLinks(text, "Some Slot", ""); got != text {
		t.Fatalf("missing slug must be a no-op: %q", got)
	}
}
