package utils

import "testing"

func TestSafeFilenameDeterministic(t *testing.T) {
	topic := "Best RTP Slots for Beginners!"
	first := SafeFilename(topic)
	for i := 0; i < 5; i++ {
		if got := SafeFilename(topic); got != first {
			t.Fatalf("expected stable filename, got %q then %q", first, got)
		}
	}
	if first != "best_rtp_slots_for_beginners" {
		t.Fatalf("unexpected filename: %q", first)
	}
}

func TestSafeFilenameTruncates(t *testing.T) {
	long := "a very long topic title that keeps going and going and going and going well past sixty characters"
	if got := SafeFilename(long); len(got) > 60 {
		t.Fatalf("expected filename capped at 60 chars, got %d", len(got))
	}
}

func TestSessionID(t *testing.T) {
	if got := SessionID("Gates of Olympus: RTP & Review (2025)"); got != "gatesofolympusrtpreview2025" {
		t.Fatalf("unexpected session id: %q", got)
	}
	if got := SessionID("!!!"); got != "generic_index" {
		t.Fatalf("expected fallback session id, got %q", got)
	}
}

func TestNormalizeTopic(t *testing.T) {
	if got := NormalizeTopic("  Starburst Review  "); got != "starburst review" {
		t.Fatalf("unexpected normalized topic: %q", got)
	}
}

func TestStripFrontmatter(t *testing.T) {
	in := "---\ntitle: \"X\"\nkeywords: [a, b]\n---\n\n# X\n\nBody."
	if got := StripFrontmatter(in); got != "# X\n\nBody." {
		t.Fatalf("unexpected strip result: %q", got)
	}
	plain := "# No frontmatter\n"
	if got := StripFrontmatter(plain); got != plain {
		t.Fatalf("plain text mangled: %q", got)
	}
	open := "---\ntitle: unterminated"
	if got := StripFrontmatter(open); got != open {
		t.Fatalf("unterminated block mangled: %q", got)
	}
}
