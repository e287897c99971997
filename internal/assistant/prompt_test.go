package assistant

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCleanResponse_StripsMarkdownAndDashes(t *testing.T) {
	got := cleanResponse("***Great*** choice — the **villa** is free\n\n\n\nfrom Monday")
	want := "Great choice - the villa is free\n\nfrom Monday"
	if got != want {
		t.Errorf("cleanResponse = %q, want %q", got, want)
	}
}

func TestCleanResponse_TruncatesOnRuneBoundary(t *testing.T) {
	// The limit falls inside the first emoji, so a byte-offset cut would
	// leave a broken rune before the truncation marker.
	text := strings.Repeat("a", 3999) + strings.Repeat("✅", 10)

	got := cleanResponse(text)
	if !strings.HasSuffix(got, "[Message truncated]") {
		t.Fatalf("expected truncation marker, got tail %q", got[len(got)-30:])
	}
	if !utf8.ValidString(got) {
		t.Error("truncated response is not valid UTF-8")
	}
	body := strings.TrimSuffix(got, "\n\n[Message truncated]")
	if len(body) > 4000 {
		t.Errorf("body is %d bytes, over the limit", len(body))
	}
}

func TestCleanResponse_ShortTextUntouched(t *testing.T) {
	if got := cleanResponse("  plain reply  "); got != "plain reply" {
		t.Errorf("cleanResponse = %q", got)
	}
}
