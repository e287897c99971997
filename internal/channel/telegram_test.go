package channel

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseAllowList(t *testing.T) {
	got := parseAllowList([]string{"123", " 456 ", "abc", ""})
	want := []int64{123, 456}
	if len(got) != len(want) {
		t.Fatalf("expected %d ids, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestAllowedUser_EmptyListAllowsAll(t *testing.T) {
	if !allowedUser(nil, 999) {
		t.Fatal("empty allow list should allow everyone")
	}
}

func TestSplitMessage_ShortPassesThrough(t *testing.T) {
	chunks := splitMessage("hello")
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestSplitMessage_PrefersLineBreaks(t *testing.T) {
	line := strings.Repeat("a", 3000)
	text := line + "\n" + line

	chunks := splitMessage(text)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0] != line {
		t.Errorf("first chunk should end at the line break, got %d bytes", len(chunks[0]))
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks do not reassemble to the original text")
	}
}

func TestSplitMessage_NeverSplitsRunes(t *testing.T) {
	// No line breaks, so the cut lands at the limit, right inside the
	// emoji run unless it backs up to a rune boundary.
	text := strings.Repeat("a", telegramMaxMsgLen-1) + strings.Repeat("✅", 20)

	chunks := splitMessage(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
		if len(c) > telegramMaxMsgLen {
			t.Errorf("chunk %d is %d bytes, over the limit", i, len(c))
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks do not reassemble to the original text")
	}
}

func TestAllowedUser_Filtering(t *testing.T) {
	allow := []int64{1, 2}
	if !allowedUser(allow, 2) {
		t.Fatal("listed user should be allowed")
	}
	if allowedUser(allow, 3) {
		t.Fatal("unlisted user should be denied")
	}
}
