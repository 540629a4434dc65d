package telegram

import (
	"strings"
	"testing"
)

func TestSplitTextShortPassthrough(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %q, want [hello]", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	lines := []string{
		strings.Repeat("a", 60),
		strings.Repeat("b", 60),
		strings.Repeat("c", 60),
	}
	got := splitText(strings.Join(lines, "\n"), 100)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	for i, chunk := range got {
		if len([]rune(chunk)) > 100 {
			t.Fatalf("chunk %d exceeds limit: %d runes", i, len([]rune(chunk)))
		}
		// Newline-aligned splitting keeps each line intact.
		for _, line := range strings.Split(chunk, "\n") {
			if len(line) != 60 {
				t.Fatalf("chunk %d contains a split line of length %d", i, len(line))
			}
		}
	}
}

func TestSplitTextHardSplitWithoutNewlines(t *testing.T) {
	t.Parallel()
	got := splitText(strings.Repeat("x", 250), 100)
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
	total := 0
	for i, chunk := range got {
		if len([]rune(chunk)) > 100 {
			t.Fatalf("chunk %d exceeds limit", i)
		}
		total += len(chunk)
	}
	if total != 250 {
		t.Fatalf("content length = %d, want 250", total)
	}
}
