package notify

import (
	"strings"
	"testing"
	"time"

	"mailwatch/internal/classify"
	"mailwatch/internal/mailbox"
)

func TestFormatIncludesHeadersAndRule(t *testing.T) {
	t.Parallel()
	msg := mailbox.Message{
		Sender:  "Boss <boss@corp.example>",
		Subject: "Q3 numbers",
		Body:    "please review before the meeting",
		Date:    time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
	}
	got := Format(msg, classify.Result{Important: true, Rule: "sender", Pattern: "boss@corp.example"})

	for _, want := range []string{
		"From: Boss <boss@corp.example>",
		"Subject: Q3 numbers",
		"Matched: sender (boss@corp.example)",
		"please review before the meeting",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("Format output missing %q:\n%s", want, got)
		}
	}
}

func TestFormatJobDetails(t *testing.T) {
	t.Parallel()
	msg := mailbox.Message{
		Sender:  "jobs@board.example",
		Subject: "New opening",
		Body:    "Position: Backend Engineer\nCompany: Acme\nLocation: Remote\nApply soon",
	}
	got := Format(msg, classify.Result{Important: true, Rule: "keyword", Pattern: "engineer"})
	for _, want := range []string{"Position: Backend Engineer", "Company: Acme", "Location: Remote"} {
		if !strings.Contains(got, want) {
			t.Fatalf("Format output missing %q:\n%s", want, got)
		}
	}
}

func TestExcerptTruncation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		max  int
		want string
	}{
		{name: "empty", body: "", max: 10, want: ""},
		{name: "short", body: "hello world", max: 20, want: "hello world"},
		{name: "collapses whitespace", body: "a\n\n  b\t c", max: 20, want: "a b c"},
		{name: "truncates", body: strings.Repeat("x", 50), max: 10, want: strings.Repeat("x", 10) + "…"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Excerpt(tt.body, tt.max); got != tt.want {
				t.Fatalf("Excerpt = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExcerptCountsRunesNotBytes(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("é", 300)
	got := Excerpt(body, 200)
	if r := []rune(got); len(r) != 201 { // 200 runes + ellipsis
		t.Fatalf("excerpt rune length = %d, want 201", len(r))
	}
}
