package gmail

import (
	"encoding/base64"
	"testing"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
)

func TestParseMailDate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "Fri, 28 Aug 2026 10:15:00 +0700", want: time.Date(2026, 8, 28, 10, 15, 0, 0, time.FixedZone("", 7*3600))},
		{in: "Fri, 28 Aug 2026 03:15:00 GMT", want: time.Date(2026, 8, 28, 3, 15, 0, 0, time.UTC)},
		{in: "28 Aug 2026 03:15:00 +0000", want: time.Date(2026, 8, 28, 3, 15, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseMailDate(tt.in)
		if err != nil {
			t.Fatalf("parseMailDate(%q): %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("parseMailDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := parseMailDate("not a date"); err == nil {
		t.Fatal("expected error for junk date")
	}
}

func TestStripHTML(t *testing.T) {
	t.Parallel()
	in := "<div><p>Hello&nbsp;<b>world</b></p>\n<a href=\"x\">link</a></div>"
	got := stripHTML(in)
	want := "Hello world link"
	if got != want {
		t.Fatalf("stripHTML = %q, want %q", got, want)
	}
}

func TestExtractBodyPrefersPlainText(t *testing.T) {
	t.Parallel()
	enc := func(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }
	payload := &gmailapi.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmailapi.MessagePart{
			{MimeType: "text/html", Body: &gmailapi.MessagePartBody{Data: enc("<b>rich</b>")}},
			{MimeType: "text/plain", Body: &gmailapi.MessagePartBody{Data: enc("plain body")}},
		},
	}
	if got := extractBody(payload); got != "plain body" {
		t.Fatalf("extractBody = %q, want plain body", got)
	}

	htmlOnly := &gmailapi.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmailapi.MessagePart{
			{MimeType: "text/html", Body: &gmailapi.MessagePartBody{Data: enc("<b>rich</b> text")}},
		},
	}
	if got := extractBody(htmlOnly); got != "rich text" {
		t.Fatalf("extractBody html fallback = %q, want %q", got, "rich text")
	}
}

func TestHeaderLookupIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	p := &gmailapi.MessagePart{Headers: []*gmailapi.MessagePartHeader{
		{Name: "SUBJECT", Value: "hello"},
		{Name: "From", Value: "a@b.example"},
	}}
	if got := header(p, "Subject"); got != "hello" {
		t.Fatalf("header(Subject) = %q", got)
	}
	if got := header(p, "from"); got != "a@b.example" {
		t.Fatalf("header(from) = %q", got)
	}
	if got := header(p, "To"); got != "" {
		t.Fatalf("header(To) = %q, want empty", got)
	}
}
