package notify

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"mailwatch/internal/classify"
	"mailwatch/internal/mailbox"
)

// excerptRunes caps the body excerpt included in a notification.
const excerptRunes = 200

var jobDetailRe = regexp.MustCompile(`(?im)^\s*(position|role|company|location|salary|deadline)\s*[:\-]\s*(.+)$`)

// Format renders a message into notification text. It never fails: any
// panic while formatting degrades to a minimal one-line fallback so a
// malformed message cannot take down the dispatch path.
func Format(msg mailbox.Message, res classify.Result) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = fmt.Sprintf("New email from %s: %s", msg.Sender, msg.Subject)
		}
	}()

	var b strings.Builder
	b.WriteString("📬 Important email\n")
	fmt.Fprintf(&b, "From: %s\n", msg.Sender)
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	if !msg.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", msg.Date.Local().Format(time.RFC1123))
	}
	if res.Rule != "" {
		fmt.Fprintf(&b, "Matched: %s (%s)\n", res.Rule, res.Pattern)
	}

	if details := jobDetails(msg.Body); len(details) > 0 {
		b.WriteString("\n")
		for _, d := range details {
			b.WriteString(d)
			b.WriteString("\n")
		}
	}

	if ex := Excerpt(msg.Body, excerptRunes); ex != "" {
		b.WriteString("\n")
		b.WriteString(ex)
	}
	return strings.TrimRight(b.String(), "\n")
}

// jobDetails pulls labeled lines (Position:, Company:, ...) out of job-alert
// style bodies so the notification carries the part that matters.
func jobDetails(body string) []string {
	matches := jobDetailRe.FindAllStringSubmatch(body, 6)
	out := make([]string, 0, len(matches))
	seen := map[string]bool{}
	for _, m := range matches {
		label := strings.ToUpper(m[1][:1]) + strings.ToLower(m[1][1:])
		if seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label+": "+strings.TrimSpace(m[2]))
	}
	return out
}

// Excerpt collapses whitespace and truncates body to at most max runes,
// appending an ellipsis when it was cut.
func Excerpt(body string, max int) string {
	s := strings.Join(strings.Fields(body), " ")
	if s == "" {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}
