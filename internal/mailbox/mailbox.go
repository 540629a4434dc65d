// Package mailbox defines the message model and the provider-neutral
// interface the monitor polls against.
package mailbox

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Message is a normalized email. Body holds the decoded plain-text content
// (or stripped HTML when no text part exists).
type Message struct {
	ID      string
	Sender  string
	To      string
	Subject string
	Body    string
	Date    time.Time
	Labels  []string
	Unread  bool
}

// HasLabel reports whether the provider attached the given label
// (Gmail label ids such as "IMPORTANT" or "UNREAD").
func (m Message) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// SenderAddress returns the bare email address from a possibly
// display-named From header ("Alice <alice@example.com>" -> "alice@example.com").
func (m Message) SenderAddress() string {
	s := m.Sender
	if i := strings.LastIndexByte(s, '<'); i >= 0 {
		if j := strings.IndexByte(s[i:], '>'); j > 0 {
			return strings.TrimSpace(s[i+1 : i+j])
		}
	}
	return strings.TrimSpace(s)
}

// Mailbox lists candidate message ids and fetches full messages.
//
// Fetch may return (nil, nil) when the message exists but cannot be
// represented (for example it disappeared between list and get); callers
// must skip such messages without treating them as failures.
type Mailbox interface {
	// Search returns ids of messages matching the query, newest first,
	// capped at max.
	Search(ctx context.Context, q Query, max int) ([]string, error)
	// Fetch retrieves one full message by id.
	Fetch(ctx context.Context, id string) (*Message, error)
}

// Query describes an unread-mail search window.
type Query struct {
	Since      time.Time // zero means no lower bound
	UnreadOnly bool
}

// String renders the query in Gmail search syntax. The "after:" operator
// has day granularity, so the caller still filters fetched messages by the
// exact Since time.
func (q Query) String() string {
	var parts []string
	if q.UnreadOnly {
		parts = append(parts, "is:unread")
	}
	if !q.Since.IsZero() {
		parts = append(parts, fmt.Sprintf("after:%s", q.Since.Format("2006/01/02")))
	} else {
		parts = append(parts, "newer_than:1d")
	}
	return strings.Join(parts, " ")
}
