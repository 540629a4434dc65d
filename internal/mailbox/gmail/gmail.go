// Package gmail implements mailbox.Mailbox on top of the Gmail REST API.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"mailwatch/internal/mailbox"
	logx "mailwatch/pkg/logx"
)

// Client talks to one Gmail account using a pre-authorized OAuth token.
type Client struct {
	svc  *gmailapi.Service
	user string
	log  logx.Logger
}

var _ mailbox.Mailbox = (*Client)(nil)

// New builds a client from an OAuth client-credentials file and a stored
// token file. Both must already exist; the daemon never runs the interactive
// consent flow itself.
func New(ctx context.Context, credentialsFile, tokenFile string, log logx.Logger) (*Client, error) {
	cb, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	oc, err := google.ConfigFromJSON(cb, gmailapi.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}

	hc := oc.Client(ctx, tok)
	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(hc))
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}
	return &Client{svc: svc, user: "me", log: log}, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// Verify performs one cheap authenticated call so bad credentials fail at
// startup instead of on the first poll.
func (c *Client) Verify(ctx context.Context) error {
	_, err := c.svc.Users.GetProfile(c.user).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail auth check: %w", err)
	}
	return nil
}

func (c *Client) Search(ctx context.Context, q mailbox.Query, max int) ([]string, error) {
	call := c.svc.Users.Messages.List(c.user).Q(q.String()).Context(ctx)
	if max > 0 {
		call = call.MaxResults(int64(max))
	}
	res, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	ids := make([]string, 0, len(res.Messages))
	for _, m := range res.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func (c *Client) Fetch(ctx context.Context, id string) (*mailbox.Message, error) {
	msg, err := c.svc.Users.Messages.Get(c.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			// message deleted between list and get; not a failure
			return nil, nil
		}
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	if msg == nil || msg.Payload == nil {
		return nil, nil
	}

	out := &mailbox.Message{
		ID:      msg.Id,
		Sender:  header(msg.Payload, "From"),
		To:      header(msg.Payload, "To"),
		Subject: header(msg.Payload, "Subject"),
		Labels:  msg.LabelIds,
		Unread:  hasLabel(msg, "UNREAD"),
	}
	if d := header(msg.Payload, "Date"); d != "" {
		if t, err := parseMailDate(d); err == nil {
			out.Date = t
		}
	}
	if out.Date.IsZero() && msg.InternalDate > 0 {
		out.Date = time.UnixMilli(msg.InternalDate)
	}
	out.Body = extractBody(msg.Payload)
	return out, nil
}

func header(p *gmailapi.MessagePart, name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func hasLabel(m *gmailapi.Message, label string) bool {
	for _, l := range m.LabelIds {
		if l == label {
			return true
		}
	}
	return false
}

var mailDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"2 Jan 2006 15:04:05 -0700",
}

func parseMailDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range mailDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// extractBody walks the MIME tree preferring text/plain over text/html.
// HTML bodies are tag-stripped so downstream formatting sees plain text.
func extractBody(p *gmailapi.MessagePart) string {
	if body := findPart(p, "text/plain"); body != "" {
		return body
	}
	if body := findPart(p, "text/html"); body != "" {
		return stripHTML(body)
	}
	return ""
}

func findPart(p *gmailapi.MessagePart, mime string) string {
	if p == nil {
		return ""
	}
	if strings.HasPrefix(p.MimeType, mime) && p.Body != nil && p.Body.Data != "" {
		return decodeBody(p.Body.Data)
	}
	for _, part := range p.Parts {
		if s := findPart(part, mime); s != "" {
			return s
		}
	}
	return ""
}

func decodeBody(data string) string {
	b, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(b)
}

var (
	tagRe   = regexp.MustCompile(`<[^>]*>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

func stripHTML(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, " ", " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
