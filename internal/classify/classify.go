// Package classify decides whether a fetched message matters enough to
// notify about. Evaluation is pure: compile once, then call Evaluate with
// no side effects.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"mailwatch/internal/config"
	"mailwatch/internal/mailbox"
)

// Rule names reported in Result and in the audit trail.
const (
	RuleSender        = "sender"
	RuleSubject       = "subject"
	RuleKeyword       = "keyword"
	RuleDirectMessage = "direct_message"
	RulePriority      = "priority"
)

// priorityLabel is the provider label the priority rule looks for.
const priorityLabel = "IMPORTANT"

// matcher is one compiled criteria pattern. Patterns containing regex
// metacharacters compile as case-insensitive regular expressions; plain
// text matches as a case-insensitive substring.
type matcher struct {
	raw string
	re  *regexp.Regexp
}

func compilePattern(p string) (matcher, error) {
	if strings.ContainsAny(p, `\.+*?()|[]{}^$`) {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return matcher{}, err
		}
		return matcher{raw: p, re: re}, nil
	}
	return matcher{raw: strings.ToLower(p)}, nil
}

func (m matcher) match(s string) bool {
	if m.re != nil {
		return m.re.MatchString(s)
	}
	return strings.Contains(strings.ToLower(s), m.raw)
}

// Criteria is a compiled importance ruleset.
type Criteria struct {
	senders  []matcher
	subjects []matcher
	keywords []matcher

	directMessage bool
	checkPriority bool
	userEmail     string
}

// Compile builds criteria from config. userEmail is the mailbox owner's
// address, used by the direct-message rule; it may be empty, which disables
// that rule even when configured.
func Compile(cfg config.CriteriaConfig, userEmail string) (*Criteria, error) {
	c := &Criteria{
		directMessage: cfg.DirectMessage,
		checkPriority: cfg.CheckPriority,
		userEmail:     strings.ToLower(strings.TrimSpace(userEmail)),
	}
	var err error
	if c.senders, err = compileAll("senders", cfg.Senders); err != nil {
		return nil, err
	}
	if c.subjects, err = compileAll("subjects", cfg.Subjects); err != nil {
		return nil, err
	}
	if c.keywords, err = compileAll("keywords", cfg.Keywords); err != nil {
		return nil, err
	}
	return c, nil
}

func compileAll(group string, patterns []string) ([]matcher, error) {
	out := make([]matcher, 0, len(patterns))
	for i, p := range patterns {
		m, err := compilePattern(p)
		if err != nil {
			return nil, fmt.Errorf("criteria.%s[%d]: %w", group, i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Result reports the first rule that matched. Rule and Pattern are empty
// when Important is false.
type Result struct {
	Important bool
	Rule      string
	Pattern   string
}

// Evaluate checks rule groups in a fixed order (senders, subjects, keywords,
// direct message, priority label) and stops at the first match.
func (c *Criteria) Evaluate(msg mailbox.Message) Result {
	for _, m := range c.senders {
		if m.match(msg.Sender) || m.match(msg.SenderAddress()) {
			return Result{Important: true, Rule: RuleSender, Pattern: m.raw}
		}
	}
	for _, m := range c.subjects {
		if m.match(msg.Subject) {
			return Result{Important: true, Rule: RuleSubject, Pattern: m.raw}
		}
	}
	for _, m := range c.keywords {
		if m.match(msg.Subject) || m.match(msg.Body) {
			return Result{Important: true, Rule: RuleKeyword, Pattern: m.raw}
		}
	}
	if c.directMessage && c.userEmail != "" {
		// Sole-recipient check: a comma in To means the mail went to a list.
		to := strings.ToLower(msg.To)
		if !strings.Contains(to, ",") && strings.Contains(to, c.userEmail) {
			return Result{Important: true, Rule: RuleDirectMessage, Pattern: c.userEmail}
		}
	}
	if c.checkPriority && msg.HasLabel(priorityLabel) {
		return Result{Important: true, Rule: RulePriority, Pattern: priorityLabel}
	}
	return Result{}
}
