package rules

import (
	"strings"
	"time"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
)

// Matcher evaluates validated conditions. Clock anchors date comparisons.
type Matcher struct {
	Clock func() time.Time
}

// NewMatcher returns a Matcher on the wall clock.
func NewMatcher() Matcher {
	return Matcher{Clock: time.Now}
}

// Matches reports whether every condition holds. An empty list matches all.
func (m Matcher) Matches(conds []Condition, e inbox.Email) bool {
	now := time.Now
	if m.Clock != nil {
		now = m.Clock
	}
	return Match(conds, e, now())
}

// Match is Matcher.Matches with an explicit reference time. Conditions are
// assumed to have passed ValidateCondition; anything else simply fails to match.
func Match(conds []Condition, e inbox.Email, now time.Time) bool {
	for _, c := range conds {
		if !matchOne(c, e, now) {
			return false
		}
	}
	return true
}

func matchOne(c Condition, e inbox.Email, now time.Time) bool {
	switch c.Field {
	case FieldSender:
		return matchSender(c, e)
	case FieldSenderDomain:
		return matchDomain(c, e.Domain())
	case FieldSubject:
		return matchSubject(c, e.Subject)
	case FieldLabels:
		return c.Operator == OpContains && e.HasLabel(c.Value.Str)
	case FieldDate:
		return matchDate(c, e.Date, now)
	case FieldHasAttachment:
		return c.Operator == OpEquals && c.Value.Kind == KindBool && e.HasAttachment == c.Value.Bool
	case FieldIsUnread:
		return c.Operator == OpEquals && c.Value.Kind == KindBool && e.Unread == c.Value.Bool
	default:
		return false
	}
}

func matchSender(c Condition, e inbox.Email) bool {
	want := strings.ToLower(strings.TrimSpace(c.Value.Str))
	if want == "" {
		return false
	}
	addr := inbox.AddressOf(e.From)
	switch c.Operator {
	case OpEquals:
		return addr == want
	case OpContains:
		return strings.Contains(strings.ToLower(e.From), want)
	default:
		return false
	}
}

func matchDomain(c Condition, domain string) bool {
	if domain == "" {
		return false
	}
	switch c.Operator {
	case OpEquals:
		return domain == normalizeDomain(c.Value.Str)
	case OpInList:
		for _, d := range c.Value.List {
			if domain == normalizeDomain(d) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
}

func matchSubject(c Condition, subject string) bool {
	want := strings.ToLower(c.Value.Str)
	if want == "" {
		return false
	}
	subject = strings.ToLower(subject)
	switch c.Operator {
	case OpContains:
		return strings.Contains(subject, want)
	case OpStartsWith:
		return strings.HasPrefix(subject, want)
	default:
		return false
	}
}

// matchDate compares the email's age (now minus its date) with the value.
func matchDate(c Condition, date, now time.Time) bool {
	if date.IsZero() {
		return false
	}
	limit, ok := c.Value.Duration()
	if !ok {
		return false
	}
	age := now.Sub(date)
	switch c.Operator {
	case OpOlderThan:
		return age > limit
	case OpNewerThan:
		return age < limit
	default:
		return false
	}
}
