package triage

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
)

// Priority is the display label assigned to an email.
type Priority string

const (
	High   Priority = "high"
	Medium Priority = "medium"
	Low    Priority = "low"
)

// Rank orders priorities for display, High first.
func (p Priority) Rank() int {
	switch p {
	case High:
		return 0
	case Medium:
		return 1
	default:
		return 2
	}
}

func (p Priority) String() string { return strings.ToUpper(string(p)) }

// Score applies the fixed precedence: VIP sender, VIP domain, keyword, then
// low-priority type, else Medium. The order matters: a VIP newsletter is High.
// The reply flag assumes no known self address; use Scorer for that.
func Score(c Criteria, e inbox.Email) (Priority, bool) {
	return priorityOf(c, e), NeedsReply(e, nil)
}

func priorityOf(c Criteria, e inbox.Email) Priority {
	if isVIPSender(c.VIPSenders, e.From) {
		return High
	}
	if isVIPDomain(c.VIPDomains, e.Domain()) {
		return High
	}
	if containsKeyword(c.HighPriorityKeywords, e.Subject, e.Body) {
		return High
	}
	if isLowType(c.LowPriorityTypes, DeriveType(e)) {
		return Low
	}
	return Medium
}

func isVIPSender(vips []string, from string) bool {
	addr := inbox.AddressOf(from)
	if addr == "" {
		return false
	}
	for _, vip := range vips {
		if strings.EqualFold(strings.TrimSpace(vip), addr) {
			return true
		}
	}
	return false
}

func isVIPDomain(vips []string, domain string) bool {
	if domain == "" {
		return false
	}
	for _, vip := range vips {
		vip = strings.ToLower(strings.Trim(strings.TrimSpace(vip), "."))
		if vip == "" {
			continue
		}
		if domain == vip || strings.HasSuffix(domain, "."+vip) {
			return true
		}
	}
	return false
}

func containsKeyword(keywords []string, subject, body string) bool {
	subject = strings.ToLower(subject)
	body = strings.ToLower(body)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(subject, kw) || strings.Contains(body, kw) {
			return true
		}
	}
	return false
}

func isLowType(types []string, t EmailType) bool {
	for _, lt := range types {
		if t.Covers(ParseType(lt)) {
			return true
		}
	}
	return false
}

// Advisor is an optional semantic evaluator for free-text custom rules.
// Its output is advisory and never changes the deterministic priority.
type Advisor interface {
	Advise(ctx context.Context, customRules []string, email inbox.Email) (string, error)
}

// Scored is one scored email.
type Scored struct {
	Email      inbox.Email `json:"email"`
	Priority   Priority    `json:"priority"`
	NeedsReply bool        `json:"needs_reply"`
	Type       EmailType   `json:"type,omitempty"`
	Advice     string      `json:"advice,omitempty"`
}

// Scorer scores batches. Self holds the user's addresses for reply detection.
type Scorer struct {
	Self    []string
	Advisor Advisor
	Logger  *slog.Logger
}

// NewScorer constructs a Scorer with a stderr logger when none is given.
func NewScorer(self []string, advisor Advisor, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Scorer{Self: self, Advisor: advisor, Logger: logger}
}

// ScoreInbox scores every email and keeps input order.
func (s *Scorer) ScoreInbox(ctx context.Context, c Criteria, emails []inbox.Email) []Scored {
	out := make([]Scored, 0, len(emails))
	for _, e := range emails {
		sc := Scored{
			Email:      e,
			Priority:   priorityOf(c, e),
			NeedsReply: NeedsReply(e, s.Self),
			Type:       DeriveType(e),
		}
		if s.Advisor != nil && len(c.CustomRules) > 0 {
			advice, err := s.Advisor.Advise(ctx, c.CustomRules, e)
			if err != nil {
				s.Logger.WarnContext(ctx, "custom rule advisor failed", "email", e.ID, "error", err)
			} else {
				sc.Advice = advice
			}
		}
		out = append(out, sc)
	}
	return out
}

// ScoreInbox scores with default settings.
func ScoreInbox(c Criteria, emails []inbox.Email) []Scored {
	return (&Scorer{Logger: slog.New(slog.NewTextHandler(os.Stderr, nil))}).
		ScoreInbox(context.Background(), c, emails)
}

// SortByPriority orders High, Medium, Low and keeps input order within a label.
func SortByPriority(scored []Scored) []Scored {
	out := append([]Scored(nil), scored...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() < out[j].Priority.Rank()
	})
	return out
}

// Counts tallies scored emails by priority.
func Counts(scored []Scored) map[Priority]int {
	counts := map[Priority]int{High: 0, Medium: 0, Low: 0}
	for _, s := range scored {
		counts[s.Priority]++
	}
	return counts
}
