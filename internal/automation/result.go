package automation

import (
	"time"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
	"github.com/joshsymonds/inboxpilot/internal/rules"
)

// Outcome is what happened to one requested action.
type Outcome string

const (
	OutcomeWouldApply Outcome = "would_apply"
	OutcomeApplied    Outcome = "applied"
	OutcomeFailed     Outcome = "failed"
)

// Failure reasons the engine itself produces.
const (
	ReasonTimeout      = "timeout"
	ReasonCanceled     = "canceled"
	ReasonAuthRequired = "re-authentication required"
)

// ActionOutcome records one attempted (or previewed) action.
type ActionOutcome struct {
	Action  inbox.Action `json:"action"`
	Outcome Outcome      `json:"outcome"`
	Reason  string       `json:"reason,omitempty"`
}

// Entry is one email matched by a rule.
type Entry struct {
	EmailID string          `json:"email_id"`
	Subject string          `json:"subject"`
	Actions []ActionOutcome `json:"actions"`
}

// RuleResult lists a rule's matches in candidate order.
type RuleResult struct {
	RuleID   int64   `json:"rule_id"`
	RuleName string  `json:"rule_name"`
	Entries  []Entry `json:"entries"`
}

// Failure is one failed (rule, email, action) triple.
type Failure struct {
	RuleID   int64  `json:"rule_id"`
	RuleName string `json:"rule_name"`
	EmailID  string `json:"email_id"`
	Action   string `json:"action"`
	Reason   string `json:"reason"`
}

// Result is the full execution report. It is returned even when every
// action failed so the caller can retry just the failed subset.
type Result struct {
	RunID      string       `json:"run_id"`
	DryRun     bool         `json:"dry_run"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Candidates int          `json:"candidates"`
	Rules      []RuleResult `json:"rules"`

	// Matched counts distinct emails matched by at least one rule.
	Matched    int `json:"matched"`
	Applied    int `json:"applied"`
	WouldApply int `json:"would_apply"`
	Failed     int `json:"failed"`

	Failures  []Failure        `json:"failures"`
	Conflicts []rules.Conflict `json:"conflicts,omitempty"`

	// Canceled is set when the caller stopped the run. Actions applied before
	// the stop stay applied.
	Canceled bool `json:"canceled"`
	// AuthRequired is set when the mailbox rejected the credentials.
	AuthRequired bool `json:"auth_required"`
}

// FailedEmailIDs returns the ids with at least one failed action, in report order.
func (r Result) FailedEmailIDs() []string {
	seen := map[string]struct{}{}
	var ids []string
	for _, f := range r.Failures {
		if _, ok := seen[f.EmailID]; ok {
			continue
		}
		seen[f.EmailID] = struct{}{}
		ids = append(ids, f.EmailID)
	}
	return ids
}

func (r *Result) summarize() {
	emails := map[string]struct{}{}
	r.Applied, r.WouldApply, r.Failed = 0, 0, 0
	r.Failures = nil
	for _, rr := range r.Rules {
		for _, en := range rr.Entries {
			emails[en.EmailID] = struct{}{}
			for _, ao := range en.Actions {
				switch ao.Outcome {
				case OutcomeApplied:
					r.Applied++
				case OutcomeWouldApply:
					r.WouldApply++
				case OutcomeFailed:
					r.Failed++
					r.Failures = append(r.Failures, Failure{
						RuleID:   rr.RuleID,
						RuleName: rr.RuleName,
						EmailID:  en.EmailID,
						Action:   ao.Action.String(),
						Reason:   ao.Reason,
					})
				}
			}
		}
	}
	r.Matched = len(emails)
}
