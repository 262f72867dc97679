package automation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
	"github.com/joshsymonds/inboxpilot/internal/rules"
)

// RuleFinding identifies a problematic rule.
type RuleFinding struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// LintReport captures rule findings for CI enforcement.
type LintReport struct {
	Total         int              `json:"total"`
	DeadRules     []RuleFinding    `json:"dead_rules"`
	Disabled      []RuleFinding    `json:"disabled"`
	MissingLabels []string         `json:"missing_labels"`
	Conflicts     []rules.Conflict `json:"conflicts"`
}

// Lint replays rules against a sample of emails without touching the mailbox.
// existingLabels may be nil when label names are unknown; missing labels are
// then not reported.
func Lint(rs []rules.Rule, emails []inbox.Email, existingLabels map[string]struct{}, now time.Time) LintReport {
	rep := LintReport{Total: len(emails)}
	matches := rules.MatchEmails(rs, emails, now)
	for _, r := range rs {
		if !r.Enabled {
			rep.Disabled = append(rep.Disabled, RuleFinding{ID: r.ID, Name: r.Name, Reason: "disabled"})
			continue
		}
		if len(matches[r.ID]) == 0 {
			rep.DeadRules = append(rep.DeadRules, RuleFinding{
				ID:     r.ID,
				Name:   r.Name,
				Reason: "no messages matched in sample",
			})
		}
		if existingLabels == nil {
			continue
		}
		for _, a := range r.Actions {
			if a.Type != inbox.ActionAddLabel && a.Type != inbox.ActionRemoveLabel {
				continue
			}
			if _, ok := existingLabels[a.Label()]; !ok {
				rep.MissingLabels = appendIfMissing(rep.MissingLabels, a.Label())
			}
		}
	}
	rep.Conflicts = rules.DetectConflicts(rs, emails, now)
	return rep
}

// ShouldFail reports whether any of the requested conditions are present.
func (lr LintReport) ShouldFail(failOn []string) bool {
	flags := map[string]bool{
		"dead":          len(lr.DeadRules) > 0,
		"missing-label": len(lr.MissingLabels) > 0,
		"conflict":      len(lr.Conflicts) > 0,
		"disabled":      len(lr.Disabled) > 0,
	}
	for _, cond := range failOn {
		cond = strings.TrimSpace(strings.ToLower(cond))
		if cond == "" {
			continue
		}
		if flags[cond] {
			return true
		}
	}
	return false
}

// HumanSummary renders a concise CLI summary.
func (lr LintReport) HumanSummary() string {
	builder := &strings.Builder{}
	fmt.Fprintf(builder, "inboxpilot lint (%d messages checked)\n", lr.Total)
	if len(lr.DeadRules) == 0 && len(lr.MissingLabels) == 0 && len(lr.Conflicts) == 0 {
		builder.WriteString("no findings\n")
		return builder.String()
	}
	if len(lr.DeadRules) > 0 {
		builder.WriteString("dead rules:\n")
		sorted := append([]RuleFinding(nil), lr.DeadRules...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
		for _, fr := range sorted {
			fmt.Fprintf(builder, "  #%d %s: %s\n", fr.ID, fr.Name, fr.Reason)
		}
	}
	if len(lr.MissingLabels) > 0 {
		builder.WriteString("missing labels:\n")
		labels := append([]string(nil), lr.MissingLabels...)
		sort.Strings(labels)
		for _, lbl := range labels {
			fmt.Fprintf(builder, "  %s\n", lbl)
		}
	}
	if len(lr.Conflicts) > 0 {
		builder.WriteString("conflicts:\n")
		for _, cf := range lr.Conflicts {
			fmt.Fprintf(builder, "  %s: %s (%d emails)\n", strings.Join(cf.Rules, ", "), cf.Description, len(cf.EmailIDs))
		}
	}
	return builder.String()
}

// ParseFailOn splits a comma separated list into canonical tokens.
func ParseFailOn(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func appendIfMissing(slice []string, val string) []string {
	for _, existing := range slice {
		if existing == val {
			return slice
		}
	}
	return append(slice, val)
}
