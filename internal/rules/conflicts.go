package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
)

// Conflict reports rules that request opposing actions on the same emails.
// Execution still applies both in rule order; this is advisory.
type Conflict struct {
	Rules       []string `json:"rules"`
	Description string   `json:"description"`
	EmailIDs    []string `json:"email_ids"`
}

type opposing struct {
	a, b inbox.ActionType
	desc string
}

var opposingPairs = []opposing{
	{inbox.ActionArchive, inbox.ActionStar, "archive and star rules overlap"},
	{inbox.ActionMarkRead, inbox.ActionMarkUnread, "mark_read and mark_unread rules overlap"},
	{inbox.ActionStar, inbox.ActionUnstar, "star and unstar rules overlap"},
}

type ruleSummary struct {
	Name    string
	Actions []inbox.Action
}

// MatchEmails returns, per rule id, the ids of emails the enabled rule matches.
func MatchEmails(rs []Rule, emails []inbox.Email, now time.Time) map[int64][]string {
	matches := make(map[int64][]string, len(rs))
	for _, r := range rs {
		if !r.Enabled {
			continue
		}
		for _, e := range emails {
			if Match(r.Conditions, e, now) {
				matches[r.ID] = append(matches[r.ID], e.ID)
			}
		}
	}
	return matches
}

// DetectConflicts finds emails where matching enabled rules disagree.
func DetectConflicts(rs []Rule, emails []inbox.Email, now time.Time) []Conflict {
	matches := MatchEmails(rs, emails, now)
	byEmail, order := collectRuleSummaries(rs, matches)

	index := map[string]int{}
	var conflicts []Conflict
	for _, id := range order {
		for _, found := range classifySummaries(byEmail[id]) {
			key := found.Description + "|" + strings.Join(found.Rules, "|")
			if i, ok := index[key]; ok {
				conflicts[i].EmailIDs = append(conflicts[i].EmailIDs, id)
				continue
			}
			found.EmailIDs = []string{id}
			index[key] = len(conflicts)
			conflicts = append(conflicts, found)
		}
	}
	sort.SliceStable(conflicts, func(i, j int) bool {
		return strings.Join(conflicts[i].Rules, "|") < strings.Join(conflicts[j].Rules, "|")
	})
	return conflicts
}

func collectRuleSummaries(rs []Rule, matches map[int64][]string) (map[string][]ruleSummary, []string) {
	byEmail := make(map[string][]ruleSummary)
	var order []string
	for _, r := range rs {
		ids := matches[r.ID]
		if len(ids) == 0 {
			continue
		}
		summary := ruleSummary{Name: r.Name, Actions: r.Actions}
		for _, id := range ids {
			if _, seen := byEmail[id]; !seen {
				order = append(order, id)
			}
			byEmail[id] = append(byEmail[id], summary)
		}
	}
	return byEmail, order
}

func classifySummaries(summaries []ruleSummary) []Conflict {
	if len(summaries) < 2 {
		return nil
	}
	var out []Conflict
	for _, pair := range opposingPairs {
		left := rulesWith(summaries, func(a inbox.Action) bool { return a.Type == pair.a })
		right := rulesWith(summaries, func(a inbox.Action) bool { return a.Type == pair.b })
		if len(left) == 0 || len(right) == 0 {
			continue
		}
		merged := mergeRuleSets(left, right)
		if len(merged) < 2 {
			continue
		}
		out = append(out, Conflict{Rules: merged, Description: pair.desc})
	}
	for _, lbl := range labelsTouched(summaries) {
		add := rulesWith(summaries, func(a inbox.Action) bool {
			return a.Type == inbox.ActionAddLabel && a.Label() == lbl
		})
		remove := rulesWith(summaries, func(a inbox.Action) bool {
			return a.Type == inbox.ActionRemoveLabel && a.Label() == lbl
		})
		if len(add) == 0 || len(remove) == 0 {
			continue
		}
		merged := mergeRuleSets(add, remove)
		if len(merged) < 2 {
			continue
		}
		out = append(out, Conflict{
			Rules:       merged,
			Description: fmt.Sprintf("label %q is both added and removed", lbl),
		})
	}
	return out
}

func rulesWith(summaries []ruleSummary, pred func(inbox.Action) bool) []string {
	var names []string
	for _, s := range summaries {
		for _, a := range s.Actions {
			if pred(a) {
				names = appendIfMissing(names, s.Name)
				break
			}
		}
	}
	return names
}

func labelsTouched(summaries []ruleSummary) []string {
	var labels []string
	for _, s := range summaries {
		for _, a := range s.Actions {
			if a.Type == inbox.ActionAddLabel || a.Type == inbox.ActionRemoveLabel {
				labels = appendIfMissing(labels, a.Label())
			}
		}
	}
	sort.Strings(labels)
	return labels
}

func mergeRuleSets(a, b []string) []string {
	combined := append([]string{}, a...)
	for _, name := range b {
		combined = appendIfMissing(combined, name)
	}
	sort.Strings(combined)
	return combined
}

func appendIfMissing(slice []string, val string) []string {
	for _, existing := range slice {
		if existing == val {
			return slice
		}
	}
	return append(slice, val)
}
