package gmailctl

import (
	"fmt"
	"strings"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
	"github.com/joshsymonds/inboxpilot/internal/rules"
)

// Skipped names a filter that could not be expressed as a rule.
type Skipped struct {
	Filter string `json:"filter"`
	Reason string `json:"reason"`
}

// ToRules converts compiled filters into rules. Filters
// that use criteria or actions outside the rule vocabulary are reported as
// skipped rather than approximated. Returned rules carry no id; store them
// with store.AddRule.
func ToRules(export Export, enabled bool) ([]rules.Rule, []Skipped) {
	labelNames := make(map[string]string, len(export.Labels))
	for _, l := range export.Labels {
		labelNames[l.ID] = l.Name
	}

	var (
		out     []rules.Rule
		skipped []Skipped
	)
	for i, f := range export.Filters {
		name := filterName(f, i)
		conds, err := convertCriteria(f.Criteria)
		if err != nil {
			skipped = append(skipped, Skipped{Filter: name, Reason: err.Error()})
			continue
		}
		actions, err := convertAction(f.Action, labelNames)
		if err != nil {
			skipped = append(skipped, Skipped{Filter: name, Reason: err.Error()})
			continue
		}
		r := rules.Rule{
			Name:            name,
			NaturalLanguage: fmt.Sprintf("imported from gmailctl filter %s", describeCriteria(f.Criteria)),
			Conditions:      conds,
			Actions:         actions,
			Enabled:         enabled,
		}
		if err := rules.Validate(r); err != nil {
			skipped = append(skipped, Skipped{Filter: name, Reason: err.Error()})
			continue
		}
		out = append(out, r)
	}
	return out, skipped
}

func filterName(f Filter, i int) string {
	if strings.TrimSpace(f.Name) != "" {
		return strings.TrimSpace(f.Name)
	}
	if f.ID != "" {
		return "gmailctl " + f.ID
	}
	return fmt.Sprintf("gmailctl filter %d", i+1)
}

func convertCriteria(c FilterCriteria) ([]rules.Condition, error) {
	switch {
	case strings.TrimSpace(c.Query) != "":
		return nil, fmt.Errorf("free-form query %q is not supported", c.Query)
	case strings.TrimSpace(c.To) != "":
		return nil, fmt.Errorf("recipient criteria are not supported")
	case strings.TrimSpace(c.List) != "":
		return nil, fmt.Errorf("list criteria are not supported")
	}

	var conds []rules.Condition
	if from := strings.TrimSpace(c.From); from != "" {
		if !simpleTerm(from) {
			return nil, fmt.Errorf("compound sender expression %q is not supported", from)
		}
		conds = append(conds, senderCondition(from))
	}
	if subject := strings.TrimSpace(c.Subject); subject != "" {
		if !simpleTerm(subject) {
			return nil, fmt.Errorf("compound subject expression %q is not supported", subject)
		}
		conds = append(conds, rules.Condition{
			Field:    rules.FieldSubject,
			Operator: rules.OpContains,
			Value:    rules.String(strings.Trim(subject, `"`)),
		})
	}
	if len(conds) == 0 {
		return nil, fmt.Errorf("filter has no criteria")
	}
	return conds, nil
}

func senderCondition(from string) rules.Condition {
	from = strings.ToLower(strings.Trim(from, `"`))
	if strings.HasPrefix(from, "@") || (!strings.Contains(from, "@") && strings.Contains(from, ".")) {
		return rules.Condition{
			Field:    rules.FieldSenderDomain,
			Operator: rules.OpEquals,
			Value:    rules.String(strings.TrimPrefix(from, "@")),
		}
	}
	if strings.Count(from, "@") == 1 && !strings.HasPrefix(from, "@") && !strings.HasSuffix(from, "@") {
		return rules.Condition{Field: rules.FieldSender, Operator: rules.OpEquals, Value: rules.String(from)}
	}
	return rules.Condition{Field: rules.FieldSender, Operator: rules.OpContains, Value: rules.String(from)}
}

// simpleTerm rejects gmail search operators such as OR, braces and negation.
func simpleTerm(s string) bool {
	if strings.ContainsAny(s, "{}()") || strings.HasPrefix(s, "-") {
		return false
	}
	for _, tok := range strings.Fields(s) {
		if tok == "OR" || tok == "AND" || strings.Contains(tok, ":") {
			return false
		}
	}
	return true
}

func convertAction(a FilterAction, labelNames map[string]string) ([]inbox.Action, error) {
	if a.Forward != "" {
		return nil, fmt.Errorf("forwarding is not supported")
	}
	var out []inbox.Action
	for _, id := range a.RemoveLabelIDs {
		switch id {
		case "INBOX":
			out = append(out, inbox.Archive())
		case "UNREAD":
			out = append(out, inbox.MarkRead())
		case "STARRED":
			out = append(out, inbox.Unstar())
		case "IMPORTANT", "SPAM":
			// importance and spam markers have no rule equivalent
		default:
			out = append(out, inbox.RemoveLabel(resolveLabel(id, labelNames)))
		}
	}
	for _, id := range a.AddLabelIDs {
		switch id {
		case "STARRED":
			out = append(out, inbox.Star())
		case "TRASH":
			out = append(out, inbox.Trash())
		case "UNREAD":
			out = append(out, inbox.MarkUnread())
		case "IMPORTANT", "SPAM":
		default:
			if strings.HasPrefix(id, "CATEGORY_") {
				continue
			}
			out = append(out, inbox.AddLabel(resolveLabel(id, labelNames)))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("filter has no supported actions")
	}
	return out, nil
}

func resolveLabel(id string, labelNames map[string]string) string {
	if name, ok := labelNames[id]; ok && name != "" {
		return name
	}
	return id
}

func describeCriteria(c FilterCriteria) string {
	var parts []string
	if c.From != "" {
		parts = append(parts, "from:"+c.From)
	}
	if c.Subject != "" {
		parts = append(parts, "subject:"+c.Subject)
	}
	return strings.Join(parts, " ")
}
