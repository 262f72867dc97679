// Package rules models automation rules and matches their conditions
// against emails.
package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
)

// Field is the email attribute a condition inspects.
type Field string

const (
	FieldSender        Field = "sender"
	FieldSenderDomain  Field = "sender_domain"
	FieldSubject       Field = "subject"
	FieldLabels        Field = "labels"
	FieldDate          Field = "date"
	FieldHasAttachment Field = "has_attachment"
	FieldIsUnread      Field = "is_unread"
)

// Operator compares a field with the condition value.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpInList     Operator = "in_list"
	OpOlderThan  Operator = "older_than"
	OpNewerThan  Operator = "newer_than"
)

// vocabulary lists the allowed operators per field and the value kind each
// operator expects.
var vocabulary = map[Field]map[Operator]ValueKind{
	FieldSender:        {OpEquals: KindString, OpContains: KindString},
	FieldSenderDomain:  {OpEquals: KindString, OpInList: KindList},
	FieldSubject:       {OpContains: KindString, OpStartsWith: KindString},
	FieldLabels:        {OpContains: KindString},
	FieldDate:          {OpOlderThan: KindAge, OpNewerThan: KindAge},
	FieldHasAttachment: {OpEquals: KindBool},
	FieldIsUnread:      {OpEquals: KindBool},
}

// Condition is one atomic predicate. A rule's conditions are ANDed.
type Condition struct {
	Field    Field    `json:"field"`
	Operator Operator `json:"operator"`
	Value    Value    `json:"value"`
}

// Rule is a named set of conditions and the actions to run on a match.
type Rule struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	NaturalLanguage string         `json:"natural_language"`
	Conditions      []Condition    `json:"conditions"`
	Actions         []inbox.Action `json:"actions"`
	Enabled         bool           `json:"enabled"`
}

// MarshalJSON writes a wildcard rule's conditions as [] rather than null.
func (r Rule) MarshalJSON() ([]byte, error) {
	type plain Rule
	out := plain(r)
	if out.Conditions == nil {
		out.Conditions = []Condition{}
	}
	if out.Actions == nil {
		out.Actions = []inbox.Action{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON keeps fields absent from data, so callers can preset
// defaults such as Enabled. Empty lists decode as nil.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	out := plain(*r)
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	if len(out.Conditions) == 0 {
		out.Conditions = nil
	}
	if len(out.Actions) == 0 {
		out.Actions = nil
	}
	*r = Rule(out)
	return nil
}

// ValidateCondition rejects unknown field/operator pairs and mistyped values.
func ValidateCondition(c Condition) error {
	ops, ok := vocabulary[c.Field]
	if !ok {
		return &inbox.ValidationError{Field: "conditions.field", Reason: fmt.Sprintf("unknown field %q", c.Field)}
	}
	want, ok := ops[c.Operator]
	if !ok {
		return &inbox.ValidationError{
			Field:  "conditions.operator",
			Reason: fmt.Sprintf("operator %q not supported for field %q", c.Operator, c.Field),
		}
	}
	if want == KindAge {
		if _, ok := c.Value.Duration(); !ok {
			return &inbox.ValidationError{
				Field:  "conditions.value",
				Reason: fmt.Sprintf("%s %s needs an age such as {\"amount\": 7, \"unit\": \"days\"}", c.Field, c.Operator),
			}
		}
		return nil
	}
	if c.Value.Kind != want {
		return &inbox.ValidationError{
			Field:  "conditions.value",
			Reason: fmt.Sprintf("%s %s needs a %s value, got %s", c.Field, c.Operator, want, c.Value.Kind),
		}
	}
	if want == KindList && len(c.Value.List) == 0 {
		return &inbox.ValidationError{
			Field:  "conditions.value",
			Reason: fmt.Sprintf("%s %s needs at least one entry", c.Field, c.Operator),
		}
	}
	if want == KindString && strings.TrimSpace(c.Value.Str) == "" {
		return &inbox.ValidationError{
			Field:  "conditions.value",
			Reason: fmt.Sprintf("%s %s needs a non-empty value", c.Field, c.Operator),
		}
	}
	return nil
}

// Validate checks a rule's structural shape before it is stored.
func Validate(r Rule) error {
	if strings.TrimSpace(r.Name) == "" {
		return &inbox.ValidationError{Field: "name", Reason: "must not be blank"}
	}
	for i, c := range r.Conditions {
		if err := ValidateCondition(c); err != nil {
			return fmt.Errorf("rule %q condition %d: %w", r.Name, i, err)
		}
	}
	if len(r.Actions) == 0 {
		return &inbox.ValidationError{Field: "actions", Reason: fmt.Sprintf("rule %q has no actions", r.Name)}
	}
	for i, a := range r.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("rule %q action %d: %w", r.Name, i, err)
		}
	}
	return nil
}

// ValidateAll validates every rule and checks ids are unique.
func ValidateAll(rs []Rule) error {
	seen := make(map[int64]struct{}, len(rs))
	for _, r := range rs {
		if err := Validate(r); err != nil {
			return err
		}
		if _, dup := seen[r.ID]; dup {
			return &inbox.ValidationError{Field: "id", Reason: fmt.Sprintf("duplicate rule id %d", r.ID)}
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

// Describe renders conditions compactly for reports.
func (r Rule) Describe() string {
	if len(r.Conditions) == 0 {
		return "*"
	}
	parts := make([]string, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		raw, _ := c.Value.MarshalJSON()
		parts = append(parts, fmt.Sprintf("%s %s %s", c.Field, c.Operator, raw))
	}
	return strings.Join(parts, " AND ")
}
