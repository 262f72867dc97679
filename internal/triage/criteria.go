// Package triage assigns priority labels to emails from user criteria.
package triage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
)

// Criteria are the user's structured prioritization signals. Any list may be
// empty. CustomRules are carried through untouched and never influence Score.
type Criteria struct {
	VIPSenders           []string `json:"vip_senders"`
	VIPDomains           []string `json:"vip_domains"`
	HighPriorityKeywords []string `json:"high_priority_keywords"`
	LowPriorityTypes     []string `json:"low_priority_types"`
	CustomRules          []string `json:"custom_rules"`
}

// MarshalJSON writes absent lists as [] so stored criteria always carry
// five arrays.
func (c Criteria) MarshalJSON() ([]byte, error) {
	type plain Criteria
	out := plain(c)
	for _, list := range []*[]string{&out.VIPSenders, &out.VIPDomains, &out.HighPriorityKeywords, &out.LowPriorityTypes, &out.CustomRules} {
		if *list == nil {
			*list = []string{}
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON treats empty and null lists alike.
func (c *Criteria) UnmarshalJSON(data []byte) error {
	type plain Criteria
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	for _, list := range []*[]string{&out.VIPSenders, &out.VIPDomains, &out.HighPriorityKeywords, &out.LowPriorityTypes, &out.CustomRules} {
		if len(*list) == 0 {
			*list = nil
		}
	}
	*c = Criteria(out)
	return nil
}

// Empty reports whether no structured signal is configured.
func (c Criteria) Empty() bool {
	return len(c.VIPSenders) == 0 && len(c.VIPDomains) == 0 &&
		len(c.HighPriorityKeywords) == 0 && len(c.LowPriorityTypes) == 0
}

// Validate checks structural shape only.
func (c Criteria) Validate() error {
	for i, s := range c.VIPSenders {
		s = strings.TrimSpace(s)
		if s == "" {
			return blank("vip_senders", i)
		}
		if !strings.Contains(s, "@") {
			return &inbox.ValidationError{
				Field:  fmt.Sprintf("vip_senders[%d]", i),
				Reason: fmt.Sprintf("%q is not an email address", s),
			}
		}
	}
	for i, d := range c.VIPDomains {
		d = strings.TrimSpace(d)
		if d == "" {
			return blank("vip_domains", i)
		}
		if strings.ContainsAny(d, "@ \t") {
			return &inbox.ValidationError{
				Field:  fmt.Sprintf("vip_domains[%d]", i),
				Reason: fmt.Sprintf("%q is not a bare domain", d),
			}
		}
	}
	for i, k := range c.HighPriorityKeywords {
		if strings.TrimSpace(k) == "" {
			return blank("high_priority_keywords", i)
		}
	}
	for i, t := range c.LowPriorityTypes {
		if strings.TrimSpace(t) == "" {
			return blank("low_priority_types", i)
		}
	}
	return nil
}

func blank(field string, i int) error {
	return &inbox.ValidationError{Field: fmt.Sprintf("%s[%d]", field, i), Reason: "must not be blank"}
}
