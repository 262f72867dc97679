// Package store persists prioritization criteria and automation rules.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
	"github.com/joshsymonds/inboxpilot/internal/rules"
	"github.com/joshsymonds/inboxpilot/internal/triage"
)

// ErrRuleNotFound is returned when a rule id is not in the store.
var ErrRuleNotFound = errors.New("rule not found")

// CriteriaStore holds the single criteria document.
type CriteriaStore interface {
	// LoadCriteria returns nil and no error when nothing is configured.
	LoadCriteria(ctx context.Context) (*triage.Criteria, error)
	SaveCriteria(ctx context.Context, c triage.Criteria) error
	ResetCriteria(ctx context.Context) error
}

// RuleStore holds the ordered rule list.
type RuleStore interface {
	// LoadRules returns rules in creation order, empty when none exist.
	LoadRules(ctx context.Context) ([]rules.Rule, error)
	SaveRules(ctx context.Context, rs []rules.Rule) error
	// NextRuleID reserves an id that has never been handed out before.
	NextRuleID(ctx context.Context) (int64, error)
}

// Store is the full persistence surface used by the CLIs.
type Store interface {
	CriteriaStore
	RuleStore
}

// AddRule assigns a fresh id to r, validates it and appends it.
func AddRule(ctx context.Context, s RuleStore, r rules.Rule) (rules.Rule, error) {
	r.ID = 0
	if err := rules.Validate(r); err != nil {
		return rules.Rule{}, err
	}
	existing, err := s.LoadRules(ctx)
	if err != nil {
		return rules.Rule{}, err
	}
	id, err := s.NextRuleID(ctx)
	if err != nil {
		return rules.Rule{}, fmt.Errorf("reserve rule id: %w", err)
	}
	r.ID = id
	if err := s.SaveRules(ctx, append(existing, r)); err != nil {
		return rules.Rule{}, err
	}
	return r, nil
}

// DeleteRule removes the rule with id.
func DeleteRule(ctx context.Context, s RuleStore, id int64) error {
	existing, err := s.LoadRules(ctx)
	if err != nil {
		return err
	}
	kept := make([]rules.Rule, 0, len(existing))
	for _, r := range existing {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(existing) {
		return fmt.Errorf("delete rule %d: %w", id, ErrRuleNotFound)
	}
	return s.SaveRules(ctx, kept)
}

// SetRuleEnabled toggles a rule without touching the others.
func SetRuleEnabled(ctx context.Context, s RuleStore, id int64, enabled bool) error {
	existing, err := s.LoadRules(ctx)
	if err != nil {
		return err
	}
	for i := range existing {
		if existing[i].ID == id {
			existing[i].Enabled = enabled
			return s.SaveRules(ctx, existing)
		}
	}
	return fmt.Errorf("update rule %d: %w", id, ErrRuleNotFound)
}

// FindRule returns the rule with id.
func FindRule(ctx context.Context, s RuleStore, id int64) (rules.Rule, error) {
	existing, err := s.LoadRules(ctx)
	if err != nil {
		return rules.Rule{}, err
	}
	for _, r := range existing {
		if r.ID == id {
			return r, nil
		}
	}
	return rules.Rule{}, fmt.Errorf("find rule %d: %w", id, ErrRuleNotFound)
}

// LoadValidRules loads rules and rejects the set when any rule fails
// validation, e.g. after a hand edit introduced an unknown operator.
func LoadValidRules(ctx context.Context, s RuleStore) ([]rules.Rule, error) {
	rs, err := s.LoadRules(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateRules(rs); err != nil {
		return nil, fmt.Errorf("stored rules: %w", err)
	}
	return rs, nil
}

func validateRules(rs []rules.Rule) error {
	for _, r := range rs {
		if r.ID <= 0 {
			return &inbox.ValidationError{Field: "id", Reason: fmt.Sprintf("rule %q has no id", r.Name)}
		}
	}
	return rules.ValidateAll(rs)
}
