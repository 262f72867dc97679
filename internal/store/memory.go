package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/joshsymonds/inboxpilot/internal/rules"
	"github.com/joshsymonds/inboxpilot/internal/triage"
)

// Memory is an in-process Store, used by tests and one-shot evaluations.
type Memory struct {
	mu       sync.Mutex
	criteria *triage.Criteria
	rules    []rules.Rule
	lastID   int64
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) LoadCriteria(context.Context) (*triage.Criteria, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.criteria == nil {
		return nil, nil
	}
	c := cloneCriteria(*m.criteria)
	return &c, nil
}

func (m *Memory) SaveCriteria(_ context.Context, c triage.Criteria) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("save criteria: %w", err)
	}
	c = cloneCriteria(c)
	m.mu.Lock()
	m.criteria = &c
	m.mu.Unlock()
	return nil
}

func (m *Memory) ResetCriteria(context.Context) error {
	m.mu.Lock()
	m.criteria = nil
	m.mu.Unlock()
	return nil
}

func (m *Memory) LoadRules(context.Context) ([]rules.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]rules.Rule{}, m.rules...), nil
}

func (m *Memory) SaveRules(_ context.Context, rs []rules.Rule) error {
	if err := validateRules(rs); err != nil {
		return fmt.Errorf("save rules: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append([]rules.Rule{}, rs...)
	for _, r := range rs {
		if r.ID > m.lastID {
			m.lastID = r.ID
		}
	}
	return nil
}

func (m *Memory) NextRuleID(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID++
	return m.lastID, nil
}

func cloneCriteria(c triage.Criteria) triage.Criteria {
	return triage.Criteria{
		VIPSenders:           append([]string(nil), c.VIPSenders...),
		VIPDomains:           append([]string(nil), c.VIPDomains...),
		HighPriorityKeywords: append([]string(nil), c.HighPriorityKeywords...),
		LowPriorityTypes:     append([]string(nil), c.LowPriorityTypes...),
		CustomRules:          append([]string(nil), c.CustomRules...),
	}
}
