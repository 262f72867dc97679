package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/inboxpilot/internal/store"
)

func newTestApp(stdin string) (*app, *bytes.Buffer) {
	var out bytes.Buffer
	return &app{
		ctx:    context.Background(),
		store:  store.NewMemory(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		out:    &out,
		in:     strings.NewReader(stdin),
	}, &out
}

const promoRuleJSON5 = `{
  // archive shop mail
  name: "archive promos",
  conditions: [
    {field: "sender_domain", operator: "equals", value: "shop.test"},
  ],
  actions: [{type: "archive"}],
}`

func TestAddListAndToggle(t *testing.T) {
	a, out := newTestApp(promoRuleJSON5)

	require.NoError(t, (&addCmd{File: "-"}).Run(a))
	assert.Contains(t, out.String(), "added rule #1 archive promos")

	r, err := store.FindRule(a.ctx, a.store, 1)
	require.NoError(t, err)
	assert.True(t, r.Enabled)

	require.NoError(t, (&disableCmd{ID: 1}).Run(a))
	r, err = store.FindRule(a.ctx, a.store, 1)
	require.NoError(t, err)
	assert.False(t, r.Enabled)

	out.Reset()
	require.NoError(t, (&listCmd{}).Run(a))
	assert.Contains(t, out.String(), "archive promos")
	assert.Contains(t, out.String(), "sender_domain equals")

	require.NoError(t, (&deleteCmd{ID: 1}).Run(a))
	err = (&showCmd{ID: 1}).Run(a)
	assert.True(t, errors.Is(err, store.ErrRuleNotFound))
}

func TestAddRejectsInvalidRule(t *testing.T) {
	a, _ := newTestApp(`{name: "no actions", conditions: []}`)
	require.Error(t, (&addCmd{File: "-"}).Run(a))

	rs, err := a.store.LoadRules(a.ctx)
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestListEmpty(t *testing.T) {
	a, out := newTestApp("")
	require.NoError(t, (&listCmd{}).Run(a))
	assert.Equal(t, "no rules\n", out.String())
}

func TestImportFromFile(t *testing.T) {
	export := `{
  "filters": [
    {"criteria": {"from": "news@shop.test"}, "action": {"removeLabelIds": ["INBOX"]}},
    {"criteria": {"query": "a OR b"}, "action": {"removeLabelIds": ["INBOX"]}}
  ],
  "labels": []
}`
	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(path, []byte(export), 0o600))

	a, out := newTestApp("")
	require.NoError(t, (&importCmd{File: path}).Run(a))
	assert.Contains(t, out.String(), "imported 1 rules, skipped 1 filters")

	rs, err := a.store.LoadRules(a.ctx)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.False(t, rs[0].Enabled)
}

func TestCriteriaLifecycle(t *testing.T) {
	a, out := newTestApp(`{vip_senders: ["boss@corp.test"], high_priority_keywords: ["urgent"],}`)

	require.NoError(t, (&criteriaShowCmd{}).Run(a))
	assert.Contains(t, out.String(), "no criteria configured")

	require.NoError(t, (&criteriaSetCmd{File: "-"}).Run(a))
	out.Reset()
	require.NoError(t, (&criteriaShowCmd{}).Run(a))
	assert.Contains(t, out.String(), "boss@corp.test")

	require.NoError(t, (&criteriaResetCmd{}).Run(a))
	crit, err := a.store.LoadCriteria(a.ctx)
	require.NoError(t, err)
	assert.Nil(t, crit)
}
