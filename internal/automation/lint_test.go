package automation

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
	"github.com/joshsymonds/inboxpilot/internal/rules"
)

func TestLintFindsDeadDisabledAndMissing(t *testing.T) {
	dead := rules.Rule{
		ID:      7,
		Name:    "never fires",
		Enabled: true,
		Conditions: []rules.Condition{
			{Field: rules.FieldSenderDomain, Operator: rules.OpEquals, Value: rules.String("nowhere.test")},
		},
		Actions: []inbox.Action{inbox.AddLabel("ghost")},
	}
	off := promoRule()
	off.ID, off.Name, off.Enabled = 8, "paused", false
	labeler := promoRule()
	labeler.ID, labeler.Name = 9, "file promos"
	labeler.Actions = []inbox.Action{inbox.AddLabel("promos")}

	existing := map[string]struct{}{"promos": {}}
	rep := Lint([]rules.Rule{dead, off, labeler}, fiveEmails(), existing, fixedNow)

	assert.Equal(t, 5, rep.Total)
	require.Len(t, rep.DeadRules, 1)
	assert.Equal(t, "never fires", rep.DeadRules[0].Name)
	require.Len(t, rep.Disabled, 1)
	assert.Equal(t, int64(8), rep.Disabled[0].ID)
	assert.Equal(t, []string{"ghost"}, rep.MissingLabels)
	assert.Empty(t, rep.Conflicts)

	assert.True(t, rep.ShouldFail([]string{"dead"}))
	assert.True(t, rep.ShouldFail(ParseFailOn(" Missing-Label ,")))
	assert.False(t, rep.ShouldFail([]string{"conflict"}))
	assert.False(t, rep.ShouldFail(nil))

	summary := rep.HumanSummary()
	assert.Contains(t, summary, "#7 never fires")
	assert.Contains(t, summary, "ghost")
}

func TestLintSkipsLabelCheckWithoutLabelSet(t *testing.T) {
	r := promoRule()
	r.Actions = []inbox.Action{inbox.AddLabel("anything")}
	rep := Lint([]rules.Rule{r}, fiveEmails(), nil, fixedNow)
	assert.Empty(t, rep.MissingLabels)
	assert.Contains(t, rep.HumanSummary(), "no findings")
}

func TestLintReportsConflicts(t *testing.T) {
	star := promoRule()
	star.ID, star.Name = 2, "star promos"
	star.Actions = []inbox.Action{inbox.Star()}
	rep := Lint([]rules.Rule{promoRule(), star}, fiveEmails(), nil, fixedNow)
	require.Len(t, rep.Conflicts, 1)
	assert.Equal(t, []string{"e1", "e3"}, rep.Conflicts[0].EmailIDs)
	assert.True(t, rep.ShouldFail([]string{"conflict"}))
}

func TestParseFailOn(t *testing.T) {
	assert.Nil(t, ParseFailOn("  "))
	assert.Equal(t, []string{"dead", "conflict"}, ParseFailOn("DEAD,, conflict"))
}

func TestPrintHuman(t *testing.T) {
	mb := &fakeMailbox{}
	res := newTestEngine(mb).Run(context.Background(), []rules.Rule{promoRule()}, fiveEmails(), Options{DryRun: true})

	var buf bytes.Buffer
	require.NoError(t, PrintHuman(res, &buf))
	out := buf.String()
	assert.Contains(t, out, "inboxpilot run run-1 (dry-run): 5 candidates, 2 matched")
	assert.Contains(t, out, "#1 archive promos (2 emails)")
	assert.Contains(t, out, "Coupons")
	assert.Contains(t, out, "would_apply")
	assert.Contains(t, out, "applied 0, would apply 2, failed 0")
}
