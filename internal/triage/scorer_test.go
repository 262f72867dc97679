package triage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
)

func TestScoreScenarios(t *testing.T) {
	crit := Criteria{
		VIPDomains:           []string{"acme.com"},
		HighPriorityKeywords: []string{"urgent"},
		LowPriorityTypes:     []string{"promotional"},
	}
	tests := []struct {
		name  string
		email inbox.Email
		want  Priority
	}{
		{
			name:  "domain match",
			email: inbox.Email{ID: "1", From: "bob@acme.com", Subject: "lunch?"},
			want:  High,
		},
		{
			name:  "subdomain match",
			email: inbox.Email{ID: "2", From: "ci@build.acme.com", Subject: "green"},
			want:  High,
		},
		{
			name:  "lookalike domain is not a subdomain",
			email: inbox.Email{ID: "3", From: "x@notacme.com", Subject: "hello"},
			want:  Medium,
		},
		{
			name:  "keyword match",
			email: inbox.Email{ID: "4", From: "x@other.com", Subject: "URGENT: server down"},
			want:  High,
		},
		{
			name:  "keyword in body",
			email: inbox.Email{ID: "5", From: "x@other.com", Subject: "fyi", Body: "this is Urgent"},
			want:  High,
		},
		{
			name: "type match",
			email: inbox.Email{
				ID:     "6",
				From:   "newsletter@deals.com",
				Labels: []string{"INBOX", "CATEGORY_PROMOTIONS"},
			},
			want: Low,
		},
		{
			name:  "nothing matches",
			email: inbox.Email{ID: "7", From: "friend@home.net", Subject: "photos"},
			want:  Medium,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Score(crit, tt.email)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScoreVIPSenderBeatsLowType(t *testing.T) {
	crit := Criteria{
		VIPSenders:       []string{"Boss@X.com"},
		LowPriorityTypes: []string{"newsletter"},
	}
	email := inbox.Email{
		ID:      "n1",
		From:    `"The Boss" <boss@x.com>`,
		Subject: "Weekly digest",
		Labels:  []string{"CATEGORY_UPDATES"},
	}
	require.Equal(t, TypeNewsletter, DeriveType(email))
	got, _ := Score(crit, email)
	assert.Equal(t, High, got)
}

func TestScoreEmptyCriteriaIsMedium(t *testing.T) {
	emails := []inbox.Email{
		{ID: "a", From: "noreply@shop.com", Labels: []string{"CATEGORY_PROMOTIONS"}},
		{ID: "b", From: "pal@x.com", To: []string{"me@x.com"}, Subject: "can you call?", Unread: true},
		{ID: "c"},
	}
	for _, e := range emails {
		got, _ := Score(Criteria{}, e)
		assert.Equal(t, Medium, got, e.ID)
	}
	_, reply := Score(Criteria{}, emails[1])
	assert.True(t, reply, "reply detection is independent of criteria")
}

func TestScoreIsTotal(t *testing.T) {
	crit := Criteria{
		VIPSenders:           []string{"a@b.com"},
		VIPDomains:           []string{"c.com"},
		HighPriorityKeywords: []string{"now"},
		LowPriorityTypes:     []string{"social", "automated"},
		CustomRules:          []string{"anything from my landlord matters"},
	}
	emails := []inbox.Email{
		{}, {From: "a@b.com"}, {From: "x@c.com"}, {Subject: "now"},
		{From: "notifications@site.com"}, {Labels: []string{"CATEGORY_SOCIAL"}},
		{From: "landlord@rent.com", Subject: "rent"},
	}
	for _, e := range emails {
		got, _ := Score(crit, e)
		assert.Contains(t, []Priority{High, Medium, Low}, got)
	}
	got, _ := Score(crit, emails[6])
	assert.Equal(t, Medium, got, "custom rules never change the score")
}

func TestDeriveType(t *testing.T) {
	tests := []struct {
		name  string
		email inbox.Email
		want  EmailType
	}{
		{name: "promotions label", email: inbox.Email{Labels: []string{"CATEGORY_PROMOTIONS"}}, want: TypePromotional},
		{name: "social label", email: inbox.Email{Labels: []string{"CATEGORY_SOCIAL"}}, want: TypeSocial},
		{name: "forums label", email: inbox.Email{Labels: []string{"CATEGORY_FORUMS"}}, want: TypeDigest},
		{name: "list id", email: inbox.Email{ListID: "team.lists.example.com"}, want: TypeNewsletter},
		{name: "noreply sender", email: inbox.Email{From: "NoReply@bank.com"}, want: TypeAutomated},
		{name: "no-reply sender", email: inbox.Email{From: "no-reply@bank.com"}, want: TypeAutomated},
		{name: "notifications sender", email: inbox.Email{From: "notifications@github.com"}, want: TypeAutomated},
		{name: "label beats sender", email: inbox.Email{From: "noreply@x.com", Labels: []string{"CATEGORY_SOCIAL"}}, want: TypeSocial},
		{name: "personal", email: inbox.Email{From: "mom@home.net"}, want: TypeNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveType(tt.email))
		})
	}
}

func TestParseTypeSynonyms(t *testing.T) {
	assert.Equal(t, TypePromotional, ParseType(" Promotions "))
	assert.Equal(t, TypeNewsletter, ParseType("newsletters"))
	assert.Equal(t, EmailType("receipts"), ParseType("Receipts"))
}

func TestNeedsReply(t *testing.T) {
	now := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	base := inbox.Email{
		From:    "colleague@corp.com",
		To:      []string{"Me <me@corp.com>"},
		Subject: "Could you review the doc",
		Unread:  true,
		Date:    now,
	}
	self := []string{"me@corp.com"}

	assert.True(t, NeedsReply(base, self))

	read := base
	read.Unread = false
	assert.False(t, NeedsReply(read, self))

	ccOnly := base
	ccOnly.To = []string{"team@corp.com"}
	ccOnly.Cc = []string{"me@corp.com"}
	assert.False(t, NeedsReply(ccOnly, self))

	statement := base
	statement.Subject = "Deploy finished"
	assert.False(t, NeedsReply(statement, self))

	question := statement
	question.Body = "Did it work for you?"
	assert.True(t, NeedsReply(question, self))

	newsletter := base
	newsletter.Labels = []string{"CATEGORY_UPDATES"}
	assert.False(t, NeedsReply(newsletter, self))

	replied := base
	replied.RepliedAt = now.Add(time.Hour)
	assert.False(t, NeedsReply(replied, self))

	repliedBefore := base
	repliedBefore.RepliedAt = now.Add(-time.Hour)
	assert.True(t, NeedsReply(repliedBefore, self))
}

type stubAdvisor struct {
	advice string
	err    error
	calls  int
}

func (s *stubAdvisor) Advise(ctx context.Context, rules []string, e inbox.Email) (string, error) {
	_ = ctx
	_ = rules
	_ = e
	s.calls++
	return s.advice, s.err
}

func TestScorerAdvisorIsAdvisoryOnly(t *testing.T) {
	crit := Criteria{CustomRules: []string{"emails about the move are important"}}
	emails := []inbox.Email{{ID: "1", From: "movers@truck.com", Subject: "move date"}}

	adv := &stubAdvisor{advice: "matches: emails about the move"}
	scored := NewScorer(nil, adv, slogDiscard()).ScoreInbox(context.Background(), crit, emails)
	require.Len(t, scored, 1)
	assert.Equal(t, Medium, scored[0].Priority)
	assert.Equal(t, "matches: emails about the move", scored[0].Advice)

	failing := &stubAdvisor{err: errors.New("model offline")}
	scored = NewScorer(nil, failing, slogDiscard()).ScoreInbox(context.Background(), crit, emails)
	require.Len(t, scored, 1)
	assert.Empty(t, scored[0].Advice)
	assert.Equal(t, 1, failing.calls)

	unused := &stubAdvisor{}
	NewScorer(nil, unused, slogDiscard()).ScoreInbox(context.Background(), Criteria{}, emails)
	assert.Zero(t, unused.calls, "advisor is skipped without custom rules")
}

func TestSortByPriorityIsStable(t *testing.T) {
	scored := []Scored{
		{Email: inbox.Email{ID: "m1"}, Priority: Medium},
		{Email: inbox.Email{ID: "l1"}, Priority: Low},
		{Email: inbox.Email{ID: "h1"}, Priority: High},
		{Email: inbox.Email{ID: "m2"}, Priority: Medium},
		{Email: inbox.Email{ID: "h2"}, Priority: High},
	}
	sorted := SortByPriority(scored)
	ids := make([]string, 0, len(sorted))
	for _, s := range sorted {
		ids = append(ids, s.Email.ID)
	}
	assert.Equal(t, []string{"h1", "h2", "m1", "m2", "l1"}, ids)
	assert.Equal(t, "m1", scored[0].Email.ID, "input untouched")
	assert.Equal(t, map[Priority]int{High: 2, Medium: 2, Low: 1}, Counts(scored))
}

func TestNewsletterTypeDemotesAutomatedSenders(t *testing.T) {
	alert := inbox.Email{From: "noreply@ci.test", Subject: "build passed"}
	require.Equal(t, TypeAutomated, DeriveType(alert))

	p, _ := Score(Criteria{LowPriorityTypes: []string{"newsletters"}}, alert)
	assert.Equal(t, Low, p)
	p, _ = Score(Criteria{LowPriorityTypes: []string{"promotional"}}, alert)
	assert.Equal(t, Medium, p)

	// the reverse does not hold
	list := inbox.Email{From: "editor@news.test", ListID: "weekly.news.test"}
	p, _ = Score(Criteria{LowPriorityTypes: []string{"automated"}}, list)
	assert.Equal(t, Medium, p)
}

func TestCriteriaJSONAlwaysHasArrays(t *testing.T) {
	out, err := json.Marshal(Criteria{VIPDomains: []string{"acme.com"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"vip_senders": [],
		"vip_domains": ["acme.com"],
		"high_priority_keywords": [],
		"low_priority_types": [],
		"custom_rules": []
	}`, string(out))

	var back Criteria
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, Criteria{VIPDomains: []string{"acme.com"}}, back)
}

func TestCriteriaValidate(t *testing.T) {
	require.NoError(t, Criteria{}.Validate())
	require.NoError(t, Criteria{VIPSenders: []string{"a@b.com"}, VIPDomains: []string{"b.com"}}.Validate())

	bad := []Criteria{
		{VIPSenders: []string{"not-an-address"}},
		{VIPSenders: []string{" "}},
		{VIPDomains: []string{"x@b.com"}},
		{HighPriorityKeywords: []string{""}},
		{LowPriorityTypes: []string{"\t"}},
	}
	for _, c := range bad {
		err := c.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, inbox.ErrValidation)
	}
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
