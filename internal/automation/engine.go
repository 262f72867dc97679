// Package automation runs automation rules over a batch of candidate emails,
// either as a dry-run preview or as real mailbox mutations.
package automation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
	"github.com/joshsymonds/inboxpilot/internal/rules"
)

const defaultActionTimeout = 30 * time.Second

// Options controls a single run.
type Options struct {
	DryRun bool
	// MaxEmails caps the candidates considered, applied before rule matching.
	MaxEmails int
	// ActionTimeout bounds each remote call. Zero means 30s.
	ActionTimeout time.Duration
	// Concurrency > 1 applies actions for distinct emails in parallel. Each
	// email's actions still run one at a time in rule order.
	Concurrency int
}

// Engine executes rules against a Mailbox.
type Engine struct {
	Mailbox inbox.Mailbox
	Logger  *slog.Logger
	Clock   func() time.Time
	NewID   func() string
}

// NewEngine constructs an Engine with sane defaults.
func NewEngine(mailbox inbox.Mailbox, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Engine{
		Mailbox: mailbox,
		Logger:  logger,
		Clock:   time.Now,
		NewID:   func() string { return uuid.NewString() },
	}
}

// slot addresses one ActionOutcome inside Result.Rules.
type slot struct {
	rule, entry, action int
	emailID             string
}

// Run matches enabled rules in order against the candidates in order and
// either previews or applies the matched actions. It never returns an error:
// every failure is isolated to its (rule, email, action) and reported.
//
// Cancelling ctx stops scheduling further actions. Actions already applied
// stay applied; the run is at-least-executed-once-requested, not transactional.
func (e *Engine) Run(ctx context.Context, rs []rules.Rule, emails []inbox.Email, opts Options) Result {
	now := e.now()
	candidates := emails
	if opts.MaxEmails > 0 && len(candidates) > opts.MaxEmails {
		candidates = candidates[:opts.MaxEmails]
	}

	res := Result{
		RunID:      e.newID(),
		DryRun:     opts.DryRun,
		StartedAt:  now,
		Candidates: len(candidates),
	}

	enabled := make([]rules.Rule, 0, len(rs))
	for _, r := range rs {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}

	var slots []slot
	for ri, r := range enabled {
		rr := RuleResult{RuleID: r.ID, RuleName: r.Name}
		for _, em := range candidates {
			if !rules.Match(r.Conditions, em, now) {
				continue
			}
			entry := Entry{EmailID: em.ID, Subject: em.Subject, Actions: make([]ActionOutcome, len(r.Actions))}
			for ai, a := range r.Actions {
				entry.Actions[ai] = ActionOutcome{Action: a, Outcome: OutcomeWouldApply}
				slots = append(slots, slot{rule: ri, entry: len(rr.Entries), action: ai, emailID: em.ID})
			}
			rr.Entries = append(rr.Entries, entry)
		}
		res.Rules = append(res.Rules, rr)
	}
	res.Conflicts = rules.DetectConflicts(enabled, candidates, now)
	for _, c := range res.Conflicts {
		e.log().WarnContext(ctx, "conflicting rules", "rules", c.Rules, "conflict", c.Description, "emails", len(c.EmailIDs))
	}

	if !opts.DryRun && len(slots) > 0 {
		e.execute(ctx, &res, slots, opts)
	}

	res.summarize()
	res.FinishedAt = e.now()
	for _, rr := range res.Rules {
		e.log().InfoContext(ctx, "rule evaluated",
			"rule", rr.RuleName, "matched", len(rr.Entries), "dry_run", opts.DryRun)
	}
	e.log().InfoContext(ctx, "automation run complete",
		"run_id", res.RunID,
		"candidates", res.Candidates,
		"matched", res.Matched,
		"applied", res.Applied,
		"would_apply", res.WouldApply,
		"failed", res.Failed,
	)
	return res
}

type runState struct {
	authFailed atomic.Bool
	canceled   atomic.Bool
}

func (e *Engine) execute(ctx context.Context, res *Result, slots []slot, opts Options) {
	timeout := opts.ActionTimeout
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	state := &runState{}

	if opts.Concurrency <= 1 {
		for _, s := range slots {
			e.applySlot(ctx, res, s, timeout, state)
		}
	} else {
		// group per email, keeping rule order within each email
		var order []string
		byEmail := map[string][]slot{}
		for _, s := range slots {
			if _, ok := byEmail[s.emailID]; !ok {
				order = append(order, s.emailID)
			}
			byEmail[s.emailID] = append(byEmail[s.emailID], s)
		}
		var g errgroup.Group
		g.SetLimit(opts.Concurrency)
		for _, id := range order {
			group := byEmail[id]
			g.Go(func() error {
				for _, s := range group {
					e.applySlot(ctx, res, s, timeout, state)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	res.Canceled = state.canceled.Load()
	res.AuthRequired = state.authFailed.Load()
}

// applySlot writes only to its own pre-allocated outcome.
func (e *Engine) applySlot(ctx context.Context, res *Result, s slot, timeout time.Duration, state *runState) {
	out := &res.Rules[s.rule].Entries[s.entry].Actions[s.action]
	if ctx.Err() != nil {
		state.canceled.Store(true)
		out.Outcome, out.Reason = OutcomeFailed, ReasonCanceled
		return
	}
	if state.authFailed.Load() {
		out.Outcome, out.Reason = OutcomeFailed, ReasonAuthRequired
		return
	}

	err := e.applyWithTimeout(ctx, s.emailID, out.Action, timeout)
	switch {
	case err == nil:
		out.Outcome = OutcomeApplied
		return
	case inbox.IsAuth(err):
		state.authFailed.Store(true)
		out.Outcome, out.Reason = OutcomeFailed, ReasonAuthRequired
	case ctx.Err() != nil:
		state.canceled.Store(true)
		out.Outcome, out.Reason = OutcomeFailed, ReasonCanceled
	case errors.Is(err, context.DeadlineExceeded):
		out.Outcome, out.Reason = OutcomeFailed, ReasonTimeout
	default:
		out.Outcome, out.Reason = OutcomeFailed, err.Error()
	}
	e.log().WarnContext(ctx, "action failed",
		"rule", res.Rules[s.rule].RuleName,
		"email", s.emailID,
		"action", out.Action.String(),
		"reason", out.Reason,
	)
}

// applyWithTimeout bounds the call even when the mailbox ignores ctx.
func (e *Engine) applyWithTimeout(ctx context.Context, id string, a inbox.Action, timeout time.Duration) error {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Mailbox.ApplyAction(actx, id, a) }()
	select {
	case err := <-done:
		return err
	case <-actx.Done():
		return actx.Err()
	}
}

func (e *Engine) log() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Engine) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock()
}

func (e *Engine) newID() string {
	if e.NewID == nil {
		return uuid.NewString()
	}
	return e.NewID()
}
