package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/joshsymonds/inboxpilot/internal/automation"
	"github.com/joshsymonds/inboxpilot/internal/config"
	gc "github.com/joshsymonds/inboxpilot/internal/gmail"
	"github.com/joshsymonds/inboxpilot/internal/inbox"
	"github.com/joshsymonds/inboxpilot/internal/rules"
	"github.com/joshsymonds/inboxpilot/internal/runtime"
	"github.com/joshsymonds/inboxpilot/internal/store"
)

type runCLI struct {
	DryRun      bool          `help:"Report what would happen without touching the mailbox." default:"true" negatable:""`
	Rule        []int64       `help:"Only run these rule ids." sep:","`
	Query       string        `help:"Gmail search expression for candidates." default:"in:inbox"`
	Max         int           `help:"Maximum candidate messages (0 uses INBOXPILOT_MAX_EMAILS)."`
	Concurrency int           `help:"Messages processed in parallel (0 uses INBOXPILOT_CONCURRENCY)."`
	Timeout     time.Duration `help:"Per-action timeout (0 uses INBOXPILOT_ACTION_TIMEOUT)."`
	JSON        string        `help:"Also write the run result to this relative path." placeholder:"PATH"`
}

func main() {
	var cli runCLI
	kong.Parse(&cli,
		kong.Name("inboxpilot-run"),
		kong.Description("Apply stored automation rules to matching messages (dry-run unless --no-dry-run)"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	if err := run(cli); err != nil {
		runtime.DefaultLogger().Error("inboxpilot-run failed", "error", err)
		os.Exit(runtime.ExitCode(err))
	}
}

func run(cli runCLI) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := runtime.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, closeStore, err := cfg.OpenStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = closeStore() }()

	all, err := store.LoadValidRules(ctx, st)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	selected, err := selectRules(ctx, st, all, cli.Rule)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		logger.Info("no rules to run")
		return nil
	}

	client, err := runtime.NewGmailClient(ctx, cfg.GmailctlDir, scopeFor(selected, cli.DryRun))
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}
	mailbox := gc.NewMailbox(client, runtime.NewLimiter(cfg.RPS), logger)
	mailbox.PageSize = cfg.PageSize

	opts := automation.Options{
		DryRun:        cli.DryRun,
		MaxEmails:     pick(cli.Max, cfg.MaxEmails),
		ActionTimeout: cfg.ActionTimeout,
		Concurrency:   pick(cli.Concurrency, cfg.Concurrency),
	}
	if cli.Timeout > 0 {
		opts.ActionTimeout = cli.Timeout
	}

	emails, err := mailbox.Fetch(ctx, inbox.Filter{Query: cli.Query}, opts.MaxEmails)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}

	res := automation.NewEngine(mailbox, logger).Run(ctx, selected, emails, opts)
	if err := automation.PrintHuman(res, os.Stdout); err != nil {
		return fmt.Errorf("print result: %w", err)
	}
	if cli.JSON != "" {
		if err := runtime.WriteJSON(res, cli.JSON); err != nil {
			return fmt.Errorf("write json: %w", err)
		}
	}

	switch {
	case res.AuthRequired:
		return &runtime.ExitError{Code: runtime.ExitAuth, Err: errors.New("re-authentication required; run gmailctl init")}
	case res.Canceled:
		return errors.New("run canceled")
	case res.Failed > 0:
		return &runtime.ExitError{Code: runtime.ExitFindings, Err: fmt.Errorf("%d actions failed", res.Failed)}
	}
	return nil
}

// selectRules keeps stored order. Unknown ids are an error so a typo does
// not silently run nothing.
func selectRules(ctx context.Context, st store.RuleStore, all []rules.Rule, ids []int64) ([]rules.Rule, error) {
	if len(ids) == 0 {
		return all, nil
	}
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, err := store.FindRule(ctx, st, id); err != nil {
			return nil, err
		}
		want[id] = struct{}{}
	}
	out := make([]rules.Rule, 0, len(ids))
	for _, r := range all {
		if _, ok := want[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// scopeFor requests the narrowest scope the selected rules need.
func scopeFor(rs []rules.Rule, dryRun bool) runtime.Scope {
	if dryRun {
		return runtime.ScopeReadonly
	}
	for _, r := range rs {
		if !r.Enabled {
			continue
		}
		for _, a := range r.Actions {
			if a.Type == inbox.ActionDelete {
				return runtime.ScopeFull
			}
		}
	}
	return runtime.ScopeModify
}

func pick(flag, fallback int) int {
	if flag > 0 {
		return flag
	}
	return fallback
}
