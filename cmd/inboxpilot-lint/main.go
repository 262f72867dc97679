package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/joshsymonds/inboxpilot/internal/automation"
	"github.com/joshsymonds/inboxpilot/internal/config"
	gc "github.com/joshsymonds/inboxpilot/internal/gmail"
	"github.com/joshsymonds/inboxpilot/internal/gmailctl"
	"github.com/joshsymonds/inboxpilot/internal/inbox"
	"github.com/joshsymonds/inboxpilot/internal/runtime"
	"github.com/joshsymonds/inboxpilot/internal/store"
)

type lintCLI struct {
	Days           int    `help:"Lookback window in days for the message sample." default:"30"`
	Max            int    `help:"Sample size." default:"500"`
	FailOn         string `help:"Comma separated findings that fail the run (dead, conflict, missing-label, disabled)." default:"dead,conflict,missing-label"`
	GmailctlConfig string `help:"gmailctl config directory used to list declared labels (defaults to INBOXPILOT_GMAILCTL_DIR)."`
	GmailctlBinary string `help:"gmailctl binary to invoke." default:"gmailctl"`
	JSON           string `help:"Also write the report to this relative path." placeholder:"PATH"`
}

func main() {
	var cli lintCLI
	kong.Parse(&cli,
		kong.Name("inboxpilot-lint"),
		kong.Description("Check stored rules for dead rules, conflicts and missing labels"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	if err := run(cli); err != nil {
		runtime.DefaultLogger().Error("inboxpilot-lint failed", "error", err)
		os.Exit(runtime.ExitCode(err))
	}
}

func run(cli lintCLI) error {
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
	rs, err := store.LoadValidRules(ctx, st)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	client, err := runtime.NewGmailClient(ctx, cfg.GmailctlDir, runtime.ScopeReadonly)
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}
	mailbox := gc.NewMailbox(client, runtime.NewLimiter(cfg.RPS), logger)
	mailbox.PageSize = cfg.PageSize

	query := fmt.Sprintf("newer_than:%dd", cli.Days)
	emails, err := mailbox.Fetch(ctx, inbox.Filter{Query: query}, cli.Max)
	if err != nil {
		return fmt.Errorf("fetch sample: %w", err)
	}

	labels, err := existingLabels(ctx, client, cli, cfg.GmailctlDir, logger)
	if err != nil {
		return err
	}

	rep := automation.Lint(rs, emails, labels, time.Now())
	if _, err := os.Stdout.WriteString(rep.HumanSummary()); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if cli.JSON != "" {
		if err := runtime.WriteJSON(rep, cli.JSON); err != nil {
			return fmt.Errorf("write json: %w", err)
		}
	}
	if rep.ShouldFail(automation.ParseFailOn(cli.FailOn)) {
		return &runtime.ExitError{Code: runtime.ExitFindings, Err: fmt.Errorf("lint failures matched: %s", cli.FailOn)}
	}
	return nil
}

// existingLabels merges mailbox labels with the ones gmailctl declares, so a
// label that gmailctl will create on its next apply is not reported missing.
func existingLabels(ctx context.Context, client gc.Client, cli lintCLI, defaultDir string, logger *slog.Logger) (map[string]struct{}, error) {
	byName, _, err := client.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	out := make(map[string]struct{}, len(byName))
	for name := range byName {
		out[name] = struct{}{}
	}

	dir := cli.GmailctlConfig
	if dir == "" {
		dir = defaultDir
	}
	export, err := gmailctl.Runner{Binary: cli.GmailctlBinary, ConfigDir: dir}.ExportFilters(ctx)
	if err != nil {
		logger.Warn("gmailctl export unavailable; checking mailbox labels only", "error", err)
		return out, nil
	}
	for name := range export.LabelNames() {
		out[name] = struct{}{}
	}
	return out, nil
}
