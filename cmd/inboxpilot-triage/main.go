package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/rodaine/table"

	"github.com/joshsymonds/inboxpilot/internal/config"
	gc "github.com/joshsymonds/inboxpilot/internal/gmail"
	"github.com/joshsymonds/inboxpilot/internal/inbox"
	"github.com/joshsymonds/inboxpilot/internal/runtime"
	"github.com/joshsymonds/inboxpilot/internal/triage"
)

type triageCLI struct {
	Query   string   `help:"Gmail search expression." default:"in:inbox"`
	Unread  bool     `help:"Only unread messages."`
	Labels  []string `help:"Restrict to these labels." sep:","`
	Max     int      `help:"Maximum messages to score (0 uses INBOXPILOT_MAX_EMAILS)."`
	Replies bool     `help:"Look up thread history so replied threads drop out of needs-reply."`
	JSON    string   `help:"Also write the scored list to this relative path." placeholder:"PATH"`
}

func main() {
	var cli triageCLI
	kong.Parse(&cli,
		kong.Name("inboxpilot-triage"),
		kong.Description("Score inbox messages against the stored prioritization criteria"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	if err := run(cli); err != nil {
		runtime.DefaultLogger().Error("inboxpilot-triage failed", "error", err)
		os.Exit(runtime.ExitCode(err))
	}
}

func run(cli triageCLI) error {
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

	criteria, err := st.LoadCriteria(ctx)
	if err != nil {
		return fmt.Errorf("load criteria: %w", err)
	}
	if criteria == nil {
		logger.Info("no prioritization criteria configured; every message scores medium")
		criteria = &triage.Criteria{}
	}

	client, err := runtime.NewGmailClient(ctx, cfg.GmailctlDir, runtime.ScopeReadonly)
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}
	mailbox := gc.NewMailbox(client, runtime.NewLimiter(cfg.RPS), logger)
	mailbox.PageSize = cfg.PageSize
	mailbox.ResolveReplies = cli.Replies

	limit := cli.Max
	if limit <= 0 {
		limit = cfg.MaxEmails
	}
	emails, err := mailbox.Fetch(ctx, inbox.Filter{Query: cli.Query, UnreadOnly: cli.Unread, Labels: cli.Labels}, limit)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}

	scored := triage.SortByPriority(triage.NewScorer(cfg.Self, nil, logger).ScoreInbox(ctx, *criteria, emails))
	printScored(scored, logger)

	if cli.JSON != "" {
		if err := runtime.WriteJSON(scored, cli.JSON); err != nil {
			return fmt.Errorf("write json: %w", err)
		}
	}
	return nil
}

func printScored(scored []triage.Scored, logger *slog.Logger) {
	tbl := table.New("Priority", "Reply", "Type", "From", "Subject").WithWriter(os.Stdout)
	for _, s := range scored {
		reply := ""
		if s.NeedsReply {
			reply = "yes"
		}
		tbl.AddRow(s.Priority, reply, s.Type, s.Email.From, s.Email.Subject)
	}
	tbl.Print()

	counts := triage.Counts(scored)
	logger.Info("triage complete",
		"total", len(scored),
		"high", counts[triage.High],
		"medium", counts[triage.Medium],
		"low", counts[triage.Low],
	)
}
