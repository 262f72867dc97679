package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/rodaine/table"

	"github.com/joshsymonds/inboxpilot/internal/config"
	"github.com/joshsymonds/inboxpilot/internal/gmailctl"
	"github.com/joshsymonds/inboxpilot/internal/rules"
	"github.com/joshsymonds/inboxpilot/internal/runtime"
	"github.com/joshsymonds/inboxpilot/internal/store"
	"github.com/joshsymonds/inboxpilot/internal/triage"
)

// app carries the dependencies every subcommand's Run receives.
type app struct {
	ctx    context.Context
	store  store.Store
	logger *slog.Logger
	out    io.Writer
	in     io.Reader

	gmailctlDir string
}

type rulesCLI struct {
	List     listCmd     `cmd:"" help:"List stored rules in evaluation order."`
	Show     showCmd     `cmd:"" help:"Print one rule as JSON."`
	Add      addCmd      `cmd:"" help:"Add a rule from a JSON5 file (- reads stdin)."`
	Delete   deleteCmd   `cmd:"" help:"Delete a rule."`
	Enable   enableCmd   `cmd:"" help:"Enable a rule."`
	Disable  disableCmd  `cmd:"" help:"Disable a rule."`
	Import   importCmd   `cmd:"" help:"Import gmailctl filters as rules."`
	Criteria criteriaCmd `cmd:"" help:"Manage prioritization criteria."`
}

func main() {
	var cli rulesCLI
	kctx := kong.Parse(&cli,
		kong.Name("inboxpilot-rules"),
		kong.Description("Manage automation rules and prioritization criteria"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	if err := run(kctx); err != nil {
		runtime.DefaultLogger().Error("inboxpilot-rules failed", "error", err)
		os.Exit(runtime.ExitCode(err))
	}
}

func run(kctx *kong.Context) error {
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

	return kctx.Run(&app{
		ctx:         ctx,
		store:       st,
		logger:      logger,
		out:         os.Stdout,
		in:          os.Stdin,
		gmailctlDir: cfg.GmailctlDir,
	})
}

type listCmd struct {
	JSON bool `help:"Print rules as JSON."`
}

func (c *listCmd) Run(a *app) error {
	rs, err := a.store.LoadRules(a.ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	if c.JSON {
		return a.printJSON(rs)
	}
	if len(rs) == 0 {
		_, err := fmt.Fprintln(a.out, "no rules")
		return err
	}
	tbl := table.New("ID", "Enabled", "Name", "Conditions", "Actions").WithWriter(a.out)
	for _, r := range rs {
		tbl.AddRow(r.ID, r.Enabled, r.Name, r.Describe(), describeActions(r))
	}
	tbl.Print()
	return nil
}

type showCmd struct {
	ID int64 `arg:"" help:"Rule id."`
}

func (c *showCmd) Run(a *app) error {
	r, err := store.FindRule(a.ctx, a.store, c.ID)
	if err != nil {
		return err
	}
	return a.printJSON(r)
}

type addCmd struct {
	File    string `arg:"" help:"JSON5 rule definition, or - for stdin."`
	Disable bool   `help:"Store the rule disabled."`
}

func (c *addCmd) Run(a *app) error {
	data, err := a.read(c.File)
	if err != nil {
		return err
	}
	var r rules.Rule
	// Rules default to enabled unless the file says otherwise.
	r.Enabled = true
	if err := store.DecodeJSON5(data, &r); err != nil {
		return fmt.Errorf("rule %s: %w", c.File, err)
	}
	if c.Disable {
		r.Enabled = false
	}
	saved, err := store.AddRule(a.ctx, a.store, r)
	if err != nil {
		return err
	}
	a.logger.Info("rule added", "id", saved.ID, "name", saved.Name, "enabled", saved.Enabled)
	_, err = fmt.Fprintf(a.out, "added rule #%d %s\n", saved.ID, saved.Name)
	return err
}

type deleteCmd struct {
	ID int64 `arg:"" help:"Rule id."`
}

func (c *deleteCmd) Run(a *app) error {
	if err := store.DeleteRule(a.ctx, a.store, c.ID); err != nil {
		return err
	}
	a.logger.Info("rule deleted", "id", c.ID)
	return nil
}

type enableCmd struct {
	ID int64 `arg:"" help:"Rule id."`
}

func (c *enableCmd) Run(a *app) error {
	return store.SetRuleEnabled(a.ctx, a.store, c.ID, true)
}

type disableCmd struct {
	ID int64 `arg:"" help:"Rule id."`
}

func (c *disableCmd) Run(a *app) error {
	return store.SetRuleEnabled(a.ctx, a.store, c.ID, false)
}

type importCmd struct {
	File           string `help:"Read a saved gmailctl JSON export instead of running gmailctl." type:"existingfile"`
	GmailctlConfig string `help:"gmailctl config directory (defaults to INBOXPILOT_GMAILCTL_DIR)."`
	GmailctlBinary string `help:"gmailctl binary to invoke." default:"gmailctl"`
	Enable         bool   `help:"Store imported rules enabled. They are disabled by default so a dry run can be reviewed first."`
}

func (c *importCmd) Run(a *app) error {
	export, err := c.export(a)
	if err != nil {
		return err
	}
	converted, skipped := gmailctl.ToRules(export, c.Enable)
	for _, s := range skipped {
		a.logger.Warn("gmailctl filter skipped", "filter", s.Filter, "reason", s.Reason)
	}
	for _, r := range converted {
		saved, err := store.AddRule(a.ctx, a.store, r)
		if err != nil {
			return fmt.Errorf("import %q: %w", r.Name, err)
		}
		a.logger.Debug("rule imported", "id", saved.ID, "name", saved.Name)
	}
	_, err = fmt.Fprintf(a.out, "imported %d rules, skipped %d filters\n", len(converted), len(skipped))
	return err
}

func (c *importCmd) export(a *app) (gmailctl.Export, error) {
	if c.File != "" {
		data, err := a.read(c.File)
		if err != nil {
			return gmailctl.Export{}, err
		}
		return gmailctl.ParseExport(data)
	}
	dir := c.GmailctlConfig
	if dir == "" {
		dir = a.gmailctlDir
	}
	return gmailctl.Runner{Binary: c.GmailctlBinary, ConfigDir: dir}.ExportFilters(a.ctx)
}

type criteriaCmd struct {
	Show  criteriaShowCmd  `cmd:"" help:"Print the stored criteria."`
	Set   criteriaSetCmd   `cmd:"" help:"Replace the criteria from a JSON5 file (- reads stdin)."`
	Reset criteriaResetCmd `cmd:"" help:"Remove the stored criteria."`
}

type criteriaShowCmd struct{}

func (c *criteriaShowCmd) Run(a *app) error {
	crit, err := a.store.LoadCriteria(a.ctx)
	if err != nil {
		return fmt.Errorf("load criteria: %w", err)
	}
	if crit == nil {
		_, err := fmt.Fprintln(a.out, "no criteria configured")
		return err
	}
	return a.printJSON(crit)
}

type criteriaSetCmd struct {
	File string `arg:"" help:"JSON5 criteria document, or - for stdin."`
}

func (c *criteriaSetCmd) Run(a *app) error {
	data, err := a.read(c.File)
	if err != nil {
		return err
	}
	var crit triage.Criteria
	if err := store.DecodeJSON5(data, &crit); err != nil {
		return fmt.Errorf("criteria %s: %w", c.File, err)
	}
	if err := a.store.SaveCriteria(a.ctx, crit); err != nil {
		return err
	}
	a.logger.Info("criteria saved",
		"vip_senders", len(crit.VIPSenders),
		"vip_domains", len(crit.VIPDomains),
		"keywords", len(crit.HighPriorityKeywords),
	)
	return nil
}

type criteriaResetCmd struct{}

func (c *criteriaResetCmd) Run(a *app) error {
	return a.store.ResetCriteria(a.ctx)
}

func (a *app) read(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(a.in)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func describeActions(r rules.Rule) string {
	parts := make([]string, 0, len(r.Actions))
	for _, act := range r.Actions {
		parts = append(parts, act.String())
	}
	return strings.Join(parts, ", ")
}
