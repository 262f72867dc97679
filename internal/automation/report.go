package automation

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rodaine/table"
)

const subjectDisplayLimit = 50

// PrintHuman writes a readable execution report to w.
func PrintHuman(res Result, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	mode := "applied"
	if res.DryRun {
		mode = "dry-run"
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "inboxpilot run %s (%s): %d candidates, %d matched\n",
		res.RunID, mode, res.Candidates, res.Matched)
	if _, err := io.WriteString(w, builder.String()); err != nil {
		return fmt.Errorf("write human report: %w", err)
	}

	for _, rr := range res.Rules {
		if len(rr.Entries) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "\n#%d %s (%d emails)\n", rr.RuleID, rr.RuleName, len(rr.Entries)); err != nil {
			return fmt.Errorf("write human report: %w", err)
		}
		tbl := table.New("Email", "Subject", "Action", "Outcome").WithWriter(w)
		for _, en := range rr.Entries {
			for _, ao := range en.Actions {
				outcome := string(ao.Outcome)
				if ao.Reason != "" {
					outcome += ": " + ao.Reason
				}
				tbl.AddRow(en.EmailID, truncate(en.Subject, subjectDisplayLimit), ao.Action.String(), outcome)
			}
		}
		tbl.Print()
	}

	builder.Reset()
	fmt.Fprintf(&builder, "\napplied %d, would apply %d, failed %d\n", res.Applied, res.WouldApply, res.Failed)
	for _, cf := range res.Conflicts {
		fmt.Fprintf(&builder, "conflict: %s (%s)\n", strings.Join(cf.Rules, ", "), cf.Description)
	}
	if res.Canceled {
		builder.WriteString("run canceled: remaining actions were not attempted\n")
	}
	if res.AuthRequired {
		builder.WriteString("mailbox rejected credentials: re-authenticate and retry the failed emails\n")
	}
	if _, err := io.WriteString(w, builder.String()); err != nil {
		return fmt.Errorf("write human report: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
