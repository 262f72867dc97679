package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
	"github.com/joshsymonds/inboxpilot/internal/rate"
)

// Exit codes shared by the inboxpilot commands.
const (
	ExitGeneral  = 1
	ExitFindings = 2 // lint findings or failed actions
	ExitAuth     = 3 // credentials rejected; re-run gmailctl init
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode picks the exit code for err: ExitError codes win, then auth
// failures, then ExitGeneral.
func ExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		return exitErr.Code
	case inbox.IsAuth(err):
		return ExitAuth
	default:
		return ExitGeneral
	}
}

// NewLimiter returns a token bucket for rps > 0 and an unlimited limiter
// otherwise.
func NewLimiter(rps int) rate.Limiter {
	if rps <= 0 {
		return rate.Unlimited{}
	}
	return rate.NewTokenBucket(rps)
}

// WriteJSON serializes v to a path relative to the working directory.
func WriteJSON(v any, path string) error {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return fmt.Errorf("path must not be empty")
	}
	clean = filepath.Clean(clean)
	if filepath.IsAbs(clean) {
		return fmt.Errorf("output path must be relative, got %s", clean)
	}
	if strings.HasPrefix(clean, "..") {
		return fmt.Errorf("output path %s escapes working directory", clean)
	}
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	abs := filepath.Join(wd, clean)
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("create %s: %w", abs, err)
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if encodeErr := enc.Encode(v); encodeErr != nil {
		return fmt.Errorf("encode report: %w", encodeErr)
	}
	return nil
}
