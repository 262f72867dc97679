package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
	"github.com/joshsymonds/inboxpilot/internal/rate"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, ExitGeneral, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitFindings, ExitCode(fmt.Errorf("lint: %w", &ExitError{Code: ExitFindings, Err: errors.New("dead rules")})))
	auth := &inbox.AuthError{RemoteError: inbox.RemoteError{Op: "list", Status: 401, Err: errors.New("expired")}}
	assert.Equal(t, ExitAuth, ExitCode(fmt.Errorf("fetch: %w", auth)))
}

func TestNewLimiter(t *testing.T) {
	assert.IsType(t, rate.Unlimited{}, NewLimiter(0))
	assert.IsType(t, &rate.TokenBucket{}, NewLimiter(3))
}

func TestWriteJSONRejectsUnsafePaths(t *testing.T) {
	assert.Error(t, WriteJSON(map[string]int{}, ""))
	assert.Error(t, WriteJSON(map[string]int{}, "/tmp/out.json"))
	assert.Error(t, WriteJSON(map[string]int{}, "../out.json"))
}

func TestWriteJSON(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, WriteJSON(map[string]any{"run_id": "run-1", "would_apply": 2}, "result.json"))

	data, err := os.ReadFile("result.json")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.InDelta(t, 2, decoded["would_apply"], 0)

	info, err := os.Stat("result.json")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
