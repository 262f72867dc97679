package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/joshsymonds/inboxpilot/internal/rules"
	"github.com/joshsymonds/inboxpilot/internal/triage"
)

const (
	criteriaFile = "criteria.json"
	rulesFile    = "rules.json"
	seqFile      = "rules.seq"
	lockFile     = ".inboxpilot.lock"

	lockTimeout = 10 * time.Second
	lockRetry   = 100 * time.Millisecond
)

// Files keeps criteria and rules as JSON documents in a directory. Files are
// read leniently (comments, trailing commas) so they can be edited by hand,
// and always written back as canonical JSON.
type Files struct {
	Dir string
}

// NewFiles ensures dir exists and returns a store rooted there.
func NewFiles(dir string) (*Files, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("store directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &Files{Dir: dir}, nil
}

func (f *Files) LoadCriteria(context.Context) (*triage.Criteria, error) {
	var c triage.Criteria
	found, err := f.read(criteriaFile, &c)
	if err != nil || !found {
		return nil, err
	}
	return &c, nil
}

func (f *Files) SaveCriteria(ctx context.Context, c triage.Criteria) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("save criteria: %w", err)
	}
	return f.withLock(ctx, func() error {
		return f.write(criteriaFile, c)
	})
}

func (f *Files) ResetCriteria(ctx context.Context) error {
	return f.withLock(ctx, func() error {
		err := os.Remove(f.path(criteriaFile))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reset criteria: %w", err)
		}
		return nil
	})
}

func (f *Files) LoadRules(context.Context) ([]rules.Rule, error) {
	rs := []rules.Rule{}
	if _, err := f.read(rulesFile, &rs); err != nil {
		return nil, err
	}
	if rs == nil {
		rs = []rules.Rule{}
	}
	return rs, nil
}

func (f *Files) SaveRules(ctx context.Context, rs []rules.Rule) error {
	if err := validateRules(rs); err != nil {
		return fmt.Errorf("save rules: %w", err)
	}
	if rs == nil {
		rs = []rules.Rule{}
	}
	return f.withLock(ctx, func() error {
		// keep the counter ahead of ids written by hand
		last, err := f.readSeq()
		if err != nil {
			return err
		}
		var highest int64
		for _, r := range rs {
			highest = max(highest, r.ID)
		}
		if highest > last {
			if err := f.writeSeq(highest); err != nil {
				return err
			}
		}
		return f.write(rulesFile, rs)
	})
}

func (f *Files) NextRuleID(ctx context.Context) (int64, error) {
	var next int64
	err := f.withLock(ctx, func() error {
		last, err := f.readSeq()
		if err != nil {
			return err
		}
		var existing []rules.Rule
		if _, err := f.read(rulesFile, &existing); err != nil {
			return err
		}
		for _, r := range existing {
			last = max(last, r.ID)
		}
		next = last + 1
		return f.writeSeq(next)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (f *Files) path(name string) string {
	return filepath.Join(f.Dir, name)
}

func (f *Files) withLock(ctx context.Context, fn func() error) error {
	lock := flock.New(f.path(lockFile))
	lctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(lctx, lockRetry)
	if err != nil {
		return fmt.Errorf("acquire store lock: %w", err)
	}
	if !locked {
		return errors.New("acquire store lock: timeout")
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}

// read decodes name into v, reporting false when the file does not exist.
func (f *Files) read(name string, v any) (bool, error) {
	data, err := os.ReadFile(f.path(name)) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return false, nil
	}
	if err := DecodeJSON5(data, v); err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return true, nil
}

// DecodeJSON5 decodes hand-written JSON5 (comments, trailing commas,
// unquoted keys) into v through the regular JSON decoders.
func DecodeJSON5(data []byte, v any) error {
	// json5 yields generic values; re-encoding lets the typed decoders run
	// against canonical JSON.
	var generic any
	if err := json5.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if err := json.Unmarshal(canonical, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func (f *Files) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return f.writeAtomic(name, append(data, '\n'))
}

func (f *Files) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(f.Dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(tmpName, f.path(name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func (f *Files) readSeq() (int64, error) {
	data, err := os.ReadFile(f.path(seqFile)) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", seqFile, err)
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", seqFile, err)
	}
	return n, nil
}

func (f *Files) writeSeq(n int64) error {
	return f.writeAtomic(seqFile, []byte(strconv.FormatInt(n, 10)+"\n"))
}
