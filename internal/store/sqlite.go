package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joshsymonds/inboxpilot/internal/rules"
	"github.com/joshsymonds/inboxpilot/internal/triage"
)

// SQLite implements Store on a local SQLite database.
type SQLite struct {
	db *sqlx.DB
}

// NewSQLite opens (or creates) the database at path, enables WAL mode and
// runs pending migrations.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// one writer; also keeps :memory: databases on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLite) LoadCriteria(ctx context.Context) (*triage.Criteria, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, "SELECT criteria_json FROM prioritization_criteria WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading criteria: %w", err)
	}
	var c triage.Criteria
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decoding criteria: %w", err)
	}
	return &c, nil
}

func (s *SQLite) SaveCriteria(ctx context.Context, c triage.Criteria) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("save criteria: %w", err)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding criteria: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO prioritization_criteria (id, criteria_json, updated_at)
		VALUES (1, ?, ?)`,
		string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving criteria: %w", err)
	}
	return nil
}

func (s *SQLite) ResetCriteria(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM prioritization_criteria"); err != nil {
		return fmt.Errorf("resetting criteria: %w", err)
	}
	return nil
}

type ruleRow struct {
	ID              int64  `db:"id"`
	Name            string `db:"name"`
	NaturalLanguage string `db:"natural_language"`
	ConditionsJSON  string `db:"conditions_json"`
	ActionsJSON     string `db:"actions_json"`
	Enabled         bool   `db:"enabled"`
}

func (s *SQLite) LoadRules(ctx context.Context) ([]rules.Rule, error) {
	var rows []ruleRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, natural_language, conditions_json, actions_json, enabled
		FROM rules ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	out := make([]rules.Rule, 0, len(rows))
	for _, row := range rows {
		r := rules.Rule{
			ID:              row.ID,
			Name:            row.Name,
			NaturalLanguage: row.NaturalLanguage,
			Enabled:         row.Enabled,
		}
		if err := json.Unmarshal([]byte(row.ConditionsJSON), &r.Conditions); err != nil {
			return nil, fmt.Errorf("decoding conditions for rule %d: %w", row.ID, err)
		}
		if err := json.Unmarshal([]byte(row.ActionsJSON), &r.Actions); err != nil {
			return nil, fmt.Errorf("decoding actions for rule %d: %w", row.ID, err)
		}
		if len(r.Conditions) == 0 {
			r.Conditions = nil
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *SQLite) SaveRules(ctx context.Context, rs []rules.Rule) error {
	if err := validateRules(rs); err != nil {
		return fmt.Errorf("save rules: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM rules"); err != nil {
		return fmt.Errorf("clearing rules: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO rules (id, name, natural_language, conditions_json, actions_json, enabled, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var highest int64
	for i, r := range rs {
		conds := r.Conditions
		if conds == nil {
			conds = []rules.Condition{}
		}
		condJSON, err := json.Marshal(conds)
		if err != nil {
			return fmt.Errorf("encoding conditions for rule %d: %w", r.ID, err)
		}
		actJSON, err := json.Marshal(r.Actions)
		if err != nil {
			return fmt.Errorf("encoding actions for rule %d: %w", r.ID, err)
		}
		_, err = stmt.ExecContext(ctx,
			r.ID, r.Name, r.NaturalLanguage,
			string(condJSON), string(actJSON),
			boolToInt(r.Enabled), i,
		)
		if err != nil {
			return fmt.Errorf("inserting rule %d: %w", r.ID, err)
		}
		highest = max(highest, r.ID)
	}

	if err := bumpSequence(ctx, tx, highest); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) NextRuleID(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	err = tx.GetContext(ctx, &last, `
		SELECT MAX(
			COALESCE((SELECT last_id FROM rule_sequence WHERE id = 1), 0),
			COALESCE((SELECT MAX(id) FROM rules), 0)
		)`)
	if err != nil {
		return 0, fmt.Errorf("reading rule sequence: %w", err)
	}
	next := last + 1
	if err := bumpSequence(ctx, tx, next); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing rule sequence: %w", err)
	}
	return next, nil
}

func bumpSequence(ctx context.Context, tx *sqlx.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO rule_sequence (id, last_id) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_id = MAX(last_id, excluded.last_id)`, id)
	if err != nil {
		return fmt.Errorf("updating rule sequence: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Files)(nil)
	_ Store = (*Memory)(nil)
)
