package store

type migration struct {
	version int
	sql     string
}

// migrations run in order; versions are sequential from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS prioritization_criteria (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	criteria_json TEXT NOT NULL,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rules (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL,
	natural_language TEXT NOT NULL DEFAULT '',
	conditions_json  TEXT NOT NULL DEFAULT '[]',
	actions_json     TEXT NOT NULL DEFAULT '[]',
	enabled          INTEGER NOT NULL DEFAULT 1,
	position         INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rule_sequence (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	last_id INTEGER NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
