package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS filings (
	id            TEXT PRIMARY KEY,
	uid           INTEGER NOT NULL,
	folder        TEXT NOT NULL,
	message_id    TEXT NOT NULL DEFAULT '',
	vendor        TEXT NOT NULL DEFAULT '',
	date          TEXT NOT NULL DEFAULT '',
	currency      TEXT NOT NULL DEFAULT '',
	amount        TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL,
	archived_path TEXT NOT NULL,
	filed_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_filings_message_id ON filings(message_id);
CREATE INDEX IF NOT EXISTS idx_filings_filed_at ON filings(filed_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
