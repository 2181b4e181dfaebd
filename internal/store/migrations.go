package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create agents",
		SQL: `
			CREATE TABLE agents (
				seq           INTEGER PRIMARY KEY AUTOINCREMENT,
				id            TEXT NOT NULL UNIQUE,
				name          TEXT NOT NULL,
				description   TEXT NOT NULL DEFAULT '',
				model         TEXT NOT NULL,
				system_prompt TEXT NOT NULL DEFAULT '',
				status        TEXT NOT NULL DEFAULT 'idle',
				created_at    TEXT NOT NULL
			);

			CREATE INDEX idx_agents_name ON agents (name, seq);
		`,
	},
}
