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

CREATE TABLE IF NOT EXISTS messages (
	id                TEXT PRIMARY KEY,
	uid               INTEGER NOT NULL,
	folder            TEXT NOT NULL,
	message_id_header TEXT NOT NULL DEFAULT '',
	sender            TEXT NOT NULL,
	sender_name       TEXT NOT NULL DEFAULT '',
	subject           TEXT NOT NULL DEFAULT '',
	received_at       DATETIME NOT NULL,
	body_preview      TEXT NOT NULL DEFAULT '',
	has_attachments   INTEGER NOT NULL DEFAULT 0 CHECK(has_attachments IN (0, 1)),
	size_bytes        INTEGER NOT NULL DEFAULT 0,
	status            TEXT NOT NULL DEFAULT 'pending'
		CHECK(status IN ('pending', 'approved', 'kept', 'deleted')),
	deleted_at        DATETIME,
	fetched_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS verdicts (
	message_id            TEXT PRIMARY KEY REFERENCES messages(id) ON DELETE CASCADE,
	label                 TEXT NOT NULL CHECK(label IN ('keep', 'delete', 'archive')),
	confidence_raw        REAL NOT NULL,
	confidence_calibrated REAL NOT NULL,
	source                TEXT NOT NULL CHECK(source IN ('rule', 'pattern', 'oracle')),
	rule_name             TEXT NOT NULL DEFAULT '',
	category              TEXT NOT NULL DEFAULT '',
	reasoning             TEXT NOT NULL DEFAULT '',
	model                 TEXT NOT NULL DEFAULT '',
	created_at            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	id             TEXT PRIMARY KEY,
	message_id     TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	approved_label TEXT NOT NULL CHECK(approved_label IN ('keep', 'delete', 'archive')),
	verdict_label  TEXT NOT NULL,
	verdict_source TEXT NOT NULL,
	confidence_raw REAL NOT NULL,
	is_automatic   INTEGER NOT NULL DEFAULT 0 CHECK(is_automatic IN (0, 1)),
	notes          TEXT NOT NULL DEFAULT '',
	decided_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sender_profiles (
	granularity     TEXT NOT NULL CHECK(granularity IN ('sender', 'domain', 'category')),
	key             TEXT NOT NULL,
	keep_count      INTEGER NOT NULL DEFAULT 0,
	delete_count    INTEGER NOT NULL DEFAULT 0,
	archive_count   INTEGER NOT NULL DEFAULT 0,
	last_decided_at DATETIME,
	PRIMARY KEY (granularity, key)
);

CREATE TABLE IF NOT EXISTS calibration_buckets (
	idx                   INTEGER PRIMARY KEY,
	range_low             REAL NOT NULL,
	range_high            REAL NOT NULL,
	sample_count          INTEGER NOT NULL DEFAULT 0,
	correct_count         INTEGER NOT NULL DEFAULT 0,
	avg_stated_confidence REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender);
CREATE INDEX IF NOT EXISTS idx_messages_folder ON messages(folder);
CREATE INDEX IF NOT EXISTS idx_verdicts_label ON verdicts(label);
CREATE INDEX IF NOT EXISTS idx_decisions_message_id ON decisions(message_id, decided_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS writer_lease (
	id          INTEGER PRIMARY KEY CHECK(id = 1),
	owner       TEXT NOT NULL,
	command     TEXT NOT NULL,
	acquired_at INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL
);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
