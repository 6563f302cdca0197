package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	vessel TEXT NOT NULL DEFAULT '',
	material TEXT NOT NULL DEFAULT '',
	manifest TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'ready',
	completed_lines TEXT NOT NULL DEFAULT '[]',
	completed_at TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

CREATE TABLE IF NOT EXISTS activities (
	job_id INTEGER NOT NULL REFERENCES jobs(id),
	line_id TEXT NOT NULL,
	source_tank TEXT NOT NULL,
	dest_type TEXT NOT NULL,
	dest_id TEXT NOT NULL,
	dest_unit TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	pauses TEXT NOT NULL DEFAULT '[]',
	paused_ms INTEGER NOT NULL DEFAULT 0,
	revision INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (job_id, line_id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_activities_tank ON activities(job_id, source_tank);

CREATE TABLE IF NOT EXISTS stock (
	group_key TEXT NOT NULL,
	dest_id TEXT NOT NULL,
	quantity REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'aktif',
	capacity REAL NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (group_key, dest_id)
);

CREATE TABLE IF NOT EXISTS stock_credits (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	credit_key TEXT NOT NULL UNIQUE,
	ref TEXT NOT NULL,
	job_id INTEGER NOT NULL,
	line_id TEXT NOT NULL,
	group_key TEXT NOT NULL,
	dest_id TEXT NOT NULL,
	quantity REAL NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS corrections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	correction_type TEXT NOT NULL,
	group_key TEXT NOT NULL,
	dest_id TEXT NOT NULL,
	quantity REAL NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	actor TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	action TEXT NOT NULL,
	old_value TEXT NOT NULL DEFAULT '',
	new_value TEXT NOT NULL DEFAULT '',
	actor TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	topic TEXT NOT NULL,
	payload BLOB NOT NULL,
	msg_type TEXT NOT NULL,
	msg_key TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	sent_at TEXT
);

CREATE TABLE IF NOT EXISTS operators (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'operator',
	created_at TEXT NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS jobs (
	id BIGSERIAL PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	vessel TEXT NOT NULL DEFAULT '',
	material TEXT NOT NULL DEFAULT '',
	manifest TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'ready',
	completed_lines TEXT NOT NULL DEFAULT '[]',
	completed_at TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

CREATE TABLE IF NOT EXISTS activities (
	job_id BIGINT NOT NULL REFERENCES jobs(id),
	line_id TEXT NOT NULL,
	source_tank TEXT NOT NULL,
	dest_type TEXT NOT NULL,
	dest_id TEXT NOT NULL,
	dest_unit TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	pauses TEXT NOT NULL DEFAULT '[]',
	paused_ms BIGINT NOT NULL DEFAULT 0,
	revision BIGINT NOT NULL DEFAULT 1,
	PRIMARY KEY (job_id, line_id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_activities_tank ON activities(job_id, source_tank);

CREATE TABLE IF NOT EXISTS stock (
	group_key TEXT NOT NULL,
	dest_id TEXT NOT NULL,
	quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'aktif',
	capacity DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (group_key, dest_id)
);

CREATE TABLE IF NOT EXISTS stock_credits (
	id BIGSERIAL PRIMARY KEY,
	credit_key TEXT NOT NULL UNIQUE,
	ref TEXT NOT NULL,
	job_id BIGINT NOT NULL,
	line_id TEXT NOT NULL,
	group_key TEXT NOT NULL,
	dest_id TEXT NOT NULL,
	quantity DOUBLE PRECISION NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS corrections (
	id BIGSERIAL PRIMARY KEY,
	correction_type TEXT NOT NULL,
	group_key TEXT NOT NULL,
	dest_id TEXT NOT NULL,
	quantity DOUBLE PRECISION NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	actor TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id BIGSERIAL PRIMARY KEY,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	action TEXT NOT NULL,
	old_value TEXT NOT NULL DEFAULT '',
	new_value TEXT NOT NULL DEFAULT '',
	actor TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox (
	id BIGSERIAL PRIMARY KEY,
	topic TEXT NOT NULL,
	payload BYTEA NOT NULL,
	msg_type TEXT NOT NULL,
	msg_key TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	sent_at TEXT
);

CREATE TABLE IF NOT EXISTS operators (
	id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'operator',
	created_at TEXT NOT NULL
);
`
