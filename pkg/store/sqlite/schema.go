package sqlite

// Places and submissions share the things table so attachments and the
// attribute blob have a single id space, as submitted things do in the API.
const schema = `
CREATE TABLE IF NOT EXISTS owners (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS social_auths (
	owner_id   INTEGER NOT NULL REFERENCES owners(id),
	provider   TEXT NOT NULL,
	extra_data TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_social_auths_owner ON social_auths(owner_id);

CREATE TABLE IF NOT EXISTS datasets (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id     INTEGER NOT NULL REFERENCES owners(id),
	slug         TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	UNIQUE (owner_id, slug)
);

CREATE TABLE IF NOT EXISTS owner_groups (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	dataset_id INTEGER NOT NULL REFERENCES datasets(id),
	name       TEXT NOT NULL,
	UNIQUE (dataset_id, name)
);

CREATE TABLE IF NOT EXISTS group_members (
	group_id INTEGER NOT NULL REFERENCES owner_groups(id),
	owner_id INTEGER NOT NULL REFERENCES owners(id),
	PRIMARY KEY (group_id, owner_id)
);
CREATE INDEX IF NOT EXISTS idx_group_members_owner ON group_members(owner_id);

CREATE TABLE IF NOT EXISTS api_keys (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	dataset_id INTEGER NOT NULL REFERENCES datasets(id),
	key        TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS things (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	dataset_id   INTEGER NOT NULL REFERENCES datasets(id),
	submitter_id INTEGER REFERENCES owners(id),
	visible      INTEGER NOT NULL DEFAULT 1,
	data         TEXT NOT NULL DEFAULT '{}',
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS places (
	id       INTEGER PRIMARY KEY REFERENCES things(id),
	geometry TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS submission_sets (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	place_id INTEGER NOT NULL REFERENCES places(id),
	name     TEXT NOT NULL,
	UNIQUE (place_id, name)
);

CREATE TABLE IF NOT EXISTS submissions (
	id     INTEGER PRIMARY KEY REFERENCES things(id),
	set_id INTEGER NOT NULL REFERENCES submission_sets(id)
);
CREATE INDEX IF NOT EXISTS idx_submissions_set ON submissions(set_id);

CREATE TABLE IF NOT EXISTS attachments (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	thing_id   INTEGER NOT NULL REFERENCES things(id),
	name       TEXT NOT NULL DEFAULT '',
	file       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attachments_thing ON attachments(thing_id);

CREATE TABLE IF NOT EXISTS actions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at    INTEGER NOT NULL,
	place_id      INTEGER REFERENCES places(id),
	submission_id INTEGER REFERENCES submissions(id)
);
`
