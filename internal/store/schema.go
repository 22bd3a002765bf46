// Package store provides the SQLite-backed notes store: the relational
// schema, cross-store attachment of the scripture corpus, and the row
// operations every consistency pass builds on.
package store

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS file (
	id                INTEGER PRIMARY KEY,
	path              TEXT NOT NULL UNIQUE,
	original_filename TEXT,
	content_hash      TEXT,
	width             INTEGER,
	height            INTEGER,
	format            TEXT CHECK (format IN ('png', 'jpeg', 'tiff', 'webp')),
	captured_at       DATETIME,
	ocr_text_path     TEXT,
	ocr_json_path     TEXT,
	fully_processed   INTEGER NOT NULL DEFAULT 0 CHECK (fully_processed IN (0, 1)),
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_file_fully_processed ON file(fully_processed);

CREATE TABLE IF NOT EXISTS inputfile (
	id                INTEGER PRIMARY KEY,
	path              TEXT NOT NULL UNIQUE,
	original_filename TEXT,
	size_bytes        INTEGER,
	media_type        TEXT,
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS note (
	id                     INTEGER PRIMARY KEY,
	title                  TEXT,
	author                 TEXT,
	notebook               TEXT,
	status                 TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'archived')),
	content                TEXT NOT NULL DEFAULT '',
	date_created           TEXT,
	date_created_precision TEXT CHECK (date_created_precision IN ('day', 'month', 'year', 'unknown')),
	metadata               TEXT NOT NULL DEFAULT '{}',
	prev_note_id           INTEGER REFERENCES note(id) ON DELETE SET NULL,
	next_note_id           INTEGER UNIQUE REFERENCES note(id) ON DELETE SET NULL,
	created_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	CHECK (prev_note_id IS NULL OR prev_note_id <> id),
	CHECK (next_note_id IS NULL OR next_note_id <> id)
);

CREATE TABLE IF NOT EXISTS note_file (
	note_id      INTEGER NOT NULL REFERENCES note(id) ON DELETE CASCADE,
	file_id      INTEGER NOT NULL REFERENCES file(id) ON DELETE CASCADE,
	page_order   INTEGER NOT NULL,
	prev_file_id INTEGER REFERENCES file(id) ON DELETE SET NULL,
	next_file_id INTEGER REFERENCES file(id) ON DELETE SET NULL,
	PRIMARY KEY (note_id, file_id),
	CHECK (prev_file_id IS NULL OR prev_file_id <> file_id),
	CHECK (next_file_id IS NULL OR next_file_id <> file_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_note_file_order ON note_file(note_id, page_order);
CREATE UNIQUE INDEX IF NOT EXISTS idx_note_file_next ON note_file(note_id, next_file_id);
CREATE INDEX IF NOT EXISTS idx_note_file_prev ON note_file(note_id, prev_file_id);

CREATE TABLE IF NOT EXISTS transcribed_page (
	id                      INTEGER PRIMARY KEY,
	note_id                 INTEGER NOT NULL REFERENCES note(id) ON DELETE CASCADE,
	file_id                 INTEGER REFERENCES file(id) ON DELETE SET NULL,
	page_order              INTEGER NOT NULL,
	text                    TEXT NOT NULL DEFAULT '',
	json_path               TEXT,
	inferred_date           TEXT,
	inferred_date_precision TEXT CHECK (inferred_date_precision IN ('day', 'month', 'year', 'unknown')),
	prev_id                 INTEGER REFERENCES transcribed_page(id) ON DELETE SET NULL,
	next_id                 INTEGER UNIQUE REFERENCES transcribed_page(id) ON DELETE SET NULL,
	created_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	CHECK (prev_id IS NULL OR prev_id <> id),
	CHECK (next_id IS NULL OR next_id <> id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_transcribed_page_order ON transcribed_page(note_id, page_order);
CREATE INDEX IF NOT EXISTS idx_transcribed_page_file ON transcribed_page(file_id);

CREATE TABLE IF NOT EXISTS passage (
	id             INTEGER PRIMARY KEY,
	start_verse_id INTEGER NOT NULL,
	end_verse_id   INTEGER NOT NULL,
	citation       TEXT,
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (start_verse_id, end_verse_id),
	CHECK (start_verse_id <= end_verse_id)
);

CREATE TABLE IF NOT EXISTS note_passage (
	note_id    INTEGER NOT NULL REFERENCES note(id) ON DELETE CASCADE,
	passage_id INTEGER NOT NULL REFERENCES passage(id) ON DELETE CASCADE,
	relation   TEXT NOT NULL DEFAULT 'mentions' CHECK (relation IN ('mentions', 'quotes', 'comments', 'alludes')),
	PRIMARY KEY (note_id, passage_id, relation)
);

CREATE TABLE IF NOT EXISTS tag (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS note_tag (
	note_id INTEGER NOT NULL REFERENCES note(id) ON DELETE CASCADE,
	tag_id  INTEGER NOT NULL REFERENCES tag(id) ON DELETE CASCADE,
	PRIMARY KEY (note_id, tag_id)
);

CREATE TABLE IF NOT EXISTS note_link (
	from_note_id INTEGER NOT NULL REFERENCES note(id) ON DELETE CASCADE,
	to_note_id   INTEGER NOT NULL REFERENCES note(id) ON DELETE CASCADE,
	type         TEXT NOT NULL CHECK (type IN ('reference', 'followup', 'duplicate', 'see-also')),
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (from_note_id, to_note_id, type),
	CHECK (from_note_id <> to_note_id)
);

CREATE TABLE IF NOT EXISTS embedding_model (
	id         INTEGER PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	dimensions INTEGER NOT NULL CHECK (dimensions > 0),
	metric     TEXT NOT NULL DEFAULT 'cosine' CHECK (metric IN ('cosine', 'l2', 'dot'))
);

CREATE TABLE IF NOT EXISTS note_embedding (
	note_id    INTEGER NOT NULL REFERENCES note(id) ON DELETE CASCADE,
	model_id   INTEGER NOT NULL REFERENCES embedding_model(id) ON DELETE CASCADE,
	vector     BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (note_id, model_id)
);

CREATE TABLE IF NOT EXISTS edit_date (
	id        INTEGER PRIMARY KEY,
	edit_date TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS note_edit_date (
	note_id      INTEGER NOT NULL REFERENCES note(id) ON DELETE CASCADE,
	edit_date_id INTEGER NOT NULL REFERENCES edit_date(id) ON DELETE CASCADE,
	PRIMARY KEY (note_id, edit_date_id)
);
`
