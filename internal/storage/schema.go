/**
 * Database Schema for the Figure Processing Worker
 *
 * The worker owns schema creation: tables are created idempotently at
 * startup so a fresh PostgreSQL instance works without migration tooling.
 */

package storage

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id SERIAL PRIMARY KEY,
	username TEXT UNIQUE,
	g_id TEXT UNIQUE,
	date_first_interacted TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	active_description_id INTEGER
);

CREATE TABLE IF NOT EXISTS paper (
	id SERIAL PRIMARY KEY,
	pdf_file BYTEA,
	filename TEXT,
	title TEXT,
	authors TEXT,
	date_uploaded TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	user_id INTEGER REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_paper_user_id ON paper(user_id);

CREATE TABLE IF NOT EXISTS figure (
	id SERIAL PRIMARY KEY,
	base64_encoded TEXT,
	filename TEXT,
	dimensions TEXT,
	ocr_text TEXT,
	figure_type TEXT,
	caption TEXT,
	mentions_paragraphs TEXT,
	data_table TEXT,
	study_session BOOLEAN NOT NULL DEFAULT FALSE,
	condition TEXT NOT NULL DEFAULT 'full',
	user_id INTEGER REFERENCES users(id),
	paper_id INTEGER REFERENCES paper(id)
);
CREATE INDEX IF NOT EXISTS idx_figure_user_id ON figure(user_id);
CREATE INDEX IF NOT EXISTS idx_figure_paper_id ON figure(paper_id);

CREATE TABLE IF NOT EXISTS description (
	id SERIAL PRIMARY KEY,
	current_string TEXT,
	current_html TEXT,
	history JSONB,
	summarized_version TEXT,
	study_session BOOLEAN NOT NULL DEFAULT FALSE,
	condition TEXT NOT NULL DEFAULT 'full',
	user_id INTEGER REFERENCES users(id),
	figure_id INTEGER UNIQUE REFERENCES figure(id),
	paper_id INTEGER REFERENCES paper(id)
);
CREATE INDEX IF NOT EXISTS idx_description_user_id ON description(user_id);
CREATE INDEX IF NOT EXISTS idx_description_paper_id ON description(paper_id);

CREATE TABLE IF NOT EXISTS settings (
	id SERIAL PRIMARY KEY,
	current_settings JSONB,
	last_changed TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	history JSONB,
	study_session BOOLEAN NOT NULL DEFAULT FALSE,
	user_id INTEGER REFERENCES users(id),
	figure_id INTEGER REFERENCES figure(id)
);

CREATE TABLE IF NOT EXISTS suggestions (
	id SERIAL PRIMARY KEY,
	content JSONB,
	suggestion_type TEXT,
	model TEXT,
	text_context TEXT,
	study_session BOOLEAN NOT NULL DEFAULT FALSE,
	condition TEXT NOT NULL DEFAULT 'full',
	user_id INTEGER REFERENCES users(id),
	description_id INTEGER REFERENCES description(id)
);

CREATE TABLE IF NOT EXISTS event (
	id SERIAL PRIMARY KEY,
	user_id INTEGER REFERENCES users(id),
	figure_id INTEGER REFERENCES figure(id),
	description_id INTEGER REFERENCES description(id),
	condition TEXT NOT NULL DEFAULT 'full',
	study_session BOOLEAN NOT NULL DEFAULT FALSE,
	event_type TEXT,
	event_data JSONB,
	event_time TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_event_user_id ON event(user_id);
CREATE INDEX IF NOT EXISTS idx_event_figure_id ON event(figure_id);

CREATE TABLE IF NOT EXISTS generated_description (
	id SERIAL PRIMARY KEY,
	description TEXT,
	model TEXT,
	figure_id INTEGER REFERENCES figure(id)
);
CREATE INDEX IF NOT EXISTS idx_generated_description_figure_id ON generated_description(figure_id);
`

// InitSchema creates all tables and indexes if they do not exist
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
