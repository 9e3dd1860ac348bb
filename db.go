package main

import (
	"database/sql"
	"log"

	_ "github.com/lib/pq" // PostgreSQL driver
)

func openDB(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	log.Println("Database connection established successfully")
	return db, nil
}

// ensureSchema creates the tables on first boot so a fresh database is
// usable without running migrations by hand.
func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			full_name TEXT,
			age INT,
			gender TEXT,
			location TEXT,
			bio TEXT,
			profile_picture TEXT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			trait_scores JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS text_analysis (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id),
			text_content TEXT NOT NULL,
			trait_scores JSONB NOT NULL DEFAULT '{}',
			suggestions JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS voice_analysis (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id),
			audio_key TEXT NOT NULL,
			transcription TEXT,
			emotional_fluency JSONB NOT NULL DEFAULT '{}',
			tone_analysis JSONB NOT NULL DEFAULT '{}',
			overall_score DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS compatibility_matches (
			id SERIAL PRIMARY KEY,
			user_id_1 INT NOT NULL REFERENCES users(id),
			user_id_2 INT NOT NULL REFERENCES users(id),
			compatibility_score DOUBLE PRECISION NOT NULL,
			analysis_summary TEXT,
			matching_factors JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id SERIAL PRIMARY KEY,
			user_id_1 INT NOT NULL REFERENCES users(id),
			user_id_2 INT NOT NULL REFERENCES users(id),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ended_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id SERIAL PRIMARY KEY,
			session_id INT NOT NULL REFERENCES chat_sessions(id),
			sender_id INT NOT NULL REFERENCES users(id),
			message_content TEXT NOT NULL,
			moderation_result JSONB NOT NULL DEFAULT '{}',
			is_flagged BOOLEAN NOT NULL DEFAULT FALSE,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS journal_entries (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id),
			content TEXT NOT NULL,
			mood TEXT NOT NULL DEFAULT 'neutral',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id),
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			data JSONB NOT NULL DEFAULT '{}',
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			read_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_text_analysis_user_created
			ON text_analysis (user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_participants
			ON compatibility_matches (user_id_1, user_id_2)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
