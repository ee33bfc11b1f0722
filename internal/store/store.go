package store

import (
	"context"
	"fmt"
	"time"

	"github.com/andresmejia3/facemood/internal/types"
	"github.com/jackc/pgx/v5"
)

// Store manages the PostgreSQL connection holding recognition history.
type Store struct {
	conn *pgx.Conn
}

// Recognition is one stored pipeline run.
type Recognition struct {
	ID           int64
	SessionID    string
	ImageDigest  string
	Result       types.Result
	Error        string
	RecognizedAt time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the history table if it doesn't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS recognitions (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			image_digest TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL,
			name TEXT NOT NULL,
			emotion TEXT NOT NULL,
			result_time TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			recognized_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS recognitions_recognized_at_idx ON recognitions (recognized_at DESC);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// SaveRecognition stores one run and returns its row ID.
func (s *Store) SaveRecognition(ctx context.Context, r Recognition) (int64, error) {
	var id int64
	err := s.conn.QueryRow(ctx, `
		INSERT INTO recognitions (session_id, image_digest, status, message, name, emotion, result_time, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, r.SessionID, r.ImageDigest, r.Result.Status, r.Result.Message, r.Result.Name,
		r.Result.Emotion, r.Result.Time, r.Error).Scan(&id)
	return id, err
}

// ListRecognitions returns the most recent runs first. A non-positive limit returns everything.
func (s *Store) ListRecognitions(ctx context.Context, limit int) ([]Recognition, error) {
	query := `
		SELECT id, session_id, image_digest, status, message, name, emotion, result_time, error, recognized_at
		FROM recognitions
		ORDER BY recognized_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recognition
	for rows.Next() {
		var r Recognition
		if err := rows.Scan(&r.ID, &r.SessionID, &r.ImageDigest, &r.Result.Status, &r.Result.Message,
			&r.Result.Name, &r.Result.Emotion, &r.Result.Time, &r.Error, &r.RecognizedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Reset drops the history table to clear the database state.
// The next New recreates it.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `DROP TABLE IF EXISTS recognitions CASCADE;`)
	return err
}
