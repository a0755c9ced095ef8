// Package sqlite persists the triage audit trail: one row per labeled
// message plus a record of messages that vanished before fetch.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store is the triage audit database
type Store struct {
	DB *sql.DB
}

// TriageRecord is one scored-and-labeled message
type TriageRecord struct {
	EventID   string  `json:"event_id"`
	TS        int64   `json:"ts"`
	Provider  string  `json:"provider"`
	MessageID string  `json:"message_id"`
	ThreadID  string  `json:"thread_id"`
	Subject   string  `json:"subject"`
	Sender    string  `json:"sender"`
	Score     float64 `json:"score"`
	Tier      string  `json:"tier"`
	Label     string  `json:"label"`
}

// MissingRecord notes a message that history referenced but the
// provider could no longer serve
type MissingRecord struct {
	TS        int64    `json:"ts"`
	Provider  string   `json:"provider"`
	MessageID string   `json:"message_id"`
	ThreadID  string   `json:"thread_id"`
	Labels    []string `json:"labels"`
}

// Open opens or creates the audit database
func Open(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Open database with optimized settings
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	// Apply schema
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{DB: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.DB.Close()
}

// RecordTriage appends one triage decision. Duplicate provider+message
// pairs are ignored so redelivered notifications stay idempotent.
func (s *Store) RecordTriage(ctx context.Context, rec TriageRecord) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT OR IGNORE INTO triage_events
		(event_id, ts, provider, message_id, thread_id, subject, sender, score, tier, label)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.EventID, rec.TS, rec.Provider, rec.MessageID, rec.ThreadID,
		rec.Subject, rec.Sender, rec.Score, rec.Tier, rec.Label)

	if err != nil {
		return fmt.Errorf("failed to insert triage event: %w", err)
	}
	return nil
}

// RecordMissing notes a message that could not be fetched
func (s *Store) RecordMissing(ctx context.Context, rec MissingRecord) error {
	labelsJSON, _ := json.Marshal(rec.Labels)

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO missing_messages (ts, provider, message_id, thread_id, labels_json)
		VALUES (?, ?, ?, ?, ?)
	`, rec.TS, rec.Provider, rec.MessageID, rec.ThreadID, string(labelsJSON))

	if err != nil {
		return fmt.Errorf("failed to insert missing message: %w", err)
	}
	return nil
}

// MissingCount reports how many missing messages are on record
func (s *Store) MissingCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM missing_messages`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count missing messages: %w", err)
	}
	return n, nil
}

// RecentTriages returns the newest triage decisions, optionally
// filtered by tier
func (s *Store) RecentTriages(ctx context.Context, tier string, limit int) ([]TriageRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT event_id, ts, provider, message_id, thread_id, subject, sender, score, tier, label
		FROM triage_events
		WHERE (? = '' OR tier = ?)
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, tier, tier, limit)

	if err != nil {
		return nil, fmt.Errorf("failed to query triage events: %w", err)
	}
	defer rows.Close()

	var records []TriageRecord
	for rows.Next() {
		var rec TriageRecord
		if err := rows.Scan(&rec.EventID, &rec.TS, &rec.Provider, &rec.MessageID, &rec.ThreadID,
			&rec.Subject, &rec.Sender, &rec.Score, &rec.Tier, &rec.Label); err != nil {
			return nil, fmt.Errorf("failed to scan triage row: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
