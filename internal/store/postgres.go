// Package store provides database and cache access
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiv6146/buzzer-bridge/internal/models"
)

// ErrSessionNotFound is returned when a session id has no history row
var ErrSessionNotFound = errors.New("session not found")

const schema = `
CREATE TABLE IF NOT EXISTS buzzer_sessions (
	id              UUID PRIMARY KEY,
	conference_name TEXT NOT NULL,
	panel_call_sid  TEXT NOT NULL,
	winner          TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	resolved_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS buzzer_legs (
	session_id UUID NOT NULL REFERENCES buzzer_sessions(id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	to_number  TEXT NOT NULL,
	call_sid   TEXT,
	status     TEXT NOT NULL,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (session_id, role)
);

CREATE INDEX IF NOT EXISTS idx_buzzer_sessions_created_at ON buzzer_sessions(created_at DESC);
`

// PostgresStore records buzzer session history
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the history tables if they do not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateSession inserts the history row for a new buzzer press
func (s *PostgresStore) CreateSession(ctx context.Context, session *models.SessionLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO buzzer_sessions (id, conference_name, panel_call_sid, created_at)
		VALUES ($1, $2, $3, $4)
	`, session.ID, session.ConferenceName, session.PanelCallSID, session.CreatedAt)
	return err
}

// RecordLeg inserts or replaces the row of one tenant leg
func (s *PostgresStore) RecordLeg(ctx context.Context, leg *models.LegLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO buzzer_legs (session_id, role, to_number, call_sid, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, role) DO UPDATE
		SET call_sid = EXCLUDED.call_sid, status = EXCLUDED.status,
		    error = EXCLUDED.error, updated_at = EXCLUDED.updated_at
	`, leg.SessionID, leg.Role, leg.To, leg.CallSID, leg.Status, leg.Error, leg.CreatedAt, leg.UpdatedAt)
	return err
}

// UpdateLegStatus moves a tenant leg to a new status
func (s *PostgresStore) UpdateLegStatus(ctx context.Context, sessionID string, role models.PartyRole, status models.LegStatus) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE buzzer_legs SET status = $3, updated_at = $4
		WHERE session_id = $1 AND role = $2
	`, sessionID, role, status, time.Now().UTC())
	return err
}

// ResolveSession stores the winning tenant of a session
func (s *PostgresStore) ResolveSession(ctx context.Context, sessionID string, winner models.PartyRole) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE buzzer_sessions SET winner = $2, resolved_at = $3
		WHERE id = $1 AND winner IS NULL
	`, sessionID, winner, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("resolve %s: %w", sessionID, ErrSessionNotFound)
	}
	return nil
}

// ListSessions returns recent sessions with their legs, newest first
func (s *PostgresStore) ListSessions(ctx context.Context, limit int) ([]*models.SessionLog, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conference_name, panel_call_sid, winner, created_at, resolved_at
		FROM buzzer_sessions
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		sessions []*models.SessionLog
		byID     = make(map[string]*models.SessionLog)
		ids      []string
	)
	for rows.Next() {
		var sl models.SessionLog
		if err := rows.Scan(
			&sl.ID, &sl.ConferenceName, &sl.PanelCallSID,
			&sl.Winner, &sl.CreatedAt, &sl.ResolvedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, &sl)
		byID[sl.ID] = &sl
		ids = append(ids, sl.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return sessions, nil
	}

	legRows, err := s.pool.Query(ctx, `
		SELECT session_id, role, to_number, call_sid, status, error, created_at, updated_at
		FROM buzzer_legs
		WHERE session_id = ANY($1::uuid[])
		ORDER BY role ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	legs, err := pgx.CollectRows(legRows, pgx.RowToAddrOfStructByName[models.LegLog])
	if err != nil {
		return nil, err
	}
	for _, leg := range legs {
		if sl, ok := byID[leg.SessionID]; ok {
			sl.Legs = append(sl.Legs, leg)
		}
	}

	return sessions, nil
}
