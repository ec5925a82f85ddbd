package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database at path. Parent
// directories are created if needed.
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("SQLite store initialized")
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS state_changes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			recorded_at INTEGER NOT NULL,
			icm_agent_id INTEGER NOT NULL,
			previous_state INTEGER NOT NULL,
			agent_state INTEGER NOT NULL,
			reason_code INTEGER NOT NULL,
			state_started_at INTEGER NOT NULL,
			source TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_state_changes_agent
			ON state_changes(agent_id, recorded_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) SaveStateChange(ctx context.Context, c types.StateChange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state_changes
			(agent_id, recorded_at, icm_agent_id, previous_state, agent_state, reason_code, state_started_at, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.AgentID, c.RecordedAt, c.ICMAgentID, c.PreviousState, c.AgentState, c.ReasonCode, c.StateStartedAt, c.Source,
	)
	if err != nil {
		return fmt.Errorf("inserting state change: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAgentHistory(ctx context.Context, agentID string, limit int) ([]types.StateChange, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, recorded_at, icm_agent_id, previous_state, agent_state, reason_code, state_started_at, source
		FROM state_changes
		WHERE agent_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying state changes: %w", err)
	}
	defer rows.Close()

	var changes []types.StateChange
	for rows.Next() {
		var c types.StateChange
		if err := rows.Scan(&c.AgentID, &c.RecordedAt, &c.ICMAgentID, &c.PreviousState,
			&c.AgentState, &c.ReasonCode, &c.StateStartedAt, &c.Source); err != nil {
			return nil, fmt.Errorf("scanning state change: %w", err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state changes: %w", err)
	}
	return changes, nil
}

func (s *SQLiteStore) TruncateAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM state_changes"); err != nil {
		return fmt.Errorf("truncating state changes: %w", err)
	}
	s.logger.Info().Msg("state changes truncated")
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
