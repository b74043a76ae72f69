// Package store provides optional durable archival of completed builds,
// beyond the in-memory history each orchestrator.ProjectState already
// keeps for its own process lifetime.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/shipyardci/shipyard/internal/config"
	"github.com/shipyardci/shipyard/internal/orchestrator"
)

// Store archives finished builds and replays them back on startup.
type Store interface {
	// Record persists a finished build's result.
	Record(ctx context.Context, result orchestrator.BuildResult) error

	// Load returns a project's archived history, oldest first.
	Load(ctx context.Context, projectName string) ([]orchestrator.BuildResult, error)

	// DeleteOlderThan removes archived results completed before cutoff,
	// returning the number of rows removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases any underlying resources.
	Close() error
}

// Open returns the Store selected by cfg.Backend. An empty or "memory"
// backend returns a noopStore: history then lives only in each
// ProjectState for the life of the process, per spec default.
func Open(cfg config.HistoryConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return noopStore{}, nil
	case "postgres":
		return openPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unknown history backend %q", cfg.Backend)
	}
}

// noopStore discards Record calls and never has anything to Load. It
// exists so callers can treat the in-memory default uniformly with a
// real backend instead of branching on whether a Store was configured.
type noopStore struct{}

func (noopStore) Record(ctx context.Context, result orchestrator.BuildResult) error { return nil }

func (noopStore) Load(ctx context.Context, projectName string) ([]orchestrator.BuildResult, error) {
	return nil, nil
}

func (noopStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (noopStore) Close() error { return nil }

// postgresStore archives build results to a Postgres table via the pgx
// stdlib driver, using plain database/sql the way the teacher's
// repository layer does.
type postgresStore struct {
	db *sql.DB
}

func openPostgres(dsn string) (*postgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &postgresStore{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS shipyard.build_history (
			id               UUID PRIMARY KEY,
			project_name     TEXT NOT NULL,
			unique_id        TEXT NOT NULL,
			status           TEXT NOT NULL,
			payload          JSONB,
			logs             JSONB,
			socket_token     TEXT,
			started_at       TIMESTAMPTZ NOT NULL,
			completed_at     TIMESTAMPTZ NOT NULL,
			duration_seconds DOUBLE PRECISION NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

func (s *postgresStore) Record(ctx context.Context, result orchestrator.BuildResult) error {
	payloadJSON, err := json.Marshal(result.Payload)
	if err != nil {
		return fmt.Errorf("store: marshal payload: %w", err)
	}
	logsJSON, err := json.Marshal(result.Logs)
	if err != nil {
		return fmt.Errorf("store: marshal logs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shipyard.build_history
			(id, project_name, unique_id, status, payload, logs, socket_token, started_at, completed_at, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`,
		result.ID,
		result.ProjectName,
		result.UniqueID,
		string(result.Status),
		payloadJSON,
		logsJSON,
		result.SocketToken,
		result.StartedAt,
		result.CompletedAt,
		result.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("store: record build result: %w", err)
	}
	return nil
}

func (s *postgresStore) Load(ctx context.Context, projectName string) ([]orchestrator.BuildResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_name, unique_id, status, payload, logs, socket_token, started_at, completed_at, duration_seconds
		FROM shipyard.build_history
		WHERE project_name = $1
		ORDER BY completed_at ASC
	`, projectName)
	if err != nil {
		return nil, fmt.Errorf("store: load history: %w", err)
	}
	defer rows.Close()

	var results []orchestrator.BuildResult
	for rows.Next() {
		var r orchestrator.BuildResult
		var status string
		var payloadJSON, logsJSON []byte

		if err := rows.Scan(
			&r.ID,
			&r.ProjectName,
			&r.UniqueID,
			&status,
			&payloadJSON,
			&logsJSON,
			&r.SocketToken,
			&r.StartedAt,
			&r.CompletedAt,
			&r.DurationSeconds,
		); err != nil {
			return nil, fmt.Errorf("store: scan history row: %w", err)
		}
		r.Status = orchestrator.Status(status)

		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &r.Payload); err != nil {
				return nil, fmt.Errorf("store: unmarshal payload: %w", err)
			}
		}
		if len(logsJSON) > 0 {
			if err := json.Unmarshal(logsJSON, &r.Logs); err != nil {
				return nil, fmt.Errorf("store: unmarshal logs: %w", err)
			}
		}

		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate history: %w", err)
	}
	return results, nil
}

func (s *postgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM shipyard.build_history WHERE completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: delete old history: %w", err)
	}
	return result.RowsAffected()
}

func (s *postgresStore) Close() error {
	return s.db.Close()
}

// Replay loads every configured project's archived history from the
// store into its in-memory ProjectState, so a restart doesn't lose the
// record of recent builds. Called once at startup.
func Replay(ctx context.Context, s Store, registry *orchestrator.Registry) error {
	for _, name := range registry.Names() {
		ps := registry.Get(name)
		if ps == nil {
			continue
		}
		results, err := s.Load(ctx, name)
		if err != nil {
			return fmt.Errorf("store: replay %s: %w", name, err)
		}
		for _, r := range results {
			ps.AppendHistory(r)
		}
	}
	return nil
}
