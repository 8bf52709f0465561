// Package store provides durable OutboxStore implementations for the
// executor (C9), grounded on the teacher's
// pkg/store/outbox_store.go (Postgres, via github.com/lib/pq) and
// pkg/store/receipt_store_sqlite.go (modernc.org/sqlite), retargeted from
// effect/decision records onto decision.Action outbox rows.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/rynxs/operator-core/pkg/executor"
)

// PostgresOutboxStore implements executor.OutboxStore against a Postgres
// table created by the PostgresOutboxDDL migration below.
type PostgresOutboxStore struct {
	db *sql.DB
}

// OpenPostgresOutboxStore opens a *sql.DB via the "postgres" driver
// (github.com/lib/pq) and wraps it.
func OpenPostgresOutboxStore(dsn string) (*PostgresOutboxStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	return &PostgresOutboxStore{db: db}, nil
}

func NewPostgresOutboxStore(db *sql.DB) *PostgresOutboxStore {
	return &PostgresOutboxStore{db: db}
}

func (s *PostgresOutboxStore) Schedule(ctx context.Context, rec executor.OutboxRecord) error {
	paramsJSON, err := json.Marshal(rec.Params)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO action_outbox (action_id, action_type, target, params_json, status)
		VALUES ($1, $2, $3, $4, 'PENDING')
		ON CONFLICT (action_id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query, rec.ActionID, rec.ActionType, rec.Target, paramsJSON)
	if err != nil {
		return fmt.Errorf("store: schedule action %s: %w", rec.ActionID, err)
	}
	return nil
}

func (s *PostgresOutboxStore) GetPending(ctx context.Context) ([]executor.OutboxRecord, error) {
	query := `
		SELECT action_id, action_type, target, params_json, status
		FROM action_outbox
		WHERE status = 'PENDING'
		ORDER BY scheduled_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []executor.OutboxRecord
	for rows.Next() {
		var actionID, actionType, target, status string
		var paramsJSON []byte
		if err := rows.Scan(&actionID, &actionType, &target, &paramsJSON, &status); err != nil {
			return nil, err
		}
		var params map[string]any
		if err := json.Unmarshal(paramsJSON, &params); err != nil {
			return nil, fmt.Errorf("store: corrupt params JSON in outbox record %s: %w", actionID, err)
		}
		results = append(results, executor.OutboxRecord{
			ActionID:   actionID,
			ActionType: actionType,
			Target:     target,
			Params:     params,
			Status:     status,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *PostgresOutboxStore) MarkDone(ctx context.Context, actionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE action_outbox SET status = 'DONE' WHERE action_id = $1`, actionID)
	return err
}

func (s *PostgresOutboxStore) MarkFailed(ctx context.Context, actionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE action_outbox SET status = 'FAILED' WHERE action_id = $1`, actionID)
	return err
}

// PostgresOutboxDDL is the migration statement the operator must run once
// per target database before using PostgresOutboxStore.
const PostgresOutboxDDL = `
CREATE TABLE IF NOT EXISTS action_outbox (
	action_id    TEXT PRIMARY KEY,
	action_type  TEXT NOT NULL,
	target       TEXT NOT NULL,
	params_json  JSONB NOT NULL,
	status       TEXT NOT NULL DEFAULT 'PENDING',
	scheduled_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
