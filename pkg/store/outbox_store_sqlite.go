package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/rynxs/operator-core/pkg/executor"
)

// SQLiteOutboxStore is the single-node counterpart to PostgresOutboxStore,
// grounded on the teacher's pkg/store/receipt_store_sqlite.go (same
// modernc.org/sqlite driver, same migrate-on-open idiom) but retargeted
// from receipt rows onto action outbox rows.
type SQLiteOutboxStore struct {
	db *sql.DB
}

// OpenSQLiteOutboxStore opens path via the "sqlite" driver
// (modernc.org/sqlite) and ensures the schema exists.
func OpenSQLiteOutboxStore(path string) (*SQLiteOutboxStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	s := &SQLiteOutboxStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteOutboxStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS action_outbox (
		action_id    TEXT PRIMARY KEY,
		action_type  TEXT NOT NULL,
		target       TEXT NOT NULL,
		params_json  TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'PENDING',
		scheduled_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteOutboxStore) Schedule(ctx context.Context, rec executor.OutboxRecord) error {
	paramsJSON, err := json.Marshal(rec.Params)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO action_outbox (action_id, action_type, target, params_json, status) VALUES (?, ?, ?, ?, 'PENDING')`,
		rec.ActionID, rec.ActionType, rec.Target, string(paramsJSON),
	)
	if err != nil {
		return fmt.Errorf("store: schedule action %s: %w", rec.ActionID, err)
	}
	return nil
}

func (s *SQLiteOutboxStore) GetPending(ctx context.Context) ([]executor.OutboxRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action_id, action_type, target, params_json, status FROM action_outbox WHERE status = 'PENDING' ORDER BY scheduled_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []executor.OutboxRecord
	for rows.Next() {
		var actionID, actionType, target, status, paramsJSON string
		if err := rows.Scan(&actionID, &actionType, &target, &paramsJSON, &status); err != nil {
			return nil, err
		}
		var params map[string]any
		if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
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
	return results, rows.Err()
}

func (s *SQLiteOutboxStore) MarkDone(ctx context.Context, actionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE action_outbox SET status = 'DONE' WHERE action_id = ?`, actionID)
	return err
}

func (s *SQLiteOutboxStore) MarkFailed(ctx context.Context, actionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE action_outbox SET status = 'FAILED' WHERE action_id = ?`, actionID)
	return err
}

var _ executor.OutboxStore = (*SQLiteOutboxStore)(nil)
var _ executor.OutboxStore = (*PostgresOutboxStore)(nil)
