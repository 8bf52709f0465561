package executor

import (
	"context"
)

// ResourceRef identifies one external resource the executor manages.
type ResourceRef struct {
	Kind      string // "ConfigMap", "PVC", "Deployment", "NetworkPolicy"
	Namespace string
	Name      string
}

// Operation names how an action was realized against the external API
// (spec §4.6).
type Operation string

const (
	OpCreate Operation = "create"
	OpPatch  Operation = "patch"
	OpNoop   Operation = "noop"
	OpSkip   Operation = "skip"
)

// ResourceAPI is the external resource API the executor drives. A nil
// interface value passed to New signals "unavailable" and every
// action short-circuits to the NO_API reason code (spec §4.6 step 4).
type ResourceAPI interface {
	// Create attempts to create ref with normalizedParams as its desired
	// state. ErrConflict (wrapped) signals the resource already exists.
	Create(ctx context.Context, ref ResourceRef, normalizedParams map[string]any) (statusCode int, err error)
	// Get reads the current object's params, already projected through the
	// same per-action-type normalization the caller will compare against.
	Get(ctx context.Context, ref ResourceRef) (normalizedParams map[string]any, statusCode int, err error)
	// Patch updates ref to match normalizedParams.
	Patch(ctx context.Context, ref ResourceRef, normalizedParams map[string]any) (statusCode int, err error)
}

// LeaderChecker fences execution to the current leader (spec §5: single
// writer per log; spec §9 open question on late-leadership-loss window).
type LeaderChecker interface {
	IsLeader(ctx context.Context) (bool, error)
}

// AlwaysLeader is a LeaderChecker for single-process deployments or tests.
type AlwaysLeader struct{}

func (AlwaysLeader) IsLeader(context.Context) (bool, error) { return true, nil }

// OutboxRecord is a durable record of intent to apply one action, scheduled
// before dispatch so a crash between schedule and feedback-event append is
// recoverable (reconciled against the event log on restart).
type OutboxRecord struct {
	ActionID   string
	ActionType string
	Target     string
	Params     map[string]any
	Status     string // PENDING, DONE, FAILED
}

// OutboxStore is the transactional persistence layer for pending action
// applications, grounded on the teacher's pkg/store/outbox_store.go
// (Postgres) adapted here to also support a SQLite backend
// (pkg/store/outbox_store_sqlite.go) for single-node deployments.
type OutboxStore interface {
	Schedule(ctx context.Context, rec OutboxRecord) error
	GetPending(ctx context.Context) ([]OutboxRecord, error)
	MarkDone(ctx context.Context, actionID string) error
	MarkFailed(ctx context.Context, actionID string) error
}
