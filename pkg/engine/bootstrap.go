package engine

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/rynxs/operator-core/pkg/adapter"
	"github.com/rynxs/operator-core/pkg/config"
	"github.com/rynxs/operator-core/pkg/decision"
	"github.com/rynxs/operator-core/pkg/errs"
	"github.com/rynxs/operator-core/pkg/eventstore"
	"github.com/rynxs/operator-core/pkg/eventstore/filestore"
	"github.com/rynxs/operator-core/pkg/eventstore/s3store"
	"github.com/rynxs/operator-core/pkg/executor"
	"github.com/rynxs/operator-core/pkg/reducer"
)

// OpenStore constructs the configured eventstore.Store backend (spec §6:
// EVENT_STORE_TYPE selects file or s3).
func OpenStore(ctx context.Context, cfg *config.Config) (eventstore.Store, error) {
	switch cfg.EventStoreType {
	case "s3":
		return s3store.New(ctx, s3store.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.S3Prefix,
			UseHead:         cfg.S3UseHead,
			HeadKey:         cfg.S3HeadKey,
			SkipBucketCheck: cfg.S3SkipBucketCheck,
			HashVersion:     cfg.HashVersion,
		})
	case "file":
		return filestore.Open(filestore.Config{
			Path:        cfg.EventStorePath,
			MaxBytes:    cfg.EventStoreMaxBytes,
			MaxSegments: cfg.EventStoreMaxSegments,
			HashVersion: cfg.HashVersion,
		})
	default:
		return nil, errs.Config("engine: unknown EVENT_STORE_TYPE %q", cfg.EventStoreType)
	}
}

// BuildOptions configures BuildDriver beyond what Config alone carries:
// the resource API (nil means every action resolves to NO_API/noop), an
// optional egress CEL override, and an optional in-process rate limit.
type BuildOptions struct {
	ResourceAPI    executor.ResourceAPI
	EgressExpr     string
	RateLimitRPM   int
	RateLimitBurst int
	Outbox         executor.OutboxStore
	Leader         executor.LeaderChecker
	WriterID       string
}

// BuildDriver wires a full reconciliation Driver: reducer, adapter,
// decider, executor, over the store OpenStore already produced.
func BuildDriver(store eventstore.Store, startTick int64, opts BuildOptions) (*Driver, error) {
	ad, err := adapter.New(startTick)
	if err != nil {
		return nil, fmt.Errorf("engine: build adapter: %w", err)
	}

	dec, err := decision.NewDecider(opts.EgressExpr)
	if err != nil {
		return nil, fmt.Errorf("engine: build decider: %w", err)
	}

	execOpts := []executor.Option{}
	if opts.Outbox != nil {
		execOpts = append(execOpts, executor.WithOutbox(opts.Outbox))
	}
	if opts.Leader != nil {
		execOpts = append(execOpts, executor.WithLeaderChecker(opts.Leader))
	}
	if opts.RateLimitRPM > 0 {
		execOpts = append(execOpts, executor.WithRateLimit(rate.Limit(float64(opts.RateLimitRPM)/60.0), opts.RateLimitBurst))
	}
	exec := executor.New(opts.ResourceAPI, execOpts...)

	rdcr := reducer.NewUniverseReducer(true)

	return New(store, ad, rdcr, dec, exec, nil).WithWriterID(opts.WriterID), nil
}

// Reducer exposes the driver's reducer, e.g. so a CLI command can run an
// independent replay.Engine without duplicating the universe-aggregate
// wiring.
func (d *Driver) Reducer() *reducer.Reducer { return d.reducer }

// Store exposes the driver's underlying event store.
func (d *Driver) Store() eventstore.Store { return d.store }
