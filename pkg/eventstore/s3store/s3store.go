// Package s3store implements the object-store event log backend (spec
// §4.2, §6): one object per event at "<prefix>/<seq:010d>.json", CAS via
// S3's If-None-Match precondition, and an optional best-effort head object.
// Grounded on the teacher's pkg/artifacts/s3_store.go (client construction,
// custom-endpoint/path-style support for MinIO/LocalStack) and
// original_source/engine/log/s3_store.py (key layout, head-cache env
// flags).
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithy "github.com/aws/smithy-go"
	"golang.org/x/time/rate"

	"github.com/rynxs/operator-core/pkg/chain"
	"github.com/rynxs/operator-core/pkg/errs"
	"github.com/rynxs/operator-core/pkg/event"
	"github.com/rynxs/operator-core/pkg/eventstore"
)

// Config configures an S3-backed Store.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional custom endpoint (MinIO, LocalStack)
	Prefix          string
	UseHead         bool    // RYNXS_S3_USE_HEAD
	HeadKey         string  // RYNXS_S3_HEAD_KEY, default "<prefix>/_head.json"
	SkipBucketCheck bool    // RYNXS_S3_SKIP_BUCKET_CHECK
	HashVersion     event.HashVersion
	RateLimit       rate.Limit // requests/sec against S3; 0 = unlimited
}

// Store is an S3-backed eventstore.Store.
type Store struct {
	client  *s3.Client
	cfg     Config
	limiter *rate.Limiter
	mu      sync.Mutex
}

var _ eventstore.Store = (*Store)(nil)

type headMarker struct {
	LastSeq  int64  `json:"last_seq"`
	LastHash string `json:"last_hash"`
}

// New constructs a Store, loading AWS credentials/region the standard way
// and optionally pointing at a custom endpoint for MinIO/LocalStack.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.HashVersion == "" {
		cfg.HashVersion = event.HashV1
	}
	if cfg.HeadKey == "" {
		cfg.HeadKey = strings.TrimSuffix(cfg.Prefix, "/") + "/_head.json"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, errs.StorageWrap(err, "s3store: failed to load AWS config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(cfg.RateLimit, 1)
	}

	s := &Store{client: client, cfg: cfg, limiter: limiter}

	if !cfg.SkipBucketCheck {
		if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
			return nil, errs.StorageWrap(err, "s3store: bucket %s not reachable", cfg.Bucket)
		}
	}
	return s, nil
}

func (s *Store) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return errs.StorageWrap(err, "s3store: rate limit wait failed")
	}
	return nil
}

func (s *Store) objectKey(seq int64) string {
	return fmt.Sprintf("%s/%010d.json", strings.TrimSuffix(s.cfg.Prefix, "/"), seq)
}

func (s *Store) resolveHashVersion(e event.Event) (event.HashVersion, error) {
	if e.HashVersion == "" {
		return s.cfg.HashVersion, nil
	}
	if e.HashVersion != s.cfg.HashVersion {
		return "", errs.Config("s3store: event hash_version %q disagrees with process hash_version %q", e.HashVersion, s.cfg.HashVersion)
	}
	return e.HashVersion, nil
}

func (s *Store) readHead(ctx context.Context) (*headMarker, error) {
	if !s.cfg.UseHead {
		return nil, nil
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.cfg.Bucket), Key: aws.String(s.cfg.HeadKey)})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errs.StorageWrap(err, "s3store: failed to read head object")
	}
	defer func() { _ = out.Body.Close() }()
	var hm headMarker
	if err := json.NewDecoder(out.Body).Decode(&hm); err != nil {
		return nil, errs.IntegrityWrap(err, "s3store: corrupt head object")
	}
	return &hm, nil
}

func (s *Store) writeHead(ctx context.Context, hm headMarker) error {
	if !s.cfg.UseHead {
		return nil
	}
	data, err := json.Marshal(hm)
	if err != nil {
		return errs.StorageWrap(err, "s3store: failed to marshal head object")
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket), Key: aws.String(s.cfg.HeadKey), Body: bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errs.StorageWrap(err, "s3store: failed to write head object")
	}
	return nil
}

// listSeqKeys returns every event key's seq, ascending, paginating through
// the full prefix. The head cache (readHead) exists precisely so callers
// don't pay this cost on every append; lastSeqAndHash only falls back to it
// when the head is absent or disagrees with a cheap existence check.
func (s *Store) listSeqKeys(ctx context.Context) ([]int64, error) {
	var seqs []int64
	var token *string
	prefix := strings.TrimSuffix(s.cfg.Prefix, "/") + "/"
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, errs.StorageWrap(err, "s3store: list failed")
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			base := strings.TrimSuffix(strings.TrimPrefix(key, prefix), ".json")
			if base == "" || strings.HasPrefix(base, "_") {
				continue
			}
			n, err := strconv.ParseInt(base, 10, 64)
			if err != nil {
				continue
			}
			seqs = append(seqs, n)
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

func (s *Store) getRecordAt(ctx context.Context, seq int64) (chain.Record, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.cfg.Bucket), Key: aws.String(s.objectKey(seq))})
	if err != nil {
		return chain.Record{}, errs.StorageWrap(err, "s3store: get failed at seq=%d", seq)
	}
	defer func() { _ = out.Body.Close() }()
	var rec chain.Record
	if err := json.NewDecoder(out.Body).Decode(&rec); err != nil {
		return chain.Record{}, errs.IntegrityWrap(err, "s3store: corrupt record at seq=%d", seq)
	}
	return rec, nil
}

func (s *Store) lastSeqAndHash(ctx context.Context) (int64, string, error) {
	if hm, err := s.readHead(ctx); err == nil && hm != nil {
		if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.cfg.Bucket), Key: aws.String(s.objectKey(hm.LastSeq))}); err == nil {
			return hm.LastSeq, hm.LastHash, nil
		}
	}
	seqs, err := s.listSeqKeys(ctx)
	if err != nil {
		return 0, "", err
	}
	if len(seqs) == 0 {
		return -1, chain.ZeroHash, nil
	}
	last := seqs[len(seqs)-1]
	rec, err := s.getRecordAt(ctx, last)
	if err != nil {
		return 0, "", err
	}
	return last, rec.EventHash, nil
}

// Append implements eventstore.Store.
func (s *Store) Append(ctx context.Context, e event.Event, expectedPrevHash *string) (eventstore.AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.wait(ctx); err != nil {
		return eventstore.AppendResult{}, err
	}

	lastSeq, lastHash, err := s.lastSeqAndHash(ctx)
	if err != nil {
		return eventstore.AppendResult{}, err
	}
	if expectedPrevHash != nil && *expectedPrevHash != lastHash {
		return eventstore.AppendResult{Committed: false, Conflict: true, ObservedPrevHash: lastHash}, nil
	}

	hv, err := s.resolveHashVersion(e)
	if err != nil {
		return eventstore.AppendResult{}, err
	}
	seq := lastSeq + 1
	e2 := e.WithSeq(seq)
	e2.HashVersion = hv
	rec, err := chain.Build(lastHash, e2)
	if err != nil {
		return eventstore.AppendResult{}, err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return eventstore.AppendResult{}, errs.StorageWrap(err, "s3store: marshal record failed")
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(s.objectKey(seq)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			_, observed, scanErr := s.lastSeqAndHash(ctx)
			if scanErr != nil {
				return eventstore.AppendResult{}, scanErr
			}
			return eventstore.AppendResult{Committed: false, Conflict: true, ObservedPrevHash: observed}, nil
		}
		return eventstore.AppendResult{}, errs.StorageWrap(err, "s3store: put failed at seq=%d", seq)
	}

	if err := s.writeHead(ctx, headMarker{LastSeq: seq, LastHash: rec.EventHash}); err != nil {
		return eventstore.AppendResult{}, err
	}

	return eventstore.AppendResult{
		Event: e2, Seq: seq, EventHash: rec.EventHash, PrevHash: lastHash,
		Committed: true, ObservedPrevHash: lastHash,
	}, nil
}

// AppendWithRetry implements eventstore.Store.
func (s *Store) AppendWithRetry(ctx context.Context, e event.Event, maxRetries int) (eventstore.AppendResult, error) {
	return eventstore.AppendWithRetry(ctx, s, e, maxRetries)
}

// Read implements eventstore.Store.
func (s *Store) Read(ctx context.Context, opts eventstore.ReadOptions) ([]event.Event, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	seqs, err := s.listSeqKeys(ctx)
	if err != nil {
		return nil, err
	}
	var out []event.Event
	prevHash := chain.ZeroHash
	expectedSeq := int64(0)
	for _, seq := range seqs {
		rec, err := s.getRecordAt(ctx, seq)
		if err != nil {
			return nil, err
		}
		actualSeq, err := rec.Event.RequireSeq()
		if err != nil {
			return nil, err
		}
		if actualSeq != expectedSeq {
			return nil, errs.Integrity("s3store: seq gap at %d, expected %d", actualSeq, expectedSeq)
		}
		if rec.PrevHash != prevHash {
			return nil, errs.Integrity("s3store: prev_hash mismatch at seq=%d", actualSeq)
		}
		computed, err := chain.EventHash(prevHash, rec.Event)
		if err != nil {
			return nil, err
		}
		if computed != rec.EventHash {
			return nil, errs.Integrity("s3store: event_hash mismatch at seq=%d", actualSeq)
		}
		prevHash = rec.EventHash
		expectedSeq = actualSeq + 1

		if opts.AggregateID != "" && rec.Event.AggregateID != opts.AggregateID {
			continue
		}
		if actualSeq < opts.FromSeq {
			continue
		}
		out = append(out, rec.Event)
	}
	return out, nil
}

// GetLastHash implements eventstore.Store.
func (s *Store) GetLastHash(ctx context.Context) (string, error) {
	_, hash, err := s.lastSeqAndHash(ctx)
	return hash, err
}

// GetEventHash implements eventstore.Store.
func (s *Store) GetEventHash(ctx context.Context, seq int64) (string, bool, error) {
	rec, err := s.getRecordAt(ctx, seq)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return rec.EventHash, true, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "PreconditionFailed"
	}
	return false
}
