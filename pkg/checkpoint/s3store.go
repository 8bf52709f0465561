package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rynxs/operator-core/pkg/errs"
)

// S3Store persists Checkpoints as individual S3 objects under the same
// cp_<event_index>_<event_hash[0:8]>.json naming as the file-based Store
// (spec §4.7), for deployments where the operator's checkpoint directory
// must be shared/durable object storage rather than local disk. Grounded
// on the teacher's pkg/artifacts/s3_store.go client-construction idiom
// (custom endpoint + path-style for MinIO/LocalStack), narrowed from a
// generic content-addressed blob store onto this package's fixed
// checkpoint naming scheme.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3StoreConfig configures an S3Store.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint (MinIO, LocalStack)
	Prefix   string
}

// OpenS3Store constructs an S3-backed checkpoint Store.
func OpenS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, errs.ConfigWrap(err, "checkpoint: load AWS config failed")
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}
	client := s3.NewFromConfig(awsCfg, clientOpts)

	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Store) key(eventIndex int64, eventHash string) string {
	return s.prefix + fileName(eventIndex, eventHash)
}

// Save writes cp to its canonically-named object, overwriting any prior
// object at the same key (checkpoints are content-addressed by
// event_index+event_hash, so a re-save is always byte-identical).
func (s *S3Store) Save(ctx context.Context, cp Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return errs.StorageWrap(err, "checkpoint: marshal failed")
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(cp.EventIndex, cp.EventHash)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errs.StorageWrap(err, "checkpoint: s3 put failed")
	}
	return nil
}

// FindAtOrBefore lists objects under prefix and returns the checkpoint with
// the largest event_index <= seq, or ok=false if none exists.
func (s *S3Store) FindAtOrBefore(ctx context.Context, seq int64) (cp Checkpoint, ok bool, err error) {
	names, err := s.list(ctx)
	if err != nil {
		return Checkpoint{}, false, err
	}
	var best string
	var bestIdx int64 = -1
	for _, n := range names {
		idx, valid := parseEventIndex(strings.TrimPrefix(n, s.prefix))
		if !valid || idx > seq {
			continue
		}
		if idx > bestIdx {
			bestIdx = idx
			best = n
		}
	}
	if best == "" {
		return Checkpoint{}, false, nil
	}
	cp, err = s.load(ctx, best)
	if err != nil {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

func (s *S3Store) list(ctx context.Context) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix + "cp_"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, errs.StorageWrap(err, "checkpoint: s3 list failed")
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *S3Store) load(ctx context.Context, key string) (Checkpoint, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Checkpoint{}, errs.StorageWrap(err, "checkpoint: s3 get %s failed", key)
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Checkpoint{}, errs.StorageWrap(err, "checkpoint: s3 read %s failed", key)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, errs.IntegrityWrap(err, "checkpoint: corrupt object %s", key)
	}
	return cp, nil
}
