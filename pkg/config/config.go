// Package config loads the module's environment-variable surface
// (spec §6), grounded on the teacher's pkg/config/config.go (Load-from-env
// idiom) and pkg/config/profile_loader.go (YAML override layer, retargeted
// from regional compliance profiles onto a deployment config override
// file).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/rynxs/operator-core/pkg/errs"
	"github.com/rynxs/operator-core/pkg/event"
)

// Config is the fully-resolved runtime configuration (spec §6).
type Config struct {
	EventStoreType        string // "file" | "s3"
	EventStorePath        string
	EventStoreMaxBytes     int64
	EventStoreMaxSegments  int

	S3Bucket          string
	S3Prefix          string
	S3Endpoint        string
	S3Region          string
	S3UseHead         bool
	S3HeadKey         string
	S3SkipBucketCheck bool

	HashVersion event.HashVersion
	WriterID    string

	LeaderElectionEnabled bool
	LeaseName             string
	LeaseDuration         time.Duration
	RenewDeadline         time.Duration
	RetryPeriod           time.Duration

	CheckpointKeyPath string
}

// Load resolves Config from the process environment, applying the defaults
// named throughout spec §4/§6.
func Load() (*Config, error) {
	cfg := &Config{
		EventStoreType:        getEnv("EVENT_STORE_TYPE", "file"),
		EventStorePath:        getEnv("EVENT_STORE_PATH", "./operator-events.log"),
		EventStoreMaxBytes:    getEnvInt64("EVENT_STORE_MAX_BYTES", 0),
		EventStoreMaxSegments: int(getEnvInt64("EVENT_STORE_MAX_SEGMENTS", 0)),

		S3Bucket:          os.Getenv("EVENT_STORE_S3_BUCKET"),
		S3Prefix:          getEnv("EVENT_STORE_S3_PREFIX", "operator-events"),
		S3Endpoint:        os.Getenv("EVENT_STORE_S3_ENDPOINT"),
		S3Region:          os.Getenv("EVENT_STORE_S3_REGION"),
		S3UseHead:         getEnvBool("RYNXS_S3_USE_HEAD", true),
		S3HeadKey:         getEnv("RYNXS_S3_HEAD_KEY", "_head.json"),
		S3SkipBucketCheck: getEnvBool("RYNXS_S3_SKIP_BUCKET_CHECK", false),

		WriterID: os.Getenv("RYNXS_WRITER_ID"),

		LeaderElectionEnabled: getEnvBool("RYNXS_LEADER_ELECTION_ENABLED", false),
		LeaseName:             getEnv("RYNXS_LEASE_NAME", "rynxs-operator-leader"),
		LeaseDuration:         getEnvDuration("RYNXS_LEASE_DURATION", 15*time.Second),
		RenewDeadline:         getEnvDuration("RYNXS_RENEW_DEADLINE", 10*time.Second),
		RetryPeriod:           getEnvDuration("RYNXS_RETRY_PERIOD", 2*time.Second),

		CheckpointKeyPath: getEnv("RYNXS_CHECKPOINT_KEY_PATH", defaultCheckpointKeyPath()),
	}

	hv := getEnv("RYNXS_HASH_VERSION", string(event.HashV1))
	if hv != string(event.HashV1) && hv != string(event.HashV2) {
		return nil, errs.Config("config: RYNXS_HASH_VERSION must be v1 or v2, got %q", hv)
	}
	cfg.HashVersion = HashVersionFromString(hv)

	if cfg.EventStoreType != "file" && cfg.EventStoreType != "s3" {
		return nil, errs.Config("config: EVENT_STORE_TYPE must be file or s3, got %q", cfg.EventStoreType)
	}

	// RYNXS_WRITER_ID identifies this process for meta/leader-lease purposes.
	// When the engine driver stamps it into meta.writer_id it is part of that
	// event's hash input (v1 always hashes meta; v2 hashes non-empty meta), so
	// the random default makes the resulting event hashes differ per process.
	if cfg.WriterID == "" {
		cfg.WriterID = uuid.New().String()
	}

	return cfg, nil
}

// HashVersionFromString coerces a raw string into an event.HashVersion,
// defaulting to HashV1 for anything unrecognized.
func HashVersionFromString(s string) event.HashVersion {
	if event.HashVersion(s) == event.HashV2 {
		return event.HashV2
	}
	return event.HashV1
}

func defaultCheckpointKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rynxs/keys/checkpoint_ed25519"
	}
	return home + "/.rynxs/keys/checkpoint_ed25519"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
