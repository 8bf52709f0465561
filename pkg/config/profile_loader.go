package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overlay is an optional YAML file that overrides a subset of the
// environment-derived Config, e.g. for a staging cluster that needs a
// different event store backend or rate-limit policy than the defaults
// baked into env vars. Fields are pointers so an absent key in the YAML
// leaves the underlying Config value untouched.
type Overlay struct {
	EventStoreType        *string `yaml:"event_store_type,omitempty"`
	EventStorePath        *string `yaml:"event_store_path,omitempty"`
	EventStoreMaxBytes    *int64  `yaml:"event_store_max_bytes,omitempty"`
	EventStoreMaxSegments *int    `yaml:"event_store_max_segments,omitempty"`

	S3Bucket   *string `yaml:"s3_bucket,omitempty"`
	S3Prefix   *string `yaml:"s3_prefix,omitempty"`
	S3Endpoint *string `yaml:"s3_endpoint,omitempty"`
	S3Region   *string `yaml:"s3_region,omitempty"`

	HashVersion *string `yaml:"hash_version,omitempty"`

	LeaderElectionEnabled *bool   `yaml:"leader_election_enabled,omitempty"`
	LeaseName             *string `yaml:"lease_name,omitempty"`

	RateLimitRPM   *int `yaml:"rate_limit_rpm,omitempty"`
	RateLimitBurst *int `yaml:"rate_limit_burst,omitempty"`

	EgressExpr *string `yaml:"egress_expr,omitempty"`
}

// LoadOverlay reads and parses an Overlay YAML file at path.
func LoadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config overlay %q: %w", path, err)
	}
	var ov Overlay
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("parse config overlay %q: %w", path, err)
	}
	return &ov, nil
}

// Apply merges non-nil Overlay fields into cfg in place.
func (ov *Overlay) Apply(cfg *Config) {
	if ov == nil || cfg == nil {
		return
	}
	if ov.EventStoreType != nil {
		cfg.EventStoreType = *ov.EventStoreType
	}
	if ov.EventStorePath != nil {
		cfg.EventStorePath = *ov.EventStorePath
	}
	if ov.EventStoreMaxBytes != nil {
		cfg.EventStoreMaxBytes = *ov.EventStoreMaxBytes
	}
	if ov.EventStoreMaxSegments != nil {
		cfg.EventStoreMaxSegments = *ov.EventStoreMaxSegments
	}
	if ov.S3Bucket != nil {
		cfg.S3Bucket = *ov.S3Bucket
	}
	if ov.S3Prefix != nil {
		cfg.S3Prefix = *ov.S3Prefix
	}
	if ov.S3Endpoint != nil {
		cfg.S3Endpoint = *ov.S3Endpoint
	}
	if ov.S3Region != nil {
		cfg.S3Region = *ov.S3Region
	}
	if ov.HashVersion != nil {
		cfg.HashVersion = HashVersionFromString(*ov.HashVersion)
	}
	if ov.LeaderElectionEnabled != nil {
		cfg.LeaderElectionEnabled = *ov.LeaderElectionEnabled
	}
	if ov.LeaseName != nil {
		cfg.LeaseName = *ov.LeaseName
	}
}

// RateLimitPolicy returns the overlay's rate-limit override, if any, as
// (rpm, burst, ok).
func (ov *Overlay) RateLimitPolicy() (rpm, burst int, ok bool) {
	if ov == nil || ov.RateLimitRPM == nil || ov.RateLimitBurst == nil {
		return 0, 0, false
	}
	return *ov.RateLimitRPM, *ov.RateLimitBurst, true
}

// Egress returns the overlay's CEL egress-predicate override, if any.
func (ov *Overlay) Egress() (expr string, ok bool) {
	if ov == nil || ov.EgressExpr == nil {
		return "", false
	}
	return *ov.EgressExpr, true
}
