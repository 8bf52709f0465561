// Package filestore implements the file-backed event store (spec §4.2,
// §6): a JSONL active segment, rotated segments, a best-effort head marker,
// and advisory exclusive locking over the tail write. Grounded field-for-
// field on original_source/engine/log/file_store.py.
package filestore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"github.com/rynxs/operator-core/pkg/chain"
	"github.com/rynxs/operator-core/pkg/errs"
	"github.com/rynxs/operator-core/pkg/event"
	"github.com/rynxs/operator-core/pkg/eventstore"
)

// Config configures a file-backed Store.
type Config struct {
	// Path is the active segment's file path, e.g. "operator-events.log".
	Path string
	// MaxBytes triggers rotation once the active segment reaches this
	// size. Zero disables rotation.
	MaxBytes int64
	// MaxSegments bounds how many rotated segments are retained; the
	// oldest beyond this count are pruned. Zero means unlimited.
	MaxSegments int
	// HashVersion is the process-wide codec version override (spec §4.2).
	// Empty defaults to event.HashV1.
	HashVersion event.HashVersion
}

// Store is a file-backed eventstore.Store.
type Store struct {
	cfg Config
	mu  sync.Mutex
}

var _ eventstore.Store = (*Store)(nil)

type headMarker struct {
	LastSeq      int64  `json:"last_seq"`
	LastHash     string `json:"last_hash"`
	SegmentIndex int    `json:"segment_index"`
}

// Open returns a Store over cfg.Path, creating an empty active file if
// missing.
func Open(cfg Config) (*Store, error) {
	if cfg.HashVersion == "" {
		cfg.HashVersion = event.HashV1
	}
	if cfg.Path == "" {
		return nil, errs.Config("filestore: Path is required")
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errs.StorageWrap(err, "filestore: failed to create active segment %s", cfg.Path)
	}
	_ = f.Close()
	return &Store{cfg: cfg}, nil
}

func (s *Store) headPath() string       { return s.cfg.Path + ".head.json" }
func (s *Store) segmentPrefix() string  { return s.cfg.Path + ".seg-" }
func (s *Store) segPath(idx int) string { return fmt.Sprintf("%s%06d", s.segmentPrefix(), idx) }

func (s *Store) readHead() (*headMarker, error) {
	data, err := os.ReadFile(s.headPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.StorageWrap(err, "filestore: failed to read head marker")
	}
	var hm headMarker
	if err := json.Unmarshal(data, &hm); err != nil {
		return nil, errs.IntegrityWrap(err, "filestore: corrupt head marker")
	}
	return &hm, nil
}

func (s *Store) writeHead(hm headMarker) error {
	data, err := json.Marshal(hm)
	if err != nil {
		return errs.StorageWrap(err, "filestore: failed to marshal head marker")
	}
	tmp := s.headPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.StorageWrap(err, "filestore: failed to write head marker")
	}
	if err := os.Rename(tmp, s.headPath()); err != nil {
		return errs.StorageWrap(err, "filestore: failed to install head marker")
	}
	return nil
}

func (s *Store) segmentPaths() ([]string, error) {
	matches, err := filepath.Glob(s.segmentPrefix() + "*")
	if err != nil {
		return nil, errs.StorageWrap(err, "filestore: failed to list segments")
	}
	sort.Strings(matches)
	return matches, nil
}

// lastSeqAndHash scans f (assumed locked by the caller) for the tail
// seq/hash. If f is empty (just rotated, or never written), it trusts the
// head marker — the head cache is advisory and is always verified by a
// scan whenever the active file is non-empty.
func (s *Store) lastSeqAndHash(f *os.File) (int64, string, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return 0, "", errs.StorageWrap(err, "filestore: seek failed")
	}
	seq := int64(-1)
	hash := chain.ZeroHash
	found := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec chain.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return 0, "", errs.IntegrityWrap(err, "filestore: corrupt record while scanning tail")
		}
		sq, err := rec.Event.RequireSeq()
		if err != nil {
			return 0, "", err
		}
		seq = sq
		hash = rec.EventHash
		found = true
	}
	if err := scanner.Err(); err != nil {
		return 0, "", errs.StorageWrap(err, "filestore: scan failed")
	}
	if !found {
		if hm, err := s.readHead(); err == nil && hm != nil {
			return hm.LastSeq, hm.LastHash, nil
		}
	}
	return seq, hash, nil
}

func (s *Store) shouldRotate(f *os.File) (bool, error) {
	if s.cfg.MaxBytes <= 0 {
		return false, nil
	}
	info, err := f.Stat()
	if err != nil {
		return false, errs.StorageWrap(err, "filestore: stat failed")
	}
	return info.Size() >= s.cfg.MaxBytes, nil
}

// rotate renames the active segment aside and starts a fresh one, carrying
// the current tail forward in the head marker.
func (s *Store) rotate(f *os.File, lastSeq int64, lastHash string) (*os.File, error) {
	hm, _ := s.readHead()
	idx := 0
	if hm != nil {
		idx = hm.SegmentIndex
	}
	if err := flockUnlock(f); err != nil {
		return nil, err
	}
	_ = f.Close()

	if err := os.Rename(s.cfg.Path, s.segPath(idx)); err != nil {
		return nil, errs.StorageWrap(err, "filestore: failed to rotate segment %d", idx)
	}
	newFile, err := os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errs.StorageWrap(err, "filestore: failed to create new active segment")
	}
	if err := flockExclusive(newFile); err != nil {
		_ = newFile.Close()
		return nil, err
	}
	if err := s.writeHead(headMarker{LastSeq: lastSeq, LastHash: lastHash, SegmentIndex: idx + 1}); err != nil {
		return newFile, err
	}
	if err := s.pruneSegments(); err != nil {
		return newFile, err
	}
	return newFile, nil
}

func (s *Store) pruneSegments() error {
	if s.cfg.MaxSegments <= 0 {
		return nil
	}
	segs, err := s.segmentPaths()
	if err != nil {
		return err
	}
	if len(segs) <= s.cfg.MaxSegments {
		return nil
	}
	toDelete := segs[:len(segs)-s.cfg.MaxSegments]
	for _, p := range toDelete {
		_ = os.Remove(p)
	}
	return nil
}

// resolveHashVersion enforces spec §4.2's codec version policy: the
// process-wide override always wins; a per-event override is accepted only
// if it agrees, else the append fails as a Config error.
func (s *Store) resolveHashVersion(e event.Event) (event.HashVersion, error) {
	if e.HashVersion == "" {
		return s.cfg.HashVersion, nil
	}
	if e.HashVersion != s.cfg.HashVersion {
		return "", errs.Config("filestore: event hash_version %q disagrees with process hash_version %q", e.HashVersion, s.cfg.HashVersion)
	}
	return e.HashVersion, nil
}

// Append implements eventstore.Store.
func (s *Store) Append(ctx context.Context, e event.Event, expectedPrevHash *string) (eventstore.AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return eventstore.AppendResult{}, errs.StorageWrap(err, "filestore: open failed")
	}
	defer func() { _ = f.Close() }()
	if err := flockExclusive(f); err != nil {
		return eventstore.AppendResult{}, err
	}
	defer func() { _ = flockUnlock(f) }()

	lastSeq, lastHash, err := s.lastSeqAndHash(f)
	if err != nil {
		return eventstore.AppendResult{}, err
	}

	if expectedPrevHash != nil && *expectedPrevHash != lastHash {
		return eventstore.AppendResult{Committed: false, Conflict: true, ObservedPrevHash: lastHash}, nil
	}

	rotate, err := s.shouldRotate(f)
	if err != nil {
		return eventstore.AppendResult{}, err
	}
	if rotate {
		f2, err := s.rotate(f, lastSeq, lastHash)
		if err != nil {
			return eventstore.AppendResult{}, err
		}
		f = f2
		defer func() { _ = f.Close() }()
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

	line, err := json.Marshal(rec)
	if err != nil {
		return eventstore.AppendResult{}, errs.StorageWrap(err, "filestore: marshal record failed")
	}
	line = append(line, '\n')

	if _, err := f.Seek(0, 2); err != nil {
		return eventstore.AppendResult{}, errs.StorageWrap(err, "filestore: seek to end failed")
	}
	if _, err := f.Write(line); err != nil {
		return eventstore.AppendResult{}, errs.StorageWrap(err, "filestore: write failed")
	}
	if err := f.Sync(); err != nil {
		return eventstore.AppendResult{}, errs.StorageWrap(err, "filestore: fsync failed")
	}

	if err := s.writeHead(headMarker{LastSeq: seq, LastHash: rec.EventHash, SegmentIndex: s.currentSegmentIndex()}); err != nil {
		return eventstore.AppendResult{}, err
	}

	return eventstore.AppendResult{
		Event:            e2,
		Seq:              seq,
		EventHash:        rec.EventHash,
		PrevHash:         lastHash,
		Committed:        true,
		ObservedPrevHash: lastHash,
	}, nil
}

func (s *Store) currentSegmentIndex() int {
	hm, _ := s.readHead()
	if hm == nil {
		return 0
	}
	return hm.SegmentIndex
}

// AppendWithRetry implements eventstore.Store.
func (s *Store) AppendWithRetry(ctx context.Context, e event.Event, maxRetries int) (eventstore.AppendResult, error) {
	return eventstore.AppendWithRetry(ctx, s, e, maxRetries)
}

// Read implements eventstore.Store: iterates rotated segments in lex order
// then the active file, validating the hash chain throughout.
func (s *Store) Read(ctx context.Context, opts eventstore.ReadOptions) ([]event.Event, error) {
	segs, err := s.segmentPaths()
	if err != nil {
		return nil, err
	}
	paths := append(append([]string{}, segs...), s.cfg.Path)

	var out []event.Event
	prevHash := chain.ZeroHash
	expectedSeq := int64(0)

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errs.StorageWrap(err, "filestore: failed to read %s", p)
		}
		for _, line := range bytes.Split(data, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			var rec chain.Record
			if err := json.Unmarshal(line, &rec); err != nil {
				return nil, errs.IntegrityWrap(err, "filestore: corrupt record in %s", p)
			}
			seq, err := rec.Event.RequireSeq()
			if err != nil {
				return nil, err
			}
			if seq != expectedSeq {
				return nil, errs.Integrity("filestore: seq gap at %d, expected %d", seq, expectedSeq)
			}
			if rec.PrevHash != prevHash {
				return nil, errs.Integrity("filestore: prev_hash mismatch at seq=%d", seq)
			}
			computed, err := chain.EventHash(prevHash, rec.Event)
			if err != nil {
				return nil, err
			}
			if computed != rec.EventHash {
				return nil, errs.Integrity("filestore: event_hash mismatch at seq=%d", seq)
			}
			prevHash = rec.EventHash
			expectedSeq = seq + 1

			if opts.AggregateID != "" && rec.Event.AggregateID != opts.AggregateID {
				continue
			}
			if seq < opts.FromSeq {
				continue
			}
			out = append(out, rec.Event)
		}
	}
	return out, nil
}

// GetLastHash implements eventstore.Store.
func (s *Store) GetLastHash(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.cfg.Path, os.O_RDONLY, 0o644)
	if err != nil {
		return "", errs.StorageWrap(err, "filestore: open failed")
	}
	defer func() { _ = f.Close() }()
	_, hash, err := s.lastSeqAndHash(f)
	return hash, err
}

// GetEventHash implements eventstore.Store.
func (s *Store) GetEventHash(ctx context.Context, seq int64) (string, bool, error) {
	segs, err := s.segmentPaths()
	if err != nil {
		return "", false, err
	}
	paths := append(append([]string{}, segs...), s.cfg.Path)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", false, errs.StorageWrap(err, "filestore: failed to read %s", p)
		}
		for _, line := range bytes.Split(data, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			var rec chain.Record
			if err := json.Unmarshal(line, &rec); err != nil {
				return "", false, errs.IntegrityWrap(err, "filestore: corrupt record in %s", p)
			}
			sq, err := rec.Event.RequireSeq()
			if err != nil {
				return "", false, err
			}
			if sq == seq {
				return rec.EventHash, true, nil
			}
		}
	}
	return "", false, nil
}

func flockExclusive(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return errs.StorageWrap(err, "filestore: flock(LOCK_EX) failed")
	}
	return nil
}

func flockUnlock(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		return errs.StorageWrap(err, "filestore: flock(LOCK_UN) failed")
	}
	return nil
}
