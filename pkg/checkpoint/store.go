package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rynxs/operator-core/pkg/errs"
)

// Store persists Checkpoints as individual files named
// cp_<event_index>_<event_hash[0:8]>.json (spec §4.7), discoverable in
// lexicographic order (zero-padded event_index keeps that order numeric).
type Store struct {
	dir string
}

// Open ensures dir exists and returns a Store rooted there.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.StorageWrap(err, "checkpoint: mkdir %s failed", dir)
	}
	return &Store{dir: dir}, nil
}

func fileName(eventIndex int64, eventHash string) string {
	prefix := eventHash
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("cp_%020d_%s.json", eventIndex, prefix)
}

// Save writes cp to its canonically-named file.
func (s *Store) Save(cp Checkpoint) error {
	path := filepath.Join(s.dir, fileName(cp.EventIndex, cp.EventHash))
	data, err := json.Marshal(cp)
	if err != nil {
		return errs.StorageWrap(err, "checkpoint: marshal failed")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.StorageWrap(err, "checkpoint: write failed")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.StorageWrap(err, "checkpoint: rename failed")
	}
	return nil
}

// list returns all checkpoint file basenames in the directory, sorted
// lexicographically (== numeric order in event_index thanks to the
// zero-padded filename).
func (s *Store) list() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.StorageWrap(err, "checkpoint: readdir failed")
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "cp_") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func parseEventIndex(name string) (int64, bool) {
	trimmed := strings.TrimPrefix(name, "cp_")
	parts := strings.SplitN(trimmed, "_", 2)
	if len(parts) != 2 {
		return 0, false
	}
	idx, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// FindAtOrBefore returns the checkpoint with the largest event_index <= seq,
// or ok=false if none exists (spec §4.7: "supports fast replay by loading
// the best checkpoint <= target and replaying only the tail").
func (s *Store) FindAtOrBefore(seq int64) (cp Checkpoint, ok bool, err error) {
	names, err := s.list()
	if err != nil {
		return Checkpoint{}, false, err
	}
	var best string
	var bestIdx int64 = -1
	for _, n := range names {
		idx, valid := parseEventIndex(n)
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
	cp, err = s.load(best)
	if err != nil {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

func (s *Store) load(name string) (Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return Checkpoint{}, errs.StorageWrap(err, "checkpoint: read %s failed", name)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, errs.IntegrityWrap(err, "checkpoint: corrupt file %s", name)
	}
	return cp, nil
}
