// Package snapshot persists engine history and tree structure (spec §6,
// §9 "Pickled persistence"). Tick-level records are appended as
// newline-delimited YAML documents to one per-engine log file, which is
// never rotated; tree snapshots are written less frequently as a typed
// (structure, per-leaf parameters) pair, never an opaque model blob, via
// write-to-temp-then-rename for atomicity (spec §8 property 10). Tick
// records are appended in place, not via temp-then-rename.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"cbla/tree"
)

// TickRecord is one engine tick's persisted history (spec §6).
type TickRecord struct {
	Tick          int       `yaml:"tick"`
	WallClock     time.Time `yaml:"wallClock"`
	Action        []float64 `yaml:"action"`
	ObservedState []float64 `yaml:"observedState"`
	RegionErrors  []float64 `yaml:"regionErrors"`
}

// TreeSnapshot is the versioned (structure, per-leaf parameters) pair
// persisted on snapshot_period (spec §6, §9).
type TreeSnapshot struct {
	Version int              `yaml:"version"`
	Nodes   []tree.NodeState `yaml:"nodes"`
}

const treeSnapshotVersion = 1

// Sink is an append-mostly persistence target for one engine, safe for
// concurrent use (spec §5 "Snapshot sink — append-only from any thread;
// serialized by its own mutex").
type Sink struct {
	mu       sync.Mutex
	tickPath string
	treePath string
}

// NewSink returns a Sink writing under dir, named after id.
func NewSink(dir, id string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Sink{
		tickPath: filepath.Join(dir, fmt.Sprintf("%s.ticks.yaml", id)),
		treePath: filepath.Join(dir, fmt.Sprintf("%s.tree.yaml", id)),
	}, nil
}

// AppendTick appends one tick record to the engine's tick log file.
func (s *Sink) AppendTick(rec TickRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.tickPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	defer enc.Close()
	return enc.Encode(rec)
}

// WriteTreeSnapshot persists the given tree structure atomically: it writes
// to a temp file in the same directory, then renames over the final path,
// so a reader never observes a partially-written snapshot (spec §8
// property 10).
func (s *Sink) WriteTreeSnapshot(nodes []tree.NodeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := TreeSnapshot{Version: treeSnapshotVersion, Nodes: nodes}
	body, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.treePath), ".tree-snapshot-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.treePath)
}

// ReadTreeSnapshot loads the most recently written tree snapshot.
func ReadTreeSnapshot(path string) (*TreeSnapshot, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap TreeSnapshot
	if err := yaml.Unmarshal(body, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
