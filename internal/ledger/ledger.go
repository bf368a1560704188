// Package ledger persists the set of completed review items. It is the
// source of truth for deduplication across process restarts: an item id
// with a record here is never reviewed again.
//
// The durable form is a single YAML snapshot keyed by the scheduler
// identity. The snapshot is loaded wholesale at startup and replaced
// wholesale on every commit; the replace is atomic (write a temp file in
// the same directory, then rename over the old snapshot) so a crash
// mid-flush leaves the previous snapshot intact.
package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reviewloop/reviewloop/internal/types"
)

// ErrClosed is returned by Commit after Close has been called
var ErrClosed = errors.New("ledger is closed")

// Ledger is the in-memory view of the completion snapshot. All methods are
// safe for concurrent use; Commit serializes the flush to disk.
type Ledger struct {
	mu        sync.RWMutex
	path      string
	scheduler string
	records   map[int64]*types.ReviewRecord
	order     []int64 // item ids in first-commit order
	closed    bool
}

// snapshot is the on-disk document
type snapshot struct {
	Scheduler string                `yaml:"scheduler"`
	SavedAt   time.Time             `yaml:"saved_at"`
	Records   []*types.ReviewRecord `yaml:"records"`
}

// Open loads the snapshot at path, or starts empty if none exists yet.
// The scheduler identity is written into every snapshot; on load a mismatch
// is tolerated (the file wins) so a renamed deployment keeps its history.
func Open(path, scheduler string) (*Ledger, error) {
	l := &Ledger{
		path:      path,
		scheduler: scheduler,
		records:   make(map[int64]*types.ReviewRecord),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil // first run
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger snapshot: %w", err)
	}

	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse ledger snapshot %s: %w", path, err)
	}
	if snap.Scheduler != "" {
		l.scheduler = snap.Scheduler
	}

	for _, rec := range snap.Records {
		if rec == nil || rec.ItemID <= 0 {
			continue
		}
		if _, dup := l.records[rec.ItemID]; !dup {
			l.order = append(l.order, rec.ItemID)
		}
		l.records[rec.ItemID] = rec
	}

	return l, nil
}

// IsCompleted reports whether a record exists for the item id
func (l *Ledger) IsCompleted(itemID int64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.records[itemID]
	return ok
}

// Get returns the record for an item id, or nil if none exists
func (l *Ledger) Get(itemID int64) *types.ReviewRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if rec, ok := l.records[itemID]; ok {
		clone := *rec
		return &clone
	}
	return nil
}

// Commit records a completed item and flushes the full snapshot to disk.
// Committing an id that already has a record overwrites it in place rather
// than appending a duplicate. If the flush fails the in-memory state is
// rolled back and the error returned: a failed commit must never make
// IsCompleted answer true.
func (l *Ledger) Commit(rec *types.ReviewRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid review record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	prev, existed := l.records[rec.ItemID]
	clone := *rec
	l.records[rec.ItemID] = &clone
	if !existed {
		l.order = append(l.order, rec.ItemID)
	}

	if err := l.flushLocked(); err != nil {
		if existed {
			l.records[rec.ItemID] = prev
		} else {
			delete(l.records, rec.ItemID)
			l.order = l.order[:len(l.order)-1]
		}
		return fmt.Errorf("failed to flush ledger: %w", err)
	}

	return nil
}

// All returns the records in first-commit order. The result is a snapshot:
// safe to hold while commits continue.
func (l *Ledger) All() []*types.ReviewRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*types.ReviewRecord, 0, len(l.order))
	for _, id := range l.order {
		clone := *l.records[id]
		out = append(out, &clone)
	}
	return out
}

// Len returns the number of completed items
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Close marks the ledger closed; subsequent commits fail with ErrClosed.
// The snapshot on disk already reflects the last successful commit, so
// there is nothing to flush here.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// flushLocked writes the full snapshot atomically. Callers hold l.mu.
func (l *Ledger) flushLocked() error {
	snap := snapshot{
		Scheduler: l.scheduler,
		SavedAt:   time.Now().UTC(),
		Records:   make([]*types.ReviewRecord, 0, len(l.order)),
	}
	for _, id := range l.order {
		snap.Records = append(snap.Records, l.records[id])
	}

	data, err := yaml.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	// Temp file must live in the same directory so the rename is atomic
	tmp, err := os.CreateTemp(dir, ".ledger-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}
