// Package progress persists per-kind import checkpoints.
//
// A checkpoint maps a kind name to a Record. Every mutation is written
// through to the Backend before it returns, so a crash loses at most the
// batch that was in flight. Counts never decrease except through Reset.
package progress

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status is the lifecycle state of one kind.
type Status string

const (
	Pending    Status = "pending"
	InProgress Status = "in_progress"
	Completed  Status = "completed"
)

// Record is the checkpoint of one kind. TotalBatches is 0 while unknown.
type Record struct {
	Status           Status
	BatchesCompleted int
	TotalBatches     int
	UpdatedAt        time.Time
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	switch r.Status {
	case Pending, InProgress, Completed:
	default:
		return fmt.Errorf("unknown status %q", r.Status)
	}
	if r.BatchesCompleted < 0 || r.TotalBatches < 0 {
		return fmt.Errorf("negative batch count")
	}
	if r.BatchesCompleted > r.TotalBatches {
		return fmt.Errorf("batches completed %d exceeds total %d", r.BatchesCompleted, r.TotalBatches)
	}
	if r.Status == Completed && r.BatchesCompleted != r.TotalBatches {
		return fmt.Errorf("completed with %d of %d batches", r.BatchesCompleted, r.TotalBatches)
	}
	if r.Status != Completed && r.TotalBatches > 0 && r.BatchesCompleted == r.TotalBatches {
		return fmt.Errorf("all %d batches done but status is %s", r.TotalBatches, r.Status)
	}
	if r.Status == Pending && r.BatchesCompleted > 0 {
		return fmt.Errorf("pending with %d batches completed", r.BatchesCompleted)
	}
	return nil
}

// ErrOutOfOrder is returned when a batch is marked complete before the
// batches preceding it.
var ErrOutOfOrder = errors.New("batch completed out of order")

// CorruptError reports a checkpoint that could not be parsed or that
// violates the record invariants.
type CorruptError struct {
	Location string
	Kind     string
	Err      error
}

func (e *CorruptError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("corrupt checkpoint %s: kind %s: %v", e.Location, e.Kind, e.Err)
	}
	return fmt.Sprintf("corrupt checkpoint %s: %v", e.Location, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// IsCorrupt reports whether err is or wraps a CorruptError.
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}

// Backend persists the full checkpoint document.
type Backend interface {
	// Load returns the stored records, or an empty map when nothing has
	// been stored yet.
	Load() (map[string]Record, error)
	// Save replaces the stored document atomically.
	Save(records map[string]Record) error
	// Clear removes the stored document.
	Clear() error
	Location() string
}

// Locker is implemented by backends that can prevent two processes from
// driving the same checkpoint.
type Locker interface {
	Lock() (release func() error, err error)
}

// Store is the in-memory view of a checkpoint, written through to its
// backend on every change. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	records map[string]Record
	now     func() time.Time
}

// Open loads the checkpoint. A missing document yields an empty store.
func Open(backend Backend) (*Store, error) {
	records, err := backend.Load()
	if err != nil {
		return nil, err
	}
	for kind, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, &CorruptError{Location: backend.Location(), Kind: kind, Err: err}
		}
	}
	return &Store{backend: backend, records: records, now: time.Now}, nil
}

// ResetBackend discards every record without reading the stored document,
// so it also recovers from a corrupt checkpoint.
func ResetBackend(backend Backend) error {
	return backend.Save(map[string]Record{})
}

// Location describes where the checkpoint is stored.
func (s *Store) Location() string {
	return s.backend.Location()
}

// Status returns the record for kind. Unknown kinds are Pending with an
// unknown total.
func (s *Store) Status(kind string) Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[kind]
	if !ok {
		return Record{Status: Pending}
	}
	return rec
}

// Snapshot returns a copy of every record.
func (s *Store) Snapshot() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

// Kinds returns the recorded kind names, sorted.
func (s *Store) Kinds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kinds := make([]string, 0, len(s.records))
	for k := range s.records {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// MarkBatchComplete records that batch batchIndex of total is durably
// written. Marking an already recorded batch is a no-op. Marking a batch
// beyond the next expected one returns ErrOutOfOrder.
func (s *Store) MarkBatchComplete(kind string, batchIndex, total int) error {
	if total < 1 || batchIndex < 0 || batchIndex >= total {
		return fmt.Errorf("mark %s batch %d of %d: index out of range", kind, batchIndex, total)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[kind]
	if rec.Status == Completed || batchIndex < rec.BatchesCompleted {
		return nil
	}
	if batchIndex > rec.BatchesCompleted {
		return fmt.Errorf("mark %s batch %d with %d completed: %w", kind, batchIndex, rec.BatchesCompleted, ErrOutOfOrder)
	}

	next := Record{
		Status:           InProgress,
		BatchesCompleted: batchIndex + 1,
		TotalBatches:     total,
		UpdatedAt:        s.now().UTC(),
	}
	if next.BatchesCompleted == total {
		next.Status = Completed
	}
	return s.commit(kind, next)
}

// MarkEmpty records a kind that has nothing to import as Completed 0/0.
func (s *Store) MarkEmpty(kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[kind].Status == Completed {
		return nil
	}
	return s.commit(kind, Record{Status: Completed, UpdatedAt: s.now().UTC()})
}

// Reset returns one kind to Pending by removing its record.
func (s *Store) Reset(kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[kind]; !ok {
		return nil
	}

	next := s.copyLocked()
	delete(next, kind)
	if err := s.backend.Save(next); err != nil {
		return fmt.Errorf("reset %s: %w", kind, err)
	}
	s.records = next
	return nil
}

// ResetAll returns every kind to Pending.
func (s *Store) ResetAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ResetBackend(s.backend); err != nil {
		return fmt.Errorf("reset all: %w", err)
	}
	s.records = map[string]Record{}
	return nil
}

// Clear deletes the stored document.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Clear(); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	s.records = map[string]Record{}
	return nil
}

// commit persists the store with kind set to rec. The in-memory view only
// changes once the backend accepted the write.
func (s *Store) commit(kind string, rec Record) error {
	next := s.copyLocked()
	next[kind] = rec
	if err := s.backend.Save(next); err != nil {
		return fmt.Errorf("save checkpoint for %s: %w", kind, err)
	}
	s.records = next
	return nil
}

func (s *Store) copyLocked() map[string]Record {
	out := make(map[string]Record, len(s.records)+1)
	for k, v := range s.records {
		out[k] = v
	}
	return out
}
