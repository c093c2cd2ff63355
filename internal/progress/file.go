package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the checkpoint file created inside the data directory.
const DefaultFileName = ".import_progress.json"

// fileRecord is the on-disk form of a Record. The completed and
// batches_processed fields keep files written by earlier importers
// readable; status is derived from them when absent.
type fileRecord struct {
	Status           Status `json:"status,omitempty" yaml:"status,omitempty"`
	Completed        bool   `json:"completed" yaml:"completed"`
	BatchesProcessed int    `json:"batches_processed" yaml:"batches_processed"`
	TotalBatches     int    `json:"total_batches" yaml:"total_batches"`
	UpdatedAt        string `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// syncDir makes a rename in dir durable. Tests replace it.
var syncDir = syncDirectory

// FileBackend stores the checkpoint as a JSON document, or as YAML when
// the path ends in .yaml or .yml. Writes go to a temporary file that is
// fsynced and renamed over the previous document, then the directory is
// fsynced.
type FileBackend struct {
	path string
}

// NewFileBackend stores the checkpoint at path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Location returns the checkpoint file path.
func (b *FileBackend) Location() string { return b.path }

// Load reads the document. A missing file is an empty checkpoint.
func (b *FileBackend) Load() (map[string]Record, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", b.path, err)
	}

	var doc map[string]fileRecord
	if err := b.unmarshal(data, &doc); err != nil {
		return nil, &CorruptError{Location: b.path, Err: err}
	}

	records := make(map[string]Record, len(doc))
	for kind, fr := range doc {
		rec, err := fr.record()
		if err != nil {
			return nil, &CorruptError{Location: b.path, Kind: kind, Err: err}
		}
		records[kind] = rec
	}
	return records, nil
}

// Save writes the document atomically.
func (b *FileBackend) Save(records map[string]Record) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	doc := make(map[string]fileRecord, len(records))
	for kind, rec := range records {
		doc[kind] = toFileRecord(rec)
	}

	data, err := b.marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close checkpoint: %w", err)
	}

	if err := os.Rename(tmpPath, b.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	if err := syncDir(dir); err != nil {
		return fmt.Errorf("sync checkpoint directory: %w", err)
	}
	return nil
}

// Clear removes the checkpoint file. A missing file is not an error.
func (b *FileBackend) Clear() error {
	if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Lock takes an exclusive lock on a sibling .lock file.
func (b *FileBackend) Lock() (func() error, error) {
	return LockCheckpoint(b.path)
}

// LockCheckpoint takes the advisory lock that both backends use for the
// checkpoint at path. It does not open the checkpoint, so it also works
// while the checkpoint is unreadable.
func LockCheckpoint(path string) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	return lockFile(path + ".lock")
}

func (b *FileBackend) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(b.path))
	return ext == ".yaml" || ext == ".yml"
}

func (b *FileBackend) marshal(doc map[string]fileRecord) ([]byte, error) {
	if b.isYAML() {
		return yaml.Marshal(doc)
	}
	return json.MarshalIndent(doc, "", "  ")
}

func (b *FileBackend) unmarshal(data []byte, doc *map[string]fileRecord) error {
	if b.isYAML() {
		return yaml.Unmarshal(data, doc)
	}
	return json.Unmarshal(data, doc)
}

func (fr fileRecord) record() (Record, error) {
	rec := Record{
		Status:           fr.Status,
		BatchesCompleted: fr.BatchesProcessed,
		TotalBatches:     fr.TotalBatches,
	}

	switch {
	case rec.Status == "" && fr.Completed:
		rec.Status = Completed
	case rec.Status == "" && fr.BatchesProcessed > 0:
		rec.Status = InProgress
	case rec.Status == "":
		rec.Status = Pending
	case fr.Completed != (rec.Status == Completed):
		return Record{}, fmt.Errorf("completed=%t disagrees with status %s", fr.Completed, rec.Status)
	}

	if fr.UpdatedAt != "" {
		t, err := time.Parse(time.RFC3339, fr.UpdatedAt)
		if err != nil {
			return Record{}, fmt.Errorf("updated_at: %w", err)
		}
		rec.UpdatedAt = t
	}
	return rec, nil
}

func toFileRecord(rec Record) fileRecord {
	fr := fileRecord{
		Status:           rec.Status,
		Completed:        rec.Status == Completed,
		BatchesProcessed: rec.BatchesCompleted,
		TotalBatches:     rec.TotalBatches,
	}
	if !rec.UpdatedAt.IsZero() {
		fr.UpdatedAt = rec.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return fr
}
