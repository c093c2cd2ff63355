package progress

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFileStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	s, err := Open(NewFileBackend(path))
	require.NoError(t, err)
	return s, path
}

func TestStatusUnknownKindIsPending(t *testing.T) {
	s, path := openFileStore(t)

	rec := s.Status("agency")
	assert.Equal(t, Pending, rec.Status)
	assert.Equal(t, 0, rec.BatchesCompleted)
	assert.Equal(t, "-", rec.Fraction())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "status must not create the checkpoint")
}

func TestMarkBatchCompleteMonotonic(t *testing.T) {
	s, _ := openFileStore(t)

	require.NoError(t, s.MarkBatchComplete("stop_time", 0, 3))
	assert.Equal(t, InProgress, s.Status("stop_time").Status)
	assert.Equal(t, 1, s.Status("stop_time").BatchesCompleted)

	// Re-marking an earlier batch never lowers the count.
	require.NoError(t, s.MarkBatchComplete("stop_time", 0, 3))
	assert.Equal(t, 1, s.Status("stop_time").BatchesCompleted)

	err := s.MarkBatchComplete("stop_time", 2, 3)
	assert.True(t, errors.Is(err, ErrOutOfOrder))
	assert.Equal(t, 1, s.Status("stop_time").BatchesCompleted)

	require.NoError(t, s.MarkBatchComplete("stop_time", 1, 3))
	require.NoError(t, s.MarkBatchComplete("stop_time", 2, 3))
	rec := s.Status("stop_time")
	assert.Equal(t, Completed, rec.Status)
	assert.Equal(t, "3/3", rec.Fraction())

	// Completed is terminal until reset.
	require.NoError(t, s.MarkBatchComplete("stop_time", 0, 3))
	assert.Equal(t, Completed, s.Status("stop_time").Status)
}

func TestMarkBatchCompleteRejectsBadIndex(t *testing.T) {
	s, _ := openFileStore(t)

	assert.Error(t, s.MarkBatchComplete("route", 0, 0))
	assert.Error(t, s.MarkBatchComplete("route", 3, 3))
	assert.Error(t, s.MarkBatchComplete("route", -1, 3))
}

func TestMarkEmpty(t *testing.T) {
	s, _ := openFileStore(t)

	require.NoError(t, s.MarkEmpty("feed_info"))
	rec := s.Status("feed_info")
	assert.Equal(t, Completed, rec.Status)
	assert.Equal(t, "0/0", rec.Fraction())
}

func TestProgressSurvivesReopen(t *testing.T) {
	s, path := openFileStore(t)
	for i := 0; i < 9; i++ {
		require.NoError(t, s.MarkBatchComplete("stop_time", i, 333))
	}

	reopened, err := Open(NewFileBackend(path))
	require.NoError(t, err)
	rec := reopened.Status("stop_time")
	assert.Equal(t, InProgress, rec.Status)
	assert.Equal(t, 9, rec.BatchesCompleted)
	assert.Equal(t, 333, rec.TotalBatches)
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestResetScoping(t *testing.T) {
	s, path := openFileStore(t)
	require.NoError(t, s.MarkBatchComplete("agency", 0, 1))
	require.NoError(t, s.MarkBatchComplete("route", 0, 2))

	require.NoError(t, s.Reset("route"))
	assert.Equal(t, Pending, s.Status("route").Status)
	assert.Equal(t, Completed, s.Status("agency").Status)

	reopened, err := Open(NewFileBackend(path))
	require.NoError(t, err)
	assert.Equal(t, Pending, reopened.Status("route").Status)
	assert.Equal(t, Completed, reopened.Status("agency").Status)

	require.NoError(t, s.ResetAll())
	assert.Empty(t, s.Kinds())
}

func TestClearRemovesFile(t *testing.T) {
	s, path := openFileStore(t)
	require.NoError(t, s.MarkBatchComplete("agency", 0, 1))

	require.NoError(t, s.Clear())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, Pending, s.Status("agency").Status)

	// Clearing twice is fine.
	require.NoError(t, s.Clear())
}

func TestCorruptCheckpoint(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"agency": {"completed": tru`},
		{"unknown status", `{"agency": {"status": "done", "batches_processed": 1, "total_batches": 1}}`},
		{"count above total", `{"agency": {"status": "in_progress", "batches_processed": 5, "total_batches": 3}}`},
		{"completed flag disagrees", `{"agency": {"status": "completed", "completed": false, "batches_processed": 1, "total_batches": 1}}`},
		{"negative count", `{"agency": {"batches_processed": -1, "total_batches": 3}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), DefaultFileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.doc), 0o644))

			_, err := Open(NewFileBackend(path))
			require.Error(t, err)
			assert.True(t, IsCorrupt(err), "got %v", err)

			// A full reset recovers without reading the document.
			require.NoError(t, ResetBackend(NewFileBackend(path)))
			s, err := Open(NewFileBackend(path))
			require.NoError(t, err)
			assert.Empty(t, s.Kinds())
		})
	}
}

func TestLegacyCheckpointFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	doc := `{
  "agencies": {"completed": true, "batches_processed": 1, "total_batches": 1},
  "stop_times": {"completed": false, "batches_processed": 9, "total_batches": 333}
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s, err := Open(NewFileBackend(path))
	require.NoError(t, err)
	assert.Equal(t, Completed, s.Status("agencies").Status)
	assert.Equal(t, InProgress, s.Status("stop_times").Status)
	assert.Equal(t, 9, s.Status("stop_times").BatchesCompleted)
}

func TestFileBackendAtomicWrite(t *testing.T) {
	s, path := openFileStore(t)
	require.NoError(t, s.MarkBatchComplete("agency", 0, 1))

	// A write interrupted before rename leaves only a stray temp file.
	stray := filepath.Join(filepath.Dir(path), DefaultFileName+".123.tmp")
	require.NoError(t, os.WriteFile(stray, []byte(`{"agency": {"status": "pen`), 0o644))

	reopened, err := Open(NewFileBackend(path))
	require.NoError(t, err)
	assert.Equal(t, Completed, reopened.Status("agency").Status)

	require.NoError(t, reopened.MarkBatchComplete("route", 0, 2))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		if e.Name() != filepath.Base(stray) {
			assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file %s left behind", e.Name())
		}
	}
}

type failingBackend struct {
	records map[string]Record
	fail    bool
}

func (b *failingBackend) Load() (map[string]Record, error) { return map[string]Record{}, nil }
func (b *failingBackend) Save(r map[string]Record) error {
	if b.fail {
		return errors.New("disk full")
	}
	b.records = r
	return nil
}
func (b *failingBackend) Clear() error     { return nil }
func (b *failingBackend) Location() string { return "memory" }

func TestFailedSaveLeavesStateUnchanged(t *testing.T) {
	backend := &failingBackend{}
	s, err := Open(backend)
	require.NoError(t, err)
	require.NoError(t, s.MarkBatchComplete("trip", 0, 4))

	backend.fail = true
	assert.Error(t, s.MarkBatchComplete("trip", 1, 4))
	assert.Equal(t, 1, s.Status("trip").BatchesCompleted)
	assert.Equal(t, 1, backend.records["trip"].BatchesCompleted)
}

func TestRender(t *testing.T) {
	s, _ := openFileStore(t)
	require.NoError(t, s.MarkBatchComplete("agency", 0, 1))
	require.NoError(t, s.MarkBatchComplete("route", 0, 10))

	before := s.Snapshot()

	var buf bytes.Buffer
	require.NoError(t, s.Render(&buf, []string{"agency", "route", "trip"}))
	out := buf.String()

	assert.Contains(t, out, "✅ agency")
	assert.Contains(t, out, "(1/1)")
	assert.Contains(t, out, "🔄 route")
	assert.Contains(t, out, "(1/10)")
	assert.Contains(t, out, "⏳ trip")
	assert.Contains(t, out, "(-)")
	assert.Equal(t, before, s.Snapshot(), "render is read-only")
}

func TestFileBackendLock(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("flock not available")
	}
	b := NewFileBackend(filepath.Join(t.TempDir(), DefaultFileName))

	release, err := b.Lock()
	require.NoError(t, err)

	_, err = b.Lock()
	assert.True(t, errors.Is(err, ErrLocked))

	require.NoError(t, release())
	release, err = b.Lock()
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestYAMLCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.yaml")
	s, err := Open(NewFileBackend(path))
	require.NoError(t, err)

	require.NoError(t, s.MarkBatchComplete("stop_time", 0, 4))
	require.NoError(t, s.MarkEmpty("calendar"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "batches_processed: 1")
	assert.NotContains(t, string(data), "{")

	reopened, err := Open(NewFileBackend(path))
	require.NoError(t, err)
	assert.Equal(t, InProgress, reopened.Status("stop_time").Status)
	assert.Equal(t, 4, reopened.Status("stop_time").TotalBatches)
	assert.Equal(t, Completed, reopened.Status("calendar").Status)

	require.NoError(t, os.WriteFile(path, []byte("stop_time: [unclosed\n"), 0o644))
	_, err = Open(NewFileBackend(path))
	assert.True(t, IsCorrupt(err))
}

func TestFileBackendSyncsDirectoryAfterRename(t *testing.T) {
	var synced []string
	orig := syncDir
	syncDir = func(dir string) error {
		synced = append(synced, dir)
		return nil
	}
	t.Cleanup(func() { syncDir = orig })

	s, path := openFileStore(t)
	require.NoError(t, s.MarkBatchComplete("agency", 0, 1))
	assert.Equal(t, []string{filepath.Dir(path)}, synced)

	syncDir = func(string) error { return errors.New("input/output error") }
	err := s.MarkBatchComplete("route", 0, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync checkpoint directory")
	assert.Equal(t, Pending, s.Status("route").Status)
}

func TestLockCheckpointSharedByBackends(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("flock not available")
	}
	path := filepath.Join(t.TempDir(), "nested", "progress.db")

	release, err := LockCheckpoint(path)
	require.NoError(t, err)

	_, err = NewFileBackend(path).Lock()
	assert.True(t, errors.Is(err, ErrLocked))

	require.NoError(t, release())
}
