package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/graphload/internal/graph"
	"github.com/JonMunkholm/graphload/internal/progress"
	"github.com/JonMunkholm/graphload/internal/retry"
	"github.com/JonMunkholm/graphload/internal/source"
)

// transit is a trimmed GTFS-like dataset: calendar is optional and the
// fixture leaves it out.
func transit() Dataset {
	return Dataset{
		Name: "transit",
		Kinds: []KindSpec{
			{
				Name: "agency", Label: "Agency", File: "agency.txt", Key: []string{"agency_id"},
				Fields: []FieldSpec{
					{Name: "agency_id", Type: FieldText},
					{Name: "agency_name", Type: FieldText, Required: true},
				},
			},
			{
				Name: "route", Label: "Route", File: "routes.txt", Key: []string{"route_id"},
				DependsOn: []string{"agency"},
				Fields: []FieldSpec{
					{Name: "route_id", Type: FieldText},
					{Name: "agency_id", Type: FieldText},
					{Name: "route_type", Type: FieldInt},
				},
			},
			{
				Name: "stop", Label: "Stop", File: "stops.txt", Key: []string{"stop_id"},
				Fields: []FieldSpec{
					{Name: "stop_id", Type: FieldText},
					{Name: "stop_lat", Type: FieldFloat},
					{Name: "stop_lon", Type: FieldFloat},
				},
			},
			{
				Name: "calendar", Label: "Calendar", File: "calendar.txt", Key: []string{"service_id"},
				Optional: true,
				Fields: []FieldSpec{
					{Name: "service_id", Type: FieldText},
					{Name: "monday", Type: FieldBool},
				},
			},
			{
				Name: "trip", Label: "Trip", File: "trips.txt", Key: []string{"trip_id"},
				DependsOn: []string{"route", "calendar"},
				Fields: []FieldSpec{
					{Name: "trip_id", Type: FieldText},
					{Name: "route_id", Type: FieldText, Required: true},
					{Name: "service_id", Type: FieldText},
				},
			},
		},
		Relationships: []RelationshipSpec{
			{Kind: "OPERATES", Source: "agency", Target: "route", Rule: DirectRule{Field: "agency_id", On: TargetSide}},
			{Kind: "HAS_TRIP", Source: "route", Target: "trip", Rule: DirectRule{Field: "route_id", On: TargetSide}},
		},
	}
}

// writeTransitFixture writes 3 agencies, 5 routes, 10 stops and 20 trips.
func writeTransitFixture(t *testing.T, dir string) {
	t.Helper()

	var b strings.Builder
	b.WriteString("agency_id,agency_name\n")
	for i := range 3 {
		fmt.Fprintf(&b, "A%d,Agency %d\n", i, i)
	}
	writeFixture(t, dir, "agency.txt", b.String())

	b.Reset()
	b.WriteString("route_id,agency_id,route_type\n")
	for i := range 5 {
		fmt.Fprintf(&b, "R%d,A%d,3\n", i, i%3)
	}
	writeFixture(t, dir, "routes.txt", b.String())

	b.Reset()
	b.WriteString("stop_id,stop_lat,stop_lon\n")
	for i := range 10 {
		fmt.Fprintf(&b, "S%02d,%.4f,151.2\n", i, -33.86+float64(i)*0.001)
	}
	writeFixture(t, dir, "stops.txt", b.String())

	b.Reset()
	b.WriteString("trip_id,route_id,service_id\n")
	for i := range 20 {
		fmt.Fprintf(&b, "T%02d,R%d,WK\n", i, i%5)
	}
	writeFixture(t, dir, "trips.txt", b.String())
}

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func openProgress(t *testing.T, dir string) *progress.Store {
	t.Helper()
	ps, err := progress.Open(progress.NewFileBackend(filepath.Join(dir, progress.DefaultFileName)))
	require.NoError(t, err)
	return ps
}

func TestPipelineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeTransitFixture(t, dir)

	ds := transit()
	store := graph.NewMemoryStore()
	ps := openProgress(t, dir)
	ctx := context.Background()

	report, err := NewPipeline(store, ps, source.DirOpener{Root: dir}, WithBatchSize(4)).Run(ctx, ds.Kinds)
	require.NoError(t, err)
	assert.Equal(t, 38, report.TotalWritten())
	assert.Equal(t, 38, store.NodeCount())

	_, err = NewRelationshipBuilder(store, ps, WithBatchSize(4)).Build(ctx, ds)
	require.NoError(t, err)

	assert.Equal(t, 5, store.EdgeCount("OPERATES"))
	for i := range 20 {
		trip := fmt.Sprintf("T%02d", i)
		assert.Equal(t, []string{fmt.Sprintf("R%d", i%5)}, store.EdgesTo("HAS_TRIP", trip), trip)
	}
	assert.Zero(t, store.Dangling())

	for _, key := range ds.ProgressKeys() {
		assert.Equal(t, progress.Completed, ps.Status(key).Status, key)
	}
	cal := ps.Status("calendar")
	assert.Equal(t, 0, cal.TotalBatches)

	props, ok := store.Node("Route", "R1")
	require.True(t, ok)
	assert.Equal(t, int64(3), props["route_type"])
	assert.Equal(t, "A1", props["agency_id"])
}

func TestPipelineIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeTransitFixture(t, dir)
	ds := transit()
	store := graph.NewMemoryStore()
	ctx := context.Background()

	for range 2 {
		ps := openProgress(t, dir)
		require.NoError(t, ps.Clear())
		_, err := NewPipeline(store, ps, source.DirOpener{Root: dir}).Run(ctx, ds.Kinds)
		require.NoError(t, err)
		_, err = NewRelationshipBuilder(store, ps).Build(ctx, ds)
		require.NoError(t, err)
	}

	assert.Equal(t, 38, store.NodeCount())
	assert.Equal(t, 5, store.EdgeCount("OPERATES"))
	assert.Equal(t, 20, store.EdgeCount("HAS_TRIP"))
}

func TestPipelineSkipsCompletedKind(t *testing.T) {
	dir := t.TempDir()
	writeTransitFixture(t, dir)
	ds := transit()
	store := graph.NewMemoryStore()
	ps := openProgress(t, dir)

	require.NoError(t, ps.MarkEmpty("agency"))

	report, err := NewPipeline(store, ps, source.DirOpener{Root: dir}).Run(context.Background(), ds.Kinds[:1])
	require.NoError(t, err)
	require.Len(t, report.Kinds, 1)
	assert.True(t, report.Kinds[0].Skipped)
	assert.Empty(t, store.NodeCalls())
}

func TestPipelineResumeFromCheckpoint(t *testing.T) {
	dir := t.TempDir()

	var b strings.Builder
	b.WriteString("stop_id,stop_lat,stop_lon\n")
	for i := range 333 {
		fmt.Fprintf(&b, "S%03d,1.0,2.0\n", i)
	}
	writeFixture(t, dir, "stops.txt", b.String())

	spec := transit().Kinds[2]
	ps := openProgress(t, dir)
	for i := range 9 {
		require.NoError(t, ps.MarkBatchComplete("stop", i, 333))
	}

	store := graph.NewMemoryStore()
	report, err := NewPipeline(store, ps, source.DirOpener{Root: dir}, WithBatchSize(1)).Run(context.Background(), []KindSpec{spec})
	require.NoError(t, err)

	calls := store.NodeCalls()
	require.Len(t, calls, 324)
	assert.Equal(t, "S009", calls[0].Nodes[0].Key)
	assert.Equal(t, "S332", calls[len(calls)-1].Nodes[0].Key)

	_, written := store.Node("Stop", "S008")
	assert.False(t, written, "batches before the checkpoint must not be rewritten")

	assert.Equal(t, 9, report.Kinds[0].ResumedFrom)
	assert.Equal(t, progress.Record{Status: progress.Completed, BatchesCompleted: 333, TotalBatches: 333},
		withoutTime(ps.Status("stop")))
}

func withoutTime(r progress.Record) progress.Record {
	r.UpdatedAt = time.Time{}
	return r
}

func TestPipelineDependencyOrdering(t *testing.T) {
	dir := t.TempDir()
	writeTransitFixture(t, dir)
	writeFixture(t, dir, "calendar.txt", "service_id,monday\nWK,1\n")
	ds := transit()

	t.Run("trip waits for route and calendar", func(t *testing.T) {
		store := graph.NewMemoryStore()
		ps := openProgress(t, t.TempDir())

		_, err := NewPipeline(store, ps, source.DirOpener{Root: dir}).Run(context.Background(), ds.Kinds)
		require.NoError(t, err)

		seen := map[string]bool{}
		for _, call := range store.NodeCalls() {
			if call.Label == "Trip" {
				assert.True(t, seen["Route"], "trip written before route")
				assert.True(t, seen["Calendar"], "trip written before calendar")
			}
			seen[call.Label] = true
		}
	})

	t.Run("unmet dependency fails before any write", func(t *testing.T) {
		store := graph.NewMemoryStore()
		ps := openProgress(t, t.TempDir())
		require.NoError(t, ps.MarkEmpty("route"))

		trip, _ := ds.Kind("trip")
		_, err := NewPipeline(store, ps, source.DirOpener{Root: dir}).Run(context.Background(), []KindSpec{trip})
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
		assert.True(t, IsDependencyError(err))
		assert.Empty(t, store.NodeCalls())
		assert.Equal(t, progress.Pending, ps.Status("trip").Status)
	})

	t.Run("dependency listed after dependent", func(t *testing.T) {
		ps := openProgress(t, t.TempDir())
		route, _ := ds.Kind("route")
		agency, _ := ds.Kind("agency")

		_, err := NewPipeline(graph.NewMemoryStore(), ps, source.DirOpener{Root: dir}).Run(context.Background(), []KindSpec{route, agency})
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
		assert.False(t, IsDependencyError(err))
	})
}

func TestPipelineFailedBatchIsNotMarked(t *testing.T) {
	dir := t.TempDir()
	writeTransitFixture(t, dir)
	ds := transit()
	ps := openProgress(t, dir)

	store := graph.NewMemoryStore()
	failing := 0
	store.FailNodes = func(b graph.NodeBatch) error {
		if b.Label == "Stop" {
			failing++
			if failing == 3 {
				return errors.New("connection reset by peer")
			}
		}
		return nil
	}

	_, err := NewPipeline(store, ps, source.DirOpener{Root: dir}, WithBatchSize(2)).Run(context.Background(), ds.Kinds)
	require.Error(t, err)

	var be *BatchWriteError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "stop", be.Kind)
	assert.Equal(t, 2, be.Index)

	rec := ps.Status("stop")
	assert.Equal(t, progress.InProgress, rec.Status)
	assert.Equal(t, 2, rec.BatchesCompleted)
	assert.Equal(t, progress.Pending, ps.Status("trip").Status, "later kinds must not start")

	// A rerun picks up at the failed batch.
	store.FailNodes = nil
	store.ResetCalls()
	_, err = NewPipeline(store, ps, source.DirOpener{Root: dir}, WithBatchSize(2)).Run(context.Background(), ds.Kinds)
	require.NoError(t, err)

	var stopCalls int
	for _, c := range store.NodeCalls() {
		if c.Label == "Stop" {
			stopCalls++
		}
	}
	assert.Equal(t, 3, stopCalls)
	assert.Equal(t, 38, store.NodeCount())
}

func TestPipelineRetriesTransientWrites(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "agency.txt", "agency_id,agency_name\nA1,One\n")
	ps := openProgress(t, dir)

	store := graph.NewMemoryStore()
	attempts := 0
	store.FailNodes = func(graph.NodeBatch) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	}

	exec := retry.NewExecutor(retry.StoreErrorClassifier{},
		retry.NewExponentialBackoff(3, retry.WithInitialDelay(time.Millisecond), retry.WithJitter(0)))

	_, err := NewPipeline(store, ps, source.DirOpener{Root: dir}, WithRetry(exec)).Run(context.Background(), transit().Kinds[:1])
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, progress.Completed, ps.Status("agency").Status)
}

func TestPipelineAllInvalidBatch(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "agency.txt", "agency_id,agency_name\nA1,One\nA2,Two\n,Missing key\nA4,\nA5,Five\n")
	ps := openProgress(t, dir)
	store := graph.NewMemoryStore()

	report, err := NewPipeline(store, ps, source.DirOpener{Root: dir}, WithBatchSize(2)).Run(context.Background(), transit().Kinds[:1])
	require.NoError(t, err)

	// Batch 1 holds only invalid rows and is committed without a write.
	require.Len(t, store.NodeCalls(), 2)
	assert.Equal(t, "A5", store.NodeCalls()[1].Nodes[0].Key)

	kr := report.Kinds[0]
	assert.Equal(t, 3, kr.BatchesCommitted)
	assert.Equal(t, 5, kr.RowsRead)
	assert.Equal(t, 3, kr.RecordsWritten)
	assert.Equal(t, 2, kr.RowsInvalid)
	assert.Equal(t, progress.Completed, ps.Status("agency").Status)
}

func TestPipelineSourceShrank(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "agency.txt", "agency_id,agency_name\nA1,One\nA2,Two\n")
	ps := openProgress(t, dir)
	for i := range 4 {
		require.NoError(t, ps.MarkBatchComplete("agency", i, 5))
	}

	store := graph.NewMemoryStore()
	_, err := NewPipeline(store, ps, source.DirOpener{Root: dir}, WithBatchSize(1)).Run(context.Background(), transit().Kinds[:1])
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Empty(t, store.NodeCalls())
	assert.Equal(t, 4, ps.Status("agency").BatchesCompleted)
}

func TestPipelineBatchSizeChanged(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "agency.txt", "agency_id,agency_name\nA1,One\nA2,Two\nA3,Three\nA4,Four\n")
	ps := openProgress(t, dir)
	require.NoError(t, ps.MarkBatchComplete("agency", 0, 4))

	_, err := NewPipeline(graph.NewMemoryStore(), ps, source.DirOpener{Root: dir}, WithBatchSize(2)).Run(context.Background(), transit().Kinds[:1])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch count changed from 4 to 2")
}

func TestPipelineMissingSources(t *testing.T) {
	ds := transit()

	t.Run("required file missing", func(t *testing.T) {
		dir := t.TempDir()
		_, err := NewPipeline(graph.NewMemoryStore(), openProgress(t, dir), source.DirOpener{Root: dir}).Run(context.Background(), ds.Kinds[:1])
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
		assert.Contains(t, err.Error(), "source file not found")
	})

	t.Run("optional file missing completes empty", func(t *testing.T) {
		dir := t.TempDir()
		ps := openProgress(t, dir)
		cal, _ := ds.Kind("calendar")

		_, err := NewPipeline(graph.NewMemoryStore(), ps, source.DirOpener{Root: dir}).Run(context.Background(), []KindSpec{cal})
		require.NoError(t, err)
		assert.Equal(t, progress.Record{Status: progress.Completed}, withoutTime(ps.Status("calendar")))
	})

	t.Run("header only completes empty", func(t *testing.T) {
		dir := t.TempDir()
		writeFixture(t, dir, "agency.txt", "agency_id,agency_name\n")
		ps := openProgress(t, dir)

		store := graph.NewMemoryStore()
		_, err := NewPipeline(store, ps, source.DirOpener{Root: dir}).Run(context.Background(), ds.Kinds[:1])
		require.NoError(t, err)
		assert.Equal(t, progress.Completed, ps.Status("agency").Status)
		assert.Empty(t, store.NodeCalls())
	})

	t.Run("missing key column", func(t *testing.T) {
		dir := t.TempDir()
		writeFixture(t, dir, "agency.txt", "agency_name\nOne\n")

		_, err := NewPipeline(graph.NewMemoryStore(), openProgress(t, dir), source.DirOpener{Root: dir}).Run(context.Background(), ds.Kinds[:1])
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing required column: agency_id")
	})
}

func TestPipelinePreflightBeforeFirstWrite(t *testing.T) {
	ds := transit()

	t.Run("last kind's required file missing", func(t *testing.T) {
		dir := t.TempDir()
		writeTransitFixture(t, dir)
		require.NoError(t, os.Remove(filepath.Join(dir, "trips.txt")))
		ps := openProgress(t, t.TempDir())

		store := graph.NewMemoryStore()
		_, err := NewPipeline(store, ps, source.DirOpener{Root: dir}).Run(context.Background(), ds.Kinds)
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
		assert.Contains(t, err.Error(), "trips.txt")
		assert.Empty(t, store.NodeCalls())
		assert.Equal(t, progress.Pending, ps.Status("agency").Status)
	})

	t.Run("completed kinds are not checked", func(t *testing.T) {
		dir := t.TempDir()
		writeFixture(t, dir, "routes.txt", "route_id,agency_id,route_type\nR1,A1,3\n")
		ps := openProgress(t, t.TempDir())
		require.NoError(t, ps.MarkBatchComplete("agency", 0, 1))

		store := graph.NewMemoryStore()
		_, err := NewPipeline(store, ps, source.DirOpener{Root: dir}).Run(context.Background(), ds.Kinds[:2])
		require.NoError(t, err)
		assert.Equal(t, progress.Completed, ps.Status("route").Status)
	})

	t.Run("data root missing", func(t *testing.T) {
		ps := openProgress(t, t.TempDir())
		cal, _ := ds.Kind("calendar")
		root := filepath.Join(t.TempDir(), "missing")

		_, err := NewPipeline(graph.NewMemoryStore(), ps, source.DirOpener{Root: root}).Run(context.Background(), []KindSpec{cal})
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
		assert.True(t, errors.Is(err, source.ErrRootNotFound))
		assert.Equal(t, progress.Pending, ps.Status("calendar").Status)
	})

	t.Run("data root missing on single kind", func(t *testing.T) {
		ps := openProgress(t, t.TempDir())
		cal, _ := ds.Kind("calendar")
		root := filepath.Join(t.TempDir(), "missing")

		_, err := NewPipeline(graph.NewMemoryStore(), ps, source.DirOpener{Root: root}).RunKind(context.Background(), cal)
		assert.True(t, errors.Is(err, source.ErrRootNotFound))
		assert.Equal(t, progress.Pending, ps.Status("calendar").Status)
	})
}

func TestPipelineMinInterval(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "agency.txt", "agency_id,agency_name\nA1,One\nA2,Two\nA3,Three\n")

	start := time.Now()
	_, err := NewPipeline(graph.NewMemoryStore(), openProgress(t, dir), source.DirOpener{Root: dir},
		WithBatchSize(1), WithMinInterval(20*time.Millisecond)).Run(context.Background(), transit().Kinds[:1])
	require.NoError(t, err)

	// The first write goes immediately, the next two wait.
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}
