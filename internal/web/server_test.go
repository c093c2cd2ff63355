package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/graphload/internal/metrics"
	"github.com/JonMunkholm/graphload/internal/progress"
)

var testKinds = []string{"agency", "stop_time", "rel:OPERATES"}

func newTestServer(t *testing.T) (*Server, *progress.Store) {
	t.Helper()
	ps, err := progress.Open(progress.NewFileBackend(filepath.Join(t.TempDir(), progress.DefaultFileName)))
	require.NoError(t, err)
	require.NoError(t, ps.MarkBatchComplete("agency", 0, 1))
	require.NoError(t, ps.MarkBatchComplete("stop_time", 0, 3))
	return NewServer(LiveProgress(ps), "gtfs", testKinds, metrics.New(true)), ps
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestProgressJSON(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var resp ProgressResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "gtfs", resp.Dataset)
	assert.False(t, resp.Complete)
	require.Len(t, resp.Kinds, 3)

	assert.Equal(t, "completed", resp.Kinds[0].Status)
	assert.NotNil(t, resp.Kinds[0].UpdatedAt)
	assert.Equal(t, KindStatus{Kind: "stop_time", Status: "in_progress", BatchesCompleted: 1, TotalBatches: 3}, withoutTime(resp.Kinds[1]))
	assert.Equal(t, KindStatus{Kind: "rel:OPERATES", Status: "pending"}, resp.Kinds[2])
}

func TestProgressJSONComplete(t *testing.T) {
	s, ps := newTestServer(t)
	require.NoError(t, ps.MarkBatchComplete("stop_time", 1, 3))
	require.NoError(t, ps.MarkBatchComplete("stop_time", 2, 3))
	require.NoError(t, ps.MarkEmpty("rel:OPERATES"))

	var resp ProgressResponse
	require.NoError(t, json.NewDecoder(get(t, s, "/progress").Body).Decode(&resp))
	assert.True(t, resp.Complete)
}

func TestProgressText(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/progress.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stop_time")
	assert.Contains(t, rec.Body.String(), "(1/3)")
}

func TestStatusPage(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "<h1>gtfs</h1>")
	assert.Contains(t, body, `<progress max="3" value="1">`)
	assert.Contains(t, body, `http-equiv="refresh"`)
	assert.Contains(t, body, "rel:OPERATES")
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	s.metrics.BatchCommitted("agency", 3, time.Millisecond, 1, 1)

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `graphload_batches_committed_total{kind="agency"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	ps, err := progress.Open(progress.NewFileBackend(filepath.Join(t.TempDir(), "p.json")))
	require.NoError(t, err)
	s := NewServer(LiveProgress(ps), "gtfs", nil, nil)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/metrics").Code)
}

func TestCorruptCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), progress.DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	s := NewServer(ReloadingProgress(progress.NewFileBackend(path)), "gtfs", nil, nil)

	rec := get(t, s, "/progress")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "CKP001", resp.Code)
	assert.NotEmpty(t, resp.RequestID)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln, time.Second) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func withoutTime(k KindStatus) KindStatus {
	k.UpdatedAt = nil
	return k
}
