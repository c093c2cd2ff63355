package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func render(t *testing.T, d StatusData) string {
	t.Helper()
	var buf bytes.Buffer
	if err := StatusPage(d).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return buf.String()
}

func TestStatusPage(t *testing.T) {
	body := render(t, StatusData{
		Dataset:    "gtfs",
		Checkpoint: "/data/.import_progress.json",
		Kinds: []KindRow{
			{Kind: "agency", Status: "completed", Label: "completed", BatchesCompleted: 1, TotalBatches: 1},
			{Kind: "stop", Status: "in_progress", Label: "in progress", BatchesCompleted: 2, TotalBatches: 5},
			{Kind: "calendar", Status: "pending", Label: "pending"},
		},
	})

	for _, want := range []string{
		"<h1>gtfs</h1>",
		`<meta http-equiv="refresh" content="5">`,
		`<td data-status="in_progress">in progress</td>`,
		`<progress max="5" value="2"></progress>`,
		"<td>0/0</td>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Count(body, "<progress ") != 2 {
		t.Errorf("pending kind with no batches should have no bar")
	}
}

func TestStatusPageComplete(t *testing.T) {
	body := render(t, StatusData{Dataset: "osm", Complete: true})

	if strings.Contains(body, "http-equiv") {
		t.Error("complete import should not refresh")
	}
	if !strings.Contains(body, "No progress recorded.") {
		t.Error("empty checkpoint message missing")
	}
}

func TestStatusPageEscapes(t *testing.T) {
	body := render(t, StatusData{Dataset: `<script>alert("x")</script>`, Complete: true})

	if strings.Contains(body, "<script>") {
		t.Errorf("dataset name not escaped: %s", body)
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Errorf("escaped dataset name missing: %s", body)
	}
}
