package web

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/graphload/internal/progress"
	"github.com/JonMunkholm/graphload/internal/web/templates"
)

// KindStatus is one checkpoint entry in the /progress response.
type KindStatus struct {
	Kind             string     `json:"kind"`
	Status           string     `json:"status"`
	BatchesCompleted int        `json:"batches_completed"`
	TotalBatches     int        `json:"total_batches"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// ProgressResponse is the body of GET /progress.
type ProgressResponse struct {
	Dataset    string       `json:"dataset"`
	Checkpoint string       `json:"checkpoint"`
	Complete   bool         `json:"complete"`
	Kinds      []KindStatus `json:"kinds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleProgressJSON(w http.ResponseWriter, r *http.Request) {
	ps, err := s.progress()
	if err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, r, s.snapshot(ps))
}

func (s *Server) handleProgressText(w http.ResponseWriter, r *http.Request) {
	ps, err := s.progress()
	if err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := ps.Render(w, s.kinds); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
	}
}

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	ps, err := s.progress()
	if err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.StatusPage(statusData(s.snapshot(ps))).Render(r.Context(), w); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
	}
}

func (s *Server) snapshot(ps *progress.Store) ProgressResponse {
	kinds := s.kinds
	if kinds == nil {
		kinds = ps.Kinds()
	}

	resp := ProgressResponse{
		Dataset:    s.dataset,
		Checkpoint: ps.Location(),
		Complete:   len(kinds) > 0,
		Kinds:      make([]KindStatus, 0, len(kinds)),
	}
	for _, kind := range kinds {
		rec := ps.Status(kind)
		ks := KindStatus{
			Kind:             kind,
			Status:           string(rec.Status),
			BatchesCompleted: rec.BatchesCompleted,
			TotalBatches:     rec.TotalBatches,
		}
		if !rec.UpdatedAt.IsZero() {
			t := rec.UpdatedAt.UTC()
			ks.UpdatedAt = &t
		}
		if rec.Status != progress.Completed {
			resp.Complete = false
		}
		resp.Kinds = append(resp.Kinds, ks)
	}
	return resp
}

// statusData converts the snapshot for the HTML page.
func statusData(p ProgressResponse) templates.StatusData {
	d := templates.StatusData{
		Dataset:    p.Dataset,
		Checkpoint: p.Checkpoint,
		Complete:   p.Complete,
		Kinds:      make([]templates.KindRow, len(p.Kinds)),
	}
	for i, k := range p.Kinds {
		d.Kinds[i] = templates.KindRow{
			Kind:             k.Kind,
			Status:           k.Status,
			Label:            progress.Record{Status: progress.Status(k.Status)}.Label(),
			BatchesCompleted: k.BatchesCompleted,
			TotalBatches:     k.TotalBatches,
		}
	}
	return d
}
