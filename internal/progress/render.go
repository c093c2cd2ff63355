package progress

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// Marker returns the status glyph used in progress listings.
func (r Record) Marker() string {
	switch r.Status {
	case Completed:
		return "✅"
	case InProgress:
		return "🔄"
	default:
		return "⏳"
	}
}

// Fraction returns "done/total", or "-" while the total is unknown.
func (r Record) Fraction() string {
	if r.Status == Pending && r.TotalBatches == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", r.BatchesCompleted, r.TotalBatches)
}

// Label returns a human-readable status.
func (r Record) Label() string {
	switch r.Status {
	case Completed:
		return "completed"
	case InProgress:
		return "in progress"
	default:
		return "pending"
	}
}

// Render writes one line per kind. Kinds are listed in the given order;
// when kinds is nil every recorded kind is listed alphabetically.
// Rendering never changes the store.
func (s *Store) Render(w io.Writer, kinds []string) error {
	if kinds == nil {
		kinds = s.Kinds()
	}

	if _, err := fmt.Fprintf(w, "Import progress (%s)\n", s.Location()); err != nil {
		return err
	}
	if len(kinds) == 0 {
		_, err := fmt.Fprintln(w, "  no progress recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, kind := range kinds {
		rec := s.Status(kind)
		fmt.Fprintf(tw, "  %s %s\t%s\t(%s)\n", rec.Marker(), kind, rec.Label(), rec.Fraction())
	}
	return tw.Flush()
}
