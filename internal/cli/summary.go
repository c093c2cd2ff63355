package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/graphload/internal/core"
)

// printSummary writes the per-kind results of a run.
func printSummary(w io.Writer, r *core.RunReport) {
	st := newStyles(w)
	fmt.Fprintln(w, st.title.Render("Import summary")+" "+st.dim.Render("run "+r.RunID))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  KIND\tBATCHES\tROWS\tWRITTEN\tINVALID\tDURATION")
	for _, k := range r.Kinds {
		batches := fmt.Sprintf("%d/%d", k.ResumedFrom+k.BatchesCommitted, k.TotalBatches)
		if k.Skipped {
			batches = "done"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%d\t%s\n",
			k.Name, batches, k.RowsRead, k.RecordsWritten, k.RowsInvalid,
			k.Duration.Round(time.Millisecond))
	}
	tw.Flush()

	fmt.Fprintf(w, "  total written: %d in %s\n", r.TotalWritten(), r.Duration.Round(time.Millisecond))
}
