package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/graphload/internal/progress"
)

func newProgressCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show the checkpoint of every kind of the dataset",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.load(cmd); err != nil {
				return err
			}
			ds, err := g.selectedDataset()
			if err != nil {
				return err
			}

			cp, err := openCheckpoint(g.cfg)
			if err != nil {
				return err
			}
			defer cp.close()

			ps, err := progress.Open(cp.backend)
			if err != nil {
				return err
			}
			return renderProgress(cmd.OutOrStdout(), ps, ds.ProgressKeys())
		},
	}
}

// renderProgress writes the plain listing to pipes and files, and a
// colored one to terminals.
func renderProgress(w io.Writer, ps *progress.Store, kinds []string) error {
	if !writerIsTerminal(w) {
		return ps.Render(w, kinds)
	}

	st := newStyles(w)
	width := 0
	for _, k := range kinds {
		width = max(width, len(k))
	}

	var b strings.Builder
	b.WriteString(st.title.Render("Import progress") + " " + st.dim.Render(ps.Location()) + "\n")
	for _, kind := range kinds {
		rec := ps.Status(kind)
		fmt.Fprintf(&b, "  %s %-*s  %s %s\n",
			rec.Marker(), width, kind,
			st.status(rec.Status).Render(fmt.Sprintf("%-11s", rec.Label())),
			st.dim.Render("("+rec.Fraction()+")"))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
