package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/graphload/internal/core"
)

func newDatasetsCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List registered datasets and their kinds",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			st := newStyles(out)

			for _, ds := range core.All() {
				fmt.Fprintf(out, "%s  %s\n", st.title.Render(ds.Name), st.dim.Render(ds.Description))
				if !verbose {
					continue
				}
				for _, k := range ds.Kinds {
					line := fmt.Sprintf("  %-16s %-22s %s", k.Name, k.File, k.Label)
					if len(k.DependsOn) > 0 {
						line += " <- " + strings.Join(k.DependsOn, ", ")
					}
					if k.Optional {
						line += st.dim.Render(" (optional)")
					}
					fmt.Fprintln(out, line)
				}
				for _, r := range ds.Relationships {
					fmt.Fprintf(out, "  %-16s %s -> %s\n", r.ProgressKey(), r.Source, r.Target)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show kinds and relationships")
	return cmd
}
