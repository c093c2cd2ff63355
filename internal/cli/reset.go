package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/graphload/internal/core"
	"github.com/JonMunkholm/graphload/internal/progress"
)

func newResetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <kind|all>",
		Short: "Forget the checkpoint of one kind, or of every kind",
		Long: `Reset discards checkpoint entries so the next run re-imports them. Nodes
already in the store are left alone; re-importing overwrites them.

Resetting one kind does not reset the kinds that depend on it. Relationship
checkpoints are named rel:<KIND>.

"reset all" also recovers from a corrupt checkpoint.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.load(cmd); err != nil {
				return err
			}
			return resetCheckpoint(cmd, g, args[0])
		},
	}
}

func resetCheckpoint(cmd *cobra.Command, g *globals, target string) error {
	ds, err := g.selectedDataset()
	if err != nil {
		return err
	}
	if target != "all" && !slices.Contains(ds.ProgressKeys(), target) {
		return &UsageError{Err: fmt.Errorf("dataset %s has no kind %q", ds.Name, target)}
	}

	if target == "all" {
		return resetAll(cmd, g)
	}

	cp, err := openCheckpoint(g.cfg)
	if err != nil {
		return err
	}
	defer cp.close()

	release, err := cp.lock()
	if err != nil {
		return err
	}
	defer release()

	ps, err := progress.Open(cp.backend)
	if err != nil {
		return err
	}
	if err := ps.Reset(target); err != nil {
		return err
	}
	slog.Info("kind reset", "kind", target, "location", ps.Location())
	fmt.Fprintf(cmd.OutOrStdout(), "Reset %s\n", target)

	for _, k := range ds.Kinds {
		if slices.Contains(k.DependsOn, target) && ps.Status(k.Name).Status != progress.Pending {
			fmt.Fprintf(cmd.OutOrStdout(), "  note: %s depends on %s and keeps its checkpoint\n", k.Name, target)
		}
	}
	return nil
}

func resetAll(cmd *cobra.Command, g *globals) error {
	release, err := lockCheckpoint(g.cfg.Import.CheckpointPath)
	if err != nil {
		return err
	}
	defer release()

	cp, err := openCheckpointRecovering(g.cfg)
	if err != nil {
		return err
	}
	defer cp.close()

	if err := progress.ResetBackend(cp.backend); err != nil {
		return err
	}
	slog.Info("checkpoint reset", "location", cp.backend.Location())
	fmt.Fprintf(cmd.OutOrStdout(), "Reset all kinds in %s\n", cp.backend.Location())
	return nil
}

func newClearCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the checkpoint",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.load(cmd); err != nil {
				return err
			}

			release, err := lockCheckpoint(g.cfg.Import.CheckpointPath)
			if err != nil {
				return err
			}
			defer release()

			cp, err := openCheckpointRecovering(g.cfg)
			if err != nil {
				return err
			}
			defer cp.close()

			if err := cp.backend.Clear(); err != nil {
				return &core.ConfigError{Op: "clear checkpoint", Err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", cp.backend.Location())
			return nil
		},
	}
}
