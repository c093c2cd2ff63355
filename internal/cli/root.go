// Package cli implements the graphload command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/graphload/internal/config"
	"github.com/JonMunkholm/graphload/internal/core"
	"github.com/JonMunkholm/graphload/internal/logging"
)

const rootLong = `graphload loads record files into a graph store kind by kind, in
dependency order, committing fixed-size batches and checkpointing after
every batch. An interrupted run resumes from the first uncommitted batch.

Configuration comes from the environment (and a .env file); flags override it.

Exit Codes:
  0  - Success
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  10 - Invalid configuration or source data layout
  11 - Graph store connection failed
  13 - Batch write failed
  14 - Checkpoint is corrupt`

// globals holds the persistent flags and the configuration they refine.
type globals struct {
	dataset    string
	dataDir    string
	checkpoint string
	store      string
	logLevel   string
	logFormat  string

	cfg *config.Config
}

// NewRootCommand builds the graphload command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "graphload",
		Short:         "Resumable, dependency-ordered batch import into a graph store",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.dataset, "dataset", "", "Registered dataset to use (default $DATASET or gtfs)")
	pf.StringVar(&g.dataDir, "data-dir", "", "Source directory or s3://bucket/prefix (default $DATA_DIR)")
	pf.StringVar(&g.checkpoint, "checkpoint", "", "Checkpoint path (default $CHECKPOINT_PATH)")
	pf.StringVar(&g.store, "store", "", "Graph store backend: neo4j, postgres or memory (default $STORE_BACKEND)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: text or json")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	root.AddCommand(
		newRunCmd(g),
		newProgressCmd(g),
		newResetCmd(g),
		newClearCmd(g),
		newServeCmd(g),
		newDatasetsCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)

	err := root.Execute()
	code := ExitCodeForError(err)
	if err == nil {
		return code
	}

	errStyle := newStyles(stderr).err
	if code == ExitUsageError {
		fmt.Fprintln(stderr, errStyle.Render("Error: "+err.Error()))
		fmt.Fprintln(stderr, "Run 'graphload --help' for usage.")
		return code
	}
	if !core.IsUserFacing(err) {
		fmt.Fprintln(stderr, errStyle.Render("Error: "+err.Error()))
		return code
	}
	fmt.Fprintln(stderr, errStyle.Render("Error: "+core.FormatUserError(err)))
	fmt.Fprintln(stderr, "  "+err.Error())
	return code
}

// load reads the environment, applies flag overrides and validates the
// result. It also installs the logger.
func (g *globals) load(cmd *cobra.Command) error {
	cfg, err := config.LoadUnvalidated()
	if err != nil {
		return &core.ConfigError{Op: "load configuration", Err: err}
	}

	flags := cmd.Flags()
	if flags.Changed("dataset") {
		cfg.Import.Dataset = g.dataset
	}
	if flags.Changed("data-dir") {
		cfg.Import.DataDir = g.dataDir
	}
	if flags.Changed("checkpoint") {
		cfg.Import.CheckpointPath = g.checkpoint
	}
	if flags.Changed("store") {
		cfg.Store.Backend = g.store
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = g.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return &core.ConfigError{Op: "configuration", Err: err}
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	g.cfg = cfg
	return nil
}

// selectedDataset returns the configured dataset.
func (g *globals) selectedDataset() (core.Dataset, error) {
	ds, ok := core.Get(g.cfg.Import.Dataset)
	if !ok {
		return core.Dataset{}, &core.ConfigError{
			Op:  "select dataset",
			Err: fmt.Errorf("unknown dataset %q (available: %v)", g.cfg.Import.Dataset, core.Names()),
		}
	}
	return ds, nil
}

// exactArgs is cobra.ExactArgs reported as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}

// writerIsTerminal is overridden in tests.
var writerIsTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f)
}
