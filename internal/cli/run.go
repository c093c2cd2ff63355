package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/graphload/internal/config"
	"github.com/JonMunkholm/graphload/internal/core"
	"github.com/JonMunkholm/graphload/internal/logging"
	"github.com/JonMunkholm/graphload/internal/metrics"
	"github.com/JonMunkholm/graphload/internal/progress"
	"github.com/JonMunkholm/graphload/internal/web"
)

type runFlags struct {
	batchSize         int
	only              []string
	skipRelationships bool
	statusAddr        string
	retries           int
	radius            float64
}

func newRunCmd(g *globals) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Import the dataset, resuming from the checkpoint",
		Long: `Run imports every kind of the dataset in dependency order, then builds its
relationships. Kinds already completed are skipped; an in-progress kind
resumes at its first uncommitted batch.

Examples:
  # Import GTFS feed files from ./feed into Neo4j
  graphload run --dataset gtfs --data-dir ./feed

  # Load two kinds only, with a live status page
  graphload run --only agency,route --status-addr :9100

  # Validate a feed without a database
  graphload run --store memory`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.load(cmd); err != nil {
				return err
			}
			applyRunFlags(cmd, g.cfg, f)
			if err := g.cfg.Validate(); err != nil {
				return &core.ConfigError{Op: "configuration", Err: err}
			}
			return runImport(cmd, g, f)
		},
	}

	fl := cmd.Flags()
	fl.IntVar(&f.batchSize, "batch-size", 0, "Source rows per batch (default $BATCH_SIZE or 1000)\n"+
		"Must stay the same across resumes of a kind")
	fl.StringSliceVar(&f.only, "only", nil, "Import only these kinds (comma-separated); relationships are skipped")
	fl.BoolVar(&f.skipRelationships, "skip-relationships", false, "Do not build relationships")
	fl.StringVar(&f.statusAddr, "status-addr", "", "Serve status and metrics on this address during the run (default $STATUS_ADDR)")
	fl.IntVar(&f.retries, "retries", 0, "Retries per batch after transient store errors (default $BATCH_RETRY_ATTEMPTS or 0)")
	fl.Float64Var(&f.radius, "radius", 0, "Override every proximity rule's distance in meters")
	return cmd
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config, f runFlags) {
	flags := cmd.Flags()
	if flags.Changed("batch-size") {
		cfg.Import.BatchSize = f.batchSize
	}
	if flags.Changed("status-addr") {
		cfg.Status.Addr = f.statusAddr
	}
	if flags.Changed("retries") {
		cfg.Retry.Attempts = f.retries
	}
	if flags.Changed("radius") {
		cfg.Import.ProximityRadius = f.radius
	}
}

func runImport(cmd *cobra.Command, g *globals, f runFlags) error {
	cfg := g.cfg
	ds, err := g.selectedDataset()
	if err != nil {
		return err
	}
	kinds, err := core.SelectKinds(ds, f.only)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := logging.NewRunID()
	ctx = logging.ContextWithRunID(ctx, runID)
	logger := logging.FromContext(ctx)
	logger.Info("import starting",
		"dataset", ds.Name,
		"kinds", len(kinds),
		"data_dir", cfg.Import.DataDir,
		"store", cfg.Store.Backend,
		"batch_size", cfg.Import.BatchSize,
	)
	logger.Debug("configuration", "config", cfg.String())

	cp, err := openCheckpoint(cfg)
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

	opener, err := openSource(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, labels(ds))
	if err != nil {
		return err
	}
	defer closeStore(store)

	m := metrics.New(cfg.Status.Addr != "")
	opts := pipelineOptions(cfg, m)
	buildRelationships := !f.skipRelationships && len(f.only) == 0

	var report *core.RunReport
	eg, egCtx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(egCtx)
	defer stopServer()

	if cfg.Status.Addr != "" {
		srv := web.NewServer(web.LiveProgress(ps), ds.Name, ds.ProgressKeys(), m)
		eg.Go(func() error {
			return srv.Run(serverCtx, cfg.Status.Addr, cfg.Status.ShutdownTimeout)
		})
	}

	eg.Go(func() error {
		defer stopServer()

		var err error
		report, err = core.NewPipeline(store, ps, opener, opts...).Run(egCtx, kinds)
		if err != nil || !buildRelationships {
			return err
		}

		rels, err := core.NewRelationshipBuilder(store, ps, opts...).Build(egCtx, ds)
		report.Merge(rels)
		return err
	})

	err = eg.Wait()
	if report != nil {
		report.RunID = runID
		printSummary(cmd.OutOrStdout(), report)
	}
	if err != nil {
		logger.Error("import failed", "error", err, "code", core.MapError(err).Code)
		return err
	}

	logger.Info("import finished", "written", report.TotalWritten(), "duration", report.Duration)
	if len(f.only) == 0 {
		return renderProgress(cmd.OutOrStdout(), ps, ds.ProgressKeys())
	}
	return nil
}
