package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/graphload/internal/metrics"
	"github.com/JonMunkholm/graphload/internal/web"
)

const defaultStatusAddr = ":9100"

func newServeCmd(g *globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the checkpoint over HTTP",
		Long: `Serve starts the status server without importing. The checkpoint is
re-read on every request, so it can watch a run started elsewhere.

Routes: / (HTML), /progress (JSON), /progress.txt, /healthz, /metrics`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.load(cmd); err != nil {
				return err
			}
			ds, err := g.selectedDataset()
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("addr") {
				addr = g.cfg.Status.Addr
			}
			if addr == "" {
				addr = defaultStatusAddr
			}

			cp, err := openCheckpoint(g.cfg)
			if err != nil {
				return err
			}
			defer cp.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := web.NewServer(web.ReloadingProgress(cp.backend), ds.Name, ds.ProgressKeys(), metrics.New(true))
			return srv.Run(ctx, addr, g.cfg.Status.ShutdownTimeout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default $STATUS_ADDR or "+defaultStatusAddr+")")
	return cmd
}
