package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/websearch/internal/app"
	"github.com/FranksOps/websearch/internal/config"
	"github.com/FranksOps/websearch/internal/metrics"
	"github.com/FranksOps/websearch/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var transport, addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Logs always go to stderr; stdout belongs to the stdio transport.
			cfg, logger, err := opts.load(os.Stderr)
			if err != nil {
				return err
			}
			if transport != "" {
				cfg.Server.Transport = transport
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			svc, err := app.Build(cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			srv := server.New(svc.Pipeline, server.NewInfo(svc.Pipeline, version), logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)

			if cfg.Server.MetricsAddr != "" {
				ms := metrics.NewServer(cfg.Server.MetricsAddr, logger)
				g.Go(ms.ListenAndServe)
				g.Go(func() error {
					<-gctx.Done()
					return ms.Stop(context.Background())
				})
			}

			g.Go(func() error {
				defer stop()
				if cfg.Server.Transport == config.TransportStdio {
					return srv.RunStdio(gctx)
				}
				return srv.ListenAndServe(gctx, cfg.Server.Addr, server.HTTPConfig{
					Path:            cfg.Server.Path,
					ReadTimeout:     cfg.Server.ReadTimeout,
					ShutdownTimeout: cfg.Server.ShutdownTimeout,
				})
			})

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "override server.transport (http or stdio)")
	cmd.Flags().StringVar(&addr, "addr", "", "override server.addr")
	return cmd
}
