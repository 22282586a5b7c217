package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sidekick-relay/internal/config"
	"sidekick-relay/internal/history"
	"sidekick-relay/internal/logging"
	"sidekick-relay/internal/metrics"
	"sidekick-relay/internal/relay"
	"sidekick-relay/internal/server"
)

const sessionDrainTimeout = 5 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP relay server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				if port < 0 || port > 65535 {
					return fmt.Errorf("port override %d must be a valid TCP port", port)
				}
				cfg.Server.Port = port
			}
			return serve(cmd.Context(), cfg, root.configPath)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "override server host from configuration")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server port from configuration")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, configPath string) error {
	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	client, err := newBackendClient(cfg)
	if err != nil {
		return err
	}

	coord, err := relay.NewCoordinator(ctx, client,
		history.NewStore(cfg.Relay.HistoryLimit),
		relay.NewHub(cfg.Relay.SubscriberBuffer, m),
		relay.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, coord, client, reg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, configPath, config.DefaultReloadDebounce, func(next config.Config) {
				srv.SetBackendDefaults(next.Backend)
				slog.Info("backend defaults updated",
					"endpoint_base", next.Backend.EndpointBase,
					"model", next.Backend.Model,
					"protocol", next.Backend.Protocol,
				)
			})
		})
	}

	runErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), sessionDrainTimeout)
	defer cancel()
	if err := coord.Shutdown(drainCtx); err != nil {
		slog.Warn("sessions did not finish before exit", "error", err)
	}
	return runErr
}
