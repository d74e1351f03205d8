package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"receiptvault/internal/platform/health"
	"receiptvault/internal/platform/middleware"
	"receiptvault/internal/vault/workers/expiry"
)

const (
	shutdownTimeout   = 10 * time.Second
	requestTimeout    = 15 * time.Second
	poolStatsInterval = 15 * time.Second
)

// NewServeCommand creates the serve subcommand.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the retention sweep and serve health and metrics",
		Long: `Serve keeps the vault open, sweeps expired artifacts every
expiry_interval and serves /health, /health/live, /health/ready and /metrics
until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd, rootOpts, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides metrics_addr)")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, rootOpts *RootOptions, addr string) (err error) {
	reg := prometheus.NewRegistry()
	a, err := openApp(ctx, rootOpts, cmd.ErrOrStderr(), appOptions{longRunning: true, registry: reg})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if addr == "" {
		addr = a.cfg.MetricsAddr
	}
	worker, err := expiry.New(a.vault,
		expiry.WithInterval(a.cfg.ExpiryInterval),
		expiry.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newServeRouter(a, prometheus.Gatherers{reg, prometheus.DefaultGatherer}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	a.logger.Info("vault serving",
		"addr", addr,
		"backend", a.cfg.Backend,
		"audit_sink", a.cfg.AuditSink,
		"expiry_interval", a.cfg.ExpiryInterval,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := worker.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if a.redis != nil {
		g.Go(func() error {
			a.redis.RunPoolStats(gctx, poolStatsInterval)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "serve", err)
	}
	a.logger.Info("vault stopped")
	return nil
}

// newServeRouter mounts the health probes and the metrics endpoint.
func newServeRouter(a *app, gatherer prometheus.Gatherer) http.Handler {
	h := health.New(a.cfg.Environment, a.cfg.Backend)
	for name, check := range a.checks {
		h.RegisterCheck(name, check)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.Logger(a.logger))
	r.Use(middleware.Timeout(requestTimeout))

	h.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}
