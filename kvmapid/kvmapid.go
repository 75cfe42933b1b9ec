package kvmapid

import (
	"context"
	"log/slog"
	"net/http"
	"path"

	"github.com/glkvm/kvmapi/astrowarp"
	astrowarphttp "github.com/glkvm/kvmapi/astrowarp/http"
	"github.com/glkvm/kvmapi/hidname"
	hidnamehttp "github.com/glkvm/kvmapi/hidname/http"
	"github.com/glkvm/kvmapi/internal/apiutil"
	"github.com/glkvm/kvmapi/internal/slogctx"
	"github.com/glkvm/kvmapi/internal/sysexec"
	"github.com/glkvm/kvmapi/kvmapid/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"libdb.so/hserve"
)

// Start starts the kvmapid daemon. It runs until the context is canceled.
func Start(ctx context.Context, cfg config.Root, logger *slog.Logger) error {
	errg, ctx := errgroup.WithContext(ctx)

	router := NewRouter(cfg, sysexec.NewExecRunner(logger), logger)
	serve(ctx, errg, "API", cfg.ListenAddr.String(), router, logger)

	if metricsAddr := cfg.MetricsAddr.String(); metricsAddr != "" {
		metrics := chi.NewMux()
		metrics.Get("/health", apiutil.Respond200)
		metrics.Mount("/metrics", promhttp.Handler())
		serve(ctx, errg, "metrics", metricsAddr, metrics, logger)
	}

	return errg.Wait()
}

func serve(ctx context.Context, errg *errgroup.Group, name, addr string, h http.Handler, logger *slog.Logger) {
	errg.Go(func() error {
		logger.Info("starting HTTP server", "server", name, "addr", addr)
		if err := hserve.ListenAndServe(ctx, addr, h); err != nil {
			logger.Error(
				"failed to start HTTP server",
				"server", name,
				"addr", addr,
				"err", err)
			return err
		}
		return nil
	})
}

// NewRouter builds the daemon's HTTP handler. All commands are run through
// runner.
func NewRouter(cfg config.Root, runner sysexec.Runner, logger *slog.Logger) http.Handler {
	astrowarpService := astrowarp.NewService(
		cfg.Astrowarp,
		runner,
		logger.With("component", "astrowarp"))

	hidnameLogger := logger.With("component", "hidname")
	hidnameService := hidname.NewService(
		hidname.NewStore(cfg.HIDName.Defaults, cfg.HIDName.OverridePath, hidnameLogger),
		sysexec.NewRebooter(
			runner,
			cfg.HIDName.Reboot.SyncCommand,
			cfg.HIDName.Reboot.RebootCommand,
			cfg.HIDName.Reboot.Delay.D(),
			hidnameLogger),
		hidnameLogger)

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.CleanPath)
	router.Use(middleware.Recoverer)

	router.Get("/health", apiutil.Respond200)
	if cfg.MetricsAddr == "" {
		router.Mount("/metrics", promhttp.Handler())
	}

	router.Route(apiPrefix(cfg.APIPrefix), func(r chi.Router) {
		r.Use(cors.AllowAll().Handler)
		r.Use(slogctx.Middleware(logger))

		logger.Debug("adding HTTP handlers", "prefix", cfg.APIPrefix)

		r.Mount("/astrowarp", astrowarphttp.NewHandler(astrowarpService))
		r.Mount("/hidname", hidnamehttp.NewHandler(hidnameService))
	})

	return router
}

func apiPrefix(prefix string) string {
	return path.Clean("/" + prefix)
}
