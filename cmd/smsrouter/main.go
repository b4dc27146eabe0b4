package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/smsrouter/internal/boot"
	"github.com/memohai/smsrouter/internal/config"
	"github.com/memohai/smsrouter/internal/handlers"
	"github.com/memohai/smsrouter/internal/logger"
	"github.com/memohai/smsrouter/internal/metrics"
	"github.com/memohai/smsrouter/internal/router"
	"github.com/memohai/smsrouter/internal/server"
	"github.com/memohai/smsrouter/internal/store"
	"github.com/memohai/smsrouter/internal/transport"
	"github.com/memohai/smsrouter/internal/version"
)

func provideConfig() (config.Config, error) {
	_ = godotenv.Load()
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*store.Observed, error) {
	st, err := store.Open(context.Background(), log, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return st.Close()
		},
	})
	observed := store.NewObserved(st)
	metrics.ObserveStore(observed)
	return observed, nil
}

func provideRouter(log *slog.Logger, cfg config.Config, st *store.Observed) (*router.Router, error) {
	return boot.NewRouter(log, cfg, st)
}

func provideTransports(log *slog.Logger, cfg config.Config, rt *boot.RuntimeConfig, st *store.Observed, r *router.Router) (*transport.Registry, error) {
	return boot.NewTransports(log, cfg, rt, st, r)
}

func main() {
	fx.New(
		fx.Provide(
			provideConfig,
			boot.ProvideRuntimeConfig,
			provideLogger,

			provideStore,
			provideRouter,
			provideTransports,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(handlers.NewLoopbackHandler),
			provideServerHandler(handlers.NewMetricsHandler),

			provideServer,
		),
		fx.Invoke(
			syncRoutes,
			startTransports,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideWebhookHandler(log *slog.Logger, transports *transport.Registry, rt *boot.RuntimeConfig) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, transports, rt.WebhookTransport)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	RuntimeConfig  *boot.RuntimeConfig
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.RuntimeConfig.ServerAddr, params.ServerHandlers...)
}

func syncRoutes(lc fx.Lifecycle, r *router.Router) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return r.SyncRoutes(ctx)
		},
	})
}

func startTransports(lc fx.Lifecycle, transports *transport.Registry) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return transports.StartAll(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return transports.StopAll(ctx)
		},
	})
}

func startServer(
	lc fx.Lifecycle,
	logger *slog.Logger,
	srv *server.Server,
	shutdowner fx.Shutdowner,
) {
	fmt.Printf("Starting smsrouter %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
