package app

import (
	"context"
	"fmt"
	"time"

	"github.com/poldracklab/cogat/internal/data/graph"
	httpx "github.com/poldracklab/cogat/internal/http"
	"github.com/poldracklab/cogat/internal/observability"
	"github.com/poldracklab/cogat/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Graph    graph.Backend
	Repos    Repos
	Services Services
	Server   *httpx.Server
	Metrics  *observability.Metrics

	otelShutdown func(context.Context) error
}

func New(ctx context.Context, cfg Config) (*App, error) {
	log, err := logger.New(logger.Options{Mode: cfg.LogMode, Level: cfg.LogLevel, HashIDs: cfg.LogHashIDs})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Sync()
		return nil, err
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfigFromEnv(cfg.ServiceName, cfg.Version))

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	reg, err := loadRegistry(log, cfg)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	backend, err := wireBackend(ctx, log, cfg, reg, metrics)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(backend, reg, log, metrics)
	serviceset := wireServices(log, reposet)
	handlerset := wireHandlers(log, backend, reposet, serviceset)
	middleware := wireMiddleware(log, cfg)
	server := wireServer(log, cfg, metrics, handlerset, middleware)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Graph:        backend,
		Repos:        reposet,
		Services:     serviceset,
		Server:       server,
		Metrics:      metrics,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	timeout := a.Cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return a.Server.Run(ctx, a.Cfg.HTTPAddr, timeout)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.Graph != nil {
		if err := a.Graph.Close(ctx); err != nil {
			a.Log.Warn("graph close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
