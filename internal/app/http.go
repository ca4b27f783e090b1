package app

import (
	"github.com/poldracklab/cogat/internal/data/graph"
	httpx "github.com/poldracklab/cogat/internal/http"
	httpH "github.com/poldracklab/cogat/internal/http/handlers"
	httpMW "github.com/poldracklab/cogat/internal/http/middleware"
	"github.com/poldracklab/cogat/internal/observability"
	"github.com/poldracklab/cogat/internal/platform/logger"
)

type Middleware struct {
	Actor *httpMW.ActorMiddleware
}

type Handlers struct {
	Health   *httpH.HealthHandler
	API      *httpH.APIHandler
	Nodes    *httpH.NodeHandler
	Links    *httpH.LinkHandler
	Views    *httpH.ViewHandler
	Curation *httpH.CurationHandler
}

func wireHandlers(log *logger.Logger, g graph.Backend, repos Repos, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(g),
		API:      httpH.NewAPIHandler(log, repos.Catalog, services.Atlas),
		Nodes:    httpH.NewNodeHandler(log, repos.Catalog, services.Atlas),
		Links:    httpH.NewLinkHandler(log, repos.Nodes, services.Atlas),
		Views:    httpH.NewViewHandler(log, repos.Catalog),
		Curation: httpH.NewCurationHandler(log, repos.Catalog, services.Atlas),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	if cfg.JWTSecret == "" {
		log.Warn("no JWT secret configured; write endpoints will reject every request")
	}
	return Middleware{
		Actor: httpMW.NewActorMiddleware(log, cfg.JWTSecret),
	}
}

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *httpx.Server {
	return httpx.NewServer(httpx.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     cfg.ServiceName,
		CORSOrigins:     cfg.CORSOrigins,
		ActorMiddleware: middleware.Actor,
		HealthHandler:   handlers.Health,
		APIHandler:      handlers.API,
		NodeHandler:     handlers.Nodes,
		LinkHandler:     handlers.Links,
		ViewHandler:     handlers.Views,
		CurationHandler: handlers.Curation,
	})
}
