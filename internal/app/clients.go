package app

import (
	"context"
	"fmt"

	"github.com/poldracklab/cogat/internal/data/graph"
	"github.com/poldracklab/cogat/internal/domain/atlas"
	"github.com/poldracklab/cogat/internal/observability"
	"github.com/poldracklab/cogat/internal/platform/logger"
	"github.com/poldracklab/cogat/internal/platform/neo4jdb"
)

func loadRegistry(log *logger.Logger, cfg Config) (*atlas.Registry, error) {
	if cfg.CatalogPath == "" {
		return atlas.DefaultRegistry()
	}
	log.Info("Loading entity catalog", "path", cfg.CatalogPath)
	return atlas.LoadRegistryFile(cfg.CatalogPath)
}

// wireBackend opens the graph store. Neo4j gets its id constraints created
// before the first request.
func wireBackend(ctx context.Context, log *logger.Logger, cfg Config, reg *atlas.Registry, metrics *observability.Metrics) (graph.Backend, error) {
	log.Info("Wiring graph backend...", "backend", cfg.GraphBackend)
	switch cfg.GraphBackend {
	case BackendMemory:
		return graph.NewMemoryBackend(), nil
	case BackendNeo4j:
		client, err := neo4jdb.New(ctx, cfg.Neo4j, log)
		if err != nil {
			return nil, fmt.Errorf("init neo4j: %w", err)
		}
		var observer graph.QueryObserver
		if metrics != nil {
			observer = metrics
		}
		backend := graph.NewNeo4jBackend(client, log, observer)
		backend.EnsureSchema(ctx, reg.Labels())
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown graph backend %q", cfg.GraphBackend)
	}
}
