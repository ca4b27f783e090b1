package app

import (
	"github.com/poldracklab/cogat/internal/data/graph"
	"github.com/poldracklab/cogat/internal/data/repos/nodes"
	"github.com/poldracklab/cogat/internal/domain/atlas"
	"github.com/poldracklab/cogat/internal/observability"
	"github.com/poldracklab/cogat/internal/platform/logger"
)

type Repos struct {
	Nodes   nodes.NodeRepo
	Catalog *nodes.Catalog
}

func wireRepos(g graph.Backend, reg *atlas.Registry, log *logger.Logger, metrics *observability.Metrics) Repos {
	log.Info("Wiring repos...")
	var links nodes.LinkObserver
	if metrics != nil {
		links = metrics
	}
	repo := nodes.NewNodeRepo(g, reg, log, links)
	return Repos{
		Nodes:   repo,
		Catalog: nodes.NewCatalog(repo),
	}
}
