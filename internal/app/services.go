package app

import (
	"github.com/poldracklab/cogat/internal/platform/logger"
	"github.com/poldracklab/cogat/internal/services"
)

type Services struct {
	Atlas services.AtlasService
}

func wireServices(log *logger.Logger, repos Repos) Services {
	log.Info("Wiring services...")
	return Services{
		Atlas: services.NewAtlasService(log, repos.Nodes),
	}
}
