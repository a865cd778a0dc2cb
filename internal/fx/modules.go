package fx

import (
	"pickup-rating/internal/config"
	"pickup-rating/internal/database"
	"pickup-rating/internal/logger"
	"pickup-rating/internal/repository"
	"pickup-rating/internal/scheduler"
	"pickup-rating/internal/server"
	"pickup-rating/internal/service"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewHistoryRepository),
	fx.Provide(repository.NewMatchRepository),
	fx.Provide(repository.NewSettingsRepository),
	// svc
	fx.Provide(service.NewSettlementService),
	fx.Provide(service.NewMaintenanceService),
	fx.Provide(service.NewLeaderboardService),
	// jobs
	fx.Provide(scheduler.New),
	// server
	fx.Provide(server.NewAPIServer),
)
