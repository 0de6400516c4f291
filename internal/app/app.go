package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"parkgate/internal/auth"
	"parkgate/internal/config"
	"parkgate/internal/db"
	"parkgate/internal/fee"
	"parkgate/internal/gate"
	httpserver "parkgate/internal/http"
	"parkgate/internal/http/handlers"
	"parkgate/internal/http/middleware"
	"parkgate/internal/redisstore"
	"parkgate/internal/repository"
	"parkgate/internal/service"
)

// App wires parkgate dependencies.
type App struct {
	server      *httpserver.Server
	hub         *gate.Hub
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := db.NewPostgres(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	var cache *redisstore.Store
	if cfg.Redis.Addr != "" {
		redisClient, err = redisstore.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		cache = redisstore.NewStore(redisClient, 24*time.Hour)
	}

	sessionRepo := repository.NewSessionRepository(sqlDB)
	calculator := fee.NewCalculator(cfg.Parking.HourlyRate)

	var hub *gate.Hub
	var barrier gate.Controller
	var barrierWS *gate.Server
	if cfg.Gate.Mode == config.GateModeRemote {
		hub = gate.NewHub(30*time.Second, logger)
		barrierWS = gate.NewServer(hub, cfg.GateWriteTimeout(), logger)
		barrier = hub
	} else {
		barrier = gate.NewSimulator(logger)
	}

	parkingService := service.NewParkingService(
		service.Config{
			Zones:                    cfg.Parking.Zones,
			RequirePrepayment:        cfg.Parking.RequirePrepayment,
			EvacuationClosesSessions: cfg.Parking.EvacuationClosesSessions,
		},
		sessionRepo,
		calculator,
		barrier,
		cache,
		logger,
	)
	if err := parkingService.Prime(context.Background()); err != nil {
		sqlDB.Close()
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, err
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.TokenTTL())
	operatorAuth := auth.NewOperatorAuth(
		cfg.Auth.OperatorUsername,
		cfg.Auth.OperatorPasswordHash,
		auth.NewBcryptHasher(0),
		tokens,
		logger,
	)

	gateHandler := handlers.NewGateHandler(parkingService, logger)
	adminHandler := handlers.NewAdminHandler(parkingService, logger)

	routes := httpserver.Routes{
		GateEntry:  gateHandler.HandleEntry,
		GateExit:   gateHandler.HandleExit,
		Payments:   handlers.NewPaymentsHandler(parkingService, logger),
		FeePreview: handlers.NewFeePreviewHandler(parkingService, logger),
		Sessions:   handlers.NewActiveSessionsHandler(parkingService),
		Occupancy:  handlers.NewOccupancyHandler(parkingService),
		Login:      handlers.NewLoginHandler(operatorAuth),
		ForceExit:  adminHandler.HandleForceExit,
		ManualOpen: adminHandler.HandleManualOpen,
		Evacuate:   adminHandler.HandleEvacuate,
		Health:     handlers.NewHealthHandler(),
		AdminAuth:  middleware.OperatorAuth(operatorAuth),
	}
	if barrierWS != nil {
		routes.BarrierWS = barrierWS.HandleWS
	}

	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:      server,
		hub:         hub,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts the HTTP server and the barrier keepalive loop.
func (a *App) Run(ctx context.Context) error {
	if a.hub != nil {
		go a.hub.Start(ctx)
	}
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
