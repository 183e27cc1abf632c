package app

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libredis "chargeway/backend/libs/redis"
	"chargeway/backend/services/charging-service/internal/battery"
	appconfig "chargeway/backend/services/charging-service/internal/config"
	"chargeway/backend/services/charging-service/internal/effects"
	httpserver "chargeway/backend/services/charging-service/internal/http"
	"chargeway/backend/services/charging-service/internal/http/handlers"
	"chargeway/backend/services/charging-service/internal/http/middleware"
	"chargeway/backend/services/charging-service/internal/inventory"
	"chargeway/backend/services/charging-service/internal/metrics"
	"chargeway/backend/services/charging-service/internal/password"
	"chargeway/backend/services/charging-service/internal/ratelimit"
	"chargeway/backend/services/charging-service/internal/realtime"
	"chargeway/backend/services/charging-service/internal/seed"
	"chargeway/backend/services/charging-service/internal/service"
	"chargeway/backend/services/charging-service/internal/session"
)

const drainTimeout = 10 * time.Second

// App wires dependencies for the charging service.
type App struct {
	cfg     *appconfig.Config
	server  *httpserver.Server
	storage *Storage
	redis   *goredis.Client
	hub     *realtime.Hub
	effects *effects.Runner
	seeder  *seed.Seeder
	logger  *zap.Logger
}

// New builds application graph.
func New(ctx context.Context, cfg *appconfig.Config, logger *zap.Logger) (*App, error) {
	storage, err := OpenStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	rdb, err := libredis.NewRedisClient(libredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		storage.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := metrics.New(registry)
	if err != nil {
		storage.Close()
		_ = rdb.Close()
		return nil, err
	}

	policy := battery.Policy{DrainTick: cfg.Charging.DrainTick, DrainStep: cfg.Charging.DrainStep}
	hub := realtime.NewHub(cfg.Charging.TickInterval, rec, logger)
	runner := effects.NewRunner(effects.Options{
		Workers:   cfg.Effects.Workers,
		QueueSize: cfg.Effects.QueueSize,
		Timeout:   cfg.Effects.Timeout,
	}, rec, logger)

	chargingSvc := service.NewChargingService(service.ChargingConfig{
		PerPercentInterval: cfg.Charging.PerPercentInterval,
		TickTimeout:        cfg.Charging.TickTimeout,
		Battery:            policy,
	}, service.ChargingDeps{
		Stations:  storage.Stations,
		Vehicles:  storage.Vehicles,
		Tickets:   storage.Tickets,
		Inventory: inventory.New(storage.Stations, rec, logger),
		Hub:       hub,
		Effects:   runner,
		Metrics:   rec,
		Logger:    logger,
	})
	hasher := password.NewBcryptHasher(0)
	authSvc := service.NewAuthService(storage.Users, hasher, logger)
	userSvc := service.NewUserService(storage.Users, hasher, logger)
	vehicleSvc := service.NewVehicleService(storage.Vehicles, policy, runner, logger, nil)
	stationSvc := service.NewStationService(storage.Stations, logger)
	historySvc := service.NewHistoryService(storage.History, logger, nil)

	sessions := session.NewManager(
		session.NewStore(rdb, cfg.Session.TTL),
		session.NewCodec(cfg.Session.Secret, cfg.Session.TTL),
		session.CookieOptions{Secure: cfg.IsProduction()},
	)
	limiter := ratelimit.New(rdb, ratelimit.Options{Window: cfg.RateLimit.Window, Max: cfg.RateLimit.Max}, rec, logger)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Auth:         handlers.NewAuthHandlers(authSvc, sessions, logger),
		Stations:     handlers.NewStationsHandlers(stationSvc, logger),
		Charging:     handlers.NewChargingHandlers(chargingSvc, logger),
		Vehicles:     handlers.NewVehiclesHandlers(vehicleSvc, logger),
		History:      handlers.NewHistoryHandlers(historySvc, logger),
		Profile:      handlers.NewProfileHandlers(userSvc, logger),
		Admin:        handlers.NewAdminHandlers(userSvc, logger),
		Progress:     handlers.NewProgressHandler(hub, chargingSvc, cfg.HTTP.CORSOrigins, realtime.ConnOptions{}, logger),
		Health:       handlers.NewHealthHandler(),
		Metrics:      metrics.Handler(registry),
		RequireUser:  middleware.RequireUser(sessions, logger),
		RequireAdmin: middleware.RequireAdmin(authSvc, logger),
		RateLimit:    limiter.Middleware(middleware.RateLimitClient),
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		Logger:       logger,
	})

	return &App{
		cfg:     cfg,
		server:  httpserver.NewServer(cfg.HTTPAddress(), router, logger),
		storage: storage,
		redis:   rdb,
		hub:     hub,
		effects: runner,
		seeder:  seed.New(storage.Stations, storage.Vehicles, authSvc, logger),
		logger:  logger,
	}, nil
}

// Run seeds reference data and serves HTTP traffic until context cancellation.
func (a *App) Run(ctx context.Context) error {
	if err := a.seeder.Run(ctx, AdminInput(a.cfg)); err != nil {
		a.logger.Error("startup seed failed", zap.Error(err))
	}
	return a.server.Run(ctx)
}

// Close stops timers and drains queued writes before releasing connections.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := a.hub.Shutdown(ctx); err != nil {
		a.logger.Warn("progress hub shutdown", zap.Error(err))
	}
	if err := a.effects.Close(ctx); err != nil {
		a.logger.Warn("effects drain", zap.Error(err))
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Warn("failed to close redis", zap.Error(err))
	}
	a.storage.Close()
}

// AdminInput maps the admin bootstrap settings.
func AdminInput(cfg *appconfig.Config) service.AdminInput {
	return service.AdminInput{
		Email:    cfg.Admin.Email,
		Password: cfg.Admin.Password,
		Name:     cfg.Admin.Name,
		Region:   cfg.Admin.Region,
	}
}
