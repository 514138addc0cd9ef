package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ridequery/internal/config"
	"ridequery/internal/database"
	"ridequery/internal/handler"
	"ridequery/internal/repository"
	"ridequery/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Ride query server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	ctx := context.Background()

	// Initialize database connection
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Connected to ride database", zap.String("type", string(cfg.Database.Type)))

	repos := repository.NewRepositories(db)

	healthChecks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error { return db.PingContext(ctx) },
	}

	// Redis backs the geocode cache and requester store when configured
	var (
		rdb        *redis.Client
		requesters service.RequesterStore
	)
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", zap.Error(err))
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis is unreachable, continuing without cache", zap.Error(err))
		}
		requesters = service.NewRedisRequesterStore(rdb)
		healthChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info("Redis enabled", zap.String("addr", opts.Addr))
	} else {
		requesters = service.NewMemoryRequesterStore()
		logger.Warn("REDIS_URL not set, requester settings are kept in memory")
	}

	provider, err := newGeocodeProvider(cfg, repos)
	if err != nil {
		logger.Fatal("Failed to create geocoder", zap.Error(err))
	}
	geocoder := service.NewGeocodingService(provider, rdb, cfg.Geocoder.CacheTTL, cfg.Geocoder.NegativeCacheTTL, logger)

	llm, err := service.NewLanguageModel(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create language model", zap.Error(err))
	}
	if llm.IsEnabled() {
		logger.Info("Language model enabled", zap.String("provider", llm.Name()))
	} else {
		logger.Warn("Language model disabled, every message is treated as unconstrained",
			zap.String("provider", llm.Name()))
	}

	// Initialize services
	loc := cfg.Search.Location()
	intentParser := service.NewIntentParser(llm, cfg.Timeouts.ExternalCall, logger)
	ranker := service.NewRanker(loc)
	gateway := service.NewRideGateway(repos.Rides, ranker, cfg.Search.UpstreamCap, time.Now, logger)
	formatter := service.NewFormatter(cfg.Bot.PublicBaseURL, loc, time.Now)
	interpreter := service.NewInterpreter(intentParser, geocoder, gateway, formatter, service.EngineConfig{
		DefaultRadiusKm: cfg.Search.DefaultRadiusKm,
		RelaxedRadiusKm: cfg.Search.RelaxedRadiusKm,
		ResultLimit:     cfg.Search.DefaultLimit,
		CallTimeout:     cfg.Timeouts.ExternalCall,
		Location:        loc,
	}, time.Now, logger)
	searchService := service.NewSearchService(
		interpreter,
		requesters,
		repos.Rides,
		repos.Searches,
		geocoder,
		formatter,
		cfg.Timeouts.Interpretation,
		logger,
	)

	router := handler.NewRouter(handler.RouterConfig{
		Service: searchService,
		Health: handler.NewHealthHandler(handler.BuildInfo{
			Version:   Version,
			BuildTime: BuildTime,
			GitCommit: GitCommit,
		}, healthChecks),
		Logger:          logger,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RateLimitPerMin: cfg.Server.RateLimitPerMin,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		EmbeddingDims:   cfg.OpenAI.EmbeddingDims,
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownDeadline)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	searchService.Wait()
	logger.Info("Server stopped")
}

func newGeocodeProvider(cfg *config.Config, repos *repository.Container) (service.GeocodeProvider, error) {
	switch cfg.Geocoder.Provider {
	case "", "nominatim":
		return service.NewNominatimProvider(cfg.Geocoder), nil
	case "gazetteer":
		return service.NewGazetteerProvider(repos.Cities), nil
	default:
		return nil, fmt.Errorf("unsupported GEOCODER_PROVIDER %q", cfg.Geocoder.Provider)
	}
}
