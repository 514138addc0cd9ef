package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig wires handlers and middleware into one engine
type RouterConfig struct {
	Service         SearchService
	Health          *HealthHandler
	Logger          *zap.Logger
	AllowedOrigins  string
	RateLimitPerMin float64
	RateLimitBurst  int
	EmbeddingDims   int
}

// NewRouter builds the HTTP routes
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	chatHandler := NewChatHandler(cfg.Service, logger)
	rideHandler := NewRideHandler(cfg.Service)
	requesterHandler := NewRequesterHandler(cfg.Service)
	feedbackHandler := NewFeedbackHandler(cfg.Service)
	embeddingHandler := NewEmbeddingHandler(cfg.Service, cfg.EmbeddingDims)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))
	router.Use(CORS(cfg.AllowedOrigins))

	if cfg.Health != nil {
		router.GET("/health", cfg.Health.Health)
		router.GET("/version", cfg.Health.Version)
	}

	apiV1 := router.Group("/api/v1")
	if cfg.RateLimitPerMin > 0 {
		apiV1.Use(NewIPRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitBurst, logger).RateLimit())
	}
	{
		// Chat endpoints
		apiV1.POST("/chat/query", chatHandler.Query)
		apiV1.POST("/chat/query/stream", chatHandler.QueryStream)

		apiV1.GET("/rides/:id", rideHandler.Get)

		// Requester context, written outside the interpretation flow
		apiV1.GET("/requesters/:id", requesterHandler.Get)
		apiV1.PUT("/requesters/:id/location", requesterHandler.UpdateLocation)
		apiV1.PUT("/requesters/:id/settings", requesterHandler.UpdateSettings)

		apiV1.POST("/feedback", feedbackHandler.Submit)
		apiV1.POST("/embeddings/batch", embeddingHandler.BatchUpdate)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "API endpoint not found"})
	})

	return router
}
