package api

import (
	"context"
	"time"

	"github.com/RishiKendai/palimpsest/internal/config"
	"github.com/RishiKendai/palimpsest/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// SetupRoutes builds the router. ctx bounds the rate limiter's background sweep.
func SetupRoutes(ctx context.Context, cfg *config.Config, runs RunService, metadata MetadataStore) *gin.Engine {
	router := gin.New()

	handler := NewHandler(runs, metadata)

	rateLimiter := NewRateLimiter(cfg.RateLimitRPS, int(cfg.RateLimitRPS*2))
	go sweepLimiters(ctx, rateLimiter, 10*time.Minute)

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(metrics.GinMiddleware())
	router.Use(ErrorHandlerMiddleware())

	// Health endpoint (no auth)
	router.GET("/health", handler.Health)

	api := router.Group("/api/v1")
	api.Use(JWTAuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer))
	api.Use(RateLimitMiddleware(rateLimiter))
	{
		api.POST("/runs", handler.CreateRun)
		api.GET("/runs/:id", handler.GetRun)
		api.GET("/runs/:id/status", handler.GetRunStatus)
		api.POST("/analyze", handler.Analyze)
		api.POST("/metadata", handler.ImportMetadata)
	}

	return router
}

func sweepLimiters(ctx context.Context, rl *RateLimiter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Sweep(); n > 0 {
				log.Debug().Int("dropped", n).Msg("Dropped idle rate limiters")
			}
		}
	}
}
