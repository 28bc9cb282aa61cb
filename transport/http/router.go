package http

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/keyauth/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds transport-level settings
type RouterConfig struct {
	AllowedOrigins []string

	// Proxies whose X-Forwarded-For is believed; empty means the socket
	// address is the client IP
	TrustedProxies []string

	// Requests per minute per client IP; zero disables the limit
	ChallengeRate int
	VerifyRate    int
}

// DefaultRouterConfig returns the stock transport settings
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		AllowedOrigins: []string{"localhost"},
		ChallengeRate:  60,
		VerifyRate:     120,
	}
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, cfg RouterConfig, logger *slog.Logger) (*gin.Engine, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	router.Use(
		gin.Recovery(),
		RequestLogger(logger),
		CORS(cfg.AllowedOrigins),
		BodyLimit(MaxBodyBytes),
	)

	// Create handlers
	handlers := NewAuthHandlers(authService, logger)

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/challenge", rateLimit(cfg.ChallengeRate), handlers.Challenge)
		auth.POST("/verify", rateLimit(cfg.VerifyRate), handlers.Verify)
	}

	// Protected routes
	protected := router.Group("/")
	protected.Use(AuthMiddleware(authService))
	{
		protected.GET("/me", handlers.Me)
		protected.GET("/events", handlers.Events)
	}

	router.NoRoute(handlers.NotFound)

	return router, nil
}

func rateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return NewRateLimiter(perMinute, time.Minute).Middleware()
}
