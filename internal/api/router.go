// Package api wires together all HTTP routes for the Careline gateway.
//
// Route grouping:
//   - /health, /ready and /version are unauthenticated probes with no side effects.
//   - /api/login and /api/logout manage sessions and carry the tighter login rate limit.
//   - /api/chat authenticates by session token inside the handler, so an invalid
//     token and an invalid message are judged in a fixed order.
//
// Prometheus metrics are not served here; cmd/server exposes them on a side port.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/careline/careline/internal/api/gateway"
	"github.com/careline/careline/internal/config"
	"github.com/careline/careline/internal/middleware"
)

// Version is the gateway release, overridden at build time with -ldflags "-X".
var Version = "0.1.0"

const probeTimeout = 2 * time.Second

// Deps carries the collaborators the handlers need. DB and Redis are nil when the
// corresponding backend is not configured; they are only used by /ready and the
// distributed rate limiter.
type Deps struct {
	Credentials gateway.CredentialVerifier
	Sessions    gateway.SessionIssuer
	Chat        gateway.TurnHandler
	DB          *sql.DB
	Redis       *redis.Client
}

// BackgroundServices holds references to background goroutines that must be
// stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	rateLimiters []*middleware.MemoryLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, deps Deps) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	// Liveness: never touches a dependency
	router.GET("/health", healthCheckHandler())

	// Readiness: pings the configured backends
	router.GET("/ready", readinessHandler(deps.DB, deps.Redis))

	router.GET("/version", versionHandler())

	authHandlers := gateway.NewAuthHandlers(deps.Credentials, deps.Sessions)
	chatHandlers := gateway.NewChatHandlers(deps.Chat)

	loginLimit, chatLimit := noLimit, noLimit
	if cfg.Security.RateLimiting.Enabled {
		loginLimit = bg.limiter(deps.Redis, cfg, "login", loginRateLimitConfig(cfg.Security.RateLimiting))
		chatLimit = bg.limiter(deps.Redis, cfg, "chat", chatRateLimitConfig(cfg.Security.RateLimiting))
	}

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/login", loginLimit, authHandlers.LoginHandler())
		apiGroup.POST("/logout", chatLimit, authHandlers.LogoutHandler())
		apiGroup.POST("/chat", chatLimit, chatHandlers.ChatHandler())
	}

	return router, bg
}

func noLimit(c *gin.Context) { c.Next() }

// limiter returns the rate limiting middleware for scope. Redis backs the limit
// when configured so every replica shares one budget per client.
func (bg *BackgroundServices) limiter(client *redis.Client, cfg *config.Config, scope string, rl middleware.RateLimitConfig) gin.HandlerFunc {
	if client != nil {
		slog.Info("rate limiting backed by redis", "scope", scope, "requests_per_minute", rl.RequestsPerMinute)
		return middleware.RateLimitMiddleware(middleware.NewRedisLimiter(client, cfg.Redis.KeyPrefix+"ratelimit:", rl), scope)
	}
	ml := middleware.NewMemoryLimiter(rl)
	bg.rateLimiters = append(bg.rateLimiters, ml)
	slog.Info("rate limiting in process memory", "scope", scope, "requests_per_minute", rl.RequestsPerMinute)
	return middleware.RateLimitMiddleware(ml, scope)
}

func chatRateLimitConfig(cfg config.RateLimitingConfig) middleware.RateLimitConfig {
	rl := middleware.ChatRateLimitConfig()
	if cfg.RequestsPerMinute > 0 {
		rl.RequestsPerMinute = cfg.RequestsPerMinute
	}
	if cfg.Burst > 0 {
		rl.BurstSize = cfg.Burst
	}
	return rl
}

func loginRateLimitConfig(cfg config.RateLimitingConfig) middleware.RateLimitConfig {
	rl := middleware.LoginRateLimitConfig()
	if cfg.LoginRequestsPerMinute > 0 {
		rl.RequestsPerMinute = cfg.LoginRequestsPerMinute
	}
	if cfg.LoginBurst > 0 {
		rl.BurstSize = cfg.LoginBurst
	}
	return rl
}

// @Summary      Health check
// @Description  Liveness probe. Does not touch any dependency.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: ok"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Pings PostgreSQL and Redis when configured.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service. A backend that is
// not configured is reported as "disabled" and does not fail the probe.
func readinessHandler(db *sql.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
		defer cancel()

		checks := gin.H{"database": "disabled", "redis": "disabled"}

		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				checks["database"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "database not ready",
				})
				return
			}
			checks["database"] = "healthy"
		}

		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "redis not ready",
				})
				return
			}
			checks["redis"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the gateway version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		wildcard := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" {
				allowed, wildcard = true, true
				break
			}
			if allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" || wildcard {
				// Credentials are never combined with a wildcard origin.
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
