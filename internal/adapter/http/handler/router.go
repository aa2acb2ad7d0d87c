package handler

import (
	"time"

	"custodial-wallet-engine/internal/adapter/http/middleware"
	redisStore "custodial-wallet-engine/internal/adapter/storage/redis"
	"custodial-wallet-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 64 << 10

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Dispatcher     CommandDispatcher
	SigSvc         ports.SignatureService
	NonceStore     ports.NonceStore
	GatewaySecret  string
	Gateway        GatewayLimits
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	AuditSvc       ports.AuditService         // nil = rejections not audited
	HealthCheckers []ports.HealthChecker
	MetricsHandler gin.HandlerFunc // nil = metrics not exposed
	MetricsPath    string
	Mode           string
	Logger         zerolog.Logger
}

// GatewayLimits bounds gateway requests.
type GatewayLimits struct {
	TimestampWindow time.Duration
	CommandsPerMin  int
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.MetricsHandler != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, deps.MetricsHandler)
	}

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rl := func(c *gin.Context) { c.Next() }
	if deps.RateLimitStore != nil {
		rl = middleware.RateLimiter(deps.RateLimitStore, "commands", middleware.CommandRule(deps.Gateway.CommandsPerMin), deps.Logger)
	}

	hmacAuth := middleware.HMACAuth(deps.GatewaySecret, deps.Gateway.TimestampWindow, deps.SigSvc, deps.NonceStore, deps.Logger)
	commands := NewCommandHandler(deps.Dispatcher)

	v1 := r.Group("/api/v1")
	if deps.AuditSvc != nil {
		v1.Use(middleware.AuditRejections(deps.AuditSvc))
	}
	v1.POST("/commands", hmacAuth, rl, commands.Handle)

	return r
}
