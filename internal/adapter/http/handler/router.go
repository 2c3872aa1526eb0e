package handler

import (
	"savings-lockbox/internal/adapter/http/middleware"
	redisStore "savings-lockbox/internal/adapter/storage/redis"
	"savings-lockbox/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	LockBoxSvc     ports.LockBoxService
	AuthSvc        ports.AuthService
	FaucetSvc      ports.FaucetService // nil = faucet routes not mounted
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService      // nil = audit logging disabled
	Metrics        middleware.HTTPObserver // nil = HTTP metrics disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(64 << 10))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	v1.POST("/auth/login", rl("auth_login"), authHandler.Login)

	lockboxHandler := NewLockBoxHandler(deps.LockBoxSvc)
	v1.GET("/lockboxes", rl("lockbox_read"), lockboxHandler.List)
	v1.GET("/lockboxes/:owner", rl("lockbox_read"), lockboxHandler.GetByOwner)

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	lockbox := v1.Group("/lockbox", jwtAuth)
	{
		lockbox.POST("", rl("lockbox_write"), lockboxHandler.Initialize)
		lockbox.GET("", rl("lockbox_read"), lockboxHandler.Get)
		lockbox.POST("/deposit", rl("lockbox_write"), lockboxHandler.Deposit)
		lockbox.POST("/withdraw", rl("lockbox_write"), lockboxHandler.Withdraw)
		lockbox.POST("/emergency-withdraw", rl("lockbox_write"), lockboxHandler.EmergencyWithdraw)
		lockbox.GET("/movements", rl("lockbox_read"), lockboxHandler.ListMovements)
		lockbox.GET("/stats", rl("lockbox_read"), lockboxHandler.Stats)
	}

	if deps.FaucetSvc != nil {
		faucetHandler := NewFaucetHandler(deps.FaucetSvc)
		v1.POST("/faucet", jwtAuth, rl("faucet"), faucetHandler.Airdrop)
	}

	return r
}
