package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/fintrack/fintrack/internal/auth"
	"github.com/fintrack/fintrack/internal/cache"
	"github.com/fintrack/fintrack/internal/config"
	"github.com/fintrack/fintrack/internal/http/handlers"
	"github.com/fintrack/fintrack/internal/http/middlewares"
	"github.com/fintrack/fintrack/internal/observability"
	"github.com/fintrack/fintrack/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxBodySize = 1 << 20 // 1 MiB

func NewRouter(cfg config.Config, log *slog.Logger, pool *pgxpool.Pool, analyticsCache cache.Store) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(maxBodySize))
	r.Use(middlewares.RequireJSON())
	r.Use(otelgin.Middleware("fintrack-api"))

	prom := observability.NewProm(prometheus.DefaultRegisterer)
	r.Use(prom.GinHandleMiddleware())

	// health
	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	health := handlers.NewHealthHandler(ping)
	r.GET("/health", health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// wire up repositories and services
	usersRepo := postgres.NewUsersRepo(pool)
	transactionsRepo := postgres.NewTransactionsRepo(pool)
	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)

	usersHandler := handlers.NewUsersHandler(usersRepo, jwtManager)
	transactionsHandler := handlers.NewTransactionsHandler(transactionsRepo, analyticsCache, prom)

	authRequired := middlewares.NewAuthMiddleware(jwtManager, usersRepo).RequireAuth()

	// brute-force protection on the credential endpoints
	loginLimiter := middlewares.NewRateLimiter(10, time.Minute)

	users := r.Group("/users")
	{
		users.POST("/register", loginLimiter.Middleware(middlewares.KeyByIP), usersHandler.Register)
		users.POST("/login", loginLimiter.Middleware(middlewares.KeyByIP), usersHandler.Login)
		users.POST("/refresh-token", usersHandler.Refresh)
		users.POST("/logout", usersHandler.Logout)

		users.GET("/profile", authRequired, usersHandler.GetProfile)
		users.PUT("/profile", authRequired, usersHandler.UpdateProfile)
		users.PUT("/profile/password", authRequired, usersHandler.UpdatePassword)
		users.DELETE("/profile", authRequired, usersHandler.Deactivate)
	}

	transactions := r.Group("/transactions", authRequired)
	{
		transactions.GET("", transactionsHandler.List)
		transactions.POST("", transactionsHandler.Create)

		// fixed paths before the :id wildcard
		transactions.GET("/summary", transactionsHandler.Summary)
		transactions.GET("/analytics/category-breakdown", transactionsHandler.CategoryBreakdown)
		transactions.GET("/analytics/spending-trends", transactionsHandler.SpendingTrends)
		transactions.GET("/analytics/monthly-summary", transactionsHandler.MonthlySummary)

		transactions.GET("/:id", transactionsHandler.GetByID)
		transactions.PUT("/:id", transactionsHandler.Update)
		transactions.DELETE("/:id", transactionsHandler.Delete)
	}

	return r
}
