package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handler holds shared dependencies for all route handlers.
type Handler struct {
	store        *recordStore
	blobs        blobStore
	ai           aiGateway
	metrics      *metricsManager
	seriesCache  *cache.Cache
	apiTokenHash []byte           // bcrypt hash; empty disables auth
	now          func() time.Time // wall clock, overridable for tests
}

// today returns the current DateKey. Derived on every call, never cached.
func (h *Handler) today() string {
	return dateKeyOf(h.now())
}

/* ─── Database helpers ────────────────────────────────────────────────── */

// queryOne runs a query and scans the first row into T using RowToStructByName.
// Logs query and scan errors for debugging (e.g. struct/column mismatches).
func queryOne[T any](pool *pgxpool.Pool, ctx context.Context, sql string, args pgx.NamedArgs) (T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		logrus.Errorf("[queryOne] Query error: %v", err)
		var zero T
		return zero, err
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil && err != pgx.ErrNoRows {
		logrus.Errorf("[queryOne] Scan error: %v", err)
	}
	return result, err
}

// queryMany runs a query and scans all rows into []T using RowToStructByName.
func queryMany[T any](pool *pgxpool.Pool, ctx context.Context, sql string, args pgx.NamedArgs) ([]T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		logrus.Errorf("[queryMany] Query error: %v", err)
		return nil, err
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		logrus.Errorf("[queryMany] Scan error: %v", err)
	}
	return results, err
}

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

/* ─── Server setup ────────────────────────────────────────────────────── */

// getDBPool creates a connection pool for the Postgres blob store.
func getDBPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse DB URL: %w", err)
	}
	// Use simple query protocol to avoid "cached plan must not change result type"
	// errors from server-side prepared statement caches after schema changes.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logrus.Infoln("DB pool ready!")
	return pool, nil
}

// newRouter builds the gin engine with logging, metrics, and all routes.
func (h *Handler) newRouter() *gin.Engine {
	router := gin.New()
	router.SetTrustedProxies(nil)
	router.Use(gin.Recovery(), requestLogger(), h.metrics.ginMiddleware())
	h.registerRoutes(router)
	return router
}

// registerRoutes registers all API routes on the router.
func (h *Handler) registerRoutes(router *gin.Engine) {
	// Public routes
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.metrics.registry, promhttp.HandlerOpts{})))

	// Authenticated routes
	api := router.Group("/api", h.authMiddleware())
	api.GET("/daily", h.getDailySummary)
	api.POST("/records/:date", h.createRecord)
	api.POST("/records/:date/entries/:kind", h.addEntry)
	api.DELETE("/records/:date/entries/:kind/:index", h.removeEntry)
	api.PUT("/records/:date/weight", h.setWeight)
	api.POST("/records/:date/water", h.addWater)
	api.DELETE("/records/:date/water", h.resetWater)

	api.GET("/settings", h.getSettings)
	api.PUT("/settings/target-calories", h.setTargetCalories)
	api.PUT("/settings/ai", h.setAIConfig)

	api.GET("/analytics/rollup", h.getRollUp)

	api.POST("/plan/calculate", h.calculatePlan)
	api.POST("/plan/analyze", h.analyzePlan)
	api.POST("/plan/confirm", h.confirmPlan)

	api.POST("/ai/describe-food", h.describeFood)

	api.GET("/backup/export", h.exportBackup)
	api.POST("/backup/import", h.importBackup)
}
