package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	setupLogging(cfg)

	ctx := context.Background()
	metrics := newMetricsManager("health_tracker")

	blobs, closeBlobs, err := openBlobStore(ctx, cfg, metrics)
	if err != nil {
		logrus.Fatalf("failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer closeBlobs()

	store, err := loadRecordStore(ctx, blobs, metrics)
	var parseErr *StorageParseError
	switch {
	case errors.As(err, &parseErr):
		// Keep serving on defaults; the corrupt blob stays in storage until the next save.
		logrus.Errorf("[store] persisted state is corrupt, starting from defaults: %v", err)
	case err != nil:
		logrus.Fatalf("failed to load state: %v", err)
	}

	if cfg.APITokenHash == "" {
		logrus.Warnln("API_TOKEN_HASH not set: API is unauthenticated")
	}

	h := &Handler{
		store:        store,
		blobs:        blobs,
		ai:           newOpenAIGateway(cfg.AITimeout, cfg.AIRateLimitPerMinute, cfg.AIRateLimitBurst, metrics),
		metrics:      metrics,
		seriesCache:  cache.New(cfg.RollUpCacheTTL, 2*cfg.RollUpCacheTTL),
		apiTokenHash: []byte(cfg.APITokenHash),
		now:          time.Now,
	}

	if cfg.isProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.addr(),
		Handler:           h.newRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.Infof("listening on %s (store: %s)", cfg.addr(), cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("http server failed: %v", err)
		}
	}()

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownSignal

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("graceful shutdown failed: %v", err)
	}
}

// openBlobStore connects the configured persistence backend. The returned
// func releases its connections.
func openBlobStore(ctx context.Context, cfg Config, metrics *metricsManager) (blobStore, func(), error) {
	switch cfg.StoreBackend {
	case backendPostgres:
		pool, err := getDBPool(ctx, cfg.DBURL)
		if err != nil {
			return nil, nil, err
		}
		metrics.register(pgxpoolprometheus.NewCollector(pool, map[string]string{"db_name": pool.Config().ConnConfig.Database}))
		return newPGBlobStore(pool), pool.Close, nil
	case backendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, err
		}
		return newRedisBlobStore(rdb, cfg.RedisNamespace), func() { rdb.Close() }, nil
	default:
		logrus.Warnln("using in-memory store: data is lost on restart")
		return newMemoryBlobStore(), func() {}, nil
	}
}
