package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shipdraft/draft-service/handlers"
	"github.com/shipdraft/draft-service/internal/config"
	"github.com/shipdraft/draft-service/internal/database"
	"github.com/shipdraft/draft-service/internal/draftstore"
	"github.com/shipdraft/draft-service/internal/oidc"
	"github.com/shipdraft/draft-service/internal/reference"
	"github.com/shipdraft/draft-service/internal/shipment"
	"github.com/shipdraft/draft-service/internal/shipment/handler"
	"github.com/shipdraft/draft-service/internal/shipment/repository"
	"github.com/shipdraft/draft-service/internal/shipment/service"
	"github.com/shipdraft/draft-service/internal/storage"
	"github.com/shipdraft/draft-service/pkg/logger"
	"github.com/shipdraft/draft-service/pkg/metrics"
	"github.com/shipdraft/draft-service/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	logger.Infof("config loaded: oidc=%v mongo=%v redis=%v minio=%v",
		cfg.OIDC.Issuer != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := map[string]bool{}

	// Redis: local draft store, submit lock and shared rate limiter
	var (
		redisClient *redis.Client
		store       draftstore.Store  = draftstore.NewMemoryStore()
		locker      draftstore.Locker = draftstore.NewMemoryLocker()
	)
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", cfg.Redis.Addr(), err)
		} else {
			logger.Infof("Connected to Redis: %s", cfg.Redis.Addr())
		}
		store = draftstore.NewRedisStore(redisClient, cfg.Autosave.KeyPrefix, cfg.Autosave.DraftTTL)
		locker = draftstore.NewRedisLocker(redisClient, cfg.Autosave.KeyPrefix)
	} else {
		logger.Warnf("REDIS_HOST not set; drafts are kept in process memory")
	}
	deps["redis"] = cfg.Redis.Host == "" || redisClient != nil

	// MongoDB: shipment records and reference entities
	var (
		backend service.Backend  = repository.NewMemoryRepo()
		lookups shipment.Lookups = reference.NewMemory()
	)
	deps["mongo"] = true
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Warnf("could not connect to MongoDB, using in-memory records: %v", err)
			deps["mongo"] = false
		} else {
			defer func() { _ = client.Disconnect(context.Background()) }()
			db := client.Database(cfg.MongoDB.Database)
			backend = repository.NewMongoRepo(db.Collection(cfg.MongoDB.Collection), shipment.Schema().ReferenceKeys())
			lookups = reference.NewMongo(db)
		}
	}

	// MinIO: uploaded bills and invoices
	var files interface {
		service.Uploader
		handler.Downloader
	} = storage.NewMemory(cfg.MinIO.PublicURL)
	deps["storage"] = true
	if cfg.MinIO.Endpoint != "" {
		s, err := storage.NewMinIOStorage(&cfg.MinIO)
		if err != nil {
			logger.Warnf("failed to initialize MinIO storage: %v", err)
			deps["storage"] = false
		} else {
			files = s
		}
	}

	svc, err := service.New(service.Options{
		Backend:     backend,
		Store:       store,
		Locker:      locker,
		Uploader:    files,
		Lookups:     reference.NewCache(lookups, reference.DefaultCacheTTL),
		QuietWindow: cfg.Autosave.QuietWindow,
		LockTTL:     cfg.Autosave.LockTTL,
	})
	if err != nil {
		logger.Fatalf("failed to build draft service: %v", err)
	}

	// OIDC verifier; drafts are open to anonymous callers when no issuer is configured
	var verifier middleware.Verifier
	if cfg.OIDC.Issuer != "" {
		ver, err := oidc.NewVerifier(ctx, cfg.OIDC.Issuer, cfg.OIDC.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			verifier = ver
		}
	}
	if verifier == nil && cfg.OIDC.Insecure {
		logger.Warn("enabling insecure OIDC verifier (integration mode)")
		verifier = oidc.NewInsecureVerifier()
	}
	deps["oidc"] = cfg.OIDC.Issuer == "" || verifier != nil

	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Environment == "development" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness endpoint: 200 only when every configured dependency is available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		for _, ok := range deps {
			ready = ready && ok
		}
		status, body := http.StatusOK, "ready"
		if !ready {
			status, body = http.StatusServiceUnavailable, "not_ready"
		}
		c.JSON(status, gin.H{"status": body, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	handlers.RegisterSwagger(r)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/")
	if verifier != nil {
		api.Use(middleware.AuthMiddleware(verifier))
	}
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.Window))
	}
	handler.RegisterDraftRoutes(api, svc)
	handler.RegisterFileRoutes(api, files)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("Starting shipment draft service on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	// open drafts are flushed to the local store before exit
	svc.Shutdown(shutdownCtx)
}
