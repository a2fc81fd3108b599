package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"doc-rag-platform/internal/ai"
	"doc-rag-platform/internal/config"
	"doc-rag-platform/internal/logger"
	"doc-rag-platform/internal/retrieval"
	"doc-rag-platform/internal/telemetry"
	"doc-rag-platform/internal/vectorindex"
	"doc-rag-platform/middleware"
	"doc-rag-platform/routes"
	"doc-rag-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("doc-rag-platform", cfg.OTLPEndpoint, cfg.Environment, cfg.TraceSample)
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	index, err := vectorindex.New(cfg.QdrantAddr, cfg.QdrantCollection, cfg.UpsertBatchSize)
	if err != nil {
		log.Fatal("Failed to connect to Qdrant:", err)
	}
	defer index.Close()
	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := index.EnsureCollection(ctx, cfg.VectorDimensions); err != nil {
			cancel()
			log.Fatal("Failed to prepare vector collection:", err)
		}
		cancel()
	}

	gemini, err := ai.NewGeminiClient(cfg, metrics)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer gemini.Close()

	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to configure task queue:", err)
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	storage, err := services.NewFileStorageManager(cfg)
	if err != nil {
		log.Fatal("Failed to prepare file storage:", err)
	}

	opts := retrieval.DefaultOptions()
	opts.TopK = cfg.RetrievalTopK
	opts.Window = cfg.ContextWindow
	expander := retrieval.New(index, opts)

	generator := ai.NewGenerator(gemini)
	answers := services.NewAnswerService(cfg, db, gemini, expander, generator, metrics)
	exports := services.NewExportService(db)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.RequestID())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})
	router.GET("/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := mongoClient.Ping(ctx, nil); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unready", "mongo": err.Error()})
			return
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unready", "redis": err.Error()})
			return
		}
		if err := index.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unready", "qdrant": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	routes.SetupDocumentRoutes(router, cfg, db, storage, rdb, queueClient)
	routes.SetupConversationRoutes(router, db, answers, exports)
	routes.SetupHighlightRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
