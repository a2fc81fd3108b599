package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"doc-rag-platform/internal/ai"
	"doc-rag-platform/internal/config"
	"doc-rag-platform/internal/extraction"
	"doc-rag-platform/internal/logger"
	"doc-rag-platform/internal/queue"
	"doc-rag-platform/internal/telemetry"
	"doc-rag-platform/internal/vectorindex"
	"doc-rag-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("doc-rag-worker", cfg.OTLPEndpoint, cfg.Environment, cfg.TraceSample)
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

	storage, err := services.NewFileStorageManager(cfg)
	if err != nil {
		log.Fatal("Failed to prepare file storage:", err)
	}

	extractor := extraction.NewService(cfg)
	ingester := services.NewIngestionService(cfg, db, extractor, gemini, index, storage, rdb, metrics)

	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to configure task queue:", err)
	}

	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	janitor := services.NewJanitorService(cfg, db, queueClient)
	if err := janitor.Start(); err != nil {
		log.Fatal("Failed to start janitor:", err)
	}
	defer janitor.Stop()

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	// The same service backs both handlers; ingest and purge share its
	// collections and index connection.
	processor := queue.NewTaskProcessor(ingester, ingester)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskDocumentIngest, processor.HandleDocumentIngest)
	mux.HandleFunc(queue.TaskDocumentPurge, processor.HandleDocumentPurge)

	logger.Info("Worker starting",
		"concurrency", cfg.WorkerConcurrency,
		"queues", "critical(6) default(3) low(1)",
	)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
