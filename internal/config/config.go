package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port        string
	GinMode     string
	CORSOrigins []string

	// MongoDB
	MongoURI string
	DBName   string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Gemini
	GeminiAPIKey          string
	GeminiModel           string
	GeminiEmbeddingModel  string
	GeminiRPM             int
	GeminiMaxOutputTokens int
	GeminiTemperature     float64

	// Qdrant vector index
	QdrantAddr       string
	QdrantCollection string
	VectorDimensions int

	// Layout-analysis extraction service
	LayoutServiceURL     string
	LayoutServiceEnabled bool
	LayoutTimeout        int

	// Upload storage
	FileStorageDir string
	MaxFileSize    int64

	// Pipeline tuning
	EmbedBatchSize  int
	UpsertBatchSize int
	RetrievalTopK   int
	ContextWindow   int

	// API rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Telemetry
	OTLPEndpoint string
	TraceSample  float64
	Environment  string

	// Background worker
	WorkerConcurrency      int
	JanitorIntervalMinutes int
	StaleProcessingMinutes int
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/doc_rag"),
		DBName:   getEnv("DB_NAME", "doc_rag"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiEmbeddingModel:  getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
		GeminiRPM:             getEnvInt("GEMINI_RPM", 15),
		GeminiMaxOutputTokens: getEnvInt("GEMINI_MAX_OUTPUT_TOKENS", 2048),
		GeminiTemperature:     getEnvFloat64("GEMINI_TEMPERATURE", 0.7),

		QdrantAddr:       getEnv("QDRANT_ADDR", "localhost:6334"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "document_chunks"),
		VectorDimensions: getEnvInt("VECTOR_DIM", 768),

		LayoutServiceURL:     getEnv("LAYOUT_SERVICE_URL", "http://localhost:8001"),
		LayoutServiceEnabled: getEnvBool("LAYOUT_SERVICE_ENABLED", true),
		LayoutTimeout:        getEnvInt("LAYOUT_TIMEOUT", 300), // 5 minutes

		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./storage"),
		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB

		EmbedBatchSize:  getEnvInt("EMBED_BATCH_SIZE", 20),
		UpsertBatchSize: getEnvInt("UPSERT_BATCH_SIZE", 100),
		RetrievalTopK:   getEnvInt("RETRIEVAL_TOP_K", 8),
		ContextWindow:   getEnvInt("CONTEXT_WINDOW", 2),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TraceSample:  getEnvFloat64("TRACE_SAMPLE", 0.1),
		Environment:  getEnv("ENVIRONMENT", "development"),

		WorkerConcurrency:      getEnvInt("WORKER_CONCURRENCY", 20),
		JanitorIntervalMinutes: getEnvInt("JANITOR_INTERVAL_MINUTES", 10),
		StaleProcessingMinutes: getEnvInt("STALE_PROCESSING_MINUTES", 30),
	}

	// Validate required fields
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.VectorDimensions <= 0 {
		return nil, fmt.Errorf("VECTOR_DIM must be positive, got %d", cfg.VectorDimensions)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
