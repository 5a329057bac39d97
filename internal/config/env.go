package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	SslCertPath  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	AIAPIKey   string
	EmbedModel string
	EmbedDim   int
	GenModel   string

	RabbitURL     string
	IngestQueue   string
	IngestWorkers int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	WebhookKey     string
	WebhookKeyNext string

	GoogleSearchAPIKey   string
	GoogleSearchEngineID string

	// Ingestion policy knobs.
	ChunkSize        int
	ChunkOverlap     int
	EmbedBatchSize   int
	EmbedMaxChars    int
	UpsertBatchLimit int
	// EmbedFailurePolicy decides what happens when a chunk's embedding fails
	// after all retries: "fail" fails the document, "zero" records a
	// zero-vector gap and keeps going.
	EmbedFailurePolicy string

	// Retrieval policy knobs.
	TopK                int
	RelevanceThreshold  float64
	GenericQueryPhrases []string

	JWTSecret string
	Port      string
	LogMode   string
}

// LoadConfig loads the environment variables and returns config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SslCertPath:  getEnv("SSL_CERT_PATH", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "ragdesk-docs"),

		AIAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbedModel: getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:   getEnvInt("EMBED_DIM", 1536),
		GenModel:   getEnv("GEN_MODEL", "gemini-1.5-flash"),

		RabbitURL:     getEnv("RABBITMQ_URL", ""),
		IngestQueue:   getEnv("INGEST_QUEUE", "document-ingest"),
		IngestWorkers: getEnvInt("INGEST_WORKERS", 4),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		WebhookKey:     getEnv("WEBHOOK_SIGNING_KEY", ""),
		WebhookKeyNext: getEnv("WEBHOOK_SIGNING_KEY_NEXT", ""),

		GoogleSearchAPIKey:   getEnv("GOOGLE_CSE_API_KEY", ""),
		GoogleSearchEngineID: getEnv("GOOGLE_CSE_ENGINE_ID", ""),

		ChunkSize:          getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:       getEnvInt("CHUNK_OVERLAP", 200),
		EmbedBatchSize:     getEnvInt("EMBED_BATCH_SIZE", 16),
		EmbedMaxChars:      getEnvInt("EMBED_MAX_CHARS", 8000),
		UpsertBatchLimit:   getEnvInt("UPSERT_BATCH_LIMIT", 1000),
		EmbedFailurePolicy: getEnv("EMBED_FAILURE_POLICY", "fail"),

		TopK:                getEnvInt("RETRIEVAL_TOP_K", 5),
		RelevanceThreshold:  getEnvFloat("RELEVANCE_THRESHOLD", 0.5),
		GenericQueryPhrases: getEnvList("GENERIC_QUERY_PHRASES", defaultGenericPhrases),

		JWTSecret: getEnv("JWT_SECRET", ""),
		Port:      getEnv("PORT", "8080"),
		LogMode:   getEnv("LOG_MODE", "dev"),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// defaultGenericPhrases is product policy, not architecture; override with
// GENERIC_QUERY_PHRASES (comma-separated).
var defaultGenericPhrases = []string{
	"summarize",
	"summarise",
	"summary",
	"what is this about",
	"what is this document about",
	"tell me about this document",
	"tell me about this file",
	"give me an overview",
	"what does this say",
	"explain this document",
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %v", key, v, def)
		return def
	}
	return f
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
