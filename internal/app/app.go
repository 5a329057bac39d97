package app

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidekete/ragdesk/internal/config"
	db "github.com/davidekete/ragdesk/internal/core/database"
	"github.com/davidekete/ragdesk/internal/core/dispatch"
	"github.com/davidekete/ragdesk/internal/core/extract"
	"github.com/davidekete/ragdesk/internal/core/ingest"
	"github.com/davidekete/ragdesk/internal/core/llm"
	"github.com/davidekete/ragdesk/internal/core/objectstore"
	"github.com/davidekete/ragdesk/internal/core/retrieval"
	"github.com/davidekete/ragdesk/internal/core/vectorstore"
	"github.com/davidekete/ragdesk/internal/platform/rabbitmq"
	"github.com/davidekete/ragdesk/internal/platform/redis"
	"github.com/davidekete/ragdesk/internal/services"
)

// App owns every long-lived component and their shutdown order.
type App struct {
	Cfg        *config.Config
	DBClient   *db.DatabaseClient
	Objects    *objectstore.S3Client
	Vectors    *vectorstore.PgvectorStore
	Pipeline   *ingest.Pipeline
	Dispatcher dispatch.Dispatcher
	Server     *Server

	embedder *llm.GeminiEmbedder
	llm      *llm.GeminiLLM
	rabbit   *amqp.Connection
	redis    *goredis.Client
	consumer *dispatch.RabbitConsumer
	local    *dispatch.LocalDispatcher

	log *zap.SugaredLogger
}

func NewApp(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*App, error) {
	initCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{Cfg: cfg, log: log}

	dbClient, err := db.NewDatabaseClient(initCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.DBClient = dbClient
	log.Infow("database initialized and bootstrapped")

	objClient, err := objectstore.NewS3Client(initCtx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}
	a.Objects = objClient

	geminiEmbedder, err := llm.NewGeminiEmbedder(initCtx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	a.embedder = geminiEmbedder
	embedder := llm.NewRetryEmbedder(geminiEmbedder, 3, cfg.EmbedMaxChars, log)

	llmProvider, err := llm.NewGeminiLLM(initCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	a.llm = llmProvider

	vectors := vectorstore.NewPgvectorStore(dbClient.DB(), cfg.UpsertBatchLimit, log)
	// The table's vector column and the embedding model must agree before
	// anything gets written.
	if err := vectors.EnsureDimension(initCtx, cfg.EmbedDim); err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	a.Vectors = vectors

	var locker ingest.Locker
	if cfg.RedisAddr != "" {
		redisClient, err := redis.New(initCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = redisClient
		locker = ingest.NewRedisLease(redisClient, 10*time.Minute)
		log.Infow("redis ingestion lease enabled", "addr", cfg.RedisAddr)
	}

	pipeline := ingest.NewPipeline(
		dbClient, objClient, vectors, embedder, extract.NewExtractor(log), locker,
		ingest.Config{
			ChunkSize:          cfg.ChunkSize,
			ChunkOverlap:       cfg.ChunkOverlap,
			EmbedBatchSize:     cfg.EmbedBatchSize,
			EmbedFailurePolicy: cfg.EmbedFailurePolicy,
		},
		log,
	)
	a.Pipeline = pipeline

	if cfg.RabbitURL != "" {
		conn, err := rabbitmq.New(cfg.RabbitURL)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		a.rabbit = conn
		a.Dispatcher = dispatch.NewRabbitPublisher(conn, cfg.IngestQueue)
		a.consumer = dispatch.NewRabbitConsumer(conn, pipeline, cfg.IngestQueue, cfg.IngestWorkers, log)
		log.Infow("rabbitmq dispatch enabled", "queue", cfg.IngestQueue, "workers", cfg.IngestWorkers)
	} else {
		a.local = dispatch.NewLocalDispatcher(pipeline, cfg.IngestWorkers, 256, log)
		a.Dispatcher = a.local
		log.Infow("in-process dispatch enabled", "workers", cfg.IngestWorkers)
	}

	docService := services.NewDocumentService(dbClient, objClient, a.Dispatcher, pipeline, log)

	intents := retrieval.NewLexiconClassifier(cfg.GenericQueryPhrases)
	assembler := retrieval.NewAssembler(embedder, vectors, intents, retrieval.Config{
		TopK:               cfg.TopK,
		RelevanceThreshold: cfg.RelevanceThreshold,
	}, log)

	var searcher *retrieval.WebSearcher
	if cfg.GoogleSearchAPIKey != "" && cfg.GoogleSearchEngineID != "" {
		searcher = retrieval.NewWebSearcher(&retrieval.GoogleSearchClient{
			APIKey:         cfg.GoogleSearchAPIKey,
			SearchEngineID: cfg.GoogleSearchEngineID,
		}, llmProvider, log)
		log.Infow("web search enabled")
	}

	a.Server = NewServer(cfg, docService, pipeline, assembler, searcher, llmProvider, dbClient, log)
	return a, nil
}

// Run starts the HTTP server and the job workers and blocks until ctx is
// cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.consumer != nil {
		g.Go(func() error { return a.consumer.Start(gctx) })
	}
	if a.local != nil {
		g.Go(func() error { return a.local.Start(gctx) })
	}
	g.Go(func() error { return a.Server.Start() })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) Close() {
	if a.rabbit != nil {
		_ = a.rabbit.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
