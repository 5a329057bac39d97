package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/davidekete/ragdesk/internal/api/handlers"
	appMiddleware "github.com/davidekete/ragdesk/internal/api/middlewares"
	"github.com/davidekete/ragdesk/internal/config"
	"github.com/davidekete/ragdesk/internal/core"
	"github.com/davidekete/ragdesk/internal/core/ingest"
	"github.com/davidekete/ragdesk/internal/core/retrieval"
	"github.com/davidekete/ragdesk/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.SugaredLogger
}

// NewServer builds and wires all routes.
func NewServer(
	cfg *config.Config,
	docs *services.DocumentService,
	pipeline *ingest.Pipeline,
	assembler *retrieval.Assembler,
	searcher *retrieval.WebSearcher,
	llm core.LLMProvider,
	db core.DbClient,
	log *zap.SugaredLogger,
) *Server {
	authHandler := handlers.NewAuthHandler(db, cfg.JWTSecret)
	docHandler := handlers.NewDocumentHandler(docs, log)
	chatHandler := handlers.NewChatHandler(assembler, searcher, llm, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(2 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Signed job deliveries from external queue services. Only mounted when a
	// signing key exists, so an unconfigured deployment exposes nothing.
	if cfg.WebhookKey != "" {
		webhook := handlers.NewIngestWebhookHandler(pipeline, cfg.WebhookKey, cfg.WebhookKeyNext, log)
		r.Post("/webhooks/ingest", webhook.Handle)
	}

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWT(cfg.JWTSecret))
			protected.Post("/documents/upload", docHandler.Upload)
			protected.Get("/documents", docHandler.List)
			protected.Get("/documents/{documentID}", docHandler.Status)
			protected.Delete("/documents/{documentID}", docHandler.Delete)
			protected.Post("/documents/{documentID}/retry", docHandler.Retry)
			protected.Post("/chat/ask", chatHandler.Ask)
		})
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{httpServer: httpSrv, log: log}
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	s.log.Infow("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Infow("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
