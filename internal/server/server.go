package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trendpulse/internal/config"
	"trendpulse/internal/server/handlers"
	"trendpulse/internal/service/trends"
)

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *chi.Mux
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.ServerConfig,
	engine *trends.Engine,
	natsConn *nats.Conn,
	eventsTopic string,
	logger *slog.Logger,
) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Create handler dependencies
	trendHandler := handlers.NewTrendHandler(engine, logger)
	userHandler := handlers.NewUserHandler(engine, logger)

	// Routes
	router.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		// API version
		r.Route("/v1", func(r chi.Router) {
			// Trends API
			r.Route("/trends", func(r chi.Router) {
				r.Get("/compare", trendHandler.CompareKeywords)
				r.Get("/{keywordID}", trendHandler.GetTrendData)
				r.Get("/{keywordID}/history", trendHandler.GetHistory)
				r.Delete("/{keywordID}/cache", trendHandler.InvalidateKeyword)
			})

			// Users API
			r.Route("/users/{userID}", func(r chi.Router) {
				r.Get("/ranking", userHandler.GetRanking)
				r.Get("/summary", userHandler.GetSummary)
				r.Post("/warmup", userHandler.Warmup)
				r.Delete("/cache", userHandler.InvalidateUser)
			})

			// Tasks API
			r.Get("/tasks/{taskID}", trendHandler.GetTaskStatus)

			// Cache statistics
			r.Get("/cache/stats", trendHandler.GetCacheStats)
		})
	})

	// Prometheus scrape endpoint
	router.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint for real-time trend updates
	router.Get("/ws/trends", handlers.TrendWebSocketHandler(natsConn, eventsTopic, logger))

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		server: httpServer,
		router: router,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
