package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Nzyazin/walletd/internal/core/auth"
	"github.com/Nzyazin/walletd/internal/core/events"
	"github.com/Nzyazin/walletd/internal/core/handler"
	"github.com/Nzyazin/walletd/internal/core/idempotency"
	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/Nzyazin/walletd/internal/core/pricing"
	"github.com/Nzyazin/walletd/internal/core/repository"
	"github.com/Nzyazin/walletd/internal/core/repository/postgres"
	"github.com/Nzyazin/walletd/internal/core/response"
	"github.com/Nzyazin/walletd/internal/core/usecase"
	"github.com/Nzyazin/walletd/pkg/config"
	"github.com/Nzyazin/walletd/pkg/postgresdb"
	"github.com/Nzyazin/walletd/pkg/redisdb"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"

	middlWre "github.com/Nzyazin/walletd/internal/core/middleware"
)

const APIPrefix = "/functions/v1"

// Options are the collaborators the HTTP layer is built from. NewServer fills
// them from configuration; tests build them directly.
type Options struct {
	Store       repository.Store
	Pricing     *pricing.Service
	Publisher   events.Publisher
	Subscriber  events.Subscriber
	Verifier    middlWre.TokenVerifier
	Idempotency idempotency.Store
	Redis       *redis.Client
	RateLimit   config.RedisConfig
	Registry    prom.Registerer
	HealthCheck func(ctx context.Context) error
}

type Server struct {
	handler    http.Handler
	log        logger.Logger
	httpServer *http.Server
	db         *postgresdb.Database
	rdb        *redis.Client
	kafka      *events.KafkaPublisher
}

// NewServer connects to Postgres and, when configured, Redis and Kafka, and
// assembles the HTTP stack on top of them.
func NewServer(cfg *config.Config, log logger.Logger) (*Server, error) {
	db, err := postgresdb.NewPostgresDB(cfg.DB, log)
	if err != nil {
		return nil, err
	}

	if cfg.DB.AutoMigrate {
		if err := postgres.ApplySchema(context.Background(), db.DB); err != nil {
			db.Close()
			return nil, err
		}
		log.Info("Database schema applied")
	}

	rdb, err := redisdb.NewClient(cfg.Redis, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	opts := Options{
		Store:       postgres.NewStore(db.DB, log),
		Pricing:     pricing.FromConfig(cfg.Pricing),
		Verifier:    auth.NewVerifier(cfg.Auth),
		Idempotency: idempotency.NewMemoryStore(cfg.Redis.IdempotencyTTL),
		Redis:       rdb,
		RateLimit:   cfg.Redis,
		HealthCheck: db.PingContext,
	}

	var publishers events.Multi
	if rdb != nil {
		redisPub := events.NewRedisPublisher(rdb, log)
		publishers = append(publishers, redisPub)
		opts.Subscriber = redisPub
		opts.Idempotency = idempotency.NewRedisStore(rdb, cfg.Redis.IdempotencyTTL)
	}

	var kafkaPub *events.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPub = events.NewKafkaPublisher(cfg.Kafka, log)
		publishers = append(publishers, kafkaPub)
	} else {
		log.Warn("KAFKA_BROKERS not set, activity stream is disabled")
	}
	if len(publishers) > 0 {
		opts.Publisher = publishers
	}

	s := New(opts, log)
	s.db = db
	s.rdb = rdb
	s.kafka = kafkaPub
	return s, nil
}

func New(opts Options, log logger.Logger) *Server {
	router := mux.NewRouter()
	router.NotFoundHandler = middlWre.NotFoundHandler(log)
	router.MethodNotAllowedHandler = middlWre.MethodNotAllowedHandler(log)
	router.Use(middlWre.Recovery(log), loggingMiddleware(log))

	if opts.Registry == nil {
		opts.Registry = prom.DefaultRegisterer
	}
	mw := middleware.New(middleware.Config{
		Recorder: prometheus.NewRecorder(prometheus.Config{Registry: opts.Registry}),
	})
	withMetrics := func(next http.Handler) http.Handler {
		return std.Handler("", mw, next)
	}

	d := usecase.Deps{
		Store:     opts.Store,
		Pricing:   opts.Pricing,
		Publisher: opts.Publisher,
		Refs:      usecase.NewReferenceGenerator(),
		Log:       log,
	}
	walletHandler := handler.NewWalletHandler(
		usecase.NewWalletUsecase(d),
		usecase.NewSavingsUsecase(d),
		usecase.NewCardUsecase(d),
		usecase.NewSnapshotUsecase(opts.Store, log),
		log,
	)

	authenticate := middlWre.Authenticate(opts.Verifier, log)
	rl := opts.RateLimit

	router.HandleFunc("/healthz", healthHandler(opts.HealthCheck, log)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Registered ahead of the API subrouter and without its metrics wrapper.
	if opts.Subscriber != nil {
		router.Handle(APIPrefix+"/realtime",
			authenticate(handler.NewRealtimeHandler(opts.Subscriber, log))).Methods(http.MethodGet)
	}

	api := router.PathPrefix(APIPrefix).Subrouter()
	api.Use(
		withMetrics,
		authenticate,
		middlWre.RateLimiter(opts.Redis, rl.RateLimit, rl.RateWindow, rl.RateBlock, "rate_limit", log),
		middlWre.Idempotency(opts.Idempotency, log),
	)
	walletHandler.RegisterRoutes(api)

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Authorization", "Content-Type", "Idempotency-Key", "apikey", "x-client-info",
		},
		ExposedHeaders: []string{middlWre.ReplayedHeader, "Retry-After"},
		MaxAge:         300,
	})

	return &Server{handler: corsHandler(router), log: log}
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       9 * time.Second,
		WriteTimeout:      12 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 6 * time.Second,
	}

	s.httpServer = srv

	return srv.ListenAndServe()
}

func (s *Server) RunTLS(addr, certFile, keyFile string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       9 * time.Second,
		WriteTimeout:      12 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 6 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}

	s.httpServer = srv
	return srv.ListenAndServeTLS(certFile, keyFile)
}

func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	var errs []error

	go func() {
		defer close(done)

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.log.Error("failed to shutdown HTTP server", logger.ErrorField("error", err))
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if s.kafka != nil {
			if err := s.kafka.Close(); err != nil {
				s.log.Error("failed to close kafka writer", logger.ErrorField("error", err))
				errs = append(errs, fmt.Errorf("kafka shutdown error: %w", err))
			}
		}

		if s.rdb != nil {
			if err := s.rdb.Close(); err != nil {
				s.log.Error("failed to close redis connection", logger.ErrorField("error", err))
				errs = append(errs, fmt.Errorf("redis shutdown error: %w", err))
			}
		}

		if s.db != nil {
			if err := s.db.Close(); err != nil {
				s.log.Error("failed to close database connection", logger.ErrorField("error", err))
				errs = append(errs, fmt.Errorf("database shutdown error: %w", err))
			}
		}
	}()

	select {
	case <-done:
		return errors.Join(errs...)
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func healthHandler(check func(ctx context.Context) error, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				log.Error("Health check failed", logger.ErrorField("error", err))
				response.Error(w, http.StatusServiceUnavailable, response.CodeInternal, "database unavailable")
				return
			}
		}
		response.JSON(w, http.StatusOK, map[string]interface{}{"success": true, "status": "ok"})
	}
}

func loggingMiddleware(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Info("HTTP request",
				logger.StringField("method", r.Method),
				logger.StringField("path", r.URL.Path),
				logger.StringField("remote_addr", r.RemoteAddr),
				logger.StringField("user_agent", r.UserAgent()),
				logger.DurationField("duration", time.Since(start)),
			)
		})
	}
}
