package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	gatewayhttp "github.com/chatrelay/gateway/internal/api/http"
	"github.com/chatrelay/gateway/internal/api/middleware"
	"github.com/chatrelay/gateway/internal/api/ws"
	"github.com/chatrelay/gateway/internal/client"
	"github.com/chatrelay/gateway/internal/domain/dispatch"
	"github.com/chatrelay/gateway/internal/domain/session"
	"github.com/chatrelay/gateway/internal/domain/snapshot"
	"github.com/chatrelay/gateway/internal/infrastructure/config"
	"github.com/chatrelay/gateway/internal/infrastructure/logging"
	"github.com/chatrelay/gateway/internal/infrastructure/monitoring"
	"github.com/chatrelay/gateway/internal/infrastructure/resilience"
	"github.com/chatrelay/gateway/internal/infrastructure/tracing"
	"github.com/chatrelay/gateway/internal/storage/sessionstore"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	sessions *session.Manager
	store    sessionstore.Store
	hub      *ws.Hub
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize logger
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing ChatRelay Gateway",
		zap.String("port", cfg.Server.Port),
		zap.String("engine_addr", cfg.Engine.Address),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	// Initialize request tracing
	tracer := tracing.New("gateway", logger)

	// Remote session store: Postgres when configured, in-memory otherwise
	var store sessionstore.Store
	if cfg.Database.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pg, err := sessionstore.NewPostgres(ctx, sessionstore.PostgresConfig{
			DSN: cfg.Database.DSN,
			TableInfo: sessionstore.TableInfo{
				Table:         cfg.Database.Table,
				SessionColumn: cfg.Database.SessionColumn,
				DataColumn:    cfg.Database.DataColumn,
				UpdatedColumn: cfg.Database.UpdatedColumn,
			},
			RequestTimeout: cfg.Database.RequestTimeout,
			MaxConns:       cfg.Database.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to session store: %w", err)
		}
		store = pg
		logger.Info("Connected to session store", zap.String("table", cfg.Database.Table))
	} else {
		store = sessionstore.NewMemory()
		logger.Warn("DATABASE_URL not set, session snapshots are not durable")
	}

	// Engine adapter and snapshot codec
	engine := client.NewEngine(client.EngineConfig{Address: cfg.Engine.Address}, logger)
	codec := snapshot.NewCodec(snapshot.DefaultManifest(), logger)

	// Dispatch layer
	queue := dispatch.NewQueue(logger)
	bulk := dispatch.NewBulkSender(cfg.Dispatch.BatchSize, cfg.Dispatch.BatchDelay, cfg.Dispatch.CountryCode, logger)

	// Event stream hub; the manager reports lifecycle events through it
	hub := ws.NewHub(metrics, logger)

	sessions := session.NewManager(
		session.Config{
			DataPath:       cfg.Session.DataPath,
			BackupInterval: cfg.Session.BackupInterval,
			SettleDelay:    cfg.Session.SettleDelay,
			Recreate: resilience.RetryPolicy{
				Attempts: cfg.Session.RetryAttempts,
				Backoff:  cfg.Session.RetryBackoff,
			},
			TokenSecret: []byte(cfg.Auth.Secret),
			TokenTTL:    cfg.Auth.TokenTTL,
			CountryCode: cfg.Dispatch.CountryCode,
		},
		store,
		codec,
		engine.Factory(),
		queue,
		bulk,
		hub,
		metrics,
		logger,
	)
	hub.Bind(sessions)

	// Profile directories are rebuilt from stored snapshots on demand
	if err := sessions.PurgeDataPath(); err != nil {
		logger.Warn("Failed to purge session data path", zap.Error(err))
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	// Register routes
	handlers := gatewayhttp.NewHandlers(sessions, logger)
	handlers.RegisterRoutes(router, cfg.Auth.Secret)

	// WebSocket event stream
	router.GET("/stream", hub.HandleConnection)

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		sessions: sessions,
		store:    store,
		hub:      hub,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Run starts the HTTP server
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	s.sessions.Shutdown()
	s.store.Close()

	// Sync logger before exit
	s.logger.Sync()

	return nil
}
