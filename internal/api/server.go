package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shiv6146/buzzer-bridge/internal/call"
	"github.com/shiv6146/buzzer-bridge/internal/config"
	"github.com/shiv6146/buzzer-bridge/internal/routing"
)

// Deps are the collaborators the HTTP layer drives. Notifier, History and
// Mirror may be nil.
type Deps struct {
	Manager    *call.Manager
	Classifier *routing.Classifier
	Notifier   Notifier
	History    History
	Mirror     Mirror
	Gatherer   prometheus.Gatherer
	Logger     *zap.Logger
}

// Server represents the webhook and session API server
type Server struct {
	config     *config.Config
	handler    *Handler
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Deps) *Server {
	gin.SetMode(cfg.GinMode)

	logger := deps.Logger.Named("http")

	router := gin.New()
	router.Use(loggerMiddleware(logger))
	router.Use(gin.Recovery())

	s := &Server{
		config:   cfg,
		handler:  NewHandler(deps, logger),
		gatherer: deps.Gatherer,
		logger:   logger,
		router:   router,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check (no auth required)
	s.router.GET("/health", s.handler.HealthCheck)

	if s.config.MetricsEnabled && s.gatherer != nil {
		s.router.GET(s.config.MetricsPath, gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	// Provider webhooks
	hooks := s.router.Group("")
	if s.config.ValidateSignatures {
		hooks.Use(signatureMiddleware(s.config.PublicURL, s.config.TwilioAuthToken, s.logger))
	}
	hooks.Match([]string{http.MethodGet, http.MethodPost}, "/", s.handler.Webhook)
	hooks.Match([]string{http.MethodGet, http.MethodPost}, s.config.HoldPath, s.handler.Hold)

	// Session API, only exposed with credentials configured
	if !s.config.APIAuthEnabled() {
		return
	}
	v1 := s.router.Group("/api/v1", gin.BasicAuthForRealm(gin.Accounts{
		s.config.APIUsername: s.config.APIPassword,
	}, "buzzer-bridge"))

	sessions := v1.Group("/sessions")
	{
		sessions.GET("", s.handler.ListSessions)
		sessions.GET("/active", s.handler.ActiveSessions)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.HTTPHost, s.config.HTTPPort)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.config.TLSEnabled() {
		s.logger.Info("HTTPS server starting", zap.String("addr", addr))
		return s.httpServer.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
	}

	s.logger.Info("HTTP server starting", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
