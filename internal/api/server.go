package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"binance-setup-scanner/config"
	"binance-setup-scanner/internal/bot"
	"binance-setup-scanner/internal/database"
	"binance-setup-scanner/internal/events"
	"binance-setup-scanner/internal/logging"
)

// RateLimiter provides simple in-memory rate limiting per key
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// ScanAPI is what the server needs from the scan runner
type ScanAPI interface {
	Trigger(ctx context.Context) error
	GetStatus() bot.Status
	LastRun() *bot.RunSummary
}

// ExclusionStore manages the symbols excluded from every run
type ExclusionStore interface {
	GetExclusions(ctx context.Context) ([]database.SymbolExclusion, error)
	UpsertExclusion(ctx context.Context, symbol, reason string) error
	DeleteExclusion(ctx context.Context, symbol string) (bool, error)
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// HealthStats returns a dependency's counters for /health
type HealthStats func() interface{}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	eventBus    *events.EventBus
	scanAPI     ScanAPI
	exclusions  ExclusionStore
	config      config.ServerConfig
	hub         *WSHub
	rateLimiter *RateLimiter
	logger      zerolog.Logger
	startTime   time.Time

	checksMu sync.RWMutex
	checks   map[string]HealthCheck
	stats    map[string]HealthStats

	// runs triggered over HTTP outlive the request
	baseCtx    context.Context
	cancelRuns context.CancelFunc
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, eventBus *events.EventBus, scanAPI ScanAPI, logger zerolog.Logger) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	logger = logging.WithComponent(logger, "API")

	router.Use(requestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	baseCtx, cancel := context.WithCancel(context.Background())

	server := &Server{
		router:      router,
		eventBus:    eventBus,
		scanAPI:     scanAPI,
		config:      cfg,
		rateLimiter: NewRateLimiter(6, time.Minute),
		logger:      logger,
		startTime:   time.Now(),
		checks:      make(map[string]HealthCheck),
		stats:       make(map[string]HealthStats),
		baseCtx:     baseCtx,
		cancelRuns:  cancel,
	}

	server.hub = NewWSHub(logger)
	go server.hub.Run()
	if eventBus != nil {
		eventBus.SubscribeAll(server.hub.BroadcastEvent)
	}

	server.setupRoutes()
	return server
}

// AddHealthCheck registers a named dependency check for /health
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checksMu.Lock()
	s.checks[name] = check
	s.checksMu.Unlock()
}

// AddHealthStats registers named counters reported by /health
func (s *Server) AddHealthStats(name string, stats HealthStats) {
	s.checksMu.Lock()
	s.stats[name] = stats
	s.checksMu.Unlock()
}

// SetExclusionStore enables the /api/exclusions routes
func (s *Server) SetExclusionStore(store ExclusionStore) {
	s.exclusions = store
}

// Router exposes the handler for tests and embedding
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		scans := api.Group("/scans")
		scans.GET("/latest", s.handleGetLatestScan)
		scans.GET("/status", s.handleGetScanStatus)
		scans.POST("", s.rateLimitMiddleware(), s.handleTriggerScan)

		exclusions := api.Group("/exclusions")
		exclusions.GET("", s.handleListExclusions)
		exclusions.POST("", s.handleUpsertExclusion)
		exclusions.DELETE("/:symbol", s.handleDeleteExclusion)
	}

	s.router.GET("/ws/events", s.handleWebSocket)

	s.router.NoRoute(func(c *gin.Context) {
		errorResponse(c, http.StatusNotFound, "endpoint not found: "+c.Request.Method+" "+c.Request.URL.Path)
	})
}

// rateLimitMiddleware limits how often a client may start scans
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP() + c.FullPath()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   true,
				"message": "rate limit exceeded, try again later",
			})
			return
		}
		c.Next()
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server and cancels triggered runs
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")

	s.cancelRuns()
	s.hub.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func corsConfig(allowed string) cors.Config {
	cfg := cors.DefaultConfig()
	origins := splitOrigins(allowed)
	if len(origins) == 0 || origins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	cfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type"}
	cfg.ExposeHeaders = []string{"Content-Length"}
	return cfg
}

func splitOrigins(allowed string) []string {
	var out []string
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// requestLogger logs each request through zerolog
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Debug()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}
