// Package server exposes the chat relay and the staff API over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tingly-dev/tea-assistant/internal/auth"
	"github.com/tingly-dev/tea-assistant/internal/config"
	"github.com/tingly-dev/tea-assistant/internal/data/db"
	"github.com/tingly-dev/tea-assistant/internal/guardrails"
	"github.com/tingly-dev/tea-assistant/internal/llmclient"
	"github.com/tingly-dev/tea-assistant/internal/obs"
	"github.com/tingly-dev/tea-assistant/internal/obs/otel"
	"github.com/tingly-dev/tea-assistant/internal/ratelimit"
	"github.com/tingly-dev/tea-assistant/internal/record"
	"github.com/tingly-dev/tea-assistant/internal/relay"
	"github.com/tingly-dev/tea-assistant/internal/server/middleware"
	"github.com/tingly-dev/tea-assistant/internal/tools"
)

const retentionInterval = time.Hour

// chatRuntime is the hot-swappable part of the chat path.
type chatRuntime struct {
	relay     *relay.Relay
	validator *guardrails.Validator
}

// Server represents the HTTP server
type Server struct {
	config     *config.Config
	engine     *gin.Engine
	httpServer *http.Server

	upstream relay.Upstream
	registry *tools.Registry
	limiter  *ratelimit.Limiter
	store    *db.ChatRecordStore
	tracker  *otel.RelayTracker
	memLog   *obs.MemoryLogHook
	recorder *record.Sink
	watcher  *config.ConfigWatcher

	jwtManager atomic.Pointer[auth.JWTManager]
	runtime    atomic.Pointer[chatRuntime]

	// middleware
	errorMW *middleware.ErrorLogMiddleware
	authMW  *middleware.AuthMiddleware

	// options
	host          string
	version       string
	enableWatcher bool
	limiterOpts   []ratelimit.Option

	startedAt time.Time
	mu        sync.Mutex // guards httpServer and cancel between Start and Stop
	cancel    context.CancelFunc
	bgWG      sync.WaitGroup
}

// ServerOption defines a functional option for Server configuration
type ServerOption func(*Server)

// WithVersion is reported by /healthz
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// WithHost overrides server.host
func WithHost(host string) ServerOption {
	return func(s *Server) {
		s.host = host
	}
}

// WithUpstream replaces the OpenAI client built from config
func WithUpstream(upstream relay.Upstream) ServerOption {
	return func(s *Server) {
		s.upstream = upstream
	}
}

// WithRegistry replaces the default tool set
func WithRegistry(registry *tools.Registry) ServerOption {
	return func(s *Server) {
		s.registry = registry
	}
}

// WithStore enables chat records
func WithStore(store *db.ChatRecordStore) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

// WithTracker enables metrics; nil is allowed
func WithTracker(tracker *otel.RelayTracker) ServerOption {
	return func(s *Server) {
		s.tracker = tracker
	}
}

// WithMemoryLog serves the hook's entries on /api/admin/logs
func WithMemoryLog(hook *obs.MemoryLogHook) ServerOption {
	return func(s *Server) {
		s.memLog = hook
	}
}

// WithErrorLog sets the middleware recording failed exchanges
func WithErrorLog(mw *middleware.ErrorLogMiddleware) ServerOption {
	return func(s *Server) {
		s.errorMW = mw
	}
}

// WithWatcher enables or disables config hot reload
func WithWatcher(enabled bool) ServerOption {
	return func(s *Server) {
		s.enableWatcher = enabled
	}
}

// WithLimiterOptions passes options to the rate limiter, e.g. a test clock
func WithLimiterOptions(opts ...ratelimit.Option) ServerOption {
	return func(s *Server) {
		s.limiterOpts = append(s.limiterOpts, opts...)
	}
}

// NewServer creates a new HTTP server instance with functional options
func NewServer(cfg *config.Config, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	server := &Server{
		config:        cfg,
		host:          cfg.Server.Host,
		enableWatcher: true,
		startedAt:     time.Now(),
	}
	for _, opt := range opts {
		opt(server)
	}

	if server.upstream == nil {
		mode, err := record.ParseMode(cfg.Upstream.RecordMode)
		if err != nil {
			return nil, err
		}
		recorder, err := record.NewSink(cfg.Upstream.RecordDir, mode)
		if err != nil {
			return nil, err
		}
		client, err := llmclient.NewOpenAIClient(llmclient.Config{
			BaseURL:   cfg.Upstream.BaseURL,
			APIKey:    cfg.Upstream.APIKey,
			Model:     cfg.Upstream.Model,
			ProxyURL:  cfg.Upstream.ProxyURL,
			Timeout:   cfg.Upstream.Timeout,
			UserAgent: "tea-assistant/" + server.version,
			Recorder:  recorder,
		})
		if err != nil {
			recorder.Close()
			return nil, err
		}
		if recorder.Enabled() {
			logrus.Infof("Recording upstream exchanges (%s) to %s", mode, recorder.Dir())
		}
		server.upstream = client
		server.recorder = recorder
	}

	if server.registry == nil {
		server.registry = tools.NewDefaultRegistry(tools.NewClock(cfg.Assistant.Timezone), cfg.SearchDocs)
	}

	server.limiter = ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window, server.limiterOpts...)
	server.jwtManager.Store(auth.NewJWTManager(cfg.Admin.JWTSecret))
	server.authMW = middleware.NewAuthMiddleware(server.jwtManager.Load)

	if err := server.applyReloadable(cfg.Reloadable()); err != nil {
		return nil, err
	}
	if server.errorMW != nil && cfg.Server.ErrorLogFilter != "" {
		if err := server.errorMW.SetFilterExpression(cfg.Server.ErrorLogFilter); err != nil {
			logrus.Warnf("Failed to set error log filter expression '%s': %v, using default", cfg.Server.ErrorLogFilter, err)
		}
	}

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	server.engine = gin.New()
	if err := server.engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	server.setupMiddleware()
	server.setupRoutes()

	if server.enableWatcher {
		server.setupConfigWatcher()
	}

	return server, nil
}

// applyReloadable swaps the relay, validator and quota in one step.
func (s *Server) applyReloadable(r config.Reloadable) error {
	validator, err := guardrails.New(r.Guardrails)
	if err != nil {
		return fmt.Errorf("invalid guardrails: %w", err)
	}

	opts := []relay.Option{
		relay.WithSystemPrompt(r.SystemPrompt),
		relay.WithToolErrorFormat(s.config.Assistant.ToolErrorFormat),
	}
	if s.tracker != nil {
		opts = append(opts, relay.WithTracker(s.tracker))
	}

	s.runtime.Store(&chatRuntime{
		relay:     relay.New(s.upstream, s.registry, opts...),
		validator: validator,
	})
	s.limiter.SetQuota(r.RateLimit.Requests, r.RateLimit.Window)
	return nil
}

// setupConfigWatcher initializes the configuration hot-reload watcher
func (s *Server) setupConfigWatcher() {
	watcher, err := config.NewConfigWatcher(s.config)
	if err != nil {
		logrus.Warnf("Failed to create config watcher: %v", err)
		return
	}
	s.watcher = watcher
	watcher.AddCallback(s.onConfigReload)
}

func (s *Server) onConfigReload(newConfig *config.Config) {
	if newConfig.RateLimit.Requests <= 0 || newConfig.RateLimit.Window <= 0 {
		logrus.Errorf("Ignoring reloaded rate limit %d/%s", newConfig.RateLimit.Requests, newConfig.RateLimit.Window)
		newConfig.RateLimit = s.config.RateLimit
	}
	if err := s.applyReloadable(newConfig.Reloadable()); err != nil {
		logrus.Errorf("Failed to apply reloaded configuration: %v", err)
		return
	}
	logrus.Debugln("Guardrails, system prompt and rate limit reloaded")

	s.jwtManager.Store(auth.NewJWTManager(newConfig.Admin.JWTSecret))

	if s.errorMW != nil {
		if err := s.errorMW.SetFilterExpression(newConfig.Server.ErrorLogFilter); err != nil {
			logrus.Errorf("Failed to update error log filter expression: %v", err)
		}
	}
}

// setupMiddleware configures server middleware
func (s *Server) setupMiddleware() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.AccessLog(logrus.StandardLogger(), "/healthz"))
	if s.errorMW != nil {
		s.engine.Use(s.errorMW.Middleware())
	}
}

// setupRoutes configures server routes
func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)

	api := s.engine.Group("/api")
	api.POST("/chat", s.handleChat)

	admin := api.Group("/admin", s.authMW.StaffAuthMiddleware())
	{
		admin.GET("/chat-records", s.handleListChatRecords)
		admin.GET("/stats", s.handleStats)
		admin.GET("/logs", s.handleLogs)
	}
}

// Handler returns the Gin engine, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Stop is called or the listener fails
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("%s:%d", s.host, port)
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     s.engine,
		ReadTimeout: s.config.Server.ReadTimeout,
	}
	// zero means no deadline on streamed replies
	httpServer.WriteTimeout = s.config.Server.WriteTimeout

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.httpServer = httpServer
	s.cancel = cancel
	s.mu.Unlock()
	s.startBackground(ctx)

	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			logrus.Warnf("Failed to start config watcher: %v", err)
		} else {
			logrus.Infoln("Configuration hot-reload enabled")
		}
	}

	logrus.Infof("Chat endpoint: http://%s/api/chat", addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) startBackground(ctx context.Context) {
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.limiter.RunJanitor(ctx, s.config.RateLimit.Window)
	}()

	if s.store == nil || s.config.Storage.RetentionDays <= 0 {
		return
	}
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(retentionInterval)
		defer ticker.Stop()
		for {
			s.pruneRecords(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *Server) pruneRecords(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.config.Storage.RetentionDays)
	n, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			logrus.Warnf("Failed to prune chat records: %v", err)
		}
		return
	}
	if n > 0 {
		logrus.Infof("Pruned %d chat records older than %s", n, cutoff.Format(time.RFC3339))
	}
}

// Stop gracefully stops the HTTP server and background work
func (s *Server) Stop(ctx context.Context) error {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			logrus.Warnf("Failed to stop config watcher: %v", err)
		}
	}

	s.mu.Lock()
	httpServer, cancel := s.httpServer, s.cancel
	s.mu.Unlock()

	var err error
	if httpServer != nil {
		logrus.Infoln("Shutting down server...")
		err = httpServer.Shutdown(ctx)
	}

	if cancel != nil {
		cancel()
	}
	s.bgWG.Wait()

	if s.errorMW != nil {
		s.errorMW.Stop()
	}
	s.recorder.Close()
	return err
}
