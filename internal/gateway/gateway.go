// ABOUTME: Gateway orchestrator that wires the session services behind one HTTP server
// ABOUTME: Manages the store, rate limiter, generation queue, and listener lifecycle

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/session-gateway/internal/auth"
	"github.com/2389/session-gateway/internal/config"
	"github.com/2389/session-gateway/internal/credential"
	"github.com/2389/session-gateway/internal/dedupe"
	"github.com/2389/session-gateway/internal/dispatch"
	"github.com/2389/session-gateway/internal/generation"
	"github.com/2389/session-gateway/internal/homework"
	"github.com/2389/session-gateway/internal/metrics"
	"github.com/2389/session-gateway/internal/ratelimit"
	"github.com/2389/session-gateway/internal/session"
	"github.com/2389/session-gateway/internal/store"
	"github.com/2389/session-gateway/internal/upstream"
	"github.com/2389/session-gateway/internal/webhook"
)

const (
	// claimTTL bounds how long a completed (actor, session) pair is rejected
	// without consulting the store.
	claimTTL      = 10 * time.Minute
	claimMaxSize  = 100_000
	redisDialWait = 5 * time.Second
)

// Gateway orchestrates the session-gateway server components.
type Gateway struct {
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	store      store.SessionStore
	limiter    *ratelimit.Limiter
	verifier   *auth.JWTVerifier
	issuer     *credential.Issuer
	dispatcher *dispatch.Dispatcher
	generator  *generation.Proxy
	homework   *homework.Client
	claims     *dedupe.Claims
	sessions   *session.Service
	queue      *webhook.Queue
	router     *webhook.Router

	httpServer  *http.Server
	tsnetServer *tsnet.Server

	now func() time.Time
}

// initStore opens the session store named by config or SESSION_GATEWAY_DB_PATH.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("SESSION_GATEWAY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initLimiterStore selects the rate limit state store.
func initLimiterStore(cfg config.RateLimitConfig, logger *slog.Logger) (ratelimit.Store, error) {
	if cfg.Backend != config.RateLimitRedis {
		return ratelimit.NewMemoryStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisDialWait)
	defer cancel()
	s, err := ratelimit.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	logger.Info("rate limiter using redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	return s, nil
}

// retryPolicy returns the policy for idempotent upstream calls.
func retryPolicy(cfg config.AgentConfig) *upstream.RetryPolicy {
	p := upstream.DefaultRetryPolicy()
	if cfg.RetryAttempts > 0 {
		p.MaxAttempts = cfg.RetryAttempts
	}
	return p
}

func clientTimeout(configured time.Duration) time.Duration {
	if configured > 0 {
		return configured
	}
	return upstream.DefaultTimeout
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	sqlStore, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	limiterStore, err := initLimiterStore(cfg.RateLimit, logger)
	if err != nil {
		_ = sqlStore.Close()
		return nil, err
	}

	m := metrics.New()
	retry := retryPolicy(cfg.Agent)

	agentClient := upstream.NewClient(
		upstream.WithTimeout(clientTimeout(cfg.Agent.Timeout)),
		upstream.WithLogger(logger),
	)
	backendClient := upstream.NewClient(
		upstream.WithTimeout(clientTimeout(cfg.Backend.Timeout)),
		upstream.WithLogger(logger),
	)

	issuer := credential.NewIssuer(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.URL)
	if !issuer.Configured() {
		logger.Warn("livekit keys not configured, credential requests will fail")
	}
	if cfg.Agent.WebhookURL == "" {
		logger.Warn("agent webhook url not configured, dispatch requests will fail")
	}
	if cfg.Backend.BaseURL == "" {
		logger.Warn("backend base url not configured, generation and homework requests will fail")
	}

	generator := generation.NewProxy(cfg.Backend.BaseURL, backendClient, logger)
	claims := dedupe.New(claimTTL, claimMaxSize)

	queue := webhook.NewQueue(webhook.QueueConfig{
		Workers:    cfg.Webhook.Workers,
		Size:       cfg.Webhook.QueueSize,
		JobTimeout: cfg.Webhook.GenerationTimeout,
	}, logger, m)
	queue.Start(context.Background())

	gw := &Gateway{
		config:   cfg,
		logger:   logger.With("component", "gateway"),
		metrics:  m,
		store:    sqlStore,
		limiter:  ratelimit.New(limiterStore, logger),
		verifier: verifier,
		issuer:   issuer,
		dispatcher: dispatch.New(dispatch.Config{
			WebhookURL: cfg.Agent.WebhookURL,
			APIKey:     cfg.Agent.APIKey,
		}, agentClient, retry, logger),
		generator: generator,
		homework:  homework.NewClient(cfg.Backend.BaseURL, backendClient, retry, logger),
		claims:    claims,
		sessions:  session.NewService(sqlStore, claims, logger, m),
		queue:     queue,
		router:    webhook.NewRouter(webhook.NewGenerationTable(generator), queue, logger, m),
		now:       time.Now,
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the gateway's HTTP handler with middleware applied.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	g.registerRoutes(mux)
	return g.instrument(mux)
}

// registerRoutes registers health, API, and metrics routes on mux.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	requireActor := auth.HTTPAuthMiddleware(g.verifier, g.logger)
	requireSecret := auth.SharedSecretMiddleware(webhookSecretHeader, g.config.Webhook.Secret)

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	mux.Handle("POST /api/livekit/token", requireActor(http.HandlerFunc(g.handleIssueCredential)))
	mux.HandleFunc("POST /api/livekit/agent", g.handleDispatchAgent)
	mux.Handle("POST /api/vapi/webhook", requireSecret(http.HandlerFunc(g.handleWebhook)))
	mux.Handle("GET /api/homework/files", requireActor(http.HandlerFunc(g.handleListFiles)))
	mux.Handle("GET /api/homework/folders", requireActor(http.HandlerFunc(g.handleListFolders)))
	mux.Handle("POST /api/homework/folders", requireActor(http.HandlerFunc(g.handleCreateFolder)))
	mux.Handle("POST /api/homework/upload", requireActor(http.HandlerFunc(g.handleUploadFile)))
	mux.Handle("POST /api/homework/chat", requireActor(http.HandlerFunc(g.handleHomeworkChat)))
	mux.Handle("GET /api/session/content", requireActor(http.HandlerFunc(g.handleSessionContent)))
	mux.Handle("POST /api/voice/generate-visual", requireActor(http.HandlerFunc(g.handleGenerateVisual)))
	mux.Handle("POST /api/study-session/complete", requireActor(http.HandlerFunc(g.handleCompleteSession)))
	mux.Handle("GET /api/study-sessions", requireActor(http.HandlerFunc(g.handleListSessions)))

	if g.config.Metrics.Enabled {
		path := g.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, g.metrics.Handler())
	}
}

// setupTCPListener creates a standard TCP listener for HTTP.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the HTTP listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "session-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener starts a tsnet node and returns its HTTP listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	return g.createTailscaleHTTPListener(tsCfg)
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleHTTPListener creates the appropriate HTTP listener based on config.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener()
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener() (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, drains queued generation jobs, and
// releases the store and limiter.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.queue.Stop(ctx)

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "rate limiter close", g.limiter.Close())
	errs = appendCloseError(errs, "store close", g.store.Close())
	g.claims.Close()

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the session store answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.sessions.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d queued)", g.queue.Len())
}
