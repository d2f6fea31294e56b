// Package http serves the subscriptions dashboard: the period table, its PDF
// export and the payment capture modal.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"talahum/internal/cache"
	"talahum/internal/capture"
	"talahum/internal/core"
	applog "talahum/internal/log"
	"talahum/internal/middleware/ratelimit"
	"talahum/internal/middleware/security"
	"talahum/internal/middleware/trace"
	"talahum/internal/reconcile"
	"talahum/internal/render"
	appweb "talahum/web"
)

// Deps are the collaborators the dashboard is built on.
type Deps struct {
	Loader   *reconcile.Loader
	Flows    *capture.Registry
	Exporter render.Exporter
	Logger   *applog.Logger
	// Checks run on /readyz, keyed by dependency name.
	Checks map[string]func(context.Context) error
}

// Config tunes the server. Zero values take the defaults below.
type Config struct {
	Addr              string
	AssociationName   string
	Currency          string
	MaxSessions       int
	SessionTTL        time.Duration
	RequestsPerMinute int
	CacheCleanup      time.Duration
	SecureCookies     bool

	// Templates and Static override the embedded web assets.
	Templates fs.FS
	Static    fs.FS
	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	http.Server
	templates *template.Template
	loader    *reconcile.Loader
	sessions  *reconcile.Sessions
	flows     *capture.Registry
	exporter  render.Exporter
	logger    *applog.Logger
	events    *applog.StructuredLogger
	checks    map[string]func(context.Context) error
	cfg       Config

	caches          *cache.Manager
	rateLimiter     *ratelimit.Limiter
	detector        *security.Detector
	traceMiddleware *trace.Middleware
	appMetrics      appMetrics

	shutdownOnce sync.Once
}

// appMetrics are exposed on /metrics.
type appMetrics struct {
	uptime           time.Time
	paymentsRecorded int64
	receiptsExported int64
	reportsExported  int64
	staleLoads       int64
	loadErrors       int64
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server. Template errors are logged and surface as 500s on
// the page routes so health checks keep working.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Currency == "" {
		cfg.Currency = render.DefaultLabels().Currency
	}
	if cfg.AssociationName == "" {
		cfg.AssociationName = render.DefaultLabels().AssociationName
	}
	if cfg.CacheCleanup <= 0 {
		cfg.CacheCleanup = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Templates == nil {
		cfg.Templates = appweb.TemplatesFS
	}
	if cfg.Static == nil {
		if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
			cfg.Static = sub
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		loader:     deps.Loader,
		sessions:   reconcile.NewSessions(cfg.MaxSessions, cfg.SessionTTL),
		flows:      deps.Flows,
		exporter:   deps.Exporter,
		logger:     logger,
		events:     applog.NewStructuredLogger(logger),
		checks:     deps.Checks,
		cfg:        cfg,
		caches:     cache.NewManager(logger.Slog()),
		detector:   security.NewDetector(),
		appMetrics: appMetrics{uptime: time.Now()},
	}
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RequestsPerMinute,
		Methods:           []string{http.MethodPost},
	})
	s.traceMiddleware = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	s.caches.Register("periods", s.loader.Cache())
	s.caches.Register("sessions", s.sessions.Cache())
	s.caches.Register("flows", s.flows.Cache())
	s.caches.StartCleanup(cfg.CacheCleanup)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(cfg.Templates, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err, applog.FieldComponent, applog.ComponentTemplate)
	} else {
		s.templates = t
	}

	if cfg.Static != nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(cfg.Static)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	}

	mux.HandleFunc("/", s.withSession(s.handleIndex))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// Subscriptions table
	mux.HandleFunc("GET /ui/subscriptions", s.withSession(s.handleSubscriptions))
	mux.HandleFunc("GET /subscriptions/export.pdf", s.handleExportPeriod)

	// Payment capture
	mux.HandleFunc("POST /payments/flows", s.withSession(s.handleOpenFlow))
	mux.HandleFunc("POST /payments/flows/{id}/submit", s.handleSubmitFlow)
	mux.HandleFunc("POST /payments/flows/{id}/export", s.handleExportFlow)
	mux.HandleFunc("POST /payments/flows/{id}/close", s.handleCloseFlow)
	mux.Handle("GET /payments/receipts/{file}", security.NoStore(http.HandlerFunc(s.handleDownloadReceipt)))

	s.Handler = s.middleware(mux)
	return s
}

// middleware wraps the mux, outermost first: tracing, threat detection,
// security headers, request-scoped logger, rate limiting.
func (s *Server) middleware(next http.Handler) http.Handler {
	h := s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(next)
	h = applog.RequestIDMiddleware(trace.RequestID)(h)
	h = applog.Middleware(s.logger)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(s.logger.Slog())(h)
	return s.traceMiddleware.Middleware(h)
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path,
		applog.FieldComponent, applog.ComponentRateLimit)
	ErrorResponse(http.StatusTooManyRequests, msgRateLimited).
		TriggerErrorNotification(msgRateLimited).
		Write(w)
}

// Shutdown stops the background cleanups and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) now() time.Time { return s.cfg.Now() }

// refreshPeriod is handed to capture flows; it drops the cached rows of p so
// the table reload after the modal closes sees the new payment.
func (s *Server) refreshPeriod(p core.Period) func() {
	return func() {
		s.loader.Invalidate(p)
	}
}
