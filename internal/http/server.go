package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "ecocalc/internal/log"
	"ecocalc/internal/middleware/ratelimit"
	"ecocalc/internal/middleware/security"
	"ecocalc/internal/middleware/trace"
)

// Config carries the server settings that come from the environment.
type Config struct {
	Addr               string
	AllowedOrigins     []string
	RateLimitPerMinute int
	Logger             *applog.Logger
}

type Server struct {
	http.Server
	svc         CalculationAPI
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(cfg Config, svc CalculationAPI) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		svc:         svc,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			Methods:           []string{http.MethodPost},
		}),
		detector:    security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux.HandleFunc("POST /api/calculate", s.handleCalculate)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/history/{id}", s.handleCalculation)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/factors", s.handleFactors)
	mux.HandleFunc("GET /api/health", s.handleAPIHealth)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	// Outermost first: tracing sees every response, including CORS preflights and 429s.
	var h http.Handler = mux
	h = s.rateLimiter.Middleware(s.detector.ExtractClientIP)(h)
	h = security.CORS(cfg.AllowedOrigins)(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Middleware(h)
	s.Handler = h

	return s
}

// Shutdown gracefully shuts down the server and its background routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// RequestStats reports middleware counters for the shutdown log.
func (s *Server) RequestStats() (total, rateLimited, suspicious int64) {
	return s.tracer.TotalRequests(), s.rateLimiter.Rejected(), s.detector.SuspiciousRequests()
}
