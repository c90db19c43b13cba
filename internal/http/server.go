package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"

	"wedding-expenses/internal/core"
	"wedding-expenses/internal/log"
	"wedding-expenses/internal/metrics"
	"wedding-expenses/internal/middleware/ratelimit"
	"wedding-expenses/internal/middleware/security"
	"wedding-expenses/internal/middleware/trace"
)

const readyTimeout = 2 * time.Second

// ExpenseService is the application surface the handlers translate to HTTP.
type ExpenseService interface {
	Create(ctx context.Context, in core.NewExpense) (core.Expense, error)
	Get(ctx context.Context, id int64) (core.Expense, error)
	List(ctx context.Context) ([]core.Expense, error)
	ListByCategory(ctx context.Context, category core.Category) ([]core.Expense, error)
	ListByStatus(ctx context.Context, status core.PaymentStatus) ([]core.Expense, error)
	Update(ctx context.Context, id int64, patch core.ExpensePatch) (core.Expense, error)
	Delete(ctx context.Context, id int64) error
	Total(ctx context.Context) (core.Money, error)
	Summary(ctx context.Context) ([]core.StatusSummary, error)
	RecordPayment(ctx context.Context, expenseID int64, amount core.Money, notes string) (core.Expense, core.Payment, error)
	ListPayments(ctx context.Context, expenseID int64) ([]core.Payment, error)
	Ready(ctx context.Context) error
}

// Options configures the middleware stack around the API.
type Options struct {
	Logger *log.Logger
	// Metrics is optional; nil disables /metrics and route instrumentation.
	Metrics            *metrics.Metrics
	AllowedOrigins     []string
	RateLimitPerMinute int
	// TrustedProxies are CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string
}

// Server is the JSON API over an ExpenseService.
type Server struct {
	http.Server
	svc          ExpenseService
	logger       *log.Logger
	metrics      *metrics.Metrics
	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc ExpenseService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	limitCfg := ratelimit.DefaultConfig()
	limitCfg.RequestsPerMinute = opts.RateLimitPerMinute

	s := &Server{
		svc:     svc,
		logger:  logger,
		metrics: opts.Metrics,
		limiter: ratelimit.NewLimiter(limitCfg),
	}

	ips := security.NewIPExtractor()
	for _, cidr := range opts.TrustedProxies {
		if err := ips.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, log.FieldError, err)
		}
	}

	mux := http.NewServeMux()
	s.handle(mux, "GET /api/expenses", s.handleListExpenses)
	s.handle(mux, "POST /api/expenses", s.handleCreateExpense)
	s.handle(mux, "GET /api/expenses/total", s.handleTotal)
	s.handle(mux, "GET /api/expenses/summary", s.handleSummary)
	s.handle(mux, "GET /api/expenses/{id}", s.handleGetExpense)
	s.handle(mux, "PUT /api/expenses/{id}", s.handleUpdateExpense)
	s.handle(mux, "DELETE /api/expenses/{id}", s.handleDeleteExpense)
	// category/{c}, status/{s} and {id}/payments share one shape.
	s.handle(mux, "GET /api/expenses/{first}/{second}", s.handleExpenseSubresource)
	s.handle(mux, "POST /api/expenses/{id}/payments", s.handleRecordPayment)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         600,
	})

	var handler http.Handler = mux
	handler = s.limiter.Middleware(ips.ExtractClientIP, s.onRateLimited)(handler)
	handler = corsHandler.Handler(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(logger, ips.ExtractClientIP).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	if s.metrics == nil {
		mux.Handle(pattern, h)
		return
	}
	mux.Handle(pattern, s.metrics.Instrument(pattern, h))
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	if s.metrics != nil {
		s.metrics.RateLimited()
	}
	writeMessage(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.svc.Ready(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
		writeMessage(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
