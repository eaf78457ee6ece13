package handlers

import (
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/atomic"

	"nxtrix.com/founders/founders"
	"nxtrix.com/founders/internal/logger"
	"nxtrix.com/founders/internal/ratelimit"
	"nxtrix.com/founders/storage"
)

type Options struct {
	AllowedOrigins      []string
	StripeWebhookSecret string
	// RateLimitPerMinute applies per client IP to the founders endpoints.
	// Zero disables the limit.
	RateLimitPerMinute int
}

// Stats are request counters reported on /health.
type Stats struct {
	Signups          atomic.Int64
	Finalized        atomic.Int64
	CheckoutSessions atomic.Int64
	Webhooks         atomic.Int64
	ClientErrors     atomic.Int64
	ServerErrors     atomic.Int64
}

type Server struct {
	Router   *chi.Mux
	Founders *founders.Service
	Storage  storage.Storage

	webhookSecret string
	limiter       *ratelimit.FixedWindowLimiter
	startedAt     time.Time
	stats         Stats
}

func NewHttpServer(svc *founders.Service, store storage.Storage, opts Options) *Server {
	s := &Server{
		Router:        chi.NewRouter(),
		Founders:      svc,
		Storage:       store,
		webhookSecret: opts.StripeWebhookSecret,
		startedAt:     time.Now(),
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://nxtrix.com"}
	}

	r := s.Router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     origins,
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials:   true,
		OptionsPassthrough: true,
		MaxAge:             300,
	}))
	r.Use(preflightOK)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", s.Health)
	r.Get("/readyz", s.Ready)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if opts.RateLimitPerMinute > 0 {
				s.limiter = ratelimit.New(opts.RateLimitPerMinute, time.Minute)
				r.Use(ratelimit.Middleware(s.limiter, time.Minute))
			}
			r.Post("/founders/signup", s.Signup)
			r.Post("/founders/finalize", s.Finalize)
			r.Post("/founders/checkout-session", s.CheckoutSession)
		})
		r.Post("/webhooks/stripe", s.Stripe)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// PruneRateLimits drops expired rate limit windows. main calls it on a ticker.
func (s *Server) PruneRateLimits() {
	if s.limiter == nil {
		return
	}
	if n := s.limiter.Prune(); n > 0 {
		logger.Debug("Pruned rate limit windows", logger.Fields{"removed": n})
	}
}

// preflightOK answers every OPTIONS request with an empty 200 once the CORS
// headers are set.
func preflightOK(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			fields := logger.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_addr": r.RemoteAddr,
				"request_id":  middleware.GetReqID(r.Context()),
			}
			if ww.Status() >= http.StatusInternalServerError {
				logger.Warn("Request failed", fields)
			} else {
				logger.Info("Request handled", fields)
			}
		}()
		next.ServeHTTP(ww, r)
	})
}

func captureException(r *http.Request, err error) {
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}
