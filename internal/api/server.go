// Package api serves the dirtiness estimator and the reward engine over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/cleancredit/internal/dirtiness"
	"github.com/sells-group/cleancredit/internal/notify"
	"github.com/sells-group/cleancredit/internal/reward"
	"github.com/sells-group/cleancredit/internal/store"
	"github.com/sells-group/cleancredit/internal/watch"
)

// Deps are the components the handlers compose. Ledger, Reloader and
// Publisher are optional.
type Deps struct {
	Holder    *dirtiness.Holder
	Engine    *reward.Engine
	Ledger    store.RewardLedger
	Reloader  *watch.Reloader
	Publisher *notify.Publisher
}

// Options tune the HTTP surface.
type Options struct {
	CORSOrigins    []string
	RateLimitRPS   float64 // 0 disables limiting
	RateLimitBurst int
}

// Server holds the HTTP handlers.
type Server struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates a Server.
func New(deps Deps, opts Options) *Server {
	return &Server{deps: deps, opts: opts, now: time.Now}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.opts.RateLimitRPS > 0 {
			burst := s.opts.RateLimitBurst
			if burst < 1 {
				burst = int(s.opts.RateLimitRPS)
			}
			r.Use(rateLimit(rate.NewLimiter(rate.Limit(s.opts.RateLimitRPS), max(burst, 1))))
		}

		r.Get("/dirtiness", s.handleDirtiness)
		r.Get("/points", s.handlePoints)
		r.Get("/points.geojson", s.handlePointsGeoJSON)
		r.Post("/reward", s.handleReward)
		r.Get("/rewards", s.handleRewards)
		r.Post("/reload", s.handleReload)
	})

	return r
}

// rateLimit rejects requests beyond the limiter's budget with 429.
func rateLimit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
