package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Clark-Hu/universal-rate/internal/config"
	"github.com/Clark-Hu/universal-rate/internal/domain"
	"github.com/Clark-Hu/universal-rate/internal/identity"
	"github.com/Clark-Hu/universal-rate/internal/metrics"
	"github.com/Clark-Hu/universal-rate/internal/repository"
	"github.com/Clark-Hu/universal-rate/internal/stats"
	"github.com/Clark-Hu/universal-rate/internal/store"
)

// Resolver maps a loose user reference to a canonical FID.
type Resolver interface {
	Resolve(ctx context.Context, t identity.Target) (int64, error)
	CastURLEnabled() bool
}

// Directory serves best-effort profile data.
type Directory interface {
	LookupProfile(ctx context.Context, fid int64) (domain.Profile, error)
	EnrichMany(ctx context.Context, fids []int64) []*domain.Profile
	PayableAddress(ctx context.Context, fid int64) (*string, error)
}

// Pinger is implemented by the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators handed to New. Cache and Providers may be nil.
type Dependencies struct {
	Store     *store.Store
	Repo      *repository.Repository
	Resolver  Resolver
	Directory Directory
	Providers []identity.Provider
	Cache     Pinger
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg       config.Config
	store     *store.Store
	repo      *repository.Repository
	stats     *stats.Aggregator
	resolver  Resolver
	directory Directory
	providers []identity.Provider
	cache     Pinger
	logger    zerolog.Logger
	router    chi.Router
	httpSrv   *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, deps Dependencies, logger zerolog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", cfg.RaterHeader},
		MaxAge:         300,
	}))
	if cfg.RateLimitRequests > 0 {
		r.Use(httprate.Limit(
			cfg.RateLimitRequests,
			time.Duration(cfg.RateLimitWindowSecs)*time.Second,
			httprate.WithKeyFuncs(httprate.KeyByRealIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Code: "RATE_LIMITED", Message: "Too many requests"})
			}),
		))
	}
	r.Use(metrics.Middleware)

	s := &Server{
		cfg:       cfg,
		store:     deps.Store,
		repo:      deps.Repo,
		resolver:  deps.Resolver,
		directory: deps.Directory,
		providers: deps.Providers,
		cache:     deps.Cache,
		logger:    logger.With().Str("component", "http").Logger(),
		router:    r,
	}
	if deps.Repo != nil {
		s.stats = stats.New(deps.Repo.Ratings)
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/rate", s.handleSubmitRating)
		r.Get("/rate", s.handleGetRatingStats)
		r.Get("/ratings/{id}", s.handleGetRating)
		r.Get("/profile/{fid}", s.handleProfile)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/address/{fid}", s.handleAddress)
		if s.cfg.DebugRoutes {
			r.Get("/debug/identity", s.handleDebugIdentity)
		}
	})
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start boots the HTTP server and blocks until ctx is cancelled or serving fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("health check: database unreachable")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "component": "database"})
		return
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("health check: cache unreachable")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "component": "cache"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

func corsOrigins(cfg config.Config) []string {
	if origins := cfg.CORSOrigins(); len(origins) > 0 {
		return origins
	}
	return []string{"*"}
}
