package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/choosewine/choosewine-api/internal/auth"
	"github.com/choosewine/choosewine-api/internal/config"
	"github.com/choosewine/choosewine-api/internal/domain"
	"github.com/choosewine/choosewine-api/internal/logger"
	"github.com/choosewine/choosewine-api/internal/metrics"
	"github.com/choosewine/choosewine-api/internal/rating"
	"github.com/choosewine/choosewine-api/internal/repository"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Recommender produces ordered recommendations for a user.
type Recommender interface {
	Recommend(ctx context.Context, userID string) ([]domain.Wine, error)
	Invalidate(ctx context.Context, userID string)
}

// Dependencies groups the collaborators the handlers use.
type Dependencies struct {
	Health      HealthChecker
	Repo        *repository.Repository
	Ratings     *rating.Aggregator
	Recommender Recommender
	Issuer      *auth.Issuer
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg         config.Config
	health      HealthChecker
	repo        *repository.Repository
	ratings     *rating.Aggregator
	recommender Recommender
	issuer      *auth.Issuer
	authn       *auth.Authenticator
	logger      *zap.Logger
	router      chi.Router
	httpSrv     *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, deps Dependencies, log *zap.Logger) *Server {
	log = logger.OrNop(log)

	s := &Server{
		cfg:         cfg,
		health:      deps.Health,
		repo:        deps.Repo,
		ratings:     deps.Ratings,
		recommender: deps.Recommender,
		issuer:      deps.Issuer,
		authn:       auth.NewAuthenticator(deps.Issuer, cfg.ServiceKey, log),
		logger:      log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHTTP)
	s.router = r
	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router.Group(func(r chi.Router) {
		r.Use(s.authn.Middleware)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
		})

		r.Route("/wines", func(r chi.Router) {
			r.Get("/", s.handleListWines)
			r.With(auth.RequireAdmin).Post("/", s.handleCreateWine)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetWine)
				r.With(auth.RequireAdmin).Put("/", s.handleUpdateWine)
				r.With(auth.RequireAdmin).Delete("/", s.handleDeleteWine)
				r.Get("/ratings", s.handleListWineRatings)
			})
		})

		r.Route("/ratings", func(r chi.Router) {
			r.With(auth.RequireUser).Post("/", s.handleCreateRating)
			r.Get("/{id}", s.handleGetRating)
			r.With(auth.RequireUser).Put("/{id}", s.handleUpdateRating)
			r.With(auth.RequireUser).Delete("/{id}", s.handleDeleteRating)
		})

		r.Route("/favorites", func(r chi.Router) {
			r.Use(auth.RequireUser)
			r.Get("/", s.handleListFavorites)
			r.Post("/", s.handleCreateFavorite)
			r.Delete("/{id}", s.handleDeleteFavorite)
		})

		r.With(auth.RequireUser).Get("/history", s.handleListHistory)
		r.With(auth.RequireUser).Get("/recommendations", s.handleRecommendations)

		r.Route("/users", func(r chi.Router) {
			r.With(auth.RequireUser).Get("/me", s.handleGetProfile)
			r.With(auth.RequireUser).Put("/me", s.handleUpdateProfile)
			r.With(auth.RequireService).Get("/{id}/interactions", s.handleUserInteractions)
		})
	})
}

// Start boots the HTTP server and blocks until ctx is cancelled or the
// listener fails.
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
		s.logger.Info("http server listening", zap.String("addr", s.httpSrv.Addr))
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

	if s.health != nil {
		if err := s.health.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// requestLogger logs one line per request, like chi's middleware.Logger but
// through zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("remote", r.RemoteAddr),
		)
	})
}
