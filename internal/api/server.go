package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/leadflow-server/leadflow-server/internal/auth"
	"github.com/leadflow-server/leadflow-server/internal/batch"
	"github.com/leadflow-server/leadflow-server/internal/config"
	"github.com/leadflow-server/leadflow-server/internal/knowledge"
	"github.com/leadflow-server/leadflow-server/internal/processor"
	"github.com/leadflow-server/leadflow-server/internal/ratelimit"
	"github.com/leadflow-server/leadflow-server/internal/settings"
	"github.com/leadflow-server/leadflow-server/internal/storage"
	"github.com/leadflow-server/leadflow-server/internal/validation"
)

type contextKey string

const claimsKey contextKey = "claims"

// RESTServer represents the REST API server
type RESTServer struct {
	config    *config.Config
	store     storage.Store
	auth      *auth.JWTManager
	validator *validation.Validator
	resolver  *settings.Resolver
	limiter   *ratelimit.Limiter
	batch     *batch.Processor
	processor *processor.Processor
	indexer   *knowledge.Indexer
	router    chi.Router
	server    *http.Server
}

// NewRESTServer creates a new REST API server
func NewRESTServer(cfg *config.Config, store storage.Store, resolver *settings.Resolver, limiter *ratelimit.Limiter, batchProc *batch.Processor, msgProc *processor.Processor, indexer *knowledge.Indexer) *RESTServer {
	s := &RESTServer{
		config:    cfg,
		store:     store,
		auth:      auth.NewJWTManager(&cfg.JWT),
		validator: validation.NewValidator(),
		resolver:  resolver,
		limiter:   limiter,
		batch:     batchProc,
		processor: msgProc,
		indexer:   indexer,
		router:    chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr

	log.Info().Str("addr", addr).Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the underlying handler, used by tests
func (s *RESTServer) Router() http.Handler {
	return s.router
}

// authMiddleware is the authentication middleware
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.respondError(w, http.StatusUnauthorized, "missing or invalid authorization header")
			return
		}

		claims, err := s.auth.ValidateToken(token)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// batchAuthMiddleware authorizes batch trigger calls against the shared
// secret configured for the external scheduler.
func (s *RESTServer) batchAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.config.Batch.Secret)) != 1 {
			s.respondError(w, http.StatusUnauthorized, "invalid batch secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// gatewayAuthMiddleware authorizes inbound webhook calls from the messaging
// gateway.
func (s *RESTServer) gatewayAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.config.Gateway.Token)) != 1 {
			s.respondError(w, http.StatusUnauthorized, "invalid gateway token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// claimsFromContext returns the authenticated claims, if any
func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// requireSettingsAdmin gates settings writes on the configured admin email
// allowlist.
func (s *RESTServer) requireSettingsAdmin(w http.ResponseWriter, r *http.Request) bool {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		s.respondError(w, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !claims.IsAdmin || !s.config.Admin.IsAdminEmail(claims.Email) {
		s.respondError(w, http.StatusForbidden, "administrator access required")
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
