package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/choosewine/choosewine-api/internal/domain"
	"github.com/choosewine/choosewine-api/internal/logger"
)

// ServiceKeyHeader carries the shared key of the internal recommendation
// service.
const ServiceKeyHeader = "X-Service-Key"

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the caller may manage the catalog.
func (i Identity) IsAdmin() bool { return i.Role == domain.RoleAdmin }

// IsService reports whether the caller is the internal recommendation service.
func (i Identity) IsService() bool { return i.Role == domain.RoleService }

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Authenticator resolves request credentials into an Identity.
type Authenticator struct {
	issuer     *Issuer
	serviceKey string
	logger     *zap.Logger
}

// NewAuthenticator builds an Authenticator. An empty serviceKey disables
// service-key authentication.
func NewAuthenticator(issuer *Issuer, serviceKey string, log *zap.Logger) *Authenticator {
	return &Authenticator{issuer: issuer, serviceKey: serviceKey, logger: logger.OrNop(log)}
}

// Middleware attaches the caller's Identity to the request context. Requests
// without credentials pass through anonymously; requests with bad credentials
// are rejected with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get(ServiceKeyHeader); key != "" {
			if a.serviceKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(a.serviceKey)) != 1 {
				a.reject(w, r, "Invalid service key")
				return
			}
			ctx := WithIdentity(r.Context(), Identity{Role: domain.RoleService})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			a.reject(w, r, "Invalid Authorization header format")
			return
		}

		claims, err := a.issuer.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			a.logger.Debug("token validation failed", zap.Error(err), zap.String("path", r.URL.Path))
			a.reject(w, r, "Invalid or expired token")
			return
		}

		role := claims.Role
		if role == "" {
			role = domain.RoleUser
		}
		ctx := WithIdentity(r.Context(), Identity{UserID: claims.UserID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects requests without an authenticated end user.
func RequireUser(next http.Handler) http.Handler {
	return require(func(id Identity) bool { return id.UserID != "" }, next)
}

// RequireAdmin rejects requests not made by an admin.
func RequireAdmin(next http.Handler) http.Handler {
	return require(Identity.IsAdmin, next)
}

// RequireService rejects requests not made with the service key.
func RequireService(next http.Handler) http.Handler {
	return require(Identity.IsService, next)
}

func require(allowed func(Identity) bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
			return
		}
		if !allowed(id) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Operation not permitted")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, message string) {
	a.logger.Info("authentication rejected",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("reason", message),
	)
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}
