package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const (
	sessionContextKey contextKey = "session"
	accessContextKey  contextKey = "access"
)

var errNoSession = errors.New("session not found in context")

type AuthMiddleware struct {
	tokenManager *TokenManager
	sessions     SessionRepository
	accesses     *AccessStore
	source       PermissionSource
	resources    []string
	metrics      *Metrics
	logger       *slog.Logger
}

func NewAuthMiddleware(tokenManager *TokenManager, sessions SessionRepository, accesses *AccessStore,
	source PermissionSource, resources []string, metrics *Metrics, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokenManager: tokenManager,
		sessions:     sessions,
		accesses:     accesses,
		source:       source,
		resources:    resources,
		metrics:      metrics,
		logger:       logger,
	}
}

// GetSessionFromContext retrieves the session RequireAuth resolved.
func GetSessionFromContext(ctx context.Context) (*Session, error) {
	sess, ok := ctx.Value(sessionContextKey).(*Session)
	if !ok {
		return nil, errNoSession
	}
	return sess, nil
}

// GetAccessFromContext retrieves the session's live Access.
func GetAccessFromContext(ctx context.Context) (*Access, error) {
	access, ok := ctx.Value(accessContextKey).(*Access)
	if !ok {
		return nil, errNoSession
	}
	return access, nil
}

// accessFor returns the session's live Access. A session not yet in the
// store, for example after a restart, starts from its stored snapshot.
func (am *AuthMiddleware) accessFor(sess *Session) *Access {
	if access, ok := am.accesses.Load(sess.ID); ok {
		return access
	}
	access := NewAccess(am.source, sess, am.resources)
	access.Replace(sess.Snapshot())
	return am.accesses.LoadOrStore(sess.ID, access, sess.ExpiresAt)
}

func (am *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
			return
		}

		claims, err := am.tokenManager.ValidateToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// The session row is the source of truth; logout deletes it.
		sess, err := am.sessions.GetSession(r.Context(), claims.SessionID)
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusUnauthorized)
			return
		}
		if err != nil {
			logSanitizedError(am.logger, err, "failed to load session", "session_id", claims.SessionID)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if time.Now().After(sess.ExpiresAt) {
			http.Error(w, "Session expired", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, sess)
		ctx = context.WithValue(ctx, accessContextKey, am.accessFor(sess))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Capability is an action on a resource, checked in the session's portal.
type Capability struct {
	Action   string
	Resource string
}

// RequireCapability lets the request through when the session can perform
// action on resource.
func (am *AuthMiddleware) RequireCapability(action, resource string) func(http.Handler) http.Handler {
	return am.RequireAnyCapability(Capability{Action: action, Resource: resource})
}

// RequireAnyCapability lets the request through when at least one of caps
// is granted. Superusers always pass.
func (am *AuthMiddleware) RequireAnyCapability(caps ...Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, err := GetAccessFromContext(r.Context())
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			portal := access.Portal()
			codenames := make([]string, 0, len(caps))
			for _, c := range caps {
				codenames = append(codenames, Codename(c.Action, c.Resource, portal))
			}

			allowed := access.HasAnyPermission(codenames...)
			am.recordCheck(caps, allowed)
			if !allowed {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (am *AuthMiddleware) recordCheck(caps []Capability, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	for _, c := range caps {
		am.metrics.PermissionChecksTotal.WithLabelValues(c.Resource, c.Action, result).Inc()
	}
}
