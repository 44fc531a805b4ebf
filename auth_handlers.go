package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mmichie/umrahdesk/client"
)

type LoginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	OrganizationID string `json:"organization_id"`
	AgencyID       string `json:"agency_id"`
}

type LoginResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresAt   time.Time  `json:"expires_at"`
	User        PortalUser `json:"user"`
	Portal      Portal     `json:"portal"`
	Permissions []string   `json:"permissions"`
}

type PermissionsView struct {
	User                PortalUser `json:"user"`
	Portal              Portal     `json:"portal"`
	IsSuperuser         bool       `json:"is_superuser"`
	Permissions         []string   `json:"permissions"`
	AccessibleResources []string   `json:"accessible_resources"`
}

type CapabilitiesView struct {
	Resource string          `json:"resource"`
	Portal   Portal          `json:"portal"`
	Actions  []string        `json:"actions"`
	Can      map[string]bool `json:"can"`
}

func permissionsView(access *Access) PermissionsView {
	return PermissionsView{
		User:                access.User(),
		Portal:              access.Portal(),
		IsSuperuser:         access.IsSuperuser(),
		Permissions:         access.Permissions(),
		AccessibleResources: access.AccessibleResources(),
	}
}

// handleLogin exchanges credentials for an agency API token, loads the
// user's permissions and opens a session. A login whose permission fetch
// fails is rejected rather than opened with nothing granted.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := ValidateLoginRequest(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	token, err := s.api.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		s.upstreamError(w, err, "agency login failed")
		return
	}

	sess := NewSession(req.Email, token.AccessToken, req.OrganizationID, req.AgencyID, s.cfg.SessionTTL)
	if !token.Expiry.IsZero() && token.Expiry.Before(sess.ExpiresAt) {
		sess.ExpiresAt = token.Expiry
	}

	access := NewAccess(s.api, sess, s.cfg.KnownResources)
	if err := access.Refresh(r.Context()); err != nil {
		s.metrics.PermissionRefreshTotal.WithLabelValues("error").Inc()
		s.upstreamError(w, err, "failed to load permissions at login")
		return
	}
	s.metrics.PermissionRefreshTotal.WithLabelValues("ok").Inc()

	user := access.User()
	sess.Permissions = NewPermissionSet(access.Permissions()...)
	sess.IsSuperuser = user.IsSuperuser
	sess.IsStaff = user.IsStaff

	if err := s.sessions.CreateSession(r.Context(), sess); err != nil {
		s.logError(err, "failed to create session")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.accesses.Store(sess.ID, access, sess.ExpiresAt)

	signed, err := s.tokenManager.GenerateToken(sess, access.Portal())
	if err != nil {
		s.logError(err, "failed to sign portal token")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.logger.Info("session opened",
		"session_id", sess.ID,
		"portal", access.Portal(),
		"permissions", len(sess.Permissions.Codenames()),
	)

	s.writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   sess.ExpiresAt,
		User:        user,
		Portal:      access.Portal(),
		Permissions: access.Permissions(),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, err := GetSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := s.sessions.DeleteSession(r.Context(), sess.ID); err != nil {
		s.logError(err, "failed to delete session")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.accesses.Delete(sess.ID)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	access, err := GetAccessFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	s.writeJSON(w, http.StatusOK, permissionsView(access))
}

// handleRefreshPermissions re-fetches the permission list. The stored
// snapshot follows the outcome either way, so a failed refresh leaves the
// session with nothing granted. The scope's cached catalog is dropped too.
func (s *Server) handleRefreshPermissions(w http.ResponseWriter, r *http.Request) {
	sess, err := GetSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	access, err := GetAccessFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	refreshErr := access.Refresh(r.Context())
	s.catalogs.Invalidate(sess)

	// Persist on a context that survives a client disconnect.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
	defer cancel()
	perms, user := access.Snapshot()
	if err := s.sessions.UpdateSessionPermissions(ctx, sess.ID, perms, user); err != nil {
		s.logError(err, "failed to store permission snapshot")
	}

	if refreshErr != nil {
		s.metrics.PermissionRefreshTotal.WithLabelValues("error").Inc()
		s.upstreamError(w, refreshErr, "permission refresh failed")
		return
	}
	s.metrics.PermissionRefreshTotal.WithLabelValues("ok").Inc()

	s.writeJSON(w, http.StatusOK, permissionsView(access))
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	access, err := GetAccessFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	resource := r.URL.Query().Get("resource")
	if err := ValidateResource(resource); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	can := make(map[string]bool, len(CandidateActions))
	for _, action := range CandidateActions {
		can[action] = access.Can(action, resource)
	}

	s.writeJSON(w, http.StatusOK, CapabilitiesView{
		Resource: resource,
		Portal:   access.Portal(),
		Actions:  access.AvailableActions(resource),
		Can:      can,
	})
}

// upstreamError maps agency API failures onto responses.
func (s *Server) upstreamError(w http.ResponseWriter, err error, msg string) {
	var statusErr *client.StatusError
	switch {
	case errors.Is(err, client.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, client.ErrUnauthorized):
		http.Error(w, "Agency API rejected the session", http.StatusUnauthorized)
	case errors.Is(err, context.DeadlineExceeded):
		s.logError(err, msg)
		http.Error(w, "Agency API timed out", http.StatusGatewayTimeout)
	case errors.As(err, &statusErr):
		s.logError(err, msg)
		http.Error(w, "Agency API error", http.StatusBadGateway)
	default:
		s.logError(err, msg)
		http.Error(w, "Agency API unavailable", http.StatusBadGateway)
	}
}
