package main

import (
	"net/http"

	"github.com/gorilla/csrf"
)

// CSRFResponse represents the structure for CSRF token response
type CSRFResponse struct {
	Token string `json:"csrf_token"`
}

type CSRFConfig struct {
	AuthKey string
	Secure  bool
}

func NewCSRFConfig(cfg *Config) *CSRFConfig {
	return &CSRFConfig{
		AuthKey: cfg.CSRFAuthKey,
		Secure:  cfg.Production(),
	}
}

// NewCSRFMiddleware protects every unsafe method. Clients fetch a token
// from /csrf/token and echo it in X-CSRF-Token.
func NewCSRFMiddleware(config *CSRFConfig) func(http.Handler) http.Handler {
	return csrf.Protect(
		[]byte(config.AuthKey),
		csrf.Secure(config.Secure),
		csrf.Path("/"),
		csrf.MaxAge(3600),
		csrf.SameSite(csrf.SameSiteStrictMode),
		csrf.HttpOnly(true),
		csrf.RequestHeader("X-CSRF-Token"),
		csrf.FieldName("csrf_token"),
		csrf.CookieName("_umrahdesk.csrf"),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, csrf.FailureReason(r).Error(), http.StatusForbidden)
		})),
	)
}

func (s *Server) handleGetCSRFToken(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, CSRFResponse{
		Token: csrf.Token(r),
	})
}
