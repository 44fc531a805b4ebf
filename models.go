package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/mmichie/umrahdesk/client"
)

// SessionContext is what any component talking to the agency API needs to
// know about the current session.
type SessionContext = client.SessionContext

// PortalUser is the current-user record as the agency API reports it.
type PortalUser struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	IsSuperuser bool   `json:"is_superuser"`
	IsStaff     bool   `json:"is_staff"`
}

func portalUserFromAPI(u client.User) PortalUser {
	return PortalUser{
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		IsSuperuser: u.IsSuperuser,
		IsStaff:     u.IsStaff,
	}
}

// Session is one signed-in portal session. It carries the agency API token,
// the organization/agency scope of every call made on its behalf and the
// last permission snapshot fetched for it.
type Session struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	Email        string        `db:"email" json:"email"`
	APIToken     string        `db:"api_token" json:"-"`
	Organization string        `db:"organization_id" json:"organization_id"`
	Agency       string        `db:"agency_id" json:"agency_id"`
	Permissions  PermissionSet `db:"permissions" json:"permissions"`
	IsSuperuser  bool          `db:"is_superuser" json:"is_superuser"`
	IsStaff      bool          `db:"is_staff" json:"is_staff"`
	ExpiresAt    time.Time     `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

func NewSession(email, apiToken, organization, agency string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.New(),
		Email:        email,
		APIToken:     apiToken,
		Organization: organization,
		Agency:       agency,
		Permissions:  NewPermissionSet(),
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
	}
}

func (s *Session) Token() string    { return s.APIToken }
func (s *Session) OrgID() string    { return s.Organization }
func (s *Session) AgencyID() string { return s.Agency }

// Snapshot is the stored permission state, as Access.Replace takes it.
func (s *Session) Snapshot() (PermissionSet, PortalUser) {
	return s.Permissions, PortalUser{
		Email:       s.Email,
		IsSuperuser: s.IsSuperuser,
		IsStaff:     s.IsStaff,
	}
}
