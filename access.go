package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/mmichie/umrahdesk/client"
)

// PermissionSource fetches the permission list and user record for a session.
type PermissionSource interface {
	FetchPermissions(ctx context.Context, sess SessionContext) (*client.PermissionsResponse, error)
}

// DefaultKnownResources is what a superuser is told they can reach.
var DefaultKnownResources = []string{
	"booking",
	"invoice",
	"payment",
	"package",
	"hotel",
	"transport",
	"food",
	"ziarat",
	"flight",
	"visa",
	"ticket",
	"pax_movement",
	"profile",
}

// Access wraps a PermissionEngine with the superuser bypass. It is the only
// place that bypass is applied.
//
// Refresh calls are not deduplicated: whichever response arrives last
// replaces the engine, even if it was requested first.
type Access struct {
	mu        sync.RWMutex
	engine    *PermissionEngine
	user      PortalUser
	source    PermissionSource
	session   SessionContext
	resources []string
}

// NewAccess starts with no permissions; nothing is granted until Refresh or
// Replace installs a set.
func NewAccess(source PermissionSource, session SessionContext, knownResources []string) *Access {
	if knownResources == nil {
		knownResources = DefaultKnownResources
	}
	return &Access{
		engine:    NewPermissionEngine(NewPermissionSet(), PortalAgent),
		source:    source,
		session:   session,
		resources: knownResources,
	}
}

// Refresh re-fetches the permission list and user record and rebuilds the
// engine. On failure the access is emptied and the error returned.
func (a *Access) Refresh(ctx context.Context) error {
	if a.source == nil {
		return fmt.Errorf("no permission source configured")
	}

	resp, err := a.source.FetchPermissions(ctx, a.session)
	if err != nil {
		a.Replace(NewPermissionSet(), PortalUser{})
		return fmt.Errorf("failed to refresh permissions: %w", err)
	}

	a.Replace(NewPermissionSet(resp.Permissions...), portalUserFromAPI(resp.User))
	return nil
}

// Replace installs a new permission set and user. The portal follows the
// user's staff flag.
func (a *Access) Replace(perms PermissionSet, user PortalUser) {
	engine := NewPermissionEngine(perms, PortalFor(user.IsStaff))

	a.mu.Lock()
	a.engine = engine
	a.user = user
	a.mu.Unlock()
}

func (a *Access) snapshot() (*PermissionEngine, PortalUser) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.engine, a.user
}

// Snapshot returns the permission set and user as one consistent pair, in
// the form Replace and the session row take them.
func (a *Access) Snapshot() (PermissionSet, PortalUser) {
	engine, user := a.snapshot()
	return engine.perms, user
}

func (a *Access) User() PortalUser {
	_, user := a.snapshot()
	return user
}

func (a *Access) Portal() Portal {
	engine, _ := a.snapshot()
	return engine.Portal()
}

func (a *Access) IsSuperuser() bool {
	return a.User().IsSuperuser
}

// Permissions returns the granted codenames in insertion order.
func (a *Access) Permissions() []string {
	engine, _ := a.snapshot()
	return engine.perms.Codenames()
}

func (a *Access) HasPermission(codename string) bool {
	engine, user := a.snapshot()
	if user.IsSuperuser {
		return true
	}
	return engine.HasPermission(codename)
}

func (a *Access) HasAnyPermission(codenames ...string) bool {
	engine, user := a.snapshot()
	if user.IsSuperuser {
		return true
	}
	return engine.HasAnyPermission(codenames...)
}

func (a *Access) HasAllPermissions(codenames ...string) bool {
	engine, user := a.snapshot()
	if user.IsSuperuser {
		return true
	}
	return engine.HasAllPermissions(codenames...)
}

func (a *Access) Can(action, resource string) bool {
	engine, user := a.snapshot()
	if user.IsSuperuser {
		return true
	}
	return engine.Can(action, resource)
}

func (a *Access) AvailableActions(resource string) []string {
	engine, user := a.snapshot()
	if user.IsSuperuser {
		all := make([]string, len(CandidateActions))
		copy(all, CandidateActions)
		return all
	}
	return engine.AvailableActions(resource)
}

func (a *Access) AccessibleResources() []string {
	engine, user := a.snapshot()
	if user.IsSuperuser {
		all := make([]string, len(a.resources))
		copy(all, a.resources)
		return all
	}
	return engine.AccessibleResources()
}
