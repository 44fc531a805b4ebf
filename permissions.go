package main

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Portal is the UI context a permission codename is scoped to.
type Portal string

const (
	PortalAdmin Portal = "admin"
	PortalAgent Portal = "agent"
)

// PortalFor derives the portal from the agency API's staff flag.
func PortalFor(isStaff bool) Portal {
	if isStaff {
		return PortalAdmin
	}
	return PortalAgent
}

// Recognized capability actions, in the order AvailableActions reports them.
const (
	ActionView   = "view"
	ActionAdd    = "add"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionBook   = "book"
)

// CandidateActions is the fixed candidate list for AvailableActions.
var CandidateActions = []string{ActionView, ActionAdd, ActionEdit, ActionDelete, ActionBook}

// Codename builds the permission identifier for an action on a resource.
// Segments are joined with underscores and are not escaped, so an action or
// resource containing an underscore yields an ambiguous codename.
func Codename(action, resource string, portal Portal) string {
	return action + "_" + resource + "_" + string(portal)
}

// PermissionSet is a set of granted codenames that remembers the order in
// which codenames were first added.
type PermissionSet struct {
	order []string
	index map[string]struct{}
}

// NewPermissionSet builds a set from codenames, dropping duplicates.
func NewPermissionSet(codenames ...string) PermissionSet {
	ps := PermissionSet{
		order: make([]string, 0, len(codenames)),
		index: make(map[string]struct{}, len(codenames)),
	}
	for _, c := range codenames {
		if _, ok := ps.index[c]; ok {
			continue
		}
		ps.index[c] = struct{}{}
		ps.order = append(ps.order, c)
	}
	return ps
}

// Contains reports exact, case-sensitive membership.
func (ps PermissionSet) Contains(codename string) bool {
	_, ok := ps.index[codename]
	return ok
}

func (ps PermissionSet) Len() int {
	return len(ps.order)
}

// Codenames returns the set in insertion order.
func (ps PermissionSet) Codenames() []string {
	out := make([]string, len(ps.order))
	copy(out, ps.order)
	return out
}

func (ps PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(ps.Codenames())
}

func (ps *PermissionSet) UnmarshalJSON(data []byte) error {
	var codenames []string
	if err := json.Unmarshal(data, &codenames); err != nil {
		return err
	}
	*ps = NewPermissionSet(codenames...)
	return nil
}

// Value implements the driver.Valuer interface for PermissionSet
func (ps PermissionSet) Value() (driver.Value, error) {
	return json.Marshal(ps.Codenames())
}

// Scan implements the sql.Scanner interface for PermissionSet
func (ps *PermissionSet) Scan(value interface{}) error {
	if value == nil {
		*ps = NewPermissionSet()
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported permission set type %T", value)
	}
	return ps.UnmarshalJSON(data)
}

// PermissionEngine answers authorization queries against a fixed permission
// set and portal. It knows nothing about superusers; see Access.
type PermissionEngine struct {
	perms  PermissionSet
	portal Portal
}

func NewPermissionEngine(perms PermissionSet, portal Portal) *PermissionEngine {
	if perms.index == nil {
		perms = NewPermissionSet()
	}
	return &PermissionEngine{perms: perms, portal: portal}
}

func (e *PermissionEngine) Portal() Portal {
	return e.portal
}

// HasPermission checks if the set contains a specific codename
func (e *PermissionEngine) HasPermission(codename string) bool {
	return e.perms.Contains(codename)
}

// HasAnyPermission checks if any of the given codenames is granted
func (e *PermissionEngine) HasAnyPermission(codenames ...string) bool {
	for _, c := range codenames {
		if e.HasPermission(c) {
			return true
		}
	}
	return false
}

// HasAllPermissions checks if all of the given codenames are granted
func (e *PermissionEngine) HasAllPermissions(codenames ...string) bool {
	for _, c := range codenames {
		if !e.HasPermission(c) {
			return false
		}
	}
	return true
}

// Can checks the codename action_resource_portal.
func (e *PermissionEngine) Can(action, resource string) bool {
	return e.HasPermission(Codename(action, resource, e.portal))
}

// AvailableActions returns the candidate actions granted on resource.
func (e *PermissionEngine) AvailableActions(resource string) []string {
	actions := make([]string, 0, len(CandidateActions))
	for _, a := range CandidateActions {
		if e.Can(a, resource) {
			actions = append(actions, a)
		}
	}
	return actions
}

// AccessibleResources lists every resource named by a codename of this
// portal, once each, in first-seen order.
func (e *PermissionEngine) AccessibleResources() []string {
	suffix := "_" + string(e.portal)
	seen := make(map[string]struct{})
	resources := make([]string, 0)

	for _, c := range e.perms.order {
		if !strings.HasSuffix(c, suffix) {
			continue
		}
		_, resource, ok := strings.Cut(strings.TrimSuffix(c, suffix), "_")
		if !ok || resource == "" {
			continue
		}
		if _, dup := seen[resource]; dup {
			continue
		}
		seen[resource] = struct{}{}
		resources = append(resources, resource)
	}
	return resources
}
