package security

import (
	"context"
	"sync"
)

// RoleAuthorizationProvider is an in-memory role→permission table. A
// permission is checked per (messageType, operation) pair or by name
// directly via HasPermission.
type RoleAuthorizationProvider struct {
	mu          sync.RWMutex
	permissions map[string]map[string]struct{} // role -> permission set
}

func NewRoleAuthorizationProvider() *RoleAuthorizationProvider {
	return &RoleAuthorizationProvider{permissions: make(map[string]map[string]struct{})}
}

// Grant adds permission to role.
func (p *RoleAuthorizationProvider) Grant(role, permission string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.permissions[role]
	if !ok {
		set = make(map[string]struct{})
		p.permissions[role] = set
	}
	set[permission] = struct{}{}
}

// PermissionName renders the canonical permission string for a
// (messageType, operation) pair, e.g. "orders.placed:send".
func PermissionName(messageType string, operation Operation) string {
	return messageType + ":" + string(operation)
}

func (p *RoleAuthorizationProvider) Authorize(ctx context.Context, principal Principal, messageType string, operation Operation) AuthorizationOutcome {
	permission := PermissionName(messageType, operation)
	if p.HasPermission(ctx, principal, permission) {
		return AuthorizationOutcome{Allowed: true}
	}
	return AuthorizationOutcome{Allowed: false, Reason: "missing permission " + permission}
}

func (p *RoleAuthorizationProvider) HasPermission(ctx context.Context, principal Principal, permission string) bool {
	roles := p.rolesOf(principal)

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, role := range roles {
		if set, ok := p.permissions[role]; ok {
			if _, granted := set[permission]; granted {
				return true
			}
		}
	}
	return false
}

func (p *RoleAuthorizationProvider) rolesOf(principal Principal) []string {
	v, ok := principal.Claims["roles"]
	if !ok {
		return nil
	}
	switch roles := v.(type) {
	case []string:
		return roles
	case []any:
		out := make([]string, 0, len(roles))
		for _, r := range roles {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
