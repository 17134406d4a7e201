package rbac

// Engine evaluates permissions against the static role table. All methods
// are pure functions of their arguments: no I/O, no clock, no request
// context, so every decision is reproducible in a unit test.
type Engine struct{}

// NewEngine creates a new permission engine
func NewEngine() *Engine {
	return &Engine{}
}

// permissionsFor looks up a role's permission set, falling back to the
// default role for unrecognized values. It never returns nil.
func (e *Engine) permissionsFor(role Role) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		return rolePermissions[DefaultRole]
	}
	return perms
}

// HasPermission reports whether the role's configured set contains a
// permission matching both action and resource.
func (e *Engine) HasPermission(role Role, permission Permission) bool {
	for _, p := range e.permissionsFor(role) {
		if p.Action == permission.Action && p.Resource == permission.Resource {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the role holds every listed permission.
// An empty list is vacuously true.
func (e *Engine) HasAllPermissions(role Role, permissions []Permission) bool {
	for _, p := range permissions {
		if !e.HasPermission(role, p) {
			return false
		}
	}
	return true
}

// HasAnyPermission reports whether the role holds at least one of the
// listed permissions. An empty list is false.
func (e *Engine) HasAnyPermission(role Role, permissions []Permission) bool {
	for _, p := range permissions {
		if e.HasPermission(role, p) {
			return true
		}
	}
	return false
}

// GetRolePermissions returns a copy of the role's configured permission set.
// Callers may mutate the returned slice without affecting the table.
func (e *Engine) GetRolePermissions(role Role) []Permission {
	perms := e.permissionsFor(role)
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// CanAccessRoute reports whether the role satisfies all permissions a
// protected destination requires.
func (e *Engine) CanAccessRoute(role Role, requiredPermissions []Permission) bool {
	return e.HasAllPermissions(role, requiredPermissions)
}
