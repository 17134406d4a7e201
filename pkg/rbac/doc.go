// Package rbac provides role-based access control for the Guildboard
// job-board platform.
//
// # Overview
//
// Authorization is a pure function of (role, permission). Roles come from a
// small fixed enumeration (platform-owner, tenant-owner, employer, member)
// and permissions are (action, resource) pairs over the platform's
// tenant-scoped nouns (jobs, members, profiles, settings, community,
// platform). The role -> permission-set mapping is static configuration
// data defined in types.go, not derived at runtime.
//
// # Evaluation
//
//	engine := rbac.NewEngine()
//
//	engine.HasPermission(rbac.RoleTenantOwner, rbac.Permission{
//		Action:   rbac.ActionUpdate,
//		Resource: rbac.ResourceSettings,
//	}) // true
//
//	engine.CanAccessRoute(rbac.RoleMember, required) // gate for routes
//
// An unrecognized role falls back to the default least-privilege role
// (member): lookups never fail and never silently grant elevated access.
//
// Every call is synchronous and total. There is deliberately no network,
// no caching, and no session awareness here; session validity and tenant
// membership are enforced by pkg/session and pkg/tenant before a role
// ever reaches this package.
//
// # Related Packages
//
//   - pkg/guard: composes RBAC checks into protected HTTP routes
//   - pkg/session: owns the authenticated user whose role is evaluated
package rbac
