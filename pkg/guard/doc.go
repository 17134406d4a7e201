// Package guard composes the access checks for protected routes: session
// settle wait, authentication with a preserved return path, tenant
// resolution, onboarding completion, and role permissions, in that order.
//
// Routes declare what they need through RouteOptions and the guard does
// the rest:
//
//	router.Handle("/settings", g.Handler(settingsHandler, guard.RouteOptions{
//		TenantScoped: true,
//		RequiredPermissions: []rbac.Permission{
//			{Action: rbac.ActionUpdate, Resource: rbac.ResourceSettings},
//		},
//	}))
package guard
