// Package tenant maps inbound requests to communities. ParseRoutingContext
// extracts the routing token from the host or, in development, a query
// parameter; Resolver turns a token into a verified tenant, caching slugs
// and distinguishing "no such tenant" from "not yours"; Onboarder creates
// a tenant for a signed-in user and promotes them to its owner.
package tenant
