package tenant

import (
	"net"
	"net/url"
	"strings"
)

// PlatformToken is the reserved routing token for the platform-operator
// context. No tenant may claim it as a slug.
const PlatformToken = "platform"

// DevParam is the query parameter that substitutes for a real subdomain in
// development, where wildcard DNS is unavailable
const DevParam = "subdomain"

// Kind classifies how the routing token was derived
type Kind string

const (
	// KindPlatform is the operator context: the bare base domain, the
	// reserved platform token, or www
	KindPlatform Kind = "platform"
	// KindSubdomain is a tenant slug taken from the host's leftmost label
	KindSubdomain Kind = "subdomain"
	// KindCustomDomain is a host outside the base domain, bound 1:1 to a
	// tenant by its registered routing key
	KindCustomDomain Kind = "custom_domain"
	// KindDevParam is a tenant token supplied via the query parameter
	KindDevParam Kind = "dev_param"
)

// RoutingContext is the tenant routing signal extracted from a request
type RoutingContext struct {
	// Token is the tenant routing key; empty for the platform context
	Token string
	Kind  Kind
}

// Tenant reports whether the context targets a tenant rather than the
// platform
func (rc RoutingContext) Tenant() bool {
	return rc.Kind != KindPlatform
}

// ParseRoutingContext derives the tenant routing token from the request
// host and query. The query parameter override wins so local development
// can simulate subdomains; on the base domain the leftmost label is the
// token; any other host is a custom domain whose whole name is the token.
func ParseRoutingContext(host string, query url.Values, baseDomain string) RoutingContext {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	baseDomain = strings.ToLower(baseDomain)

	if token := strings.ToLower(strings.TrimSpace(query.Get(DevParam))); token != "" {
		if token == PlatformToken {
			return RoutingContext{Kind: KindPlatform}
		}
		return RoutingContext{Token: token, Kind: KindDevParam}
	}

	if host == baseDomain || host == "www."+baseDomain {
		return RoutingContext{Kind: KindPlatform}
	}

	if suffix := "." + baseDomain; strings.HasSuffix(host, suffix) {
		label := strings.TrimSuffix(host, suffix)
		// Only the leftmost label is the tenant token
		if i := strings.Index(label, "."); i >= 0 {
			label = label[:i]
		}
		if label == PlatformToken || label == "www" {
			return RoutingContext{Kind: KindPlatform}
		}
		return RoutingContext{Token: label, Kind: KindSubdomain}
	}

	return RoutingContext{Token: host, Kind: KindCustomDomain}
}
