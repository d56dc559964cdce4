package rbac

import (
	"sort"
	"strings"
)

// RouteRule maps a route prefix to the roles allowed past it. Rules match by
// longest prefix; an empty Roles slice denies everyone.
type RouteRule struct {
	Prefix string
	Roles  []Role
}

// DefaultRouteRules returns the stock route authorization table. Callers
// overriding routes usually start from this and append.
func DefaultRouteRules() []RouteRule {
	return []RouteRule{
		{Prefix: "/admin", Roles: []Role{Admin}},
		{Prefix: "/security/incharge", Roles: []Role{SecurityIncharge, Admin}},
		{Prefix: "/security", Roles: []Role{Security, SecurityIncharge, Admin}},
		{Prefix: "/hod", Roles: []Role{HOD, Admin}},
		{Prefix: "/reports", Roles: []Role{HOD, SecurityIncharge, Admin}},
		{Prefix: "/keys", Roles: Roles()},
		{Prefix: "/profile", Roles: Roles()},
	}
}

// DefaultPublicRoutes returns the stock unauthenticated allowlist.
func DefaultPublicRoutes() []string {
	return []string{"/", "/login", "/register", "/health"}
}

// compileRouteRules orders rules longest-prefix-first so the first match
// during lookup is the most specific one.
func compileRouteRules(rules []RouteRule) []RouteRule {
	compiled := make([]RouteRule, len(rules))
	copy(compiled, rules)
	sort.SliceStable(compiled, func(i, j int) bool {
		return len(compiled[i].Prefix) > len(compiled[j].Prefix)
	})
	return compiled
}

// IsPublic reports whether path is on the public allowlist. Allowlist
// matching is exact, never by prefix.
func (h *Hierarchy) IsPublic(path string) bool {
	_, ok := h.public[path]
	return ok
}

// CanAccessRoute reports whether role may access path. The longest matching
// route prefix wins; paths matching no rule fall back to the public
// allowlist.
func (h *Hierarchy) CanAccessRoute(role Role, path string) bool {
	if h.IsPublic(path) {
		return true
	}

	for _, rule := range h.routes {
		if !strings.HasPrefix(path, rule.Prefix) {
			continue
		}
		for _, allowed := range rule.Roles {
			if allowed == role {
				return true
			}
		}
		return false
	}

	return false
}
