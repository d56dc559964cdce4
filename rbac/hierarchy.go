package rbac

// Capability names checked against role capability sets. Capabilities are
// opaque strings; the engine never interprets their structure.
const (
	CapKeysView          = "keys:view"
	CapKeysViewAll       = "keys:view_all"
	CapKeysAssign        = "keys:assign"
	CapKeysReturn        = "keys:return"
	CapKeysManage        = "keys:manage"
	CapUsersView         = "users:view"
	CapUsersManage       = "users:manage"
	CapReportsView       = "reports:view"
	CapDepartmentsManage = "departments:manage"
)

// Hierarchy holds the immutable role → capability and route → role tables.
// Construct once with [New] or [NewWithRoutes] and share by reference;
// Hierarchy is never mutated after construction and is safe for concurrent
// use without locking.
type Hierarchy struct {
	grants map[Role]map[string]struct{}
	routes []RouteRule
	public map[string]struct{}
}

// New builds a Hierarchy with the default capability sets and route table.
func New() *Hierarchy {
	return NewWithRoutes(DefaultRouteRules(), DefaultPublicRoutes())
}

// NewWithRoutes builds a Hierarchy with the default capability sets but a
// caller-supplied route table and public allowlist.
func NewWithRoutes(rules []RouteRule, public []string) *Hierarchy {
	h := &Hierarchy{
		grants: defaultGrants(),
		public: make(map[string]struct{}, len(public)),
	}
	h.routes = compileRouteRules(rules)
	for _, path := range public {
		h.public[path] = struct{}{}
	}
	return h
}

func defaultGrants() map[Role]map[string]struct{} {
	table := map[Role][]string{
		Faculty: {
			CapKeysView,
		},
		Security: {
			CapKeysView, CapKeysViewAll, CapKeysAssign, CapKeysReturn,
		},
		HOD: {
			CapKeysView, CapKeysViewAll, CapUsersView, CapReportsView,
		},
		SecurityIncharge: {
			CapKeysView, CapKeysViewAll, CapKeysAssign, CapKeysReturn,
			CapKeysManage, CapUsersView, CapUsersManage, CapReportsView,
		},
		Admin: {
			CapKeysView, CapKeysViewAll, CapKeysAssign, CapKeysReturn,
			CapKeysManage, CapUsersView, CapUsersManage, CapReportsView,
			CapDepartmentsManage,
		},
	}

	grants := make(map[Role]map[string]struct{}, len(table))
	for role, caps := range table {
		set := make(map[string]struct{}, len(caps))
		for _, c := range caps {
			set[c] = struct{}{}
		}
		grants[role] = set
	}
	return grants
}

// Has reports whether role's capability set contains capability.
func (h *Hierarchy) Has(role Role, capability string) bool {
	set, ok := h.grants[role]
	if !ok {
		return false
	}
	_, ok = set[capability]
	return ok
}

// HasAny reports whether role holds at least one of the capabilities.
func (h *Hierarchy) HasAny(role Role, capabilities ...string) bool {
	for _, c := range capabilities {
		if h.Has(role, c) {
			return true
		}
	}
	return false
}

// HasAll reports whether role holds every one of the capabilities.
func (h *Hierarchy) HasAll(role Role, capabilities ...string) bool {
	for _, c := range capabilities {
		if !h.Has(role, c) {
			return false
		}
	}
	return true
}

// HasRoleLevel reports whether role is at least as privileged as min.
// Reflexive over valid roles; invalid roles never satisfy any minimum.
func (h *Hierarchy) HasRoleLevel(role, min Role) bool {
	if !role.Valid() || !min.Valid() {
		return false
	}
	return role.Level() >= min.Level()
}

// CanManageUser reports whether manager may administer target's account.
// Explicit overrides (Admin manages all, SecurityIncharge manages Security,
// HOD manages Faculty) apply first; otherwise manager must be strictly more
// privileged than target.
func (h *Hierarchy) CanManageUser(manager, target Role) bool {
	if !manager.Valid() || !target.Valid() {
		return false
	}

	switch {
	case manager == Admin:
		return true
	case manager == SecurityIncharge && target == Security:
		return true
	case manager == HOD && target == Faculty:
		return true
	}

	return h.HasRoleLevel(manager, target) && manager != target
}
