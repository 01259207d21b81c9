package mapkit

// Role identifies an access level. The set is closed: adding a role is a
// code change, not configuration.
type Role string

// The role taxonomy.
const (
	// RoleAdmin can view, edit, or change permissions for anything.
	RoleAdmin Role = "ADMIN"

	// RoleCatalogEditor can edit the catalog of a domain.
	RoleCatalogEditor Role = "CATALOG_EDITOR"
	// RoleMapCreator can create new maps in a domain.
	RoleMapCreator Role = "MAP_CREATOR"
	// RoleDomainAdmin administers a domain: it grants catalog editing and
	// map creation on the domain, and MAP_OWNER on the domain's maps.
	RoleDomainAdmin Role = "DOMAIN_ADMIN"
	// RoleDomainReviewer grants MAP_REVIEWER on the domain's maps.
	RoleDomainReviewer Role = "DOMAIN_REVIEWER"

	// RoleMapOwner can change permissions and flags on a map.
	RoleMapOwner Role = "MAP_OWNER"
	// RoleMapEditor can save new versions of a map.
	RoleMapEditor Role = "MAP_EDITOR"
	// RoleMapReviewer can review a map's content.
	RoleMapReviewer Role = "MAP_REVIEWER"
	// RoleMapViewer can view the current version of a map.
	RoleMapViewer Role = "MAP_VIEWER"
)

// RoleScope classifies the target a role applies to.
type RoleScope int

const (
	// ScopeGlobal roles take no target.
	ScopeGlobal RoleScope = iota
	// ScopeDomain roles target a domain name.
	ScopeDomain
	// ScopeResource roles target a specific map.
	ScopeResource
)

var roleScopes = map[Role]RoleScope{
	RoleAdmin:          ScopeGlobal,
	RoleCatalogEditor:  ScopeDomain,
	RoleMapCreator:     ScopeDomain,
	RoleDomainAdmin:    ScopeDomain,
	RoleDomainReviewer: ScopeDomain,
	RoleMapOwner:       ScopeResource,
	RoleMapEditor:      ScopeResource,
	RoleMapReviewer:    ScopeResource,
	RoleMapViewer:      ScopeResource,
}

// Resource roles form a strict lattice: OWNER ⊇ EDITOR ⊇ REVIEWER ⊇ VIEWER.
// Higher ranks satisfy lower requirements; only downward implication applies.
var resourceRank = map[Role]int{
	RoleMapOwner:    4,
	RoleMapEditor:   3,
	RoleMapReviewer: 2,
	RoleMapViewer:   1,
}

// A domain role, held on the principal's own domain, projects onto a
// resource role for every map belonging to that domain.
var domainRoleProjection = map[Role]Role{
	RoleDomainAdmin:    RoleMapOwner,
	RoleDomainReviewer: RoleMapReviewer,
}

// A domain role can subsume other domain roles on the same domain.
var domainRoleImplies = map[Role][]Role{
	RoleDomainAdmin: {RoleCatalogEditor, RoleMapCreator, RoleDomainReviewer},
}

// IsValidRole reports whether r is a member of the closed role set.
func IsValidRole(r Role) bool {
	_, ok := roleScopes[r]
	return ok
}

// ScopeOf returns the scope a role applies to. The second return value is
// false for an unknown role.
func ScopeOf(r Role) (RoleScope, bool) {
	s, ok := roleScopes[r]
	return s, ok
}

// Implies reports whether holding r satisfies a requirement for req.
// Besides identity, only the downward resource lattice implies: a held
// MAP_OWNER satisfies MAP_EDITOR, never the reverse. ADMIN implication is
// handled by the access policy, not here.
func (r Role) Implies(req Role) bool {
	if r == req {
		return true
	}
	hr, hok := resourceRank[r]
	rr, rok := resourceRank[req]
	return hok && rok && hr >= rr
}

// impliesDomainRole reports whether holding r satisfies req on the same
// domain.
func (r Role) impliesDomainRole(req Role) bool {
	if r == req {
		return true
	}
	for _, implied := range domainRoleImplies[r] {
		if implied == req {
			return true
		}
	}
	return false
}

// projectedResourceRole returns the resource role a domain role projects
// onto the domain's maps, or "" if it projects nothing.
func (r Role) projectedResourceRole() Role {
	return domainRoleProjection[r]
}

// MemberRoles is the set of roles recognized by the per-map permission
// lists, ordered from most to least privileged.
var MemberRoles = []Role{RoleMapOwner, RoleMapEditor, RoleMapReviewer, RoleMapViewer}
