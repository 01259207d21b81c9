package mapkit

import (
	"context"
	"sort"
)

// GrantSource reads the durable global/domain grants for a subject, which
// is either a user e-mail address or a domain name. Service implements it
// through the settings store.
type GrantSource interface {
	GlobalRoles(ctx context.Context, subject string) ([]Grant, error)
}

// AccessPolicy is the pure decision logic of the authorization gate. It
// has no side effects beyond grant reads, which are memoized per instance:
// reuse one policy across a scan to avoid refetching the same subjects.
type AccessPolicy struct {
	grants GrantSource
	memo   map[string][]Grant
}

// NewAccessPolicy creates a policy reading grants from the given source.
func NewAccessPolicy(grants GrantSource) *AccessPolicy {
	return &AccessPolicy{
		grants: grants,
		memo:   make(map[string][]Grant),
	}
}

func (p *AccessPolicy) grantsFor(ctx context.Context, subject string) ([]Grant, error) {
	if subject == "" {
		return nil, nil
	}
	if g, ok := p.memo[subject]; ok {
		return g, nil
	}
	g, err := p.grants.GlobalRoles(ctx, subject)
	if err != nil {
		return nil, err
	}
	p.memo[subject] = g
	return g, nil
}

// principalGrants returns the union of grants held by the principal's
// e-mail and by the principal's domain.
func (p *AccessPolicy) principalGrants(ctx context.Context, pr *Principal) ([]Grant, error) {
	byEmail, err := p.grantsFor(ctx, pr.Email)
	if err != nil {
		return nil, err
	}
	byDomain, err := p.grantsFor(ctx, pr.Domain())
	if err != nil {
		return nil, err
	}
	return append(append([]Grant{}, byEmail...), byDomain...), nil
}

// HasRoleAdmin reports whether the principal should get ADMIN access:
// either a global ADMIN grant, or the ambient platform-administrator
// signal from the identity provider.
func (p *AccessPolicy) HasRoleAdmin(ctx context.Context, pr *Principal) (bool, error) {
	if pr == nil {
		return false, nil
	}
	if pr.PlatformAdmin {
		return true, nil
	}
	grants, err := p.principalGrants(ctx, pr)
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		if g.Role == RoleAdmin && g.Domain == "" {
			return true, nil
		}
	}
	return false, nil
}

// HasDomainRole reports whether the principal holds a domain-scoped role
// for the target domain. A grant naming a domain counts for that domain
// whoever holds it; a grant with no domain applies to all domains. ADMIN
// satisfies every domain role.
func (p *AccessPolicy) HasDomainRole(ctx context.Context, pr *Principal, role Role, domain string) (bool, error) {
	if pr == nil {
		return false, nil
	}
	grants, err := p.principalGrants(ctx, pr)
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		if !g.Role.impliesDomainRole(role) {
			continue
		}
		if g.Domain == "" || g.Domain == domain {
			return true, nil
		}
	}
	return p.HasRoleAdmin(ctx, pr)
}

// HasResourceRole reports whether the principal holds a resource-scoped
// role for the map. Evaluation order: world-readability (VIEWER only),
// explicit membership lists, the map's domain role, stored resource
// grants, domain-role projection, ADMIN. Only downward implication
// applies throughout: holding a higher role satisfies a lower requirement.
func (p *AccessPolicy) HasResourceRole(ctx context.Context, pr *Principal, role Role, m *Map) (bool, error) {
	need, ok := resourceRank[role]
	if !ok {
		return false, nil
	}

	// World-readable maps satisfy VIEWER for anyone, anonymous included.
	if role == RoleMapViewer && m.WorldReadable {
		return true, nil
	}
	if pr == nil {
		return false, nil
	}

	if m.memberRank(pr.Email) >= need {
		return true, nil
	}

	// Membership in one of the map's domains, through the map's own
	// domain role.
	if m.hasDomain(pr.Domain()) && m.DomainRole.Implies(role) {
		return true, nil
	}

	grants, err := p.principalGrants(ctx, pr)
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		// A resource grant applies to every map, or to every map of the
		// grant's domain when one is named.
		if _, isResource := resourceRank[g.Role]; isResource && g.Role.Implies(role) {
			if g.Domain == "" || m.hasDomain(g.Domain) {
				return true, nil
			}
			continue
		}
		// A domain role held on the principal's own domain projects onto
		// the domain's maps.
		if projected := g.Role.projectedResourceRole(); projected != "" &&
			projected.Implies(role) &&
			pr.Domain() == g.Domain && m.hasDomain(g.Domain) {
			return true, nil
		}
	}

	return p.HasRoleAdmin(ctx, pr)
}

// DomainsWithRole returns the sorted set of domains for which the
// principal holds the given domain role through an explicit grant. Every
// reported domain passes HasDomainRole. ADMIN access is not expanded:
// admins have every domain, but only specifically granted domains are
// reported.
func (p *AccessPolicy) DomainsWithRole(ctx context.Context, pr *Principal, role Role) ([]string, error) {
	if pr == nil {
		return nil, nil
	}
	grants, err := p.principalGrants(ctx, pr)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, g := range grants {
		if g.Domain != "" && g.Role.impliesDomainRole(role) {
			seen[g.Domain] = true
		}
	}
	domains := make([]string, 0, len(seen))
	for d := range seen {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains, nil
}
