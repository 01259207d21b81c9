package mapkit

import (
	"context"
	"fmt"
)

type targetKind int

const (
	targetNone targetKind = iota
	targetDomain
	targetMap
)

// Target is the object an access check applies to: nothing for global
// roles, a domain name for domain roles, a map for resource roles.
type Target struct {
	kind   targetKind
	domain string
	m      *Map
}

// NoTarget is the target for global roles.
func NoTarget() Target {
	return Target{kind: targetNone}
}

// DomainTarget targets a domain name.
func DomainTarget(domain string) Target {
	return Target{kind: targetDomain, domain: domain}
}

// MapTarget targets a specific map.
func MapTarget(m *Map) Target {
	return Target{kind: targetMap, m: m}
}

// DomainName returns the targeted domain and whether the target is
// domain-shaped.
func (t Target) DomainName() (string, bool) {
	return t.domain, t.kind == targetDomain
}

// Map returns the targeted map and whether the target is map-shaped.
func (t Target) Map() (*Map, bool) {
	return t.m, t.kind == targetMap && t.m != nil
}

// String renders the target for diagnostics.
func (t Target) String() string {
	switch t.kind {
	case targetDomain:
		return fmt.Sprintf("domain %q", t.domain)
	case targetMap:
		if t.m == nil {
			return "map <nil>"
		}
		return fmt.Sprintf("map %q", t.m.ID)
	}
	return "platform"
}

// checkAccess decides whether the principal holds role for target. An
// unknown role or a target whose shape does not match the role's scope is
// an invalid-argument error, distinct from a denial.
func checkAccess(ctx context.Context, policy *AccessPolicy, pr *Principal, role Role, target Target) (bool, error) {
	scope, ok := ScopeOf(role)
	if !ok {
		return false, NewError(ErrInvalidRole, fmt.Sprintf("unknown role %q", role)).WithRole(role)
	}

	switch scope {
	case ScopeGlobal:
		if target.kind != targetNone {
			return false, NewError(ErrInvalidTarget,
				fmt.Sprintf("role %s takes no target, got %s", role, target)).
				WithRole(role).WithTarget(target.String())
		}
		return policy.HasRoleAdmin(ctx, pr)

	case ScopeDomain:
		domain, ok := target.DomainName()
		if !ok {
			return false, NewError(ErrInvalidTarget,
				fmt.Sprintf("role %s requires a domain target, got %s", role, target)).
				WithRole(role).WithTarget(target.String())
		}
		return policy.HasDomainRole(ctx, pr, role, domain)

	default: // ScopeResource
		m, ok := target.Map()
		if !ok {
			return false, NewError(ErrInvalidTarget,
				fmt.Sprintf("role %s requires a map target, got %s", role, target)).
				WithRole(role).WithTarget(target.String())
		}
		return policy.HasResourceRole(ctx, pr, role, m)
	}
}

// CheckAccess reports whether the current principal holds role for target.
// The principal is taken from ctx (see WithPrincipal).
func (s *Service) CheckAccess(ctx context.Context, role Role, target Target) (bool, error) {
	return s.CheckAccessWith(ctx, s.NewPolicy(), role, target)
}

// CheckAccessWith is CheckAccess with a caller-supplied policy, so scans
// can share one policy instance and its memoized grants.
func (s *Service) CheckAccessWith(ctx context.Context, policy *AccessPolicy, role Role, target Target) (bool, error) {
	return checkAccess(ctx, policy, PrincipalFromContext(ctx), role, target)
}

// AssertAccess requires the current principal to hold role for target. On
// denial it returns an error carrying the principal, role, and target for
// audit logging. Every state-mutating or privacy-sensitive read operation
// calls this before any other side effect.
func (s *Service) AssertAccess(ctx context.Context, role Role, target Target) error {
	pr := PrincipalFromContext(ctx)
	ok, err := checkAccess(ctx, s.NewPolicy(), pr, role, target)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn().
			Stringer("principal", pr).
			Str("role", string(role)).
			Stringer("target", target).
			Msg("access denied")
		return denialError(pr, role, target)
	}
	return nil
}
