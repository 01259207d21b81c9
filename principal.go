package mapkit

import (
	"context"
	"strings"
)

// Principal is an authenticated actor. A nil *Principal means anonymous,
// which only ever satisfies world-readable viewer checks.
type Principal struct {
	// Email is the principal's address; the part after "@" is its domain.
	Email string

	// PlatformAdmin marks the ambient trust signal from the identity
	// provider: the caller administers the platform itself, independent
	// of any stored grant.
	PlatformAdmin bool
}

// Domain returns the part of the principal's e-mail address after "@", or
// "" for anonymous principals and malformed addresses.
func (p *Principal) Domain() string {
	if p == nil {
		return ""
	}
	if i := strings.LastIndexByte(p.Email, '@'); i >= 0 && i < len(p.Email)-1 {
		return p.Email[i+1:]
	}
	return ""
}

// String renders the principal for diagnostics and audit logs.
func (p *Principal) String() string {
	if p == nil {
		return "anonymous"
	}
	return p.Email
}

type contextKey string

const contextKeyPrincipal contextKey = "mapkit:principal"

// WithPrincipal returns a context carrying the given principal. Identity
// providers call this once per request, after authentication.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, p)
}

// PrincipalFromContext returns the principal carried by ctx, or nil for
// anonymous requests.
func PrincipalFromContext(ctx context.Context) *Principal {
	if v := ctx.Value(contextKeyPrincipal); v != nil {
		if p, ok := v.(*Principal); ok {
			return p
		}
	}
	return nil
}

// adminPrincipal is the fixed identity used by trusted internal callers.
var adminPrincipal = &Principal{Email: "root@localhost", PlatformAdmin: true}

// RunAsAdmin executes fn with a context authenticated as the fixed
// administrative principal. The elevation is scoped to the derived context:
// the caller's own context is untouched on every exit path, so the prior
// identity is restored for free once fn returns.
func RunAsAdmin(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(WithPrincipal(ctx, adminPrincipal))
}
