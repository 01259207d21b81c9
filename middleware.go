package mapkit

import (
	"context"
	"net/http"
)

// AccessChecker is the surface the middleware needs from a Service.
// Declared as an interface so handlers can be tested against a stub.
type AccessChecker interface {
	CheckAccess(ctx context.Context, role Role, target Target) (bool, error)
	AssertAccess(ctx context.Context, role Role, target Target) error
}

// Middleware provides HTTP middleware for access checking.
type Middleware struct {
	checker      AccessChecker
	getPrincipal func(*http.Request) *Principal
	errorHandler func(http.ResponseWriter, *http.Request, error)
}

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware)

// NewMiddleware creates a new Middleware instance.
//
// Example:
//
//	mw := mapkit.NewMiddleware(service,
//	    mapkit.WithPrincipalExtractor(func(r *http.Request) *mapkit.Principal {
//	        return sessionPrincipal(r)
//	    }),
//	)
func NewMiddleware(checker AccessChecker, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		checker:      checker,
		getPrincipal: defaultGetPrincipal,
		errorHandler: defaultErrorHandler,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithPrincipalExtractor sets a custom function to extract the principal
// from a request. Returning nil means the visitor is anonymous.
func WithPrincipalExtractor(fn func(*http.Request) *Principal) MiddlewareOption {
	return func(m *Middleware) {
		m.getPrincipal = fn
	}
}

// WithErrorHandler sets a custom error handler for middleware.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(m *Middleware) {
		m.errorHandler = fn
	}
}

func defaultGetPrincipal(r *http.Request) *Principal {
	return PrincipalFromContext(r.Context())
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case IsDenied(err):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case IsInvalidArgument(err) || IsInvalidContent(err):
		http.Error(w, "Bad Request", http.StatusBadRequest)
	case IsNotFound(err):
		http.Error(w, "Not Found", http.StatusNotFound)
	case IsReadOnly(err):
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	default:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// TargetExtractor derives the access target from an HTTP request.
type TargetExtractor func(*http.Request) (Target, error)

// DomainFromParam creates a TargetExtractor that reads a domain name
// from a URL parameter.
//
// Example:
//
//	// For route /catalog/{domain}
//	mw.RequireAccess(mapkit.RoleCatalogEditor, mapkit.DomainFromParam("domain"))
func DomainFromParam(paramName string) TargetExtractor {
	return func(r *http.Request) (Target, error) {
		domain := r.PathValue(paramName)
		if domain == "" {
			return Target{}, NewError(ErrInvalidDomain, "domain not found in request").WithTarget(paramName)
		}
		return DomainTarget(domain), nil
	}
}

// DomainFromQuery creates a TargetExtractor that reads a domain name
// from a query parameter.
func DomainFromQuery(queryParam string) TargetExtractor {
	return func(r *http.Request) (Target, error) {
		domain := r.URL.Query().Get(queryParam)
		if domain == "" {
			return Target{}, NewError(ErrInvalidDomain, "domain not found in query").WithTarget(queryParam)
		}
		return DomainTarget(domain), nil
	}
}

// StaticTarget creates a TargetExtractor that always returns the same
// target. Use NoTarget() for global roles.
//
// Example:
//
//	mw.RequireAccess(mapkit.RoleAdmin, mapkit.StaticTarget(mapkit.NoTarget()))
func StaticTarget(target Target) TargetExtractor {
	return func(r *http.Request) (Target, error) {
		return target, nil
	}
}

// RequireAccess creates middleware that requires the request's principal
// to hold a role for the extracted target. The principal is put into the
// request context so handlers and the service see the same identity.
//
// Example:
//
//	router.With(mw.RequireAccess(mapkit.RoleMapCreator, mapkit.DomainFromParam("domain"))).
//	    Post("/domains/{domain}/maps", createMapHandler)
func (m *Middleware) RequireAccess(role Role, extractor TargetExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pr := m.getPrincipal(r)
			ctx := WithPrincipal(r.Context(), pr)

			target, err := extractor(r)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			if err := m.checker.AssertAccess(ctx, role, target); err != nil {
				m.errorHandler(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoadPrincipal creates middleware that puts the request's principal into
// the context without enforcing anything. Use it when the handler does
// its own access checks through the service.
//
// Example:
//
//	router.Use(mw.LoadPrincipal())
func (m *Middleware) LoadPrincipal() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithPrincipal(r.Context(), m.getPrincipal(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
