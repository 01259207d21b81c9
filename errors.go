package mapkit

import (
	"errors"
	"fmt"
)

// Sentinel errors for MapKit operations.
var (
	// ErrInvalidRole is returned when a role tag is not a member of the
	// closed role set.
	ErrInvalidRole = errors.New("mapkit: invalid role")

	// ErrInvalidTarget is returned when the target's shape does not match
	// the scope required by the role (for example a domain role checked
	// against a map target).
	ErrInvalidTarget = errors.New("mapkit: invalid target for role")

	// ErrInvalidDomain is returned when a domain string cannot be used,
	// for example because it contains the catalog key separator.
	ErrInvalidDomain = errors.New("mapkit: invalid domain")

	// ErrDenied is returned when the principal lacks the required role.
	ErrDenied = errors.New("mapkit: access denied")

	// ErrMapNotFound is returned for lookups of a map that does not exist
	// or has been deleted.
	ErrMapNotFound = errors.New("mapkit: map not found")

	// ErrVersionNotFound is returned for lookups of a map version that
	// does not exist under the given map.
	ErrVersionNotFound = errors.New("mapkit: map version not found")

	// ErrEntryNotFound is returned for operations on a catalog entry that
	// does not exist.
	ErrEntryNotFound = errors.New("mapkit: catalog entry not found")

	// ErrInvalidContent is returned when a content payload is not
	// syntactically valid JSON. It is raised before any durable write.
	ErrInvalidContent = errors.New("mapkit: invalid map content")

	// ErrReadOnly is returned by every mutating call on a sentinel record.
	ErrReadOnly = errors.New("mapkit: read-only record")

	// ErrDatabaseError is returned when a durable-store operation fails.
	ErrDatabaseError = errors.New("mapkit: database error")
)

// Error wraps a sentinel error with diagnostic context. Denials carry the
// principal, role, and target so callers can audit-log the rejection.
type Error struct {
	Err       error  // Underlying sentinel error
	Message   string // Additional context
	Principal string // Principal involved (if applicable)
	Role      Role   // Role involved (if applicable)
	Target    string // Target description (if applicable)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a target error.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// WithPrincipal adds the acting principal to the error.
func (e *Error) WithPrincipal(p *Principal) *Error {
	e.Principal = p.String()
	return e
}

// WithRole adds role information to the error.
func (e *Error) WithRole(role Role) *Error {
	e.Role = role
	return e
}

// WithTarget adds target information to the error.
func (e *Error) WithTarget(target string) *Error {
	e.Target = target
	return e
}

// denialError builds the authorization failure for AssertAccess.
func denialError(p *Principal, role Role, target Target) *Error {
	return NewError(ErrDenied,
		fmt.Sprintf("principal %s lacks %s access to %s", p, role, target)).
		WithPrincipal(p).
		WithRole(role).
		WithTarget(target.String())
}

// IsDenied checks if an error is an authorization denial.
func IsDenied(err error) bool {
	return errors.Is(err, ErrDenied)
}

// IsNotFound checks if an error reports a missing map, version, or entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMapNotFound) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}

// IsInvalidArgument checks if an error reports a malformed role, target,
// or domain. These are programming or input errors, never retried.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidRole) ||
		errors.Is(err, ErrInvalidTarget) ||
		errors.Is(err, ErrInvalidDomain)
}

// IsInvalidContent checks if an error reports a malformed content payload.
func IsInvalidContent(err error) bool {
	return errors.Is(err, ErrInvalidContent)
}

// IsReadOnly checks if an error is a sentinel read-only violation.
func IsReadOnly(err error) bool {
	return errors.Is(err, ErrReadOnly)
}
