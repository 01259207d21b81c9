package mapkit

import (
	"context"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/rs/zerolog"
)

// Defaults for the shared cache.
const (
	DefaultCacheTTL     = 5 * time.Minute
	DefaultCacheEntries = 4096
)

// Service provides the access-controlled map, catalog, and settings
// operations. It integrates with the database through dbkit.
//
// Error Handling:
// Database operations use dbkit's chainable error wrapping so failures
// carry operation context and stay classifiable with dbkit.IsDuplicate /
// dbkit.IsNotFound. MapKit's own failures are sentinel errors (see
// errors.go): use IsDenied, IsNotFound, IsInvalidArgument, IsReadOnly.
type Service struct {
	db    dbkit.IDB
	cache *Cache
	log   zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// WithCache replaces the shared cache, e.g. to tune TTL or capacity.
func WithCache(cache *Cache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// NewService creates a new MapKit service.
//
// Example:
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	service := mapkit.NewService(db, mapkit.WithLogger(logger))
func NewService(db dbkit.IDB, opts ...Option) *Service {
	s := &Service{
		db:    db,
		cache: NewCache(DefaultCacheTTL, DefaultCacheEntries),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache returns the shared cache, for collaborators (such as the metadata
// pipeline) that keep their own partitions in it.
func (s *Service) Cache() *Cache {
	return s.cache
}

// NewPolicy creates an AccessPolicy reading grants from this service.
// Reuse one instance across a scan to share memoized grant lookups.
func (s *Service) NewPolicy() *AccessPolicy {
	return NewAccessPolicy(s)
}

// Transaction executes fn within a database transaction with automatic
// commit/rollback. Inside an existing transaction a savepoint is used.
// All queries in fn must go through the passed handle so they join the
// transaction.
func (s *Service) Transaction(ctx context.Context, fn func(tx dbkit.IDB) error) error {
	switch db := s.db.(type) {
	case *dbkit.Tx:
		return db.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(tx)
		})
	case *dbkit.DBKit:
		return db.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(tx)
		})
	default:
		return NewError(ErrDatabaseError, "transaction support requires a dbkit.DBKit or dbkit.Tx instance")
	}
}

// Ping verifies database connectivity.
func (s *Service) Ping(ctx context.Context) error {
	var one int
	return s.db.NewRaw("SELECT 1").Scan(ctx, &one)
}

// IsHealthy reports whether the database is reachable.
func (s *Service) IsHealthy(ctx context.Context) bool {
	if db, ok := s.db.(*dbkit.DBKit); ok {
		return db.IsHealthy(ctx)
	}
	return s.Ping(ctx) == nil
}
