// Package mapkit is the authorization and versioned-storage core of a
// collaborative map publishing service.
//
// MapKit decides, for every operation, whether the acting principal may
// perform it, and it manages immutable, versioned map records whose
// "current" pointer is advanced atomically. Publication happens through a
// catalog: a (domain, label) keyed pointer to one fixed map version.
//
// # Core Concepts
//
// Principal: an authenticated identity with an e-mail address; the part
// after "@" is the principal's domain. Anonymous (nil principal) is valid
// for public reads only.
//
// Role: a member of a closed set, each with a scope:
//
//   - global: ADMIN
//   - domain: CATALOG_EDITOR, MAP_CREATOR, DOMAIN_ADMIN, DOMAIN_REVIEWER
//   - resource: MAP_OWNER, MAP_EDITOR, MAP_REVIEWER, MAP_VIEWER
//
// Resource roles form a strict lattice: OWNER implies EDITOR implies
// REVIEWER implies VIEWER, always on the same map. ADMIN implies every role
// everywhere.
//
// Grant: a durable (subject, role, optional domain) fact stored in the
// settings store. Per-map membership (owners, editors, reviewers, viewers)
// lives on the map header itself.
//
// # Basic Usage
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	service := mapkit.NewService(db)
//	db.Migrate(ctx, service.Migrations())
//
//	// Authenticate the request and thread the principal through context.
//	ctx = mapkit.WithPrincipal(ctx, &mapkit.Principal{Email: "kim@example.com"})
//
//	m, err := service.CreateMap(ctx, mapkit.CreateMapParams{
//	    Content: `{"title": "Flood zones"}`,
//	    Domain:  "example.com",
//	})
//
//	// Publish the current version under example.com/floods.
//	entry, err := service.CreateCatalogEntry(ctx, "example.com", "floods", m, true)
//
// Every mutating or non-public read operation calls AssertAccess before
// touching storage, so a denied call never leaves a partial write behind.
//
// # Caching
//
// Read paths (settings, current map content, catalog listings) go through a
// namespaced TTL cache. Writers invalidate by deletion only, never by
// update, so a racing reader can at worst recompute from committed state.
//
// # Sentinels
//
// Map ID "0" and catalog label "empty" resolve to fixed read-only records
// with canned content; every mutating call on them fails with ErrReadOnly.
// They are never persisted.
package mapkit
