package mapkit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/uptrace/bun"
)

// ============================================================================
// CATALOG OPERATIONS
// ============================================================================

// Catalog entries are publicly visible; reads need no access check.
// Writing to a domain's catalog requires CATALOG_EDITOR on the domain.
//
// Listings are cached per partition (all domains or one domain, crossed
// with all entries or listed-only) and every write invalidates all the
// partitions it can appear in.

const allDomains = "*"

func catalogListKey(domain, variant string) CacheKey {
	return CacheKey{Kind: CacheCatalogList, A: domain, B: variant}
}

func entryContentKey(domain, label string) CacheKey {
	return CacheKey{Kind: CacheCatalogContent, A: domain, B: label}
}

func (s *Service) invalidateCatalogLists(domain string) {
	s.cache.Delete(catalogListKey(allDomains, "all"))
	s.cache.Delete(catalogListKey(allDomains, "listed"))
	s.cache.Delete(catalogListKey(domain, "all"))
	s.cache.Delete(catalogListKey(domain, "listed"))
}

// CreateCatalogEntry publishes the map's current version under
// (domain, label). If the entry already exists it is repointed, so a
// label is always bound to exactly one version. Requires CATALOG_EDITOR
// on the domain.
func (s *Service) CreateCatalogEntry(ctx context.Context, domain, label string, m *Map, isListed bool) (*CatalogEntry, error) {
	// Colons separate cache key fields, so a domain containing one
	// could alias another partition.
	if domain == "" || strings.Contains(domain, ":") {
		return nil, NewError(ErrInvalidDomain, fmt.Sprintf("invalid domain %q", domain)).WithTarget(domain)
	}
	if label == EmptyMapLabel {
		return nil, NewError(ErrReadOnly, "the label "+EmptyMapLabel+" is reserved")
	}
	if err := s.AssertAccess(ctx, RoleCatalogEditor, DomainTarget(domain)); err != nil {
		return nil, err
	}
	if m.CurrentVersionID == "" {
		return nil, NewError(ErrVersionNotFound, "map "+m.ID+" has no current version").WithTarget(m.ID)
	}

	pr := PrincipalFromContext(ctx)
	now := time.Now().UTC()
	entry := &CatalogEntry{
		Domain:       domain,
		Label:        label,
		Creator:      pr.String(),
		Created:      now,
		LastUpdated:  now,
		LastUpdater:  pr.String(),
		Title:        m.Title,
		MapID:        m.ID,
		MapVersionID: m.CurrentVersionID,
		IsListed:     isListed,
	}

	// On overwrite the row keeps its original creator and creation time;
	// RETURNING feeds them back so the returned entry matches the row.
	result, err := s.db.NewInsert().Model(entry).
		On("CONFLICT (domain, label) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("map_id = EXCLUDED.map_id").
		Set("map_version_id = EXCLUDED.map_version_id").
		Set("is_listed = EXCLUDED.is_listed").
		Set("last_updated = EXCLUDED.last_updated").
		Set("last_updater = EXCLUDED.last_updater").
		Returning("*").
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "CreateCatalogEntry").Err(); err != nil {
		return nil, NewError(ErrDatabaseError, "failed to store catalog entry").WithTarget(domain + ":" + label)
	}

	s.invalidateCatalogLists(domain)
	s.cache.Delete(entryContentKey(domain, label))
	s.log.Debug().Stringer("principal", pr).Str("entry", domain+":"+label).Str("map_id", m.ID).Msg("catalog entry published")
	return entry, nil
}

// GetCatalogEntry returns the entry published under (domain, label). The
// label "empty" is reserved in every domain for the built-in entry that
// points at the empty map.
func (s *Service) GetCatalogEntry(ctx context.Context, domain, label string) (*CatalogEntry, error) {
	if label == EmptyMapLabel {
		return EmptyCatalogEntry(domain), nil
	}

	var entry CatalogEntry
	err := dbkit.WithErr1(s.db.NewSelect().Model(&entry).
		Where("domain = ? AND label = ?", domain, label).
		Scan(ctx), "GetCatalogEntry").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, NewError(ErrEntryNotFound, fmt.Sprintf("no entry %q in domain %q", label, domain)).WithTarget(domain + ":" + label)
		}
		return nil, NewError(ErrDatabaseError, "failed to load catalog entry").WithTarget(domain + ":" + label)
	}
	return &entry, nil
}

// GetAllEntries returns every catalog entry across all domains, most
// recently updated first.
func (s *Service) GetAllEntries(ctx context.Context) ([]CatalogEntry, error) {
	return s.cachedEntries(ctx, catalogListKey(allDomains, "all"), func(q *bun.SelectQuery) *bun.SelectQuery {
		return q
	})
}

// GetListedEntries returns the listed entries across all domains, most
// recently updated first.
func (s *Service) GetListedEntries(ctx context.Context) ([]CatalogEntry, error) {
	return s.cachedEntries(ctx, catalogListKey(allDomains, "listed"), func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("is_listed = ?", true)
	})
}

// GetEntriesInDomain returns every entry in a domain, most recently
// updated first.
func (s *Service) GetEntriesInDomain(ctx context.Context, domain string) ([]CatalogEntry, error) {
	return s.cachedEntries(ctx, catalogListKey(domain, "all"), func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("domain = ?", domain)
	})
}

// GetListedEntriesInDomain returns the listed entries in a domain, most
// recently updated first. This is the domain's published menu.
func (s *Service) GetListedEntriesInDomain(ctx context.Context, domain string) ([]CatalogEntry, error) {
	return s.cachedEntries(ctx, catalogListKey(domain, "listed"), func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("domain = ? AND is_listed = ?", domain, true)
	})
}

func (s *Service) cachedEntries(ctx context.Context, key CacheKey, filter func(*bun.SelectQuery) *bun.SelectQuery) ([]CatalogEntry, error) {
	v, err := s.cache.Get(key, func() (any, error) {
		var entries []CatalogEntry
		err := dbkit.WithErr1(filter(s.db.NewSelect().Model(&entries)).
			Order("last_updated DESC").
			Scan(ctx), "ListCatalogEntries").Err()
		if err != nil {
			return nil, NewError(ErrDatabaseError, "failed to list catalog entries")
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]CatalogEntry), nil
}

// GetEntriesByMapID returns the entries pointing at a map, across all
// domains. Uncached; used to find where a map is published.
func (s *Service) GetEntriesByMapID(ctx context.Context, mapID string) ([]CatalogEntry, error) {
	var entries []CatalogEntry
	err := dbkit.WithErr1(s.db.NewSelect().Model(&entries).
		Where("map_id = ?", mapID).
		Order("domain ASC, label ASC").
		Scan(ctx), "GetEntriesByMapID").Err()
	if err != nil {
		return nil, NewError(ErrDatabaseError, "failed to list catalog entries").WithTarget(mapID)
	}
	return entries, nil
}

// EntryContent returns the content document of the version the entry is
// pinned to. Served from the cache; the entry points at an immutable
// version, so the cached value only changes when the entry is repointed.
func (s *Service) EntryContent(ctx context.Context, e *CatalogEntry) (string, error) {
	if e.IsReadOnly() {
		return EmptyMapJSON, nil
	}

	v, err := s.cache.Get(entryContentKey(e.Domain, e.Label), func() (any, error) {
		version, err := s.getVersion(ctx, e.MapID, e.MapVersionID)
		if err != nil {
			return nil, err
		}
		return version.ContentJSON, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// PutCatalogEntry persists changes to an existing entry, typically after
// SetMapVersion or toggling IsListed. Requires CATALOG_EDITOR on the
// entry's domain.
func (s *Service) PutCatalogEntry(ctx context.Context, e *CatalogEntry) error {
	if e.IsReadOnly() {
		return NewError(ErrReadOnly, "catalog entry "+e.Domain+":"+e.Label+" is read-only")
	}
	if err := s.AssertAccess(ctx, RoleCatalogEditor, DomainTarget(e.Domain)); err != nil {
		return err
	}

	pr := PrincipalFromContext(ctx)
	now := time.Now().UTC()
	e.LastUpdated = now
	e.LastUpdater = pr.String()

	result, err := s.db.NewUpdate().Model(e).
		Column("title", "map_id", "map_version_id", "is_listed", "last_updated", "last_updater").
		WherePK().
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "PutCatalogEntry").Err(); err != nil {
		return NewError(ErrDatabaseError, "failed to update catalog entry").WithTarget(e.Domain + ":" + e.Label)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return NewError(ErrEntryNotFound, fmt.Sprintf("no entry %q in domain %q", e.Label, e.Domain)).WithTarget(e.Domain + ":" + e.Label)
	}

	s.invalidateCatalogLists(e.Domain)
	s.cache.Delete(entryContentKey(e.Domain, e.Label))
	s.log.Debug().Stringer("principal", pr).Str("entry", e.Domain+":"+e.Label).Msg("catalog entry updated")
	return nil
}

// DeleteCatalogEntry removes the entry published under (domain, label).
// Requires CATALOG_EDITOR on the domain.
func (s *Service) DeleteCatalogEntry(ctx context.Context, domain, label string) error {
	if label == EmptyMapLabel {
		return NewError(ErrReadOnly, "the label "+EmptyMapLabel+" is reserved")
	}
	if err := s.AssertAccess(ctx, RoleCatalogEditor, DomainTarget(domain)); err != nil {
		return err
	}

	result, err := s.db.NewDelete().Table("catalog_entries").
		Where("domain = ? AND label = ?", domain, label).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "DeleteCatalogEntry").Err(); err != nil {
		return NewError(ErrDatabaseError, "failed to delete catalog entry").WithTarget(domain + ":" + label)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return NewError(ErrEntryNotFound, fmt.Sprintf("no entry %q in domain %q", label, domain)).WithTarget(domain + ":" + label)
	}

	s.invalidateCatalogLists(domain)
	s.cache.Delete(entryContentKey(domain, label))
	s.log.Debug().Stringer("principal", PrincipalFromContext(ctx)).Str("entry", domain+":"+label).Msg("catalog entry deleted")
	return nil
}

// CountEntriesInDomain returns the number of entries in a domain.
func (s *Service) CountEntriesInDomain(ctx context.Context, domain string) (int, error) {
	return dbkit.Count[CatalogEntry](ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("domain = ?", domain)
	})
}
