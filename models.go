package mapkit

import (
	"time"

	"github.com/uptrace/bun"
)

// Setting is a durable configuration value. The value is stored as JSON,
// so anything JSON-representable fits.
type Setting struct {
	bun.BaseModel `bun:"table:settings,alias:st"`

	Key       string    `bun:"key,pk"`
	ValueJSON string    `bun:"value_json,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Map is the mutable header of a versioned map document. The title and
// description are denormalized from the current version for display.
//
// Permission lists hold user e-mail addresses; a user appears in at most
// one of owners/editors/reviewers/viewers at a time. Domains list the
// domains the map belongs to; DomainRole, if set, is the resource role
// implied for every member of any listed domain.
type Map struct {
	bun.BaseModel `bun:"table:maps,alias:m"`

	ID          string    `bun:"id,pk"`
	Title       string    `bun:"title"`
	Description string    `bun:"description"`
	Created     time.Time `bun:"created,notnull,default:current_timestamp"`
	Creator     string    `bun:"creator"`
	LastUpdated time.Time `bun:"last_updated,notnull,default:current_timestamp"`
	LastUpdater string    `bun:"last_updater"`

	Owners    []string `bun:"owners,type:text[]"`
	Editors   []string `bun:"editors,type:text[]"`
	Reviewers []string `bun:"reviewers,type:text[]"`
	Viewers   []string `bun:"viewers,type:text[]"`

	Domains    []string `bun:"domains,type:text[]"`
	DomainRole Role     `bun:"domain_role,nullzero"`

	// WorldReadable maps satisfy MAP_VIEWER for anyone, anonymous included.
	WorldReadable bool `bun:"world_readable,notnull,default:false"`

	// CurrentVersionID references the MapVersion shown to viewers. Non-empty
	// for every non-deleted map after creation.
	CurrentVersionID string `bun:"current_version_id,nullzero"`

	// IsDeleted is a lazy-deletion tombstone; rows are never removed.
	IsDeleted bool `bun:"is_deleted,notnull,default:false"`

	readOnly bool
}

// IsReadOnly reports whether this is a sentinel record: all reads work,
// every mutation fails with ErrReadOnly.
func (m *Map) IsReadOnly() bool {
	return m.readOnly
}

// HasMember reports whether email appears in the permission list for the
// given member role.
func (m *Map) HasMember(role Role, email string) bool {
	for _, held := range m.memberList(role) {
		if held == email {
			return true
		}
	}
	return false
}

func (m *Map) memberList(role Role) []string {
	switch role {
	case RoleMapOwner:
		return m.Owners
	case RoleMapEditor:
		return m.Editors
	case RoleMapReviewer:
		return m.Reviewers
	case RoleMapViewer:
		return m.Viewers
	}
	return nil
}

// memberRank returns the rank of the most privileged permission list that
// contains email, or 0 when the user is in none of them.
func (m *Map) memberRank(email string) int {
	for _, role := range MemberRoles {
		if m.HasMember(role, email) {
			return resourceRank[role]
		}
	}
	return 0
}

// hasDomain reports whether the map belongs to the given domain.
func (m *Map) hasDomain(domain string) bool {
	if domain == "" {
		return false
	}
	for _, d := range m.Domains {
		if d == domain {
			return true
		}
	}
	return false
}

// MapVersion is an immutable content snapshot of a map. Versions are never
// mutated or deleted after creation; deletion tombstones apply only to the
// header.
type MapVersion struct {
	bun.BaseModel `bun:"table:map_versions,alias:mv"`

	ID          string    `bun:"id,pk,type:uuid"`
	MapID       string    `bun:"map_id,notnull"`
	ContentJSON string    `bun:"content_json,notnull"`
	Creator     string    `bun:"creator"`
	Created     time.Time `bun:"created,notnull,default:current_timestamp"`
}

// CatalogEntry binds a (domain, label) publication key to one fixed map
// version. Entries are snapshots: new map versions do not appear under the
// label until the entry is explicitly repointed.
type CatalogEntry struct {
	bun.BaseModel `bun:"table:catalog_entries,alias:ce"`

	Domain      string    `bun:"domain,pk"`
	Label       string    `bun:"label,pk"`
	Creator     string    `bun:"creator"`
	Created     time.Time `bun:"created,notnull,default:current_timestamp"`
	LastUpdated time.Time `bun:"last_updated,notnull,default:current_timestamp"`
	LastUpdater string    `bun:"last_updater"`

	// Title is denormalized from the map header at (re)pointing time.
	Title string `bun:"title"`

	MapID        string `bun:"map_id,notnull"`
	MapVersionID string `bun:"map_version_id,notnull"`

	// IsListed selects the entry into its domain's published menu.
	IsListed bool `bun:"is_listed,notnull,default:false"`

	readOnly bool
}

// IsReadOnly reports whether this is a sentinel entry.
func (e *CatalogEntry) IsReadOnly() bool {
	return e.readOnly
}

// SetMapVersion repoints the entry at the map's current version and
// refreshes the denormalized title. The change is in-memory; persist it
// with PutCatalogEntry.
func (e *CatalogEntry) SetMapVersion(m *Map) error {
	if e.readOnly {
		return NewError(ErrReadOnly, "catalog entry "+e.Domain+":"+e.Label+" is read-only")
	}
	e.MapID = m.ID
	e.MapVersionID = m.CurrentVersionID
	e.Title = m.Title
	return nil
}

// Grant is a durable fact binding a subject (user e-mail or domain name)
// to a role. An empty Domain means the grant applies to all domains.
type Grant struct {
	Role   Role   `json:"role"`
	Domain string `json:"domain,omitempty"`
}
