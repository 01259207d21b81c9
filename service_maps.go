package mapkit

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ============================================================================
// MAP OPERATIONS
// ============================================================================

// mapIDBytes of randomness produce a 16-character URL-safe map ID.
const mapIDBytes = 12

// newMapID returns a fresh random map ID. Uniqueness is enforced by the
// primary key; CreateMap retries on the (vanishingly rare) collision.
func newMapID() (string, error) {
	buf := make([]byte, mapIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", NewError(ErrDatabaseError, "cannot generate map ID: "+err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// mapContent is the subset of the content document that maps denormalize
// into their header. The rest of the payload is opaque to MapKit.
type mapContent struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// parseContent validates a content payload and extracts the display
// fields. Validation happens before any durable write.
func parseContent(content string) (mapContent, error) {
	var mc mapContent
	if err := json.Unmarshal([]byte(content), &mc); err != nil {
		return mapContent{}, NewError(ErrInvalidContent, "content is not a JSON object")
	}
	return mc, nil
}

// CreateMapParams are the inputs to CreateMap. Content is required;
// everything else has a sensible default.
type CreateMapParams struct {
	// Content is the initial content document, a JSON object.
	Content string

	// Domain is the domain the map is created in. The caller needs
	// MAP_CREATOR on it.
	Domain string

	// Permission lists. When Owners is empty the creator becomes the
	// sole owner.
	Owners    []string
	Editors   []string
	Reviewers []string
	Viewers   []string

	// DomainRole overrides the domain's configured initial role. Leave
	// empty to use the domain default.
	DomainRole Role

	WorldReadable bool
}

// CreateMap creates a map with its first version in the given domain and
// returns it. The map's ID is randomly generated.
func (s *Service) CreateMap(ctx context.Context, params CreateMapParams) (*Map, error) {
	if err := s.AssertAccess(ctx, RoleMapCreator, DomainTarget(params.Domain)); err != nil {
		return nil, err
	}

	mc, err := parseContent(params.Content)
	if err != nil {
		return nil, err
	}

	pr := PrincipalFromContext(ctx)
	creator := pr.String()

	owners := params.Owners
	if len(owners) == 0 && pr != nil {
		owners = []string{pr.Email}
	}

	domainRole := params.DomainRole
	if domainRole == "" {
		domainRole, err = s.InitialDomainRole(ctx, params.Domain)
		if err != nil {
			return nil, err
		}
	}
	if domainRole != "" {
		if _, ok := resourceRank[domainRole]; !ok {
			return nil, NewError(ErrInvalidRole, "domain role must be a map role").WithRole(domainRole)
		}
	}

	now := time.Now().UTC()
	m := &Map{
		Title:         mc.Title,
		Description:   mc.Description,
		Created:       now,
		Creator:       creator,
		LastUpdated:   now,
		LastUpdater:   creator,
		Owners:        owners,
		Editors:       params.Editors,
		Reviewers:     params.Reviewers,
		Viewers:       params.Viewers,
		Domains:       []string{params.Domain},
		DomainRole:    domainRole,
		WorldReadable: params.WorldReadable,
	}

	// Retry a couple of times in case the random ID collides with an
	// existing row.
	for attempt := 0; ; attempt++ {
		m.ID, err = newMapID()
		if err != nil {
			return nil, err
		}

		version := &MapVersion{
			ID:          uuid.NewString(),
			MapID:       m.ID,
			ContentJSON: params.Content,
			Creator:     creator,
			Created:     now,
		}
		m.CurrentVersionID = version.ID

		err = s.Transaction(ctx, func(tx dbkit.IDB) error {
			result, err := tx.NewInsert().Model(m).Exec(ctx)
			if err := dbkit.WithErr(result, err, "CreateMap").Err(); err != nil {
				return err
			}
			result, err = tx.NewInsert().Model(version).Exec(ctx)
			return dbkit.WithErr(result, err, "CreateMapVersion").Err()
		})
		if err == nil {
			s.log.Debug().Stringer("principal", pr).Str("map_id", m.ID).Str("domain", params.Domain).Msg("map created")
			return m, nil
		}
		if dbkit.IsDuplicate(err) && attempt < 2 {
			continue
		}
		return nil, NewError(ErrDatabaseError, "failed to create map").WithTarget(m.ID)
	}
}

// GetMap returns the map with the given ID after checking MAP_VIEWER
// access. The reserved ID "0" returns the built-in empty map.
//
// A missing or deleted map surfaces as ErrMapNotFound only to platform
// admins; everyone else receives the same denial a forbidden map would
// produce, so map IDs cannot be probed for existence.
func (s *Service) GetMap(ctx context.Context, id string) (*Map, error) {
	if id == EmptyMapID {
		return EmptyMap(), nil
	}

	var m Map
	err := dbkit.WithErr1(s.db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx), "GetMap").Err()
	if err != nil && !dbkit.IsNotFound(err) {
		return nil, NewError(ErrDatabaseError, "failed to load map").WithTarget(id)
	}

	if err != nil || m.IsDeleted {
		pr := PrincipalFromContext(ctx)
		if isAdmin, aerr := s.NewPolicy().HasRoleAdmin(ctx, pr); aerr == nil && isAdmin {
			return nil, NewError(ErrMapNotFound, fmt.Sprintf("no map with ID %q", id)).WithTarget(id)
		}
		s.log.Warn().Stringer("principal", pr).Str("map_id", id).Msg("access denied")
		return nil, denialError(pr, RoleMapViewer, MapTarget(&Map{ID: id}))
	}

	if err := s.AssertAccess(ctx, RoleMapViewer, MapTarget(&m)); err != nil {
		return nil, err
	}
	return &m, nil
}

// PutNewVersion stores content as a new immutable version, makes it the
// map's current version, and returns the new version's ID. The header's
// title and description are refreshed from the content.
func (s *Service) PutNewVersion(ctx context.Context, m *Map, content string) (string, error) {
	if m.IsReadOnly() {
		return "", NewError(ErrReadOnly, "map "+m.ID+" is read-only")
	}
	if err := s.AssertAccess(ctx, RoleMapEditor, MapTarget(m)); err != nil {
		return "", err
	}

	mc, err := parseContent(content)
	if err != nil {
		return "", err
	}

	pr := PrincipalFromContext(ctx)
	now := time.Now().UTC()
	version := &MapVersion{
		ID:          uuid.NewString(),
		MapID:       m.ID,
		ContentJSON: content,
		Creator:     pr.String(),
		Created:     now,
	}

	err = s.Transaction(ctx, func(tx dbkit.IDB) error {
		result, err := tx.NewInsert().Model(version).Exec(ctx)
		if err := dbkit.WithErr(result, err, "PutNewVersion").Err(); err != nil {
			return err
		}
		result, err = tx.NewUpdate().Model((*Map)(nil)).
			Set("title = ?", mc.Title).
			Set("description = ?", mc.Description).
			Set("current_version_id = ?", version.ID).
			Set("last_updated = ?", now).
			Set("last_updater = ?", pr.String()).
			Where("id = ?", m.ID).
			Exec(ctx)
		return dbkit.WithErr(result, err, "PutNewVersionHeader").Err()
	})
	if err != nil {
		return "", NewError(ErrDatabaseError, "failed to store new version").WithTarget(m.ID)
	}

	m.Title = mc.Title
	m.Description = mc.Description
	m.CurrentVersionID = version.ID
	m.LastUpdated = now
	m.LastUpdater = pr.String()
	s.log.Debug().Stringer("principal", pr).Str("map_id", m.ID).Str("version_id", version.ID).Msg("version stored")
	return version.ID, nil
}

// GetCurrent returns the map's current version, or nil if the map has no
// versions yet. Requires MAP_VIEWER.
func (s *Service) GetCurrent(ctx context.Context, m *Map) (*MapVersion, error) {
	if err := s.AssertAccess(ctx, RoleMapViewer, MapTarget(m)); err != nil {
		return nil, err
	}
	if m.IsReadOnly() {
		return emptyMapVersion(), nil
	}
	if m.CurrentVersionID == "" {
		return nil, nil
	}
	return s.getVersion(ctx, m.ID, m.CurrentVersionID)
}

// GetCurrentContent returns the content document of the map's current
// version, or "" if the map has no versions yet. Requires MAP_VIEWER.
// Content is served from the cache; versions being immutable, a cached
// value never goes stale.
func (s *Service) GetCurrentContent(ctx context.Context, m *Map) (string, error) {
	if err := s.AssertAccess(ctx, RoleMapViewer, MapTarget(m)); err != nil {
		return "", err
	}
	if m.IsReadOnly() {
		return EmptyMapJSON, nil
	}
	if m.CurrentVersionID == "" {
		return "", nil
	}
	return s.versionContent(ctx, m.ID, m.CurrentVersionID)
}

// versionContent loads a version's content through the cache.
func (s *Service) versionContent(ctx context.Context, mapID, versionID string) (string, error) {
	v, err := s.cache.Get(CacheKey{Kind: CacheMapContent, A: versionID}, func() (any, error) {
		version, err := s.getVersion(ctx, mapID, versionID)
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

// GetVersions returns all versions of a map, newest first. Version
// history reveals edit activity, so this requires MAP_EDITOR.
func (s *Service) GetVersions(ctx context.Context, m *Map) ([]MapVersion, error) {
	if m.IsReadOnly() {
		if err := s.AssertAccess(ctx, RoleMapViewer, MapTarget(m)); err != nil {
			return nil, err
		}
		return []MapVersion{*emptyMapVersion()}, nil
	}
	if err := s.AssertAccess(ctx, RoleMapEditor, MapTarget(m)); err != nil {
		return nil, err
	}

	var versions []MapVersion
	err := dbkit.WithErr1(s.db.NewSelect().Model(&versions).
		Where("map_id = ?", m.ID).
		Order("created DESC").
		Scan(ctx), "GetVersions").Err()
	if err != nil {
		return nil, NewError(ErrDatabaseError, "failed to list versions").WithTarget(m.ID)
	}
	return versions, nil
}

// GetVersion returns one specific version of a map. Requires MAP_EDITOR.
func (s *Service) GetVersion(ctx context.Context, m *Map, versionID string) (*MapVersion, error) {
	if m.IsReadOnly() {
		if err := s.AssertAccess(ctx, RoleMapViewer, MapTarget(m)); err != nil {
			return nil, err
		}
		if versionID == emptyMapVersionID {
			return emptyMapVersion(), nil
		}
		return nil, NewError(ErrVersionNotFound, fmt.Sprintf("no version %q in map %q", versionID, m.ID)).WithTarget(m.ID)
	}
	if err := s.AssertAccess(ctx, RoleMapEditor, MapTarget(m)); err != nil {
		return nil, err
	}
	return s.getVersion(ctx, m.ID, versionID)
}

func (s *Service) getVersion(ctx context.Context, mapID, versionID string) (*MapVersion, error) {
	var version MapVersion
	err := dbkit.WithErr1(s.db.NewSelect().Model(&version).
		Where("id = ? AND map_id = ?", versionID, mapID).
		Scan(ctx), "GetVersion").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, NewError(ErrVersionNotFound, fmt.Sprintf("no version %q in map %q", versionID, mapID)).WithTarget(mapID)
		}
		return nil, NewError(ErrDatabaseError, "failed to load version").WithTarget(mapID)
	}
	return &version, nil
}

// DeleteMap marks the map deleted. The row and its versions stay in the
// database but the map disappears from every read path. Requires
// MAP_OWNER.
func (s *Service) DeleteMap(ctx context.Context, m *Map) error {
	if m.IsReadOnly() {
		return NewError(ErrReadOnly, "map "+m.ID+" is read-only")
	}
	if err := s.AssertAccess(ctx, RoleMapOwner, MapTarget(m)); err != nil {
		return err
	}

	pr := PrincipalFromContext(ctx)
	now := time.Now().UTC()
	result, err := s.db.NewUpdate().Model((*Map)(nil)).
		Set("is_deleted = ?", true).
		Set("last_updated = ?", now).
		Set("last_updater = ?", pr.String()).
		Where("id = ?", m.ID).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "DeleteMap").Err(); err != nil {
		return NewError(ErrDatabaseError, "failed to delete map").WithTarget(m.ID)
	}

	m.IsDeleted = true
	m.LastUpdated = now
	m.LastUpdater = pr.String()
	s.log.Debug().Stringer("principal", pr).Str("map_id", m.ID).Msg("map deleted")
	return nil
}

// SetWorldReadable toggles whether the map satisfies MAP_VIEWER for
// everyone, anonymous visitors included. Requires MAP_OWNER.
func (s *Service) SetWorldReadable(ctx context.Context, m *Map, worldReadable bool) error {
	if m.IsReadOnly() {
		return NewError(ErrReadOnly, "map "+m.ID+" is read-only")
	}
	if err := s.AssertAccess(ctx, RoleMapOwner, MapTarget(m)); err != nil {
		return err
	}

	pr := PrincipalFromContext(ctx)
	now := time.Now().UTC()
	result, err := s.db.NewUpdate().Model((*Map)(nil)).
		Set("world_readable = ?", worldReadable).
		Set("last_updated = ?", now).
		Set("last_updater = ?", pr.String()).
		Where("id = ?", m.ID).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "SetWorldReadable").Err(); err != nil {
		return NewError(ErrDatabaseError, "failed to update map").WithTarget(m.ID)
	}

	m.WorldReadable = worldReadable
	m.LastUpdated = now
	m.LastUpdater = pr.String()
	s.log.Debug().Stringer("principal", pr).Str("map_id", m.ID).Bool("world_readable", worldReadable).Msg("map visibility changed")
	return nil
}

// RevokePermission removes a user from one of the map's permission
// lists. A role outside the member set is ignored, and so is a user not
// on the list. Requires MAP_OWNER.
func (s *Service) RevokePermission(ctx context.Context, m *Map, role Role, email string) error {
	if m.IsReadOnly() {
		return NewError(ErrReadOnly, "map "+m.ID+" is read-only")
	}
	if err := s.AssertAccess(ctx, RoleMapOwner, MapTarget(m)); err != nil {
		return err
	}

	if _, ok := resourceRank[role]; !ok {
		return nil
	}
	removeMember(m, role, email)
	if err := s.putPermissionLists(ctx, m); err != nil {
		return err
	}
	s.log.Debug().Str("map_id", m.ID).Str("role", string(role)).Str("email", email).Msg("permission revoked")
	return nil
}

// ChangePermissionLevel moves a user to the permission list for the
// given role, removing them from any other list first so a user holds at
// most one direct role per map. A role outside the member set is
// ignored. Requires MAP_OWNER.
func (s *Service) ChangePermissionLevel(ctx context.Context, m *Map, role Role, email string) error {
	if m.IsReadOnly() {
		return NewError(ErrReadOnly, "map "+m.ID+" is read-only")
	}
	if err := s.AssertAccess(ctx, RoleMapOwner, MapTarget(m)); err != nil {
		return err
	}

	if _, ok := resourceRank[role]; !ok {
		return nil
	}
	for _, member := range MemberRoles {
		removeMember(m, member, email)
	}
	switch role {
	case RoleMapOwner:
		m.Owners = append(m.Owners, email)
	case RoleMapEditor:
		m.Editors = append(m.Editors, email)
	case RoleMapReviewer:
		m.Reviewers = append(m.Reviewers, email)
	case RoleMapViewer:
		m.Viewers = append(m.Viewers, email)
	}
	if err := s.putPermissionLists(ctx, m); err != nil {
		return err
	}
	s.log.Debug().Str("map_id", m.ID).Str("role", string(role)).Str("email", email).Msg("permission changed")
	return nil
}

func removeMember(m *Map, role Role, email string) {
	list := m.memberList(role)
	out := list[:0]
	for _, held := range list {
		if held != email {
			out = append(out, held)
		}
	}
	switch role {
	case RoleMapOwner:
		m.Owners = out
	case RoleMapEditor:
		m.Editors = out
	case RoleMapReviewer:
		m.Reviewers = out
	case RoleMapViewer:
		m.Viewers = out
	}
}

// putPermissionLists persists the map's permission lists.
func (s *Service) putPermissionLists(ctx context.Context, m *Map) error {
	pr := PrincipalFromContext(ctx)
	now := time.Now().UTC()
	m.LastUpdated = now
	m.LastUpdater = pr.String()

	result, err := s.db.NewUpdate().Model(m).
		Column("owners", "editors", "reviewers", "viewers", "last_updated", "last_updater").
		WherePK().
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "PutPermissionLists").Err(); err != nil {
		return NewError(ErrDatabaseError, "failed to update map permissions").WithTarget(m.ID)
	}
	return nil
}

// GetAllMaps returns every non-deleted map, most recently updated first.
// Requires ADMIN.
func (s *Service) GetAllMaps(ctx context.Context) ([]Map, error) {
	if err := s.AssertAccess(ctx, RoleAdmin, NoTarget()); err != nil {
		return nil, err
	}

	var maps []Map
	err := dbkit.WithErr1(s.db.NewSelect().Model(&maps).
		Where("is_deleted = ?", false).
		Order("last_updated DESC").
		Scan(ctx), "GetAllMaps").Err()
	if err != nil {
		return nil, NewError(ErrDatabaseError, "failed to list maps")
	}
	return maps, nil
}

// GetViewableMaps returns the non-deleted maps the current principal can
// view, most recently updated first. One policy instance is shared across
// the scan so grants are fetched once.
func (s *Service) GetViewableMaps(ctx context.Context) ([]Map, error) {
	var maps []Map
	err := dbkit.WithErr1(s.db.NewSelect().Model(&maps).
		Where("is_deleted = ?", false).
		Order("last_updated DESC").
		Scan(ctx), "GetViewableMaps").Err()
	if err != nil {
		return nil, NewError(ErrDatabaseError, "failed to list maps")
	}

	pr := PrincipalFromContext(ctx)
	policy := s.NewPolicy()
	viewable := make([]Map, 0, len(maps))
	for i := range maps {
		ok, err := policy.HasResourceRole(ctx, pr, RoleMapViewer, &maps[i])
		if err != nil {
			return nil, err
		}
		if ok {
			viewable = append(viewable, maps[i])
		}
	}
	return viewable, nil
}

// MapExists reports whether a non-deleted map with the given ID exists.
// Intended for administrative tooling; it performs no access check.
func (s *Service) MapExists(ctx context.Context, id string) (bool, error) {
	if id == EmptyMapID {
		return true, nil
	}
	return dbkit.Exists[Map](ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("id = ? AND is_deleted = ?", id, false)
	})
}

// CountMaps returns the number of non-deleted maps.
func (s *Service) CountMaps(ctx context.Context) (int, error) {
	return dbkit.Count[Map](ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("is_deleted = ?", false)
	})
}
