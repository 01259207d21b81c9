package mapkit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fernandezvara/dbkit"
)

// ============================================================================
// SETTINGS OPERATIONS
// ============================================================================

// Settings are small JSON documents keyed by name. They back the global
// role grants and the per-domain defaults, and every read goes through
// the shared cache. Writes delete the cached value instead of updating
// it, so a concurrent reader can never pin a stale entry past the TTL.

const (
	settingGlobalRoles       = "global_roles:"
	settingInitialDomainRole = "initial_domain_role:"
)

// GetSetting reads the setting stored under key and unmarshals it into
// out. It returns false if no such setting exists.
func (s *Service) GetSetting(ctx context.Context, key string, out any) (bool, error) {
	v, err := s.cache.Get(CacheKey{Kind: CacheSetting, A: key}, func() (any, error) {
		var setting Setting
		err := dbkit.WithErr1(s.db.NewSelect().Model(&setting).Where("key = ?", key).Scan(ctx), "GetSetting").Err()
		if err != nil {
			if dbkit.IsNotFound(err) {
				// Cache the miss too, so hot lookups for absent keys
				// do not hammer the database.
				return json.RawMessage(nil), nil
			}
			return nil, err
		}
		return json.RawMessage(setting.ValueJSON), nil
	})
	if err != nil {
		return false, err
	}

	raw := v.(json.RawMessage)
	if raw == nil {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return false, NewError(ErrInvalidContent, "stored setting is not valid JSON").WithTarget(key)
		}
	}
	return true, nil
}

// SetSetting stores value under key, replacing any previous value.
func (s *Service) SetSetting(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return NewError(ErrInvalidContent, "setting value is not serializable").WithTarget(key)
	}

	setting := &Setting{
		Key:       key,
		ValueJSON: string(raw),
		UpdatedAt: time.Now().UTC(),
	}
	result, err := s.db.NewInsert().Model(setting).
		On("CONFLICT (key) DO UPDATE").
		Set("value_json = EXCLUDED.value_json").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	err = dbkit.WithErr(result, err, "SetSetting").Err()
	if err != nil {
		return NewError(ErrDatabaseError, "failed to store setting").WithTarget(key)
	}

	s.cache.Delete(CacheKey{Kind: CacheSetting, A: key})
	s.log.Debug().Str("key", key).Msg("setting stored")
	return nil
}

// DeleteSetting removes the setting stored under key, if any.
func (s *Service) DeleteSetting(ctx context.Context, key string) error {
	result, err := s.db.NewDelete().Table("settings").Where("key = ?", key).Exec(ctx)
	err = dbkit.WithErr(result, err, "DeleteSetting").Err()
	if err != nil {
		return NewError(ErrDatabaseError, "failed to delete setting").WithTarget(key)
	}

	s.cache.Delete(CacheKey{Kind: CacheSetting, A: key})
	s.log.Debug().Str("key", key).Msg("setting deleted")
	return nil
}

// ============================================================================
// GLOBAL ROLE GRANTS
// ============================================================================

// GlobalRoles returns the grants stored for a subject. The subject is
// either an email address or a bare domain name. This implements
// GrantSource, so a Service can feed an AccessPolicy directly.
func (s *Service) GlobalRoles(ctx context.Context, subject string) ([]Grant, error) {
	var grants []Grant
	if _, err := s.GetSetting(ctx, settingGlobalRoles+subject, &grants); err != nil {
		return nil, err
	}
	return grants, nil
}

// SetGlobalRoles replaces the grants stored for a subject. Duplicate
// grants are collapsed and invalid roles rejected before anything is
// written.
func (s *Service) SetGlobalRoles(ctx context.Context, subject string, grants []Grant) error {
	seen := make(map[Grant]bool, len(grants))
	deduped := make([]Grant, 0, len(grants))
	for _, g := range grants {
		if !IsValidRole(g.Role) {
			return NewError(ErrInvalidRole, "unknown role in grant").WithRole(g.Role).WithTarget(subject)
		}
		if seen[g] {
			continue
		}
		seen[g] = true
		deduped = append(deduped, g)
	}
	return s.SetSetting(ctx, settingGlobalRoles+subject, deduped)
}

// ============================================================================
// DOMAIN DEFAULTS
// ============================================================================

// InitialDomainRole returns the resource role that new maps in a domain
// grant to every member of that domain, or "" when the domain has no
// default configured.
func (s *Service) InitialDomainRole(ctx context.Context, domain string) (Role, error) {
	var role Role
	if _, err := s.GetSetting(ctx, settingInitialDomainRole+domain, &role); err != nil {
		return "", err
	}
	return role, nil
}

// SetInitialDomainRole configures the resource role applied to new maps
// created in a domain. Pass "" to clear the default.
func (s *Service) SetInitialDomainRole(ctx context.Context, domain string, role Role) error {
	if role == "" {
		return s.DeleteSetting(ctx, settingInitialDomainRole+domain)
	}
	if _, ok := resourceRank[role]; !ok {
		return NewError(ErrInvalidRole, "initial domain role must be a map role").WithRole(role).WithTarget(domain)
	}
	return s.SetSetting(ctx, settingInitialDomainRole+domain, role)
}

// DomainsWithRole returns the sorted list of domains in which the
// principal holds the given domain-scoped role.
func (s *Service) DomainsWithRole(ctx context.Context, role Role) ([]string, error) {
	pr := PrincipalFromContext(ctx)
	policy := s.NewPolicy()
	return policy.DomainsWithRole(ctx, pr, role)
}
