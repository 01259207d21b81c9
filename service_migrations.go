package mapkit

import (
	"github.com/fernandezvara/dbkit"
)

// Migrations returns all database migrations required for MapKit.
// Use dbkit.Migrate(ctx, db, service.Migrations()) to run migrations.
func (s *Service) Migrations() []dbkit.Migration {
	return []dbkit.Migration{
		{
			ID:          "mapkit-001",
			Description: "Create settings table",
			SQL: `
                CREATE TABLE IF NOT EXISTS settings (
                    key TEXT PRIMARY KEY,
                    value_json TEXT NOT NULL,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "mapkit-002",
			Description: "Create maps table",
			SQL: `
                CREATE TABLE IF NOT EXISTS maps (
                    id TEXT PRIMARY KEY,
                    title TEXT,
                    description TEXT,
                    created TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    creator TEXT,
                    last_updated TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    last_updater TEXT,
                    owners TEXT[] NOT NULL DEFAULT '{}',
                    editors TEXT[] NOT NULL DEFAULT '{}',
                    reviewers TEXT[] NOT NULL DEFAULT '{}',
                    viewers TEXT[] NOT NULL DEFAULT '{}',
                    domains TEXT[] NOT NULL DEFAULT '{}',
                    domain_role TEXT,
                    world_readable BOOLEAN NOT NULL DEFAULT false,
                    current_version_id UUID,
                    is_deleted BOOLEAN NOT NULL DEFAULT false
                )`,
		},
		{
			ID:          "mapkit-003",
			Description: "Create map_versions table",
			SQL: `
                CREATE TABLE IF NOT EXISTS map_versions (
                    id UUID PRIMARY KEY,
                    map_id TEXT NOT NULL REFERENCES maps(id),
                    content_json TEXT NOT NULL,
                    creator TEXT,
                    created TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "mapkit-004",
			Description: "Create catalog_entries table",
			SQL: `
                CREATE TABLE IF NOT EXISTS catalog_entries (
                    domain TEXT NOT NULL,
                    label TEXT NOT NULL,
                    creator TEXT,
                    created TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    last_updated TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    last_updater TEXT,
                    title TEXT,
                    map_id TEXT NOT NULL,
                    map_version_id UUID NOT NULL,
                    is_listed BOOLEAN NOT NULL DEFAULT false,
                    PRIMARY KEY (domain, label)
                )`,
		},
		{
			ID:          "mapkit-005",
			Description: "Create indexes for listings and version history",
			SQL: `
                CREATE INDEX IF NOT EXISTS idx_map_versions_map_created
                    ON map_versions (map_id, created DESC);
                CREATE INDEX IF NOT EXISTS idx_maps_last_updated
                    ON maps (last_updated DESC) WHERE NOT is_deleted;
                CREATE INDEX IF NOT EXISTS idx_catalog_entries_domain
                    ON catalog_entries (domain, is_listed);
                CREATE INDEX IF NOT EXISTS idx_catalog_entries_map
                    ON catalog_entries (map_id)`,
		},
	}
}
