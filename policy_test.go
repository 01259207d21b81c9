package mapkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGrants is an in-memory GrantSource for policy tests.
type fakeGrants struct {
	grants map[string][]Grant
	calls  int
}

func (f *fakeGrants) GlobalRoles(_ context.Context, subject string) ([]Grant, error) {
	f.calls++
	return f.grants[subject], nil
}

func newPolicy(grants map[string][]Grant) *AccessPolicy {
	return NewAccessPolicy(&fakeGrants{grants: grants})
}

// TestHasRoleAdmin tests global ADMIN resolution
func TestHasRoleAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("Anonymous is never admin", func(t *testing.T) {
		ok, err := newPolicy(nil).HasRoleAdmin(ctx, nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Platform admin flag", func(t *testing.T) {
		pr := &Principal{Email: "root@example.com", PlatformAdmin: true}
		ok, err := newPolicy(nil).HasRoleAdmin(ctx, pr)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Granted ADMIN", func(t *testing.T) {
		policy := newPolicy(map[string][]Grant{
			"alice@example.com": {{Role: RoleAdmin}},
		})
		ok, err := policy.HasRoleAdmin(ctx, &Principal{Email: "alice@example.com"})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("No grant, no flag", func(t *testing.T) {
		ok, err := newPolicy(nil).HasRoleAdmin(ctx, &Principal{Email: "bob@example.com"})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

// TestHasDomainRole tests domain-scoped role resolution
func TestHasDomainRole(t *testing.T) {
	ctx := context.Background()

	t.Run("Domain-targeted grant on own domain", func(t *testing.T) {
		policy := newPolicy(map[string][]Grant{
			"bob@foo.com": {{Role: RoleCatalogEditor, Domain: "foo.com"}},
		})
		ok, err := policy.HasDomainRole(ctx, &Principal{Email: "bob@foo.com"}, RoleCatalogEditor, "foo.com")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Domain-targeted grant counts outside own domain", func(t *testing.T) {
		// Carol's address is at bar.com but she was granted editor rights
		// on foo.com's catalog directly.
		policy := newPolicy(map[string][]Grant{
			"carol@bar.com": {{Role: RoleCatalogEditor, Domain: "foo.com"}},
		})
		pr := &Principal{Email: "carol@bar.com"}
		ok, err := policy.HasDomainRole(ctx, pr, RoleCatalogEditor, "foo.com")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = policy.HasDomainRole(ctx, pr, RoleCatalogEditor, "baz.com")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Grant without domain applies everywhere", func(t *testing.T) {
		policy := newPolicy(map[string][]Grant{
			"alice@example.com": {{Role: RoleMapCreator}},
		})
		pr := &Principal{Email: "alice@example.com"}
		for _, domain := range []string{"example.com", "foo.com", "bar.com"} {
			ok, err := policy.HasDomainRole(ctx, pr, RoleMapCreator, domain)
			require.NoError(t, err)
			assert.True(t, ok, "domain %s", domain)
		}
	})

	t.Run("Grants stored under the domain subject cover all members", func(t *testing.T) {
		policy := newPolicy(map[string][]Grant{
			"foo.com": {{Role: RoleMapCreator, Domain: "foo.com"}},
		})
		ok, err := policy.HasDomainRole(ctx, &Principal{Email: "anyone@foo.com"}, RoleMapCreator, "foo.com")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = policy.HasDomainRole(ctx, &Principal{Email: "outsider@bar.com"}, RoleMapCreator, "foo.com")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DOMAIN_ADMIN subsumes the other domain roles", func(t *testing.T) {
		policy := newPolicy(map[string][]Grant{
			"bob@foo.com": {{Role: RoleDomainAdmin, Domain: "foo.com"}},
		})
		pr := &Principal{Email: "bob@foo.com"}
		for _, role := range []Role{RoleDomainAdmin, RoleCatalogEditor, RoleMapCreator, RoleDomainReviewer} {
			ok, err := policy.HasDomainRole(ctx, pr, role, "foo.com")
			require.NoError(t, err)
			assert.True(t, ok, "role %s", role)
		}
	})

	t.Run("ADMIN satisfies every domain role", func(t *testing.T) {
		policy := newPolicy(nil)
		pr := &Principal{Email: "root@ops.example.com", PlatformAdmin: true}
		ok, err := policy.HasDomainRole(ctx, pr, RoleCatalogEditor, "anything.com")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Anonymous holds no domain role", func(t *testing.T) {
		ok, err := newPolicy(nil).HasDomainRole(ctx, nil, RoleMapCreator, "foo.com")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

// TestHasResourceRole tests map access resolution
func TestHasResourceRole(t *testing.T) {
	ctx := context.Background()

	t.Run("World readable satisfies VIEWER for anyone", func(t *testing.T) {
		m := &Map{ID: "m1", WorldReadable: true}
		policy := newPolicy(nil)

		ok, err := policy.HasResourceRole(ctx, nil, RoleMapViewer, m)
		require.NoError(t, err)
		assert.True(t, ok, "anonymous viewer")

		ok, err = policy.HasResourceRole(ctx, &Principal{Email: "x@y.com"}, RoleMapViewer, m)
		require.NoError(t, err)
		assert.True(t, ok, "authenticated viewer")

		// World readability grants nothing above VIEWER.
		ok, err = policy.HasResourceRole(ctx, &Principal{Email: "x@y.com"}, RoleMapEditor, m)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Membership lists follow the lattice", func(t *testing.T) {
		m := &Map{
			ID:        "m1",
			Owners:    []string{"owner@x.com"},
			Editors:   []string{"editor@x.com"},
			Reviewers: []string{"reviewer@x.com"},
			Viewers:   []string{"viewer@x.com"},
		}
		policy := newPolicy(nil)

		check := func(email string, role Role) bool {
			ok, err := policy.HasResourceRole(ctx, &Principal{Email: email}, role, m)
			require.NoError(t, err)
			return ok
		}

		assert.True(t, check("owner@x.com", RoleMapOwner))
		assert.True(t, check("owner@x.com", RoleMapViewer))
		assert.True(t, check("editor@x.com", RoleMapEditor))
		assert.True(t, check("editor@x.com", RoleMapReviewer))
		assert.False(t, check("editor@x.com", RoleMapOwner))
		assert.True(t, check("reviewer@x.com", RoleMapViewer))
		assert.False(t, check("reviewer@x.com", RoleMapEditor))
		assert.True(t, check("viewer@x.com", RoleMapViewer))
		assert.False(t, check("viewer@x.com", RoleMapReviewer))
		assert.False(t, check("stranger@x.com", RoleMapViewer))
	})

	t.Run("Map domain role covers domain members", func(t *testing.T) {
		m := &Map{ID: "m1", Domains: []string{"foo.com"}, DomainRole: RoleMapEditor}
		policy := newPolicy(nil)

		ok, err := policy.HasResourceRole(ctx, &Principal{Email: "bob@foo.com"}, RoleMapEditor, m)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = policy.HasResourceRole(ctx, &Principal{Email: "bob@foo.com"}, RoleMapOwner, m)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = policy.HasResourceRole(ctx, &Principal{Email: "outsider@bar.com"}, RoleMapViewer, m)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DOMAIN_ADMIN projects MAP_OWNER onto the domain's maps", func(t *testing.T) {
		policy := newPolicy(map[string][]Grant{
			"bob@foo.com": {{Role: RoleDomainAdmin, Domain: "foo.com"}},
		})
		pr := &Principal{Email: "bob@foo.com"}

		inDomain := &Map{ID: "m1", Domains: []string{"foo.com"}}
		ok, err := policy.HasResourceRole(ctx, pr, RoleMapOwner, inDomain)
		require.NoError(t, err)
		assert.True(t, ok)

		elsewhere := &Map{ID: "m2", Domains: []string{"bar.com"}}
		ok, err = policy.HasResourceRole(ctx, pr, RoleMapViewer, elsewhere)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DOMAIN_ADMIN projection requires the grantee's own domain", func(t *testing.T) {
		policy := newPolicy(map[string][]Grant{
			"carol@bar.com": {{Role: RoleDomainAdmin, Domain: "foo.com"}},
		})
		m := &Map{ID: "m1", Domains: []string{"foo.com"}}
		ok, err := policy.HasResourceRole(ctx, &Principal{Email: "carol@bar.com"}, RoleMapOwner, m)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DOMAIN_REVIEWER projects MAP_REVIEWER", func(t *testing.T) {
		policy := newPolicy(map[string][]Grant{
			"rev@foo.com": {{Role: RoleDomainReviewer, Domain: "foo.com"}},
		})
		pr := &Principal{Email: "rev@foo.com"}
		m := &Map{ID: "m1", Domains: []string{"foo.com"}}

		ok, err := policy.HasResourceRole(ctx, pr, RoleMapReviewer, m)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = policy.HasResourceRole(ctx, pr, RoleMapViewer, m)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = policy.HasResourceRole(ctx, pr, RoleMapEditor, m)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Global resource grant applies to every map", func(t *testing.T) {
		policy := newPolicy(map[string][]Grant{
			"auditor@hq.com": {{Role: RoleMapViewer}},
		})
		m := &Map{ID: "m1", Domains: []string{"foo.com"}}
		ok, err := policy.HasResourceRole(ctx, &Principal{Email: "auditor@hq.com"}, RoleMapViewer, m)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Domain-scoped resource grant covers the domain's maps", func(t *testing.T) {
		policy := newPolicy(map[string][]Grant{
			"auditor@hq.com": {{Role: RoleMapEditor, Domain: "foo.com"}},
		})
		pr := &Principal{Email: "auditor@hq.com"}

		inDomain := &Map{ID: "m1", Domains: []string{"foo.com"}}
		ok, err := policy.HasResourceRole(ctx, pr, RoleMapEditor, inDomain)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = policy.HasResourceRole(ctx, pr, RoleMapViewer, inDomain)
		require.NoError(t, err)
		assert.True(t, ok)

		elsewhere := &Map{ID: "m2", Domains: []string{"bar.com"}}
		ok, err = policy.HasResourceRole(ctx, pr, RoleMapEditor, elsewhere)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ADMIN satisfies every resource role", func(t *testing.T) {
		policy := newPolicy(nil)
		pr := &Principal{Email: "root@ops.com", PlatformAdmin: true}
		m := &Map{ID: "m1"}
		for _, role := range MemberRoles {
			ok, err := policy.HasResourceRole(ctx, pr, role, m)
			require.NoError(t, err)
			assert.True(t, ok, "role %s", role)
		}
	})

	t.Run("Unknown role is never held", func(t *testing.T) {
		pr := &Principal{Email: "root@ops.com", PlatformAdmin: true}
		ok, err := newPolicy(nil).HasResourceRole(ctx, pr, "WIZARD", &Map{ID: "m1"})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

// TestPolicyMemoization tests that grants are fetched once per subject
func TestPolicyMemoization(t *testing.T) {
	ctx := context.Background()
	source := &fakeGrants{grants: map[string][]Grant{
		"bob@foo.com": {{Role: RoleMapCreator, Domain: "foo.com"}},
	}}
	policy := NewAccessPolicy(source)
	pr := &Principal{Email: "bob@foo.com"}

	for i := 0; i < 5; i++ {
		_, err := policy.HasDomainRole(ctx, pr, RoleMapCreator, "foo.com")
		require.NoError(t, err)
	}

	// One fetch for the e-mail subject, one for the domain subject.
	assert.Equal(t, 2, source.calls)
}

// TestDomainsWithRole tests enumerating granted domains
func TestDomainsWithRole(t *testing.T) {
	ctx := context.Background()
	policy := newPolicy(map[string][]Grant{
		"bob@foo.com": {
			{Role: RoleMapCreator, Domain: "zeta.com"},
			{Role: RoleMapCreator, Domain: "alpha.com"},
			{Role: RoleDomainAdmin, Domain: "foo.com"}, // implies MAP_CREATOR
			{Role: RoleCatalogEditor, Domain: "other.com"},
		},
	})
	pr := &Principal{Email: "bob@foo.com"}

	domains, err := policy.DomainsWithRole(ctx, pr, RoleMapCreator)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.com", "foo.com", "zeta.com"}, domains)

	// Every enumerated domain is one the role check actually grants,
	// including domains outside the principal's own.
	for _, domain := range domains {
		ok, err := policy.HasDomainRole(ctx, pr, RoleMapCreator, domain)
		require.NoError(t, err)
		assert.True(t, ok, "domain %s is reported but not granted", domain)
	}

	none, err := policy.DomainsWithRole(ctx, nil, RoleMapCreator)
	require.NoError(t, err)
	assert.Empty(t, none)
}
