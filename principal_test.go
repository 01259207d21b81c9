package mapkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPrincipalDomain tests domain extraction from e-mail addresses
func TestPrincipalDomain(t *testing.T) {
	tests := []struct {
		name   string
		p      *Principal
		domain string
	}{
		{"Normal address", &Principal{Email: "alice@example.com"}, "example.com"},
		{"Subdomain", &Principal{Email: "bob@mail.example.com"}, "mail.example.com"},
		{"Quoted local part with at sign", &Principal{Email: `"a@b"@example.com`}, "example.com"},
		{"No at sign", &Principal{Email: "not-an-address"}, ""},
		{"Trailing at sign", &Principal{Email: "alice@"}, ""},
		{"Empty email", &Principal{}, ""},
		{"Nil principal", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.domain, tt.p.Domain())
		})
	}
}

// TestPrincipalString tests the diagnostic rendering
func TestPrincipalString(t *testing.T) {
	assert.Equal(t, "alice@example.com", (&Principal{Email: "alice@example.com"}).String())
	assert.Equal(t, "anonymous", (*Principal)(nil).String())
}

// TestPrincipalContext tests the context round trip
func TestPrincipalContext(t *testing.T) {
	t.Run("Round trip", func(t *testing.T) {
		pr := &Principal{Email: "alice@example.com"}
		ctx := WithPrincipal(context.Background(), pr)
		assert.Same(t, pr, PrincipalFromContext(ctx))
	})

	t.Run("Empty context is anonymous", func(t *testing.T) {
		assert.Nil(t, PrincipalFromContext(context.Background()))
	})

	t.Run("Nil principal stays anonymous", func(t *testing.T) {
		ctx := WithPrincipal(context.Background(), nil)
		assert.Nil(t, PrincipalFromContext(ctx))
	})
}

// TestRunAsAdmin tests scoped elevation
func TestRunAsAdmin(t *testing.T) {
	outer := WithPrincipal(context.Background(), &Principal{Email: "alice@example.com"})

	var inside *Principal
	err := RunAsAdmin(outer, func(ctx context.Context) error {
		inside = PrincipalFromContext(ctx)
		return nil
	})
	require.NoError(t, err)

	require.NotNil(t, inside)
	assert.True(t, inside.PlatformAdmin)

	// The elevation never leaks into the caller's context.
	after := PrincipalFromContext(outer)
	require.NotNil(t, after)
	assert.Equal(t, "alice@example.com", after.Email)
	assert.False(t, after.PlatformAdmin)
}

// TestRunAsAdminPropagatesError tests that fn's error comes back verbatim
func TestRunAsAdminPropagatesError(t *testing.T) {
	sentinel := NewError(ErrDatabaseError, "boom")
	err := RunAsAdmin(context.Background(), func(ctx context.Context) error {
		return sentinel
	})
	assert.Equal(t, sentinel, err)
}
