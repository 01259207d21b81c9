package mapkit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// setupIntegration connects to the test database, runs migrations, and
// returns a ready service. The test is skipped when no database is
// reachable (run 'make start' to bring one up).
func setupIntegration(t *testing.T) (*Service, context.Context) {
	t.Helper()
	if !RequireDatabase(t) {
		return nil, nil
	}

	ctx := context.Background()
	service, err := SetupTestDatabase(ctx)
	require.NoError(t, err, "failed to setup test database")
	return service, ctx
}

// uniqueDomain returns a domain name no other test run has used, so
// grants and catalog entries never collide across runs.
func uniqueDomain(prefix string) string {
	return fmt.Sprintf("%s-%d.test", prefix, time.Now().UnixNano())
}

func asUser(ctx context.Context, email string) context.Context {
	return WithPrincipal(ctx, &Principal{Email: email})
}

func asAdmin(ctx context.Context) context.Context {
	return WithPrincipal(ctx, &Principal{Email: "root@admin.test", PlatformAdmin: true})
}

// grantRole stores a single grant for the subject, replacing previous ones.
func grantRole(t *testing.T, service *Service, ctx context.Context, subject string, role Role, domain string) {
	t.Helper()
	err := service.SetGlobalRoles(ctx, subject, []Grant{{Role: role, Domain: domain}})
	require.NoError(t, err)
}
