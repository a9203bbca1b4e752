package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distline/internal/db"
	"distline/internal/domain"
	"distline/internal/engine/auth"
	"distline/internal/migrate"
	"distline/internal/repo"
)

func TestRolePermissions(t *testing.T) {
	cases := []struct {
		role  domain.Role
		perm  string
		allow bool
	}{
		{domain.RoleAdmin, auth.PermScheduleProduce, true},
		{domain.RoleAdmin, auth.PermEventsRead, true},
		{domain.RoleAgent, auth.PermBoardRead, true},
		{domain.RoleAgent, auth.PermItemWriteOwn, true},
		{domain.RoleAgent, auth.PermItemWriteAny, false},
		{domain.RoleAgent, auth.PermZoneAssign, false},
		{domain.RoleRestrictedAgent, auth.PermItemCreate, true},
		{domain.RoleRestrictedAgent, auth.PermScheduleProduce, false},
		{domain.Role("ghost"), auth.PermBoardRead, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allow, auth.Allowed(tc.role, tc.perm), "%s %s", tc.role, tc.perm)
	}
}

func TestRequireNamesMissingPermission(t *testing.T) {
	err := auth.Require(domain.Actor{ID: "a", Role: domain.RoleAgent}, auth.PermScheduleProduce)
	var fe auth.ForbiddenError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, auth.PermScheduleProduce, fe.Permission)
	assert.Equal(t, domain.RoleAgent, fe.Role)
	assert.Contains(t, err.Error(), "schedule.produce")

	assert.NoError(t, auth.Require(domain.Actor{ID: "b", Role: domain.RoleAdmin}, auth.PermScheduleProduce))
}

func TestPermissionsReturnsACopy(t *testing.T) {
	perms := auth.Permissions(domain.RoleAgent)
	require.NotEmpty(t, perms)
	perms[0] = "mutated"
	assert.NotContains(t, auth.Permissions(domain.RoleAgent), "mutated")
}

func TestServiceResolve(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	r := repo.Repo{DB: conn}
	_, err = r.EnsureActor(ctx, nil, "agent-7", domain.RoleRestrictedAgent, "2024-01-01T00:00:00Z")
	require.NoError(t, err)

	svc := auth.Service{Repo: r}
	a, err := svc.Resolve(ctx, " agent-7 ")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleRestrictedAgent, a.Role)

	_, err = svc.Resolve(ctx, "nobody")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = svc.Resolve(ctx, "  ")
	assert.Error(t, err)
}
