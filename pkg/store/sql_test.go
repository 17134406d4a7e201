package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildboard/guildboard/pkg/rbac"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewSQLStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLStoreProfiles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	profile := &Profile{
		Email:    "dana@example.com",
		FullName: "Dana Whitfield",
	}
	require.NoError(t, store.CreateProfile(ctx, profile))
	assert.NotEmpty(t, profile.ID, "id should be assigned")
	assert.Equal(t, rbac.DefaultRole, profile.Role, "role should default")
	assert.False(t, profile.CreatedAt.IsZero())

	got, err := store.GetProfile(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "dana@example.com", got.Email)
	assert.Equal(t, rbac.RoleMember, got.Role)
	assert.False(t, got.OnboardingComplete)

	byEmail, err := store.GetProfileByEmail(ctx, "dana@example.com")
	require.NoError(t, err)
	assert.Equal(t, profile.ID, byEmail.ID)

	got.FullName = "Dana W."
	got.OnboardingComplete = true
	got.Role = rbac.RoleEmployer
	require.NoError(t, store.UpdateProfile(ctx, got))

	updated, err := store.GetProfile(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dana W.", updated.FullName)
	assert.True(t, updated.OnboardingComplete)
	assert.Equal(t, rbac.RoleEmployer, updated.Role)
}

func TestSQLStoreProfileNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetProfile(ctx, "missing")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	_, err = store.GetProfileByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	err = store.UpdateProfile(ctx, &Profile{ID: "missing", Email: "x@example.com"})
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestSQLStoreTenants(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	owner := &Profile{Email: "owner@example.com", Role: rbac.RoleTenantOwner}
	require.NoError(t, store.CreateProfile(ctx, owner))

	tenant := &Tenant{
		Slug:    "acme",
		Name:    "Acme Talent",
		OwnerID: owner.ID,
		Branding: map[string]string{
			"primary_color": "#112233",
		},
	}
	require.NoError(t, store.CreateTenant(ctx, tenant))
	assert.NotEmpty(t, tenant.ID)

	bySlug, err := store.GetTenantBySlug(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, bySlug.ID)
	assert.Equal(t, "#112233", bySlug.Branding["primary_color"])

	byOwner, err := store.GetTenantByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, byOwner.ID)

	byID, err := store.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Talent", byID.Name)
}

func TestSQLStoreTenantNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetTenant(ctx, "missing")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	_, err = store.GetTenantBySlug(ctx, "missing")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	_, err = store.GetTenantByOwner(ctx, "missing")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestSQLStoreMemberships(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	owner := &Profile{Email: "owner@example.com"}
	require.NoError(t, store.CreateProfile(ctx, owner))
	member := &Profile{Email: "member@example.com"}
	require.NoError(t, store.CreateProfile(ctx, member))

	tenant := &Tenant{Slug: "acme", Name: "Acme", OwnerID: owner.ID}
	require.NoError(t, store.CreateTenant(ctx, tenant))

	require.NoError(t, store.AddMember(ctx, &Membership{
		TenantID: tenant.ID,
		UserID:   member.ID,
		Role:     rbac.RoleEmployer,
	}))

	got, err := store.GetMembership(ctx, tenant.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleEmployer, got.Role)
	assert.False(t, got.JoinedAt.IsZero())

	_, err = store.GetMembership(ctx, tenant.ID, "stranger")
	assert.ErrorIs(t, err, ErrMembershipNotFound)
}

func TestSQLStoreQueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT .+ FROM profiles").WillReturnError(sql.ErrConnDone)
	_, err = store.GetProfile(ctx, "id")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProfileNotFound, "driver errors should not masquerade as not-found")

	mock.ExpectQuery("SELECT .+ FROM tenants").WillReturnError(sql.ErrConnDone)
	_, err = store.GetTenantBySlug(ctx, "acme")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTenantNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
