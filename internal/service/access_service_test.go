package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docuvault/docuvault-api/internal/models"
	appErrors "github.com/docuvault/docuvault-api/pkg/errors"
)

type mockGrantRepo struct {
	categories map[string]*models.Category
	grants     map[string]*models.AccessGrant
}

func grantKey(userID, categoryID string) string {
	return userID + "|" + categoryID
}

func (m *mockGrantRepo) FindByID(ctx context.Context, id string) (*models.Category, error) {
	if c, ok := m.categories[id]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGrantRepo) FindGrant(ctx context.Context, userID, categoryID string) (*models.AccessGrant, error) {
	if g, ok := m.grants[grantKey(userID, categoryID)]; ok {
		copy := *g
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGrantRepo) ListGrants(ctx context.Context, categoryID string) ([]models.AccessGrant, error) {
	var grants []models.AccessGrant
	for _, g := range m.grants {
		if g.CategoryID == categoryID {
			grants = append(grants, *g)
		}
	}
	return grants, nil
}

func (m *mockGrantRepo) UpsertGrant(ctx context.Context, grant *models.AccessGrant) error {
	if m.grants == nil {
		m.grants = make(map[string]*models.AccessGrant)
	}
	copy := *grant
	m.grants[grantKey(grant.UserID, grant.CategoryID)] = &copy
	return nil
}

func (m *mockGrantRepo) DeleteGrant(ctx context.Context, userID, categoryID string) error {
	key := grantKey(userID, categoryID)
	if _, ok := m.grants[key]; !ok {
		return sql.ErrNoRows
	}
	delete(m.grants, key)
	return nil
}

type mockGrantUserRepo struct {
	users     map[string]*models.User
	auditLogs []*models.AuditLog
}

func (m *mockGrantUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGrantUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleSystemAdmin}
}

func userClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleUser}
}

func newAccessFixture() (*AccessService, *mockGrantRepo, *mockGrantUserRepo) {
	repo := &mockGrantRepo{
		categories: map[string]*models.Category{
			"cat-finance": {ID: "cat-finance", Name: "Finance"},
			"cat-hr":      {ID: "cat-hr", Name: "HR"},
		},
		grants: make(map[string]*models.AccessGrant),
	}
	users := &mockGrantUserRepo{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "u1@example.com", Role: models.RoleUser, Active: true},
	}}
	svc := NewAccessService(repo, users, nil, validator.New(), zap.NewNop())
	return svc, repo, users
}

func TestLevelForAdminBypassesGrants(t *testing.T) {
	svc, _, _ := newAccessFixture()
	level, ok, err := svc.LevelFor(context.Background(), adminClaims(), "cat-finance")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.AccessFull, level)
}

func TestLevelForWithoutGrant(t *testing.T) {
	svc, _, _ := newAccessFixture()
	_, ok, err := svc.LevelFor(context.Background(), userClaims("u1"), "cat-finance")
	require.NoError(t, err)
	assert.False(t, ok)

	err = svc.RequireRead(context.Background(), userClaims("u1"), "cat-finance")
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestGrantOverwritesExistingLevel(t *testing.T) {
	svc, repo, users := newAccessFixture()

	_, err := svc.Grant(context.Background(), adminClaims(), "cat-finance", GrantRequest{UserID: "u1", Level: models.AccessRead}, models.LoginRequest{})
	require.NoError(t, err)

	grant, err := svc.Grant(context.Background(), adminClaims(), "cat-finance", GrantRequest{UserID: "u1", Level: models.AccessFull}, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.AccessFull, grant.Level)

	stored := repo.grants[grantKey("u1", "cat-finance")]
	require.NotNil(t, stored)
	assert.Equal(t, models.AccessFull, stored.Level)
	assert.Len(t, users.auditLogs, 2)
}

func TestGrantRequiresAdmin(t *testing.T) {
	svc, _, _ := newAccessFixture()
	_, err := svc.Grant(context.Background(), userClaims("u1"), "cat-finance", GrantRequest{UserID: "u1", Level: models.AccessFull}, models.LoginRequest{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestRevokeCutsAccess(t *testing.T) {
	svc, _, _ := newAccessFixture()

	_, err := svc.Grant(context.Background(), adminClaims(), "cat-finance", GrantRequest{UserID: "u1", Level: models.AccessRead}, models.LoginRequest{})
	require.NoError(t, err)
	require.NoError(t, svc.RequireRead(context.Background(), userClaims("u1"), "cat-finance"))

	require.NoError(t, svc.Revoke(context.Background(), adminClaims(), "cat-finance", "u1", models.LoginRequest{}))

	err = svc.RequireRead(context.Background(), userClaims("u1"), "cat-finance")
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestRevokeMissingGrant(t *testing.T) {
	svc, _, _ := newAccessFixture()
	err := svc.Revoke(context.Background(), adminClaims(), "cat-finance", "u1", models.LoginRequest{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestRequireWritePolicy(t *testing.T) {
	svc, repo, _ := newAccessFixture()
	repo.grants[grantKey("u1", "cat-finance")] = &models.AccessGrant{
		UserID: "u1", CategoryID: "cat-finance", Level: models.AccessFull, GrantedAt: time.Now(),
	}

	shared := &models.Folder{ID: "f-shared", CategoryID: "cat-finance", CreatedBy: "admin-1", IsPersonal: false}
	personal := &models.Folder{ID: "f-personal", CategoryID: "cat-finance", CreatedBy: "u1", IsPersonal: true}
	foreign := &models.Folder{ID: "f-other", CategoryID: "cat-finance", CreatedBy: "u2", IsPersonal: true}

	assert.NoError(t, svc.RequireWrite(context.Background(), adminClaims(), shared))
	assert.NoError(t, svc.RequireWrite(context.Background(), userClaims("u1"), personal))

	err := svc.RequireWrite(context.Background(), userClaims("u1"), shared)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = svc.RequireWrite(context.Background(), userClaims("u1"), foreign)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// A read-level grantee still writes inside an owned personal folder.
	repo.grants[grantKey("u1", "cat-finance")].Level = models.AccessRead
	assert.NoError(t, svc.RequireWrite(context.Background(), userClaims("u1"), personal))

	// With no grant at all, owned personal folders are off limits too.
	delete(repo.grants, grantKey("u1", "cat-finance"))
	err = svc.RequireWrite(context.Background(), userClaims("u1"), personal)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
