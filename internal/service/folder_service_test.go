package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docuvault/docuvault-api/internal/models"
	appErrors "github.com/docuvault/docuvault-api/pkg/errors"
)

type mockFolderRepo struct {
	folders  map[string]*models.Folder
	blobKeys map[string][]string
}

func (m *mockFolderRepo) FindByID(ctx context.Context, id string) (*models.Folder, error) {
	if f, ok := m.folders[id]; ok {
		copy := *f
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFolderRepo) ListByCategory(ctx context.Context, categoryID string) ([]models.Folder, error) {
	var out []models.Folder
	for _, f := range m.folders {
		if f.CategoryID == categoryID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *mockFolderRepo) ListVisible(ctx context.Context, categoryID, userID string) ([]models.Folder, error) {
	var out []models.Folder
	for _, f := range m.folders {
		if f.CategoryID == categoryID && (!f.IsPersonal || f.CreatedBy == userID) {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *mockFolderRepo) Create(ctx context.Context, folder *models.Folder) error {
	if m.folders == nil {
		m.folders = make(map[string]*models.Folder)
	}
	copy := *folder
	m.folders[folder.ID] = &copy
	return nil
}

func (m *mockFolderRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.folders[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.folders, id)
	return nil
}

func (m *mockFolderRepo) ListBlobKeys(ctx context.Context, folderID string) ([]string, error) {
	return m.blobKeys[folderID], nil
}

func newFolderFixture() (*FolderService, *mockFolderRepo, *mockJanitor) {
	repo := &mockFolderRepo{
		folders: map[string]*models.Folder{
			"f-shared":      {ID: "f-shared", Name: "Reports", CategoryID: "cat-finance", CreatedBy: "admin-1", IsPersonal: false},
			"f-personal-u1": {ID: "f-personal-u1", Name: "Drafts", CategoryID: "cat-finance", CreatedBy: "u1", IsPersonal: true},
			"f-personal-u2": {ID: "f-personal-u2", Name: "Scratch", CategoryID: "cat-finance", CreatedBy: "u2", IsPersonal: true},
		},
		blobKeys: map[string][]string{
			"f-personal-u1": {"cat-finance/f-personal-u1/a.pdf"},
		},
	}
	grants := &mockGrantRepo{
		categories: map[string]*models.Category{"cat-finance": {ID: "cat-finance", Name: "Finance"}},
		grants: map[string]*models.AccessGrant{
			grantKey("u1", "cat-finance"): {UserID: "u1", CategoryID: "cat-finance", Level: models.AccessFull},
			grantKey("u2", "cat-finance"): {UserID: "u2", CategoryID: "cat-finance", Level: models.AccessRead},
		},
	}
	access := NewAccessService(grants, &mockGrantUserRepo{}, nil, validator.New(), zap.NewNop())
	janitor := &mockJanitor{}
	svc := NewFolderService(repo, access, &mockAuditRepo{}, nil, janitor, validator.New(), zap.NewNop())
	return svc, repo, janitor
}

func TestFolderListHidesForeignPersonalFolders(t *testing.T) {
	svc, _, _ := newFolderFixture()

	visible, err := svc.List(context.Background(), userClaims("u1"), "cat-finance")
	require.NoError(t, err)
	require.Len(t, visible, 2)
	for _, f := range visible {
		assert.NotEqual(t, "f-personal-u2", f.ID)
	}

	all, err := svc.List(context.Background(), adminClaims(), "cat-finance")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFolderGetForeignPersonalHidden(t *testing.T) {
	svc, _, _ := newFolderFixture()

	_, err := svc.Get(context.Background(), userClaims("u1"), "f-personal-u2")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	folder, err := svc.Get(context.Background(), userClaims("u1"), "f-personal-u1")
	require.NoError(t, err)
	assert.Equal(t, "Drafts", folder.Name)
}

func TestFolderCreateRules(t *testing.T) {
	svc, _, _ := newFolderFixture()

	// Regular users create only personal folders.
	_, err := svc.Create(context.Background(), userClaims("u1"), "cat-finance", CreateFolderRequest{Name: "Team", IsPersonal: false}, models.LoginRequest{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	personal, err := svc.Create(context.Background(), userClaims("u1"), "cat-finance", CreateFolderRequest{Name: "More Drafts", IsPersonal: true}, models.LoginRequest{})
	require.NoError(t, err)
	assert.True(t, personal.IsPersonal)
	assert.Equal(t, "u1", personal.CreatedBy)

	// Read-level grantees still create personal folders of their own.
	mine, err := svc.Create(context.Background(), userClaims("u2"), "cat-finance", CreateFolderRequest{Name: "Mine", IsPersonal: true}, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "u2", mine.CreatedBy)

	// Without any grant on the category, nothing can be created.
	_, err = svc.Create(context.Background(), userClaims("u3"), "cat-finance", CreateFolderRequest{Name: "Nope", IsPersonal: true}, models.LoginRequest{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	shared, err := svc.Create(context.Background(), adminClaims(), "cat-finance", CreateFolderRequest{Name: "Policies", IsPersonal: false}, models.LoginRequest{})
	require.NoError(t, err)
	assert.False(t, shared.IsPersonal)
}

func TestFolderDeleteOwnershipAndCleanup(t *testing.T) {
	svc, repo, janitor := newFolderFixture()

	err := svc.Delete(context.Background(), userClaims("u2"), "f-personal-u1", models.LoginRequest{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), userClaims("u1"), "f-personal-u1", models.LoginRequest{}))
	_, ok := repo.folders["f-personal-u1"]
	assert.False(t, ok)
	assert.Equal(t, []string{"cat-finance/f-personal-u1/a.pdf"}, janitor.keys)

	err = svc.Delete(context.Background(), userClaims("u1"), "f-shared", models.LoginRequest{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), adminClaims(), "f-shared", models.LoginRequest{}))
}
