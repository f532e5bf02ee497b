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

type mockCategoryRepo struct {
	categories map[string]*models.Category
	granted    map[string][]string
	blobKeys   map[string][]string
}

func (m *mockCategoryRepo) FindByID(ctx context.Context, id string) (*models.Category, error) {
	if c, ok := m.categories[id]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCategoryRepo) ListAll(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	for _, c := range m.categories {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockCategoryRepo) ListGrantedTo(ctx context.Context, userID string) ([]models.Category, error) {
	var out []models.Category
	for _, id := range m.granted[userID] {
		if c, ok := m.categories[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockCategoryRepo) Create(ctx context.Context, category *models.Category) error {
	if m.categories == nil {
		m.categories = make(map[string]*models.Category)
	}
	copy := *category
	m.categories[category.ID] = &copy
	return nil
}

func (m *mockCategoryRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.categories[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.categories, id)
	return nil
}

func (m *mockCategoryRepo) ListBlobKeys(ctx context.Context, categoryID string) ([]string, error) {
	return m.blobKeys[categoryID], nil
}

type mockAuditRepo struct {
	logs []*models.AuditLog
}

func (m *mockAuditRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type mockJanitor struct {
	keys []string
}

func (m *mockJanitor) ScheduleDelete(keys ...string) {
	m.keys = append(m.keys, keys...)
}

func newCategoryFixture() (*CategoryService, *mockCategoryRepo, *mockAuditRepo, *mockJanitor) {
	repo := &mockCategoryRepo{
		categories: map[string]*models.Category{
			"cat-finance": {ID: "cat-finance", Name: "Finance"},
			"cat-hr":      {ID: "cat-hr", Name: "HR"},
		},
		granted: map[string][]string{
			"u1": {"cat-finance"},
		},
		blobKeys: map[string][]string{
			"cat-finance": {"cat-finance/f1/a.pdf", "cat-finance/f1/b.pdf"},
		},
	}
	grantRepo := &mockGrantRepo{
		categories: repo.categories,
		grants: map[string]*models.AccessGrant{
			grantKey("u1", "cat-finance"): {UserID: "u1", CategoryID: "cat-finance", Level: models.AccessRead},
		},
	}
	users := &mockGrantUserRepo{users: map[string]*models.User{}}
	access := NewAccessService(grantRepo, users, nil, validator.New(), zap.NewNop())
	audit := &mockAuditRepo{}
	janitor := &mockJanitor{}
	svc := NewCategoryService(repo, access, audit, nil, janitor, validator.New(), zap.NewNop())
	return svc, repo, audit, janitor
}

func TestCategoryListScopedToGrants(t *testing.T) {
	svc, _, _, _ := newCategoryFixture()

	all, err := svc.List(context.Background(), adminClaims())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := svc.List(context.Background(), userClaims("u1"))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Finance", mine[0].Name)

	none, err := svc.List(context.Background(), userClaims("u2"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCategoryGetRequiresGrant(t *testing.T) {
	svc, _, _, _ := newCategoryFixture()

	_, err := svc.Get(context.Background(), userClaims("u1"), "cat-hr")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	category, err := svc.Get(context.Background(), userClaims("u1"), "cat-finance")
	require.NoError(t, err)
	assert.Equal(t, "Finance", category.Name)
}

func TestCategoryCreateRequiresAdmin(t *testing.T) {
	svc, _, audit, _ := newCategoryFixture()

	_, err := svc.Create(context.Background(), userClaims("u1"), CreateCategoryRequest{Name: "Legal"}, models.LoginRequest{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	category, err := svc.Create(context.Background(), adminClaims(), CreateCategoryRequest{Name: "Legal"}, models.LoginRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, category.ID)
	assert.NotEmpty(t, audit.logs)
}

func TestCategoryDeleteSchedulesBlobCleanup(t *testing.T) {
	svc, repo, _, janitor := newCategoryFixture()

	err := svc.Delete(context.Background(), adminClaims(), "cat-finance", models.LoginRequest{})
	require.NoError(t, err)

	_, ok := repo.categories["cat-finance"]
	assert.False(t, ok)
	assert.Equal(t, []string{"cat-finance/f1/a.pdf", "cat-finance/f1/b.pdf"}, janitor.keys)
}

func TestCategoryDeleteNotFound(t *testing.T) {
	svc, _, _, _ := newCategoryFixture()
	err := svc.Delete(context.Background(), adminClaims(), "missing", models.LoginRequest{})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
