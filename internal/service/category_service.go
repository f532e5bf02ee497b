package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docuvault/docuvault-api/internal/models"
	appErrors "github.com/docuvault/docuvault-api/pkg/errors"
)

type categoryRepository interface {
	FindByID(ctx context.Context, id string) (*models.Category, error)
	ListAll(ctx context.Context) ([]models.Category, error)
	ListGrantedTo(ctx context.Context, userID string) ([]models.Category, error)
	Create(ctx context.Context, category *models.Category) error
	Delete(ctx context.Context, id string) error
	ListBlobKeys(ctx context.Context, categoryID string) ([]string, error)
}

type categoryAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type blobJanitor interface {
	ScheduleDelete(keys ...string)
}

// CreateCategoryRequest is the payload for creating a category.
type CreateCategoryRequest struct {
	Name string `json:"name" validate:"required,min=1,max=120"`
}

// CategoryService manages category lifecycle and grant-scoped listing.
type CategoryService struct {
	repo      categoryRepository
	access    *AccessService
	audit     categoryAuditRepository
	cache     *CacheService
	janitor   blobJanitor
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCategoryService creates a CategoryService.
func NewCategoryService(repo categoryRepository, access *AccessService, audit categoryAuditRepository, cache *CacheService, janitor blobJanitor, validate *validator.Validate, logger *zap.Logger) *CategoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CategoryService{repo: repo, access: access, audit: audit, cache: cache, janitor: janitor, validator: validate, logger: logger}
}

// List returns the categories visible to the caller: every category for
// admins, only granted categories for regular users.
func (s *CategoryService) List(ctx context.Context, claims *models.JWTClaims) ([]models.Category, error) {
	cacheKey := fmt.Sprintf("categories:list:%s", claims.UserID)
	if claims.IsAdmin() {
		cacheKey = "categories:list:all"
	}

	var cached []models.Category
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	var (
		categories []models.Category
		err        error
	)
	if claims.IsAdmin() {
		categories, err = s.repo.ListAll(ctx)
	} else {
		categories, err = s.repo.ListGrantedTo(ctx, claims.UserID)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}

	if err := s.cache.Set(ctx, cacheKey, categories, 5*time.Minute); err != nil {
		s.logger.Warn("failed to cache category list", zap.Error(err))
	}

	return categories, nil
}

// Get returns a single category when the caller has access to it.
func (s *CategoryService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Category, error) {
	category, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}

	if err := s.access.RequireRead(ctx, claims, id); err != nil {
		return nil, err
	}

	return category, nil
}

// Create adds a new category. Admin only.
func (s *CategoryService) Create(ctx context.Context, actor *models.JWTClaims, req CreateCategoryRequest, meta models.LoginRequest) (*models.Category, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only system admins create categories")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid category payload")
	}

	category := &models.Category{
		ID:        uuid.NewString(),
		Name:      req.Name,
		CreatedBy: actor.UserID,
	}

	if err := s.repo.Create(ctx, category); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create category")
	}

	if err := s.cache.Invalidate(ctx, "categories:*"); err != nil {
		s.logger.Warn("failed to invalidate category caches", zap.Error(err))
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"name": category.Name})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionCreate,
		Resource:   "categories",
		ResourceID: &category.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record category create audit log", zap.Error(err))
	}

	return category, nil
}

// Delete removes a category and everything beneath it. The database cascades
// folders, documents, versions, comments and grants; blob deletion runs in
// the background afterwards.
func (s *CategoryService) Delete(ctx context.Context, actor *models.JWTClaims, id string, meta models.LoginRequest) error {
	if !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "only system admins delete categories")
	}

	category, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}

	// Blob keys must be collected before the cascade removes the rows.
	blobKeys, err := s.repo.ListBlobKeys(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to collect blob keys")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete category")
	}

	if s.janitor != nil {
		s.janitor.ScheduleDelete(blobKeys...)
	}

	if err := s.cache.Invalidate(ctx, "categories:*"); err != nil {
		s.logger.Warn("failed to invalidate category caches", zap.Error(err))
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("folders:%s:*", id)); err != nil {
		s.logger.Warn("failed to invalidate folder caches", zap.Error(err))
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"name": category.Name, "blobs": len(blobKeys)})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionDelete,
		Resource:   "categories",
		ResourceID: &id,
		OldValues:  oldPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record category delete audit log", zap.Error(err))
	}

	return nil
}
