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

type folderRepository interface {
	FindByID(ctx context.Context, id string) (*models.Folder, error)
	ListByCategory(ctx context.Context, categoryID string) ([]models.Folder, error)
	ListVisible(ctx context.Context, categoryID, userID string) ([]models.Folder, error)
	Create(ctx context.Context, folder *models.Folder) error
	Delete(ctx context.Context, id string) error
	ListBlobKeys(ctx context.Context, folderID string) ([]string, error)
}

// CreateFolderRequest is the payload for creating a folder inside a category.
type CreateFolderRequest struct {
	Name       string `json:"name" validate:"required,min=1,max=120"`
	IsPersonal bool   `json:"is_personal"`
}

// FolderService manages folders within categories. Visibility of personal
// folders is restricted to their creator; shared folders are visible to every
// grantee of the category.
type FolderService struct {
	repo      folderRepository
	access    *AccessService
	audit     categoryAuditRepository
	cache     *CacheService
	janitor   blobJanitor
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFolderService creates a FolderService.
func NewFolderService(repo folderRepository, access *AccessService, audit categoryAuditRepository, cache *CacheService, janitor blobJanitor, validate *validator.Validate, logger *zap.Logger) *FolderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &FolderService{repo: repo, access: access, audit: audit, cache: cache, janitor: janitor, validator: validate, logger: logger}
}

// List returns the folders the caller can see inside the category. Admins see
// every folder including other users' personal folders.
func (s *FolderService) List(ctx context.Context, claims *models.JWTClaims, categoryID string) ([]models.Folder, error) {
	if err := s.access.RequireRead(ctx, claims, categoryID); err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("folders:%s:%s", categoryID, claims.UserID)
	var cached []models.Folder
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	var (
		folders []models.Folder
		err     error
	)
	if claims.IsAdmin() {
		folders, err = s.repo.ListByCategory(ctx, categoryID)
	} else {
		folders, err = s.repo.ListVisible(ctx, categoryID, claims.UserID)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list folders")
	}

	if err := s.cache.Set(ctx, cacheKey, folders, 2*time.Minute); err != nil {
		s.logger.Warn("failed to cache folder list", zap.Error(err))
	}

	return folders, nil
}

// Get loads one folder, enforcing category access and personal-folder
// visibility.
func (s *FolderService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Folder, error) {
	folder, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder")
	}

	if err := s.access.RequireRead(ctx, claims, folder.CategoryID); err != nil {
		return nil, err
	}
	if folder.IsPersonal && !claims.IsAdmin() && folder.CreatedBy != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
	}

	return folder, nil
}

// Create adds a folder. Regular users with any grant on the category may
// create personal folders; shared folders are admin-managed.
func (s *FolderService) Create(ctx context.Context, claims *models.JWTClaims, categoryID string, req CreateFolderRequest, meta models.LoginRequest) (*models.Folder, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid folder payload")
	}

	if !claims.IsAdmin() && !req.IsPersonal {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "shared folders are admin managed")
	}
	if err := s.access.RequireRead(ctx, claims, categoryID); err != nil {
		return nil, err
	}

	folder := &models.Folder{
		ID:         uuid.NewString(),
		Name:       req.Name,
		CategoryID: categoryID,
		CreatedBy:  claims.UserID,
		IsPersonal: req.IsPersonal,
	}

	if err := s.repo.Create(ctx, folder); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create folder")
	}

	if err := s.cache.Invalidate(ctx, fmt.Sprintf("folders:%s:*", categoryID)); err != nil {
		s.logger.Warn("failed to invalidate folder caches", zap.Error(err))
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"name": folder.Name, "is_personal": folder.IsPersonal})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionCreate,
		Resource:   "folders",
		ResourceID: &folder.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record folder create audit log", zap.Error(err))
	}

	return folder, nil
}

// Delete removes a folder and its documents. Blob deletion is queued after
// the database cascade completes.
func (s *FolderService) Delete(ctx context.Context, claims *models.JWTClaims, id string, meta models.LoginRequest) error {
	folder, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder")
	}

	if err := s.access.RequireWrite(ctx, claims, folder); err != nil {
		return err
	}

	blobKeys, err := s.repo.ListBlobKeys(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to collect blob keys")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete folder")
	}

	if s.janitor != nil {
		s.janitor.ScheduleDelete(blobKeys...)
	}

	if err := s.cache.Invalidate(ctx, fmt.Sprintf("folders:%s:*", folder.CategoryID)); err != nil {
		s.logger.Warn("failed to invalidate folder caches", zap.Error(err))
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"name": folder.Name, "blobs": len(blobKeys)})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionDelete,
		Resource:   "folders",
		ResourceID: &id,
		OldValues:  oldPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record folder delete audit log", zap.Error(err))
	}

	return nil
}
