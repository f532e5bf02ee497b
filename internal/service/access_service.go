package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/docuvault/docuvault-api/internal/models"
	appErrors "github.com/docuvault/docuvault-api/pkg/errors"
)

type grantRepository interface {
	FindByID(ctx context.Context, id string) (*models.Category, error)
	FindGrant(ctx context.Context, userID, categoryID string) (*models.AccessGrant, error)
	ListGrants(ctx context.Context, categoryID string) ([]models.AccessGrant, error)
	UpsertGrant(ctx context.Context, grant *models.AccessGrant) error
	DeleteGrant(ctx context.Context, userID, categoryID string) error
}

type grantUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// GrantRequest is the payload for granting category access to a user.
type GrantRequest struct {
	UserID string             `json:"user_id" validate:"required"`
	Level  models.AccessLevel `json:"level" validate:"required,oneof=full read"`
}

// AccessService owns the (user, category) grant table and answers every
// authorization question that depends on it. System admins bypass grants.
type AccessService struct {
	categories grantRepository
	users      grantUserRepository
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewAccessService creates an AccessService.
func NewAccessService(categories grantRepository, users grantUserRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AccessService{categories: categories, users: users, cache: cache, validator: validate, logger: logger}
}

// LevelFor resolves the access level the claims hold on the category. Admins
// always resolve to full access. The second return value is false when the
// user holds no grant at all.
func (s *AccessService) LevelFor(ctx context.Context, claims *models.JWTClaims, categoryID string) (models.AccessLevel, bool, error) {
	if claims == nil {
		return "", false, nil
	}
	if claims.IsAdmin() {
		return models.AccessFull, true, nil
	}

	grant, err := s.categories.FindGrant(ctx, claims.UserID, categoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve access grant")
	}
	return grant.Level, true, nil
}

// RequireRead ensures the claims can see the category at all.
func (s *AccessService) RequireRead(ctx context.Context, claims *models.JWTClaims, categoryID string) error {
	_, ok, err := s.LevelFor(ctx, claims, categoryID)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "no access to this category")
	}
	return nil
}

// RequireFull ensures the claims hold full access on the category.
func (s *AccessService) RequireFull(ctx context.Context, claims *models.JWTClaims, categoryID string) error {
	level, ok, err := s.LevelFor(ctx, claims, categoryID)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "no access to this category")
	}
	if level != models.AccessFull {
		return appErrors.Clone(appErrors.ErrForbidden, "full access required")
	}
	return nil
}

// RequireWrite checks whether the claims may modify content inside the
// folder. Shared folders are admin-managed; regular users write only inside
// personal folders they own, and any grant level on the category suffices
// there.
func (s *AccessService) RequireWrite(ctx context.Context, claims *models.JWTClaims, folder *models.Folder) error {
	if claims.IsAdmin() {
		return nil
	}
	if !folder.IsPersonal || folder.CreatedBy != claims.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "shared folders are read-only for regular users")
	}
	return s.RequireRead(ctx, claims, folder.CategoryID)
}

// Grant assigns or overwrites a user's access level on a category. Re-granting
// the same pair replaces the previous level rather than erroring.
func (s *AccessService) Grant(ctx context.Context, actor *models.JWTClaims, categoryID string, req GrantRequest, meta models.LoginRequest) (*models.AccessGrant, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only system admins manage access")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grant payload")
	}

	if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	grant := &models.AccessGrant{
		UserID:     user.ID,
		CategoryID: categoryID,
		Level:      req.Level,
		GrantedBy:  actor.UserID,
		GrantedAt:  time.Now().UTC(),
	}

	if err := s.categories.UpsertGrant(ctx, grant); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist grant")
	}

	s.invalidateCategoryCaches(ctx, categoryID)

	newPayload, _ := json.Marshal(map[string]interface{}{"user_id": user.ID, "level": grant.Level})
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionGrant,
		Resource:   "categories",
		ResourceID: &grant.CategoryID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record grant audit log", zap.Error(err))
	}

	return grant, nil
}

// Revoke removes a user's grant on a category.
func (s *AccessService) Revoke(ctx context.Context, actor *models.JWTClaims, categoryID, userID string, meta models.LoginRequest) error {
	if !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "only system admins manage access")
	}

	if err := s.categories.DeleteGrant(ctx, userID, categoryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "grant not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grant")
	}

	s.invalidateCategoryCaches(ctx, categoryID)

	oldPayload, _ := json.Marshal(map[string]interface{}{"user_id": userID})
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionRevoke,
		Resource:   "categories",
		ResourceID: &categoryID,
		OldValues:  oldPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record revoke audit log", zap.Error(err))
	}

	return nil
}

// ListGrants returns every grant on a category. Admin only.
func (s *AccessService) ListGrants(ctx context.Context, actor *models.JWTClaims, categoryID string) ([]models.AccessGrant, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only system admins manage access")
	}

	if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}

	grants, err := s.categories.ListGrants(ctx, categoryID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grants")
	}
	return grants, nil
}

func (s *AccessService) invalidateCategoryCaches(ctx context.Context, categoryID string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, "categories:*"); err != nil {
		s.logger.Warn("failed to invalidate category caches", zap.String("category_id", categoryID), zap.Error(err))
	}
}
