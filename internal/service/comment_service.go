package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docuvault/docuvault-api/internal/models"
	appErrors "github.com/docuvault/docuvault-api/pkg/errors"
)

type commentRepository interface {
	FindByID(ctx context.Context, id string) (*models.DocumentComment, error)
	ListByDocument(ctx context.Context, documentID string) ([]models.DocumentComment, error)
	Create(ctx context.Context, comment *models.DocumentComment) error
	Update(ctx context.Context, id, content string) error
	Delete(ctx context.Context, id string) error
}

// CreateCommentRequest is the payload for posting a comment. ParentCommentID
// threads the comment under an existing one.
type CreateCommentRequest struct {
	Content         string  `json:"content" validate:"required,min=1,max=4000"`
	ParentCommentID *string `json:"parent_comment_id"`
}

// UpdateCommentRequest is the payload for editing a comment.
type UpdateCommentRequest struct {
	Content string `json:"content" validate:"required,min=1,max=4000"`
}

// CommentService manages threaded comments on documents. Anyone who can see
// the document can comment; only the author edits or deletes a comment.
type CommentService struct {
	repo      commentRepository
	documents *DocumentService
	audit     categoryAuditRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCommentService creates a CommentService.
func NewCommentService(repo commentRepository, documents *DocumentService, audit categoryAuditRepository, validate *validator.Validate, logger *zap.Logger) *CommentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CommentService{repo: repo, documents: documents, audit: audit, validator: validate, logger: logger}
}

// List returns every comment on the document in posting order.
func (s *CommentService) List(ctx context.Context, claims *models.JWTClaims, documentID string) ([]models.DocumentComment, error) {
	if _, err := s.documents.Get(ctx, claims, documentID); err != nil {
		return nil, err
	}

	comments, err := s.repo.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}
	return comments, nil
}

// Create posts a comment, optionally as a reply to an existing comment on the
// same document.
func (s *CommentService) Create(ctx context.Context, claims *models.JWTClaims, documentID string, req CreateCommentRequest, meta models.LoginRequest) (*models.DocumentComment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}

	if _, err := s.documents.Get(ctx, claims, documentID); err != nil {
		return nil, err
	}

	if req.ParentCommentID != nil {
		parent, err := s.repo.FindByID(ctx, *req.ParentCommentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "parent comment not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent comment")
		}
		if parent.DocumentID != documentID {
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "parent comment belongs to another document")
		}
	}

	comment := &models.DocumentComment{
		ID:              uuid.NewString(),
		DocumentID:      documentID,
		ParentCommentID: req.ParentCommentID,
		Content:         req.Content,
		AuthorID:        claims.UserID,
	}

	if err := s.repo.Create(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create comment")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"document_id": documentID})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionCreate,
		Resource:   "comments",
		ResourceID: &comment.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record comment create audit log", zap.Error(err))
	}

	return comment, nil
}

// Update edits a comment's content. Author only; the comment is flagged as
// edited afterwards.
func (s *CommentService) Update(ctx context.Context, claims *models.JWTClaims, commentID string, req UpdateCommentRequest) (*models.DocumentComment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}

	comment, err := s.repo.FindByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load comment")
	}

	if comment.AuthorID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the author can edit a comment")
	}

	if err := s.repo.Update(ctx, commentID, req.Content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update comment")
	}

	comment.Content = req.Content
	comment.IsEdited = true
	return comment, nil
}

// Delete removes a comment. Author only, admins included; replies cascade
// with the parent.
func (s *CommentService) Delete(ctx context.Context, claims *models.JWTClaims, commentID string, meta models.LoginRequest) error {
	comment, err := s.repo.FindByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load comment")
	}

	if comment.AuthorID != claims.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the author can delete a comment")
	}

	if err := s.repo.Delete(ctx, commentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete comment")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"document_id": comment.DocumentID})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionDelete,
		Resource:   "comments",
		ResourceID: &commentID,
		OldValues:  oldPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record comment delete audit log", zap.Error(err))
	}

	return nil
}
