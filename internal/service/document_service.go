package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docuvault/docuvault-api/internal/models"
	"github.com/docuvault/docuvault-api/pkg/config"
	appErrors "github.com/docuvault/docuvault-api/pkg/errors"
	"github.com/docuvault/docuvault-api/pkg/storage"
)

type documentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Document, error)
	ListByFolder(ctx context.Context, folderID string, filter models.DocumentFilter) ([]models.Document, int, error)
	CreateWithVersion(ctx context.Context, doc *models.Document, version *models.DocumentVersion) error
	AddVersion(ctx context.Context, version *models.DocumentVersion) error
	FindVersion(ctx context.Context, id string) (*models.DocumentVersion, error)
	ListVersions(ctx context.Context, documentID string) ([]models.DocumentVersion, error)
	CountVersions(ctx context.Context, documentID string) (int, error)
	DeleteVersion(ctx context.Context, documentID, versionID string) (*models.DocumentVersion, error)
	Delete(ctx context.Context, id string) error
}

type documentFolderRepository interface {
	FindByID(ctx context.Context, id string) (*models.Folder, error)
}

// CloneDocumentRequest names the destination folder for a clone.
type CloneDocumentRequest struct {
	TargetFolderID string `json:"target_folder_id" validate:"required"`
}

// DocumentService manages documents and their version chains. All blob bytes
// flow through the BlobStore; the database rows only carry keys and URLs.
type DocumentService struct {
	repo      documentRepository
	folders   documentFolderRepository
	access    *AccessService
	audit     categoryAuditRepository
	store     storage.BlobStore
	janitor   blobJanitor
	metrics   *MetricsService
	uploads   config.UploadsConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDocumentService creates a DocumentService.
func NewDocumentService(repo documentRepository, folders documentFolderRepository, access *AccessService, audit categoryAuditRepository, store storage.BlobStore, janitor blobJanitor, metrics *MetricsService, uploads config.UploadsConfig, validate *validator.Validate, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &DocumentService{
		repo:      repo,
		folders:   folders,
		access:    access,
		audit:     audit,
		store:     store,
		janitor:   janitor,
		metrics:   metrics,
		uploads:   uploads,
		validator: validate,
		logger:    logger,
	}
}

// List returns the documents in a folder the caller can see.
func (s *DocumentService) List(ctx context.Context, claims *models.JWTClaims, folderID string, filter models.DocumentFilter) ([]models.Document, *models.Pagination, error) {
	if _, err := s.visibleFolder(ctx, claims, folderID); err != nil {
		return nil, nil, err
	}

	docs, total, err := s.repo.ListByFolder(ctx, folderID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return docs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get loads a single document with its visibility checks applied.
func (s *DocumentService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Document, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	if _, err := s.visibleFolder(ctx, claims, doc.FolderID); err != nil {
		return nil, err
	}

	return doc, nil
}

// Create uploads a new document into a folder. The file bytes become version
// one and the document's current version points at it.
func (s *DocumentService) Create(ctx context.Context, claims *models.JWTClaims, folderID, name string, file io.Reader, meta models.LoginRequest) (*models.Document, error) {
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document name is required")
	}

	folder, err := s.writableFolder(ctx, claims, folderID)
	if err != nil {
		return nil, err
	}

	ref, err := s.putBlob(ctx, folder, name, file)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:        uuid.NewString(),
		Name:      name,
		FolderID:  folder.ID,
		CreatedBy: claims.UserID,
	}
	version := &models.DocumentVersion{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		BlobURL:    ref.URL,
		BlobKey:    ref.Key,
		MimeType:   ref.MimeType,
		SizeBytes:  ref.Size,
		UploadedBy: claims.UserID,
	}

	if err := s.repo.CreateWithVersion(ctx, doc, version); err != nil {
		s.janitor.ScheduleDelete(ref.Key)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document")
	}

	s.metrics.AddUploadBytes(ref.Size)

	newPayload, _ := json.Marshal(map[string]interface{}{"name": doc.Name, "folder_id": folder.ID, "size": ref.Size})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionUpload,
		Resource:   "documents",
		ResourceID: &doc.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record document upload audit log", zap.Error(err))
	}

	return doc, nil
}

// UploadVersion appends a new version to an existing document and makes it
// current. Version numbers never reuse gaps left by deletions.
func (s *DocumentService) UploadVersion(ctx context.Context, claims *models.JWTClaims, documentID string, file io.Reader, meta models.LoginRequest) (*models.DocumentVersion, error) {
	doc, err := s.repo.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	folder, err := s.writableDocument(ctx, claims, doc)
	if err != nil {
		return nil, err
	}

	ref, err := s.putBlob(ctx, folder, doc.Name, file)
	if err != nil {
		return nil, err
	}

	version := &models.DocumentVersion{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		BlobURL:    ref.URL,
		BlobKey:    ref.Key,
		MimeType:   ref.MimeType,
		SizeBytes:  ref.Size,
		UploadedBy: claims.UserID,
	}

	if err := s.repo.AddVersion(ctx, version); err != nil {
		s.janitor.ScheduleDelete(ref.Key)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add version")
	}

	s.metrics.AddUploadBytes(ref.Size)

	newPayload, _ := json.Marshal(map[string]interface{}{"version": version.VersionNumber, "size": ref.Size})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionUpload,
		Resource:   "documents",
		ResourceID: &doc.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record version upload audit log", zap.Error(err))
	}

	return version, nil
}

// ListVersions returns the version history, newest first.
func (s *DocumentService) ListVersions(ctx context.Context, claims *models.JWTClaims, documentID string) ([]models.DocumentVersion, error) {
	if _, err := s.Get(ctx, claims, documentID); err != nil {
		return nil, err
	}

	versions, err := s.repo.ListVersions(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list versions")
	}
	return versions, nil
}

// DeleteVersion removes one version. The only remaining version of a document
// cannot be deleted; deleting the current version repoints the document at
// the highest surviving version number.
func (s *DocumentService) DeleteVersion(ctx context.Context, claims *models.JWTClaims, documentID, versionID string, meta models.LoginRequest) (*models.DocumentVersion, error) {
	doc, err := s.repo.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	if _, err := s.writableDocument(ctx, claims, doc); err != nil {
		return nil, err
	}

	count, err := s.repo.CountVersions(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count versions")
	}
	if count <= 1 {
		return nil, appErrors.Clone(appErrors.ErrLastVersion, "cannot delete the only version of a document")
	}

	victim, err := s.repo.FindVersion(ctx, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}
	if victim.DocumentID != documentID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "version not found")
	}

	survivor, err := s.repo.DeleteVersion(ctx, documentID, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete version")
	}

	s.janitor.ScheduleDelete(victim.BlobKey)

	oldPayload, _ := json.Marshal(map[string]interface{}{"version": victim.VersionNumber})
	newPayload, _ := json.Marshal(map[string]interface{}{"current_version": survivor.VersionNumber})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionDelete,
		Resource:   "document_versions",
		ResourceID: &versionID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record version delete audit log", zap.Error(err))
	}

	return survivor, nil
}

// Delete removes a document with all of its versions and comments.
func (s *DocumentService) Delete(ctx context.Context, claims *models.JWTClaims, documentID string, meta models.LoginRequest) error {
	doc, err := s.repo.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	if _, err := s.writableDocument(ctx, claims, doc); err != nil {
		return err
	}

	versions, err := s.repo.ListVersions(ctx, documentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to collect versions")
	}

	if err := s.repo.Delete(ctx, documentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete document")
	}

	keys := make([]string, 0, len(versions))
	for _, v := range versions {
		keys = append(keys, v.BlobKey)
	}
	s.janitor.ScheduleDelete(keys...)

	oldPayload, _ := json.Marshal(map[string]interface{}{"name": doc.Name, "versions": len(versions)})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionDelete,
		Resource:   "documents",
		ResourceID: &documentID,
		OldValues:  oldPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record document delete audit log", zap.Error(err))
	}

	return nil
}

// Clone copies the current version of a document into another folder the
// caller can write to. The copy starts its own version chain at one.
func (s *DocumentService) Clone(ctx context.Context, claims *models.JWTClaims, documentID string, req CloneDocumentRequest, meta models.LoginRequest) (*models.Document, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid clone payload")
	}

	source, err := s.Get(ctx, claims, documentID)
	if err != nil {
		return nil, err
	}
	if source.CurrentVersionID == nil {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "document has no current version")
	}

	target, err := s.writableFolder(ctx, claims, req.TargetFolderID)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.FindVersion(ctx, *source.CurrentVersionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current version")
	}

	reader, err := s.store.Open(ctx, current.BlobKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to open source blob")
	}
	defer reader.Close()

	ref, err := s.putBlob(ctx, target, source.Name, reader)
	if err != nil {
		return nil, err
	}

	clone := &models.Document{
		ID:        uuid.NewString(),
		Name:      source.Name,
		FolderID:  target.ID,
		CreatedBy: claims.UserID,
	}
	version := &models.DocumentVersion{
		ID:         uuid.NewString(),
		DocumentID: clone.ID,
		BlobURL:    ref.URL,
		BlobKey:    ref.Key,
		MimeType:   ref.MimeType,
		SizeBytes:  ref.Size,
		UploadedBy: claims.UserID,
	}

	if err := s.repo.CreateWithVersion(ctx, clone, version); err != nil {
		s.janitor.ScheduleDelete(ref.Key)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create cloned document")
	}

	s.metrics.AddUploadBytes(ref.Size)

	newPayload, _ := json.Marshal(map[string]interface{}{"source_id": source.ID, "target_folder_id": target.ID})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionClone,
		Resource:   "documents",
		ResourceID: &clone.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record clone audit log", zap.Error(err))
	}

	return clone, nil
}

// visibleFolder loads the folder and applies read visibility rules.
func (s *DocumentService) visibleFolder(ctx context.Context, claims *models.JWTClaims, folderID string) (*models.Folder, error) {
	folder, err := s.folders.FindByID(ctx, folderID)
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

// writableFolder loads the folder and applies the write policy.
func (s *DocumentService) writableFolder(ctx context.Context, claims *models.JWTClaims, folderID string) (*models.Folder, error) {
	folder, err := s.folders.FindByID(ctx, folderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder")
	}
	if err := s.access.RequireWrite(ctx, claims, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

// writableDocument layers the version-ownership rule on top of folder
// writability: non-admins touch a document's versions only if they created
// the document.
func (s *DocumentService) writableDocument(ctx context.Context, claims *models.JWTClaims, doc *models.Document) (*models.Folder, error) {
	folder, err := s.writableFolder(ctx, claims, doc.FolderID)
	if err != nil {
		return nil, err
	}
	if !claims.IsAdmin() && doc.CreatedBy != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the document creator modifies it")
	}
	return folder, nil
}

// putBlob streams the file into storage and validates it against the upload
// limits after the store has sniffed its MIME type.
func (s *DocumentService) putBlob(ctx context.Context, folder *models.Folder, name string, file io.Reader) (storage.BlobRef, error) {
	blobFolder := path.Join(folder.CategoryID, folder.ID)
	ref, err := s.store.Put(ctx, blobFolder, name, file)
	if err != nil {
		return storage.BlobRef{}, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to store blob")
	}

	if s.uploads.MaxFileSizeBytes > 0 && ref.Size > s.uploads.MaxFileSizeBytes {
		s.janitor.ScheduleDelete(ref.Key)
		return storage.BlobRef{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds maximum size of %d bytes", s.uploads.MaxFileSizeBytes))
	}
	if len(s.uploads.AllowedMIMEs) > 0 && !mimeAllowed(ref.MimeType, s.uploads.AllowedMIMEs) {
		s.janitor.ScheduleDelete(ref.Key)
		return storage.BlobRef{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("mime type %s is not allowed", ref.MimeType))
	}

	return ref, nil
}

func mimeAllowed(mime string, allowed []string) bool {
	for _, a := range allowed {
		if a == mime || a == "*/*" {
			return true
		}
	}
	return false
}
