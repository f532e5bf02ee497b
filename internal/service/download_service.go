package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/docuvault/docuvault-api/internal/models"
	appErrors "github.com/docuvault/docuvault-api/pkg/errors"
	"github.com/docuvault/docuvault-api/pkg/storage"
)

// DownloadService resolves document versions to blob bytes or short-lived
// signed URLs. Every download re-checks category access at request time, so
// a revoked grant cuts off stored links immediately.
type DownloadService struct {
	documents *DocumentService
	repo      documentRepository
	store     storage.BlobStore
	audit     categoryAuditRepository
	metrics   *MetricsService
	signTTL   time.Duration
	logger    *zap.Logger
}

// NewDownloadService creates a DownloadService.
func NewDownloadService(documents *DocumentService, repo documentRepository, store storage.BlobStore, audit categoryAuditRepository, metrics *MetricsService, signTTL time.Duration, logger *zap.Logger) *DownloadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if signTTL <= 0 {
		signTTL = 15 * time.Minute
	}
	return &DownloadService{
		documents: documents,
		repo:      repo,
		store:     store,
		audit:     audit,
		metrics:   metrics,
		signTTL:   signTTL,
		logger:    logger,
	}
}

// Resolve loads the document and the requested version after access checks.
// An empty versionID resolves to the document's current version.
func (s *DownloadService) Resolve(ctx context.Context, claims *models.JWTClaims, documentID, versionID string) (*models.Document, *models.DocumentVersion, error) {
	doc, err := s.documents.Get(ctx, claims, documentID)
	if err != nil {
		return nil, nil, err
	}

	if versionID == "" {
		if doc.CurrentVersionID == nil {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "document has no current version")
		}
		versionID = *doc.CurrentVersionID
	}

	version, err := s.repo.FindVersion(ctx, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "version not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}
	if version.DocumentID != doc.ID {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "version not found")
	}

	return doc, version, nil
}

// Stream opens the version's blob for reading. The caller owns the reader.
func (s *DownloadService) Stream(ctx context.Context, claims *models.JWTClaims, documentID, versionID string, meta models.LoginRequest) (io.ReadCloser, *models.Document, *models.DocumentVersion, error) {
	doc, version, err := s.Resolve(ctx, claims, documentID, versionID)
	if err != nil {
		return nil, nil, nil, err
	}

	reader, err := s.store.Open(ctx, version.BlobKey)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to open blob")
	}

	s.metrics.AddDownloadBytes(version.SizeBytes)
	s.recordDownload(ctx, claims, doc, version, "stream", meta)

	return reader, doc, version, nil
}

// SignedURL issues a short-lived URL for the version's blob. When the store
// cannot sign (legacy blobs with no key), the stored blob URL is returned
// as-is.
func (s *DownloadService) SignedURL(ctx context.Context, claims *models.JWTClaims, documentID, versionID string, meta models.LoginRequest) (string, time.Time, error) {
	doc, version, err := s.Resolve(ctx, claims, documentID, versionID)
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt := time.Now().UTC().Add(s.signTTL)
	url, err := s.store.SignURL(ctx, version.BlobKey, s.signTTL)
	if err != nil {
		if version.BlobURL == "" {
			return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to sign download URL")
		}
		s.logger.Warn("falling back to stored blob URL", zap.String("version_id", version.ID), zap.Error(err))
		url = version.BlobURL
	}

	s.recordDownload(ctx, claims, doc, version, "signed-url", meta)

	return url, expiresAt, nil
}

func (s *DownloadService) recordDownload(ctx context.Context, claims *models.JWTClaims, doc *models.Document, version *models.DocumentVersion, mode string, meta models.LoginRequest) {
	payload, _ := json.Marshal(map[string]interface{}{"version": version.VersionNumber, "mode": mode})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionDownload,
		Resource:   "documents",
		ResourceID: &doc.ID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record download audit log", zap.Error(err))
	}
}
