package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/docuvault/docuvault-api/internal/service"
	appErrors "github.com/docuvault/docuvault-api/pkg/errors"
	"github.com/docuvault/docuvault-api/pkg/response"
	"github.com/docuvault/docuvault-api/pkg/storage"
)

// DownloadHandler exposes document download endpoints.
type DownloadHandler struct {
	service *service.DownloadService
	logger  *zap.Logger
}

// NewDownloadHandler creates a new handler.
func NewDownloadHandler(svc *service.DownloadService, logger *zap.Logger) *DownloadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DownloadHandler{service: svc, logger: logger}
}

// Download godoc
// @Summary Download document
// @Description Stream the current version's bytes, or a specific version when mounted under /versions/{versionId}/download. Access is re-checked on every request.
// @Tags Downloads
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Param disposition query string false "inline or attachment (default attachment)"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id}/download [get]
func (h *DownloadHandler) Download(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	reader, doc, version, err := h.service.Stream(c.Request.Context(), claims, c.Param("id"), c.Param("versionId"), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()

	disposition := "attachment"
	if c.Query("disposition") == "inline" {
		disposition = "inline"
	}

	contentType := version.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Header("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, doc.Name))
	c.Header("Content-Length", fmt.Sprintf("%d", version.SizeBytes))
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, reader); err != nil {
		h.logger.Warn("download stream interrupted",
			zap.String("document_id", doc.ID),
			zap.String("version_id", version.ID),
			zap.Error(err))
	}
}

// DownloadURL godoc
// @Summary Get a signed download URL
// @Description Issue a short-lived URL for the document's current version.
// @Tags Downloads
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id}/signed-url [get]
func (h *DownloadHandler) DownloadURL(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	url, expiresAt, err := h.service.SignedURL(c.Request.Context(), claims, c.Param("id"), c.Param("versionId"), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"url":        url,
		"expires_at": expiresAt,
	}, nil)
}

// BlobHandler serves locally stored blobs referenced by signed tokens. It
// backs the URLs minted by the local blob store; S3-backed deployments never
// route through it.
type BlobHandler struct {
	store  storage.BlobStore
	signer *storage.URLSigner
	logger *zap.Logger
}

// NewBlobHandler creates a new handler.
func NewBlobHandler(store storage.BlobStore, signer *storage.URLSigner, logger *zap.Logger) *BlobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobHandler{store: store, signer: signer, logger: logger}
}

// Serve godoc
// @Summary Serve a signed blob
// @Description Stream a blob referenced by an HMAC-signed token. Expired or tampered tokens are rejected.
// @Tags Downloads
// @Produce octet-stream
// @Param token path string true "Signed blob token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /blobs/{token} [get]
func (h *BlobHandler) Serve(c *gin.Context) {
	if h.signer == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "signed blob access is not enabled"))
		return
	}

	key, _, err := h.signer.Parse(c.Param("token"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"))
		return
	}

	reader, err := h.store.Open(c.Request.Context(), key)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "blob not found"))
		return
	}
	defer reader.Close()

	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		h.logger.Warn("blob stream interrupted", zap.Error(err))
	}
}
