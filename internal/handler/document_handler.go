package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/docuvault/docuvault-api/internal/models"
	"github.com/docuvault/docuvault-api/internal/service"
	appErrors "github.com/docuvault/docuvault-api/pkg/errors"
	"github.com/docuvault/docuvault-api/pkg/response"
)

// DocumentHandler exposes document and version endpoints.
type DocumentHandler struct {
	service   *service.DocumentService
	maxUpload int64
}

// NewDocumentHandler creates a new handler.
func NewDocumentHandler(svc *service.DocumentService, maxUpload int64) *DocumentHandler {
	return &DocumentHandler{service: svc, maxUpload: maxUpload}
}

// List godoc
// @Summary List documents in a folder
// @Tags Documents
// @Produce json
// @Param id path string true "Folder ID"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param search query string false "Search by name"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /folders/{id}/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.DocumentFilter{
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	docs, pagination, err := h.service.List(c.Request.Context(), claims, c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, docs, pagination)
}

// Get godoc
// @Summary Get document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	doc, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, doc, nil)
}

// Create godoc
// @Summary Upload a new document
// @Description Multipart upload. The file becomes version one of the document.
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Folder ID"
// @Param file formData file true "Document file"
// @Param name formData string false "Document name (defaults to the file name)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /folders/{id}/documents [post]
func (h *DocumentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}

	name := c.PostForm("name")
	if name == "" {
		name = fileHeader.Filename
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close()

	doc, err := h.service.Create(c.Request.Context(), claims, c.Param("id"), name, file, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, doc)
}

// Delete godoc
// @Summary Delete document
// @Description Delete a document with all of its versions and comments.
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), claims, c.Param("id"), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Clone godoc
// @Summary Clone document
// @Description Copy the current version into a personal folder owned by the caller.
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body service.CloneDocumentRequest true "Clone payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id}/clone [post]
func (h *DocumentHandler) Clone(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CloneDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid clone payload"))
		return
	}

	clone, err := h.service.Clone(c.Request.Context(), claims, c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, clone)
}

// ListVersions godoc
// @Summary List document versions
// @Description Version history, newest first.
// @Tags Versions
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id}/versions [get]
func (h *DocumentHandler) ListVersions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	versions, err := h.service.ListVersions(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, versions, nil)
}

// UploadVersion godoc
// @Summary Upload a new version
// @Description Multipart upload appending the next version and making it current.
// @Tags Versions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Document ID"
// @Param file formData file true "Version file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /documents/{id}/versions [post]
func (h *DocumentHandler) UploadVersion(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close()

	version, err := h.service.UploadVersion(c.Request.Context(), claims, c.Param("id"), file, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, version)
}

// DeleteVersion godoc
// @Summary Delete a version
// @Description The only remaining version cannot be deleted. Deleting the current version repoints the document at the highest surviving version.
// @Tags Versions
// @Produce json
// @Param id path string true "Document ID"
// @Param versionId path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id}/versions/{versionId} [delete]
func (h *DocumentHandler) DeleteVersion(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	survivor, err := h.service.DeleteVersion(c.Request.Context(), claims, c.Param("id"), c.Param("versionId"), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, survivor, nil)
}
