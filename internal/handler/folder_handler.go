package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docuvault/docuvault-api/internal/service"
	appErrors "github.com/docuvault/docuvault-api/pkg/errors"
	"github.com/docuvault/docuvault-api/pkg/response"
)

// FolderHandler exposes folder endpoints.
type FolderHandler struct {
	service *service.FolderService
}

// NewFolderHandler creates a new handler.
func NewFolderHandler(svc *service.FolderService) *FolderHandler {
	return &FolderHandler{service: svc}
}

// List godoc
// @Summary List folders in a category
// @Description Personal folders belonging to other users are hidden.
// @Tags Folders
// @Produce json
// @Param id path string true "Category ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /categories/{id}/folders [get]
func (h *FolderHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	folders, err := h.service.List(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, folders, nil)
}

// Get godoc
// @Summary Get folder
// @Tags Folders
// @Produce json
// @Param id path string true "Folder ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /folders/{id} [get]
func (h *FolderHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	folder, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, folder, nil)
}

// Create godoc
// @Summary Create folder
// @Description Regular users create personal folders; shared folders are admin-managed.
// @Tags Folders
// @Accept json
// @Produce json
// @Param id path string true "Category ID"
// @Param payload body service.CreateFolderRequest true "Folder payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /categories/{id}/folders [post]
func (h *FolderHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid folder payload"))
		return
	}

	folder, err := h.service.Create(c.Request.Context(), claims, c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, folder)
}

// Delete godoc
// @Summary Delete folder
// @Description Delete a folder and its documents.
// @Tags Folders
// @Produce json
// @Param id path string true "Folder ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /folders/{id} [delete]
func (h *FolderHandler) Delete(c *gin.Context) {
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
