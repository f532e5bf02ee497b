package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docuvault/docuvault-api/internal/service"
	appErrors "github.com/docuvault/docuvault-api/pkg/errors"
	"github.com/docuvault/docuvault-api/pkg/response"
)

// CategoryHandler exposes category and access-grant endpoints.
type CategoryHandler struct {
	categories *service.CategoryService
	access     *service.AccessService
}

// NewCategoryHandler creates a new handler.
func NewCategoryHandler(categories *service.CategoryService, access *service.AccessService) *CategoryHandler {
	return &CategoryHandler{categories: categories, access: access}
}

// List godoc
// @Summary List visible categories
// @Description Admins see all categories; regular users see only granted ones.
// @Tags Categories
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /categories [get]
func (h *CategoryHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	categories, err := h.categories.List(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, categories, nil)
}

// Get godoc
// @Summary Get category
// @Tags Categories
// @Produce json
// @Param id path string true "Category ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /categories/{id} [get]
func (h *CategoryHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	category, err := h.categories.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, category, nil)
}

// Create godoc
// @Summary Create category
// @Description Create a new category. Admin only.
// @Tags Categories
// @Accept json
// @Produce json
// @Param payload body service.CreateCategoryRequest true "Category payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /categories [post]
func (h *CategoryHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid category payload"))
		return
	}

	category, err := h.categories.Create(c.Request.Context(), claims, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, category)
}

// Delete godoc
// @Summary Delete category
// @Description Delete a category and everything beneath it. Admin only.
// @Tags Categories
// @Produce json
// @Param id path string true "Category ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /categories/{id} [delete]
func (h *CategoryHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.categories.Delete(c.Request.Context(), claims, c.Param("id"), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ListGrants godoc
// @Summary List access grants
// @Description List every grant on a category. Admin only.
// @Tags Access
// @Produce json
// @Param id path string true "Category ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /categories/{id}/grants [get]
func (h *CategoryHandler) ListGrants(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	grants, err := h.access.ListGrants(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, grants, nil)
}

// Grant godoc
// @Summary Grant category access
// @Description Grant or overwrite a user's access level on a category. Admin only.
// @Tags Access
// @Accept json
// @Produce json
// @Param id path string true "Category ID"
// @Param payload body service.GrantRequest true "Grant payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /categories/{id}/grants [put]
func (h *CategoryHandler) Grant(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grant payload"))
		return
	}

	grant, err := h.access.Grant(c.Request.Context(), claims, c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, grant, nil)
}

// Revoke godoc
// @Summary Revoke category access
// @Description Remove a user's grant on a category. Admin only.
// @Tags Access
// @Produce json
// @Param id path string true "Category ID"
// @Param userId path string true "User ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /categories/{id}/grants/{userId} [delete]
func (h *CategoryHandler) Revoke(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.access.Revoke(c.Request.Context(), claims, c.Param("id"), c.Param("userId"), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
