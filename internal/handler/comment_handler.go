package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docuvault/docuvault-api/internal/service"
	appErrors "github.com/docuvault/docuvault-api/pkg/errors"
	"github.com/docuvault/docuvault-api/pkg/response"
)

// CommentHandler exposes threaded comment endpoints.
type CommentHandler struct {
	service *service.CommentService
}

// NewCommentHandler creates a new handler.
func NewCommentHandler(svc *service.CommentService) *CommentHandler {
	return &CommentHandler{service: svc}
}

// List godoc
// @Summary List comments
// @Description Comments on a document, oldest first, with reply threading.
// @Tags Comments
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id}/comments [get]
func (h *CommentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	comments, err := h.service.List(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, comments, nil)
}

// Create godoc
// @Summary Add comment
// @Description Add a comment or a reply to an existing comment on the same document.
// @Tags Comments
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body service.CreateCommentRequest true "Comment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id}/comments [post]
func (h *CommentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid comment payload"))
		return
	}

	comment, err := h.service.Create(c.Request.Context(), claims, c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, comment)
}

// Update godoc
// @Summary Edit comment
// @Description Edit a comment's content. Authors only.
// @Tags Comments
// @Accept json
// @Produce json
// @Param id path string true "Comment ID"
// @Param payload body service.UpdateCommentRequest true "Comment payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /comments/{id} [put]
func (h *CommentHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid comment payload"))
		return
	}

	comment, err := h.service.Update(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, comment, nil)
}

// Delete godoc
// @Summary Delete comment
// @Description Delete a comment. Authors and admins only; replies are removed with it.
// @Tags Comments
// @Produce json
// @Param id path string true "Comment ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /comments/{id} [delete]
func (h *CommentHandler) Delete(c *gin.Context) {
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
