package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/docuvault/docuvault-api/internal/models"
)

// CommentRepository provides database access for document comments.
type CommentRepository struct {
	db *sqlx.DB
}

// NewCommentRepository creates a new instance of CommentRepository.
func NewCommentRepository(db *sqlx.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// FindByID returns a comment by identifier.
func (r *CommentRepository) FindByID(ctx context.Context, id string) (*models.DocumentComment, error) {
	const query = `SELECT id, document_id, parent_comment_id, content, author_id, is_edited, created_at, updated_at FROM document_comments WHERE id = $1 LIMIT 1`
	var comment models.DocumentComment
	if err := r.db.GetContext(ctx, &comment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find comment by id: %w", err)
	}
	return &comment, nil
}

// ListByDocument returns all comments on a document in thread order.
func (r *CommentRepository) ListByDocument(ctx context.Context, documentID string) ([]models.DocumentComment, error) {
	const query = `SELECT id, document_id, parent_comment_id, content, author_id, is_edited, created_at, updated_at FROM document_comments WHERE document_id = $1 ORDER BY created_at ASC`
	var comments []models.DocumentComment
	if err := r.db.SelectContext(ctx, &comments, query, documentID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// Create inserts a new comment.
func (r *CommentRepository) Create(ctx context.Context, comment *models.DocumentComment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = now
	}
	comment.UpdatedAt = now

	const query = `INSERT INTO document_comments (id, document_id, parent_comment_id, content, author_id, is_edited, created_at, updated_at) VALUES (:id, :document_id, :parent_comment_id, :content, :author_id, :is_edited, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// Update rewrites the content of a comment and flags it as edited.
func (r *CommentRepository) Update(ctx context.Context, id, content string) error {
	const query = `UPDATE document_comments SET content = $2, is_edited = TRUE, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a comment. Replies cascade.
func (r *CommentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM document_comments WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
