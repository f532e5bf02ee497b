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

// FolderRepository provides database access for folders.
type FolderRepository struct {
	db *sqlx.DB
}

// NewFolderRepository creates a new instance of FolderRepository.
func NewFolderRepository(db *sqlx.DB) *FolderRepository {
	return &FolderRepository{db: db}
}

// FindByID returns a folder by identifier.
func (r *FolderRepository) FindByID(ctx context.Context, id string) (*models.Folder, error) {
	const query = `SELECT id, name, category_id, created_by, is_personal, created_at, updated_at FROM folders WHERE id = $1 LIMIT 1`
	var folder models.Folder
	if err := r.db.GetContext(ctx, &folder, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find folder by id: %w", err)
	}
	return &folder, nil
}

// ListByCategory returns every folder in a category. Callers that are not
// admins should use ListVisible instead.
func (r *FolderRepository) ListByCategory(ctx context.Context, categoryID string) ([]models.Folder, error) {
	const query = `SELECT id, name, category_id, created_by, is_personal, created_at, updated_at FROM folders WHERE category_id = $1 ORDER BY name ASC`
	var folders []models.Folder
	if err := r.db.SelectContext(ctx, &folders, query, categoryID); err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return folders, nil
}

// ListVisible returns the shared folders of a category plus the caller's own
// personal folders. Personal folders of other users are filtered at the query.
func (r *FolderRepository) ListVisible(ctx context.Context, categoryID, userID string) ([]models.Folder, error) {
	const query = `SELECT id, name, category_id, created_by, is_personal, created_at, updated_at FROM folders WHERE category_id = $1 AND (is_personal = FALSE OR created_by = $2) ORDER BY name ASC`
	var folders []models.Folder
	if err := r.db.SelectContext(ctx, &folders, query, categoryID, userID); err != nil {
		return nil, fmt.Errorf("list visible folders: %w", err)
	}
	return folders, nil
}

// Create inserts a new folder.
func (r *FolderRepository) Create(ctx context.Context, folder *models.Folder) error {
	if folder.ID == "" {
		folder.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if folder.CreatedAt.IsZero() {
		folder.CreatedAt = now
	}
	folder.UpdatedAt = now

	const query = `INSERT INTO folders (id, name, category_id, created_by, is_personal, created_at, updated_at) VALUES (:id, :name, :category_id, :created_by, :is_personal, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, folder); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	return nil
}

// Delete removes a folder and cascades to documents, versions and comments.
func (r *FolderRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM folders WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListBlobKeys returns the blob keys of every version stored under the folder.
func (r *FolderRepository) ListBlobKeys(ctx context.Context, folderID string) ([]string, error) {
	const query = `SELECT v.blob_key FROM document_versions v JOIN documents d ON d.id = v.document_id WHERE d.folder_id = $1`
	var keys []string
	if err := r.db.SelectContext(ctx, &keys, query, folderID); err != nil {
		return nil, fmt.Errorf("list folder blob keys: %w", err)
	}
	return keys, nil
}
