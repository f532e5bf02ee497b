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

// CategoryRepository provides database access for categories and access grants.
type CategoryRepository struct {
	db *sqlx.DB
}

// NewCategoryRepository creates a new instance of CategoryRepository.
func NewCategoryRepository(db *sqlx.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// FindByID returns a category by identifier.
func (r *CategoryRepository) FindByID(ctx context.Context, id string) (*models.Category, error) {
	const query = `SELECT id, name, created_by, created_at, updated_at FROM categories WHERE id = $1 LIMIT 1`
	var category models.Category
	if err := r.db.GetContext(ctx, &category, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find category by id: %w", err)
	}
	return &category, nil
}

// ListAll returns every category ordered by name.
func (r *CategoryRepository) ListAll(ctx context.Context) ([]models.Category, error) {
	const query = `SELECT id, name, created_by, created_at, updated_at FROM categories ORDER BY name ASC`
	var categories []models.Category
	if err := r.db.SelectContext(ctx, &categories, query); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// ListGrantedTo returns the categories a user holds any grant on.
func (r *CategoryRepository) ListGrantedTo(ctx context.Context, userID string) ([]models.Category, error) {
	const query = `SELECT c.id, c.name, c.created_by, c.created_at, c.updated_at FROM categories c JOIN access_grants g ON g.category_id = c.id WHERE g.user_id = $1 ORDER BY c.name ASC`
	var categories []models.Category
	if err := r.db.SelectContext(ctx, &categories, query, userID); err != nil {
		return nil, fmt.Errorf("list granted categories: %w", err)
	}
	return categories, nil
}

// Create inserts a new category.
func (r *CategoryRepository) Create(ctx context.Context, category *models.Category) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if category.CreatedAt.IsZero() {
		category.CreatedAt = now
	}
	category.UpdatedAt = now

	const query = `INSERT INTO categories (id, name, created_by, created_at, updated_at) VALUES (:id, :name, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, category); err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// Delete removes a category. Folders, documents, versions and comments beneath
// it go with it via referential cascade.
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM categories WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindGrant returns the grant for a (user, category) pair.
func (r *CategoryRepository) FindGrant(ctx context.Context, userID, categoryID string) (*models.AccessGrant, error) {
	const query = `SELECT user_id, category_id, level, granted_by, granted_at FROM access_grants WHERE user_id = $1 AND category_id = $2 LIMIT 1`
	var grant models.AccessGrant
	if err := r.db.GetContext(ctx, &grant, query, userID, categoryID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find access grant: %w", err)
	}
	return &grant, nil
}

// ListGrants returns all grants on a category.
func (r *CategoryRepository) ListGrants(ctx context.Context, categoryID string) ([]models.AccessGrant, error) {
	const query = `SELECT user_id, category_id, level, granted_by, granted_at FROM access_grants WHERE category_id = $1 ORDER BY granted_at ASC`
	var grants []models.AccessGrant
	if err := r.db.SelectContext(ctx, &grants, query, categoryID); err != nil {
		return nil, fmt.Errorf("list access grants: %w", err)
	}
	return grants, nil
}

// UpsertGrant inserts a grant or overwrites the level of an existing one.
func (r *CategoryRepository) UpsertGrant(ctx context.Context, grant *models.AccessGrant) error {
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now().UTC()
	}
	const query = `INSERT INTO access_grants (user_id, category_id, level, granted_by, granted_at) VALUES (:user_id, :category_id, :level, :granted_by, :granted_at) ON CONFLICT (user_id, category_id) DO UPDATE SET level = EXCLUDED.level, granted_by = EXCLUDED.granted_by, granted_at = EXCLUDED.granted_at`
	if _, err := r.db.NamedExecContext(ctx, query, grant); err != nil {
		return fmt.Errorf("upsert access grant: %w", err)
	}
	return nil
}

// DeleteGrant removes the grant for a (user, category) pair.
func (r *CategoryRepository) DeleteGrant(ctx context.Context, userID, categoryID string) error {
	const query = `DELETE FROM access_grants WHERE user_id = $1 AND category_id = $2`
	res, err := r.db.ExecContext(ctx, query, userID, categoryID)
	if err != nil {
		return fmt.Errorf("delete access grant: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListBlobKeys returns the blob keys of every version stored under the category.
func (r *CategoryRepository) ListBlobKeys(ctx context.Context, categoryID string) ([]string, error) {
	const query = `SELECT v.blob_key FROM document_versions v JOIN documents d ON d.id = v.document_id JOIN folders f ON f.id = d.folder_id WHERE f.category_id = $1`
	var keys []string
	if err := r.db.SelectContext(ctx, &keys, query, categoryID); err != nil {
		return nil, fmt.Errorf("list category blob keys: %w", err)
	}
	return keys, nil
}

// StorageReport aggregates folder, document and version counts plus stored
// bytes per category.
func (r *CategoryRepository) StorageReport(ctx context.Context) ([]models.StorageReportRow, error) {
	const query = `SELECT c.id AS category_id, c.name AS category_name,
COUNT(DISTINCT f.id) AS folder_count,
COUNT(DISTINCT d.id) AS document_count,
COUNT(v.id) AS version_count,
COALESCE(SUM(v.size_bytes), 0) AS total_bytes
FROM categories c
LEFT JOIN folders f ON f.category_id = c.id
LEFT JOIN documents d ON d.folder_id = f.id
LEFT JOIN document_versions v ON v.document_id = d.id
GROUP BY c.id, c.name
ORDER BY c.name ASC`
	var rows []models.StorageReportRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("storage report: %w", err)
	}
	return rows, nil
}
