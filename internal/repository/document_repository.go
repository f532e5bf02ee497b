package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/docuvault/docuvault-api/internal/models"
)

const pqUniqueViolation = "23505"

// DocumentRepository provides database access for documents and their versions.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository creates a new instance of DocumentRepository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// FindByID returns a document by identifier.
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*models.Document, error) {
	const query = `SELECT id, name, folder_id, created_by, current_version_id, blob_url, created_at, updated_at FROM documents WHERE id = $1 LIMIT 1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find document by id: %w", err)
	}
	return &doc, nil
}

// ListByFolder returns documents within a folder with total count.
func (r *DocumentRepository) ListByFolder(ctx context.Context, folderID string, filter models.DocumentFilter) ([]models.Document, int, error) {
	baseQuery := `FROM documents WHERE folder_id = $1`
	args := []interface{}{folderID}

	if filter.Search != "" {
		baseQuery += fmt.Sprintf(" AND LOWER(name) LIKE $%d", len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":       true,
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "updated_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT id, name, folder_id, created_by, current_version_id, blob_url, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", baseQuery, sortBy, sortOrder, pageSize, offset)

	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	return docs, total, nil
}

// CreateWithVersion inserts a document together with its first version and
// points the document at it, all in one transaction.
func (r *DocumentRepository) CreateWithVersion(ctx context.Context, doc *models.Document, version *models.DocumentVersion) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	version.DocumentID = doc.ID
	version.VersionNumber = 1
	if version.CreatedAt.IsZero() {
		version.CreatedAt = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create document tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const docQuery = `INSERT INTO documents (id, name, folder_id, created_by, current_version_id, blob_url, created_at, updated_at) VALUES (:id, :name, :folder_id, :created_by, NULL, :blob_url, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, docQuery, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}

	const versionQuery = `INSERT INTO document_versions (id, document_id, version_number, blob_url, blob_key, mime_type, size_bytes, uploaded_by, created_at) VALUES (:id, :document_id, :version_number, :blob_url, :blob_key, :mime_type, :size_bytes, :uploaded_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, versionQuery, version); err != nil {
		return fmt.Errorf("create initial version: %w", err)
	}

	const pointerQuery = `UPDATE documents SET current_version_id = $2, blob_url = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, pointerQuery, doc.ID, version.ID, version.BlobURL, now); err != nil {
		return fmt.Errorf("point document at initial version: %w", err)
	}
	doc.CurrentVersionID = &version.ID
	doc.BlobURL = version.BlobURL

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create document tx: %w", err)
	}
	return nil
}

// AddVersion allocates max(version_number)+1, inserts the version and repoints
// the document. The unique index on (document_id, version_number) guards the
// allocation against concurrent uploads; on a collision the number is
// recomputed once.
func (r *DocumentRepository) AddVersion(ctx context.Context, version *models.DocumentVersion) error {
	err := r.addVersionOnce(ctx, version)
	if err != nil && isUniqueViolation(err) {
		err = r.addVersionOnce(ctx, version)
	}
	return err
}

func (r *DocumentRepository) addVersionOnce(ctx context.Context, version *models.DocumentVersion) error {
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if version.CreatedAt.IsZero() {
		version.CreatedAt = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add version tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const maxQuery = `SELECT COALESCE(MAX(version_number), 0) FROM document_versions WHERE document_id = $1`
	var maxNumber int
	if err := tx.GetContext(ctx, &maxNumber, maxQuery, version.DocumentID); err != nil {
		return fmt.Errorf("max version number: %w", err)
	}
	version.VersionNumber = maxNumber + 1

	const versionQuery = `INSERT INTO document_versions (id, document_id, version_number, blob_url, blob_key, mime_type, size_bytes, uploaded_by, created_at) VALUES (:id, :document_id, :version_number, :blob_url, :blob_key, :mime_type, :size_bytes, :uploaded_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, versionQuery, version); err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	const pointerQuery = `UPDATE documents SET current_version_id = $2, blob_url = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, pointerQuery, version.DocumentID, version.ID, version.BlobURL, now); err != nil {
		return fmt.Errorf("point document at version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add version tx: %w", err)
	}
	return nil
}

// FindVersion returns a version by identifier.
func (r *DocumentRepository) FindVersion(ctx context.Context, id string) (*models.DocumentVersion, error) {
	const query = `SELECT id, document_id, version_number, blob_url, blob_key, mime_type, size_bytes, uploaded_by, created_at FROM document_versions WHERE id = $1 LIMIT 1`
	var version models.DocumentVersion
	if err := r.db.GetContext(ctx, &version, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find version by id: %w", err)
	}
	return &version, nil
}

// ListVersions returns all versions of a document, newest first.
func (r *DocumentRepository) ListVersions(ctx context.Context, documentID string) ([]models.DocumentVersion, error) {
	const query = `SELECT id, document_id, version_number, blob_url, blob_key, mime_type, size_bytes, uploaded_by, created_at FROM document_versions WHERE document_id = $1 ORDER BY version_number DESC`
	var versions []models.DocumentVersion
	if err := r.db.SelectContext(ctx, &versions, query, documentID); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

// CountVersions returns the number of versions a document holds.
func (r *DocumentRepository) CountVersions(ctx context.Context, documentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM document_versions WHERE document_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, documentID); err != nil {
		return 0, fmt.Errorf("count versions: %w", err)
	}
	return count, nil
}

// DeleteVersion removes a version and repoints the document at the remaining
// version with the highest version_number, returning that survivor.
func (r *DocumentRepository) DeleteVersion(ctx context.Context, documentID, versionID string) (*models.DocumentVersion, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete version tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const deleteQuery = `DELETE FROM document_versions WHERE id = $1 AND document_id = $2`
	res, err := tx.ExecContext(ctx, deleteQuery, versionID, documentID)
	if err != nil {
		return nil, fmt.Errorf("delete version: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, sql.ErrNoRows
	}

	const survivorQuery = `SELECT id, document_id, version_number, blob_url, blob_key, mime_type, size_bytes, uploaded_by, created_at FROM document_versions WHERE document_id = $1 ORDER BY version_number DESC LIMIT 1`
	var survivor models.DocumentVersion
	if err := tx.GetContext(ctx, &survivor, survivorQuery, documentID); err != nil {
		return nil, fmt.Errorf("find surviving version: %w", err)
	}

	const pointerQuery = `UPDATE documents SET current_version_id = $2, blob_url = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, pointerQuery, documentID, survivor.ID, survivor.BlobURL, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("repoint document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete version tx: %w", err)
	}
	return &survivor, nil
}

// Delete removes a document. Versions and comments cascade.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM documents WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	return false
}
