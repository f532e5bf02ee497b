package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuvault/docuvault-api/internal/models"
)

func TestCreateWithVersion(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO document_versions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET current_version_id = $2, blob_url = $3, updated_at = $4 WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	doc := &models.Document{Name: "report.pdf", FolderID: "f1", CreatedBy: "u1"}
	version := &models.DocumentVersion{BlobURL: "https://blobs/report.pdf", BlobKey: "k1", UploadedBy: "u1"}
	err := repo.CreateWithVersion(context.Background(), doc, version)
	require.NoError(t, err)
	assert.Equal(t, 1, version.VersionNumber)
	require.NotNil(t, doc.CurrentVersionID)
	assert.Equal(t, version.ID, *doc.CurrentVersionID)
	assert.Equal(t, version.BlobURL, doc.BlobURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddVersionAllocatesMaxPlusOne(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version_number), 0) FROM document_versions WHERE document_id = $1")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(3))
	mock.ExpectExec("INSERT INTO document_versions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE documents SET current_version_id").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	version := &models.DocumentVersion{DocumentID: "d1", BlobURL: "u", BlobKey: "k", UploadedBy: "u1"}
	err := repo.AddVersion(context.Background(), version)
	require.NoError(t, err)
	assert.Equal(t, 4, version.VersionNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteVersionRepointsToRemainingMax(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM document_versions WHERE id = $1 AND document_id = $2")).
		WithArgs("v3", "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	survivorRows := sqlmock.NewRows([]string{"id", "document_id", "version_number", "blob_url", "blob_key", "mime_type", "size_bytes", "uploaded_by", "created_at"}).
		AddRow("v2", "d1", 2, "https://blobs/v2", "k2", "application/pdf", int64(100), "u1", now)
	mock.ExpectQuery("SELECT id, document_id, version_number, blob_url, blob_key, mime_type, size_bytes, uploaded_by, created_at FROM document_versions WHERE document_id = .* ORDER BY version_number DESC LIMIT 1").
		WithArgs("d1").
		WillReturnRows(survivorRows)
	mock.ExpectExec("UPDATE documents SET current_version_id").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	survivor, err := repo.DeleteVersion(context.Background(), "d1", "v3")
	require.NoError(t, err)
	assert.Equal(t, "v2", survivor.ID)
	assert.Equal(t, 2, survivor.VersionNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteVersionNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM document_versions").
		WithArgs("missing", "d1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.DeleteVersion(context.Background(), "d1", "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountVersions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM document_versions WHERE document_id = $1")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountVersions(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
