package models

import "time"

// Document is a named file within a folder. BlobURL mirrors the current
// version's URL so listings avoid a join.
type Document struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	FolderID         string    `db:"folder_id" json:"folder_id"`
	CreatedBy        string    `db:"created_by" json:"created_by"`
	CurrentVersionID *string   `db:"current_version_id" json:"current_version_id,omitempty"`
	BlobURL          string    `db:"blob_url" json:"blob_url"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentVersion is one immutable revision of a document's file bytes.
// Version numbers are 1-based and strictly increasing per document; gaps from
// deletions are never reused.
type DocumentVersion struct {
	ID            string    `db:"id" json:"id"`
	DocumentID    string    `db:"document_id" json:"document_id"`
	VersionNumber int       `db:"version_number" json:"version_number"`
	BlobURL       string    `db:"blob_url" json:"blob_url"`
	BlobKey       string    `db:"blob_key" json:"-"`
	MimeType      string    `db:"mime_type" json:"mime_type"`
	SizeBytes     int64     `db:"size_bytes" json:"size_bytes"`
	UploadedBy    string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DocumentFilter captures listing criteria for documents within a folder.
type DocumentFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
