package models

import "time"

// DocumentComment is a threaded comment on a document. ParentCommentID is nil
// for top-level comments.
type DocumentComment struct {
	ID              string    `db:"id" json:"id"`
	DocumentID      string    `db:"document_id" json:"document_id"`
	ParentCommentID *string   `db:"parent_comment_id" json:"parent_comment_id,omitempty"`
	Content         string    `db:"content" json:"content"`
	AuthorID        string    `db:"author_id" json:"author_id"`
	IsEdited        bool      `db:"is_edited" json:"is_edited"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
