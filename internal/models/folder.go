package models

import "time"

// Folder groups documents within a category. A personal folder is visible and
// writable only to its creator; a shared folder is visible to every grantee of
// the category.
type Folder struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	CategoryID string    `db:"category_id" json:"category_id"`
	CreatedBy  string    `db:"created_by" json:"created_by"`
	IsPersonal bool      `db:"is_personal" json:"is_personal"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
