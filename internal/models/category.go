package models

import "time"

// AccessLevel is the grant level a user holds on a category.
type AccessLevel string

const (
	AccessFull AccessLevel = "full"
	AccessRead AccessLevel = "read"
)

// Valid reports whether the level is one of the known values.
func (l AccessLevel) Valid() bool {
	return l == AccessFull || l == AccessRead
}

// Category is the top-level access-control boundary grouping folders.
// Only system admins create or delete categories.
type Category struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AccessGrant maps (user, category) to an access level. At most one grant per
// pair exists; re-granting overwrites the level.
type AccessGrant struct {
	UserID     string      `db:"user_id" json:"user_id"`
	CategoryID string      `db:"category_id" json:"category_id"`
	Level      AccessLevel `db:"level" json:"level"`
	GrantedBy  string      `db:"granted_by" json:"granted_by"`
	GrantedAt  time.Time   `db:"granted_at" json:"granted_at"`
}
