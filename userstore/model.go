package userstore

import (
	"time"

	"github.com/google/uuid"
)

// userRow mirrors the `users` table: an id, a tier literal, and three
// independently-nullable override columns. Never exposed outside this
// package — FindByID translates it to ratelimit.UserRecord and
// UpdateOverride to ratelimit.OverrideFields at the boundary.
type userRow struct {
	ID                    uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Tier                  string     `gorm:"column:tier;type:text;not null"`
	OverrideLimit         *int       `gorm:"column:override_limit"`
	OverrideWindowSeconds *int       `gorm:"column:override_window_seconds"`
	OverrideExpiry        *time.Time `gorm:"column:override_expiry"`
	CreatedAt             time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (userRow) TableName() string { return "users" }

// hasFullOverride reports whether all three override columns are set. A
// partial set is treated as equivalent to no override.
func (r userRow) hasFullOverride() bool {
	return r.OverrideLimit != nil && r.OverrideWindowSeconds != nil && r.OverrideExpiry != nil
}
