package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	ratelimit "github.com/riftlabs/tier-ratelimiter"
)

// Store is the gorm-backed implementation of the user record reader and
// the override writer.
type Store struct {
	db *gorm.DB
}

// New wraps an already-connected *gorm.DB. The caller owns the connection
// pool's lifecycle (gorm pools natively via database/sql).
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindByID implements the user record reader. A missing row maps to
// *ratelimit.NotFoundError; any other failure maps to
// *ratelimit.UserStoreError.
func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (ratelimit.UserRecord, error) {
	var row userRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ratelimit.UserRecord{}, &ratelimit.NotFoundError{UserID: id.String()}
	}
	if err != nil {
		return ratelimit.UserRecord{}, &ratelimit.UserStoreError{UserID: id.String(), Err: err}
	}

	return toUserRecord(row), nil
}

// UpdateOverride patches only the supplied columns, bumps updated_at, and
// returns the raw post-update trio as read back from the row — each field
// independently, not collapsed through the active/inactive override rule.
// A row left with a partial trio (the common case across a sequence of
// partial PUTs) is a legal outcome, not a validation error, and its
// individually-persisted fields must still be reported.
func (s *Store) UpdateOverride(ctx context.Context, id uuid.UUID, patch ratelimit.OverridePatch) (ratelimit.OverrideFields, error) {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if patch.Limit != nil {
		updates["override_limit"] = *patch.Limit
	}
	if patch.WindowSeconds != nil {
		updates["override_window_seconds"] = *patch.WindowSeconds
	}
	if patch.Expiry != nil {
		updates["override_expiry"] = *patch.Expiry
	}

	res := s.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return ratelimit.OverrideFields{}, &ratelimit.UserStoreError{UserID: id.String(), Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return ratelimit.OverrideFields{}, &ratelimit.NotFoundError{UserID: id.String()}
	}

	var row userRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return ratelimit.OverrideFields{}, &ratelimit.UserStoreError{UserID: id.String(), Err: err}
	}

	return overrideFieldsFromRow(row), nil
}

func toUserRecord(row userRow) ratelimit.UserRecord {
	return ratelimit.UserRecord{
		ID:       row.ID,
		Tier:     row.Tier,
		Override: overrideFromRow(row),
	}
}

// overrideFromRow collapses the three nullable override columns into a
// single optional ratelimit.Override. A partial set (anything less than
// all three) collapses to nil: partial overrides are silently ignored.
func overrideFromRow(row userRow) *ratelimit.Override {
	if !row.hasFullOverride() {
		return nil
	}
	return &ratelimit.Override{
		Limit:         *row.OverrideLimit,
		WindowSeconds: *row.OverrideWindowSeconds,
		Expiry:        *row.OverrideExpiry,
	}
}

// overrideFieldsFromRow reports the three override columns verbatim, with
// no all-or-nothing collapsing — used by the override writer's response,
// which must echo what is actually persisted even when it's a partial set.
func overrideFieldsFromRow(row userRow) ratelimit.OverrideFields {
	return ratelimit.OverrideFields{
		Limit:         row.OverrideLimit,
		WindowSeconds: row.OverrideWindowSeconds,
		Expiry:        row.OverrideExpiry,
	}
}
