package access

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/db/models"
	"github.com/docvault/docvault/internal/db/retry"
)

const (
	// insertBatchSize bounds a single INSERT when rebuilding a user's cache.
	insertBatchSize = 500
	// defaultUserBatchSize is how many users RefreshAll rebuilds per round.
	defaultUserBatchSize = 50
)

// Refresh rebuilds the materialized access cache for one user: all cached
// rows are deleted and the freshly resolved set is inserted, in a single
// retried transaction. It returns the number of cached files and the number
// of transaction attempts taken.
func Refresh(ctx context.Context, db *gorm.DB, userID uint64, isAdmin bool) (int, int, error) {
	return retry.Do(ctx, db, "access_cache_refresh", func(tx *gorm.DB) (int, error) {
		if err := tx.Where("user_id = ?", userID).Delete(&models.UserAccessFile{}).Error; err != nil {
			return 0, apperr.Internal(err, "failed to clear access cache")
		}

		ids, err := Resolve(tx, userID, isAdmin)
		if err != nil {
			return 0, err
		}

		if len(ids) == 0 {
			return 0, nil
		}

		now := time.Now()
		rows := make([]models.UserAccessFile, 0, len(ids))

		for _, id := range ids {
			rows = append(rows, models.UserAccessFile{
				UserID:      userID,
				FileID:      id,
				RefreshedAt: now,
			})
		}

		if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
			return 0, apperr.Internal(err, "failed to rebuild access cache")
		}

		return len(ids), nil
	})
}

// RefreshUsers rebuilds the cache for each given user in turn. IDs of users
// that no longer exist are skipped, since callers pass sets reconstructed
// from reconciliation input and those may carry stale IDs. A database
// failure aborts the walk; callers treat the cache as stale-but-safe because
// every authorization check still runs against the live tables.
func RefreshUsers(ctx context.Context, db *gorm.DB, userIDs []uint64) error {
	for _, id := range userIDs {
		var u models.User
		if err := db.First(&u, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Debug().Uint64("user_id", id).Msg("skipping unknown user in cache refresh")

				continue
			}

			return apperr.Internal(err, "failed to load user for cache refresh")
		}

		if _, _, err := Refresh(ctx, db, id, u.IsAdmin()); err != nil {
			return err
		}
	}

	return nil
}

// RefreshAll rebuilds the cache for every active user in fixed-size batches
// and returns how many users were refreshed. Progress is logged per batch so
// long rebuilds are observable.
func RefreshAll(ctx context.Context, db *gorm.DB, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultUserBatchSize
	}

	var total int64
	if err := db.Model(&models.User{}).Where("active = ?", true).Count(&total).Error; err != nil {
		return 0, apperr.Internal(err, "failed to count users")
	}

	refreshed := 0

	for offset := 0; ; offset += batchSize {
		var users []models.User
		err := db.Where("active = ?", true).
			Order("id").
			Offset(offset).
			Limit(batchSize).
			Find(&users).Error
		if err != nil {
			return refreshed, apperr.Internal(err, "failed to load user batch")
		}

		if len(users) == 0 {
			break
		}

		for _, u := range users {
			if _, _, err := Refresh(ctx, db, u.ID, u.IsAdmin()); err != nil {
				return refreshed, err
			}

			refreshed++
		}

		log.Info().
			Int("refreshed", refreshed).
			Int64("total", total).
			Msg("access cache batch refreshed")
	}

	return refreshed, nil
}

// CachedQuery returns a files relation resolved through the materialized
// cache: a single equality join on user_access_files instead of the live
// membership graph. It serves hot-path listings only; authorization checks
// stay on Query and CanAccess, so a stale cache can hide rows from a list
// but never leak a file the user lost.
func CachedQuery(db *gorm.DB, userID uint64, isAdmin bool) *gorm.DB {
	if isAdmin {
		return db.Model(&models.File{})
	}

	return db.Model(&models.File{}).
		Joins("JOIN user_access_files ON user_access_files.file_id = files.id").
		Where("user_access_files.user_id = ?", userID)
}

// CachedFileIDs returns the user's cached accessible file IDs, ascending.
func CachedFileIDs(db *gorm.DB, userID uint64) ([]uint64, error) {
	var ids []uint64
	err := db.Model(&models.UserAccessFile{}).
		Where("user_id = ?", userID).
		Order("file_id").
		Pluck("file_id", &ids).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to read access cache")
	}

	return ids, nil
}
