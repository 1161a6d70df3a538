package accesslevel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/db/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to create test database")

	err = db.AutoMigrate(
		&models.AccessLevel{},
		&models.GroupAccessLevel{},
		&models.FileAccessLevel{},
	)
	require.NoError(t, err, "failed to migrate test database")

	return db
}

func TestCreateAndGet(t *testing.T) {
	db := setupTestDB(t)

	lvl, err := Create(db, "confidential", "restricted documents", false, 1)
	require.NoError(t, err)
	assert.NotZero(t, lvl.ID)

	got, err := GetByID(db, lvl.ID)
	require.NoError(t, err)
	assert.Equal(t, "confidential", got.Name)
	assert.Equal(t, uint64(1), got.CreatedByUserID)
}

func TestCreateDuplicateName(t *testing.T) {
	db := setupTestDB(t)

	_, err := Create(db, "confidential", "", false, 1)
	require.NoError(t, err)

	_, err = Create(db, "confidential", "", false, 2)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestDefaults(t *testing.T) {
	db := setupTestDB(t)

	_, err := Create(db, "public", "", true, 1)
	require.NoError(t, err)
	_, err = Create(db, "confidential", "", false, 1)
	require.NoError(t, err)

	defaults, err := Defaults(db)
	require.NoError(t, err)
	require.Len(t, defaults, 1)
	assert.Equal(t, "public", defaults[0].Name)
}

func TestUpdateNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := Update(db, 5, "x", "", false)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDeleteCleansAssignments(t *testing.T) {
	db := setupTestDB(t)

	lvl, err := Create(db, "confidential", "", false, 1)
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.GroupAccessLevel{GroupID: 1, AccessLevelID: lvl.ID}).Error)
	require.NoError(t, db.Create(&models.FileAccessLevel{FileID: 1, AccessLevelID: lvl.ID}).Error)

	require.NoError(t, Delete(db, lvl.ID))

	var groupGrants, fileGrants int64
	require.NoError(t, db.Model(&models.GroupAccessLevel{}).Count(&groupGrants).Error)
	require.NoError(t, db.Model(&models.FileAccessLevel{}).Count(&fileGrants).Error)
	assert.Zero(t, groupGrants)
	assert.Zero(t, fileGrants)
}
