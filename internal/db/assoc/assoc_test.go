package assoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/db/models"
)

var groupLevels = Def{
	Table:         "group_access_levels",
	OwnerColumn:   "group_id",
	ForeignColumn: "access_level_id",
	ForeignTable:  "access_levels",
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to create test database")

	err = db.AutoMigrate(
		&models.Group{},
		&models.AccessLevel{},
		&models.GroupAccessLevel{},
	)
	require.NoError(t, err, "failed to migrate test database")

	return db
}

// seedLevels creates n access levels with IDs 1..n and one group with ID 1.
func seedLevels(t *testing.T, db *gorm.DB, n int) {
	t.Helper()

	require.NoError(t, db.Create(&models.Group{Name: "engineering"}).Error)

	for i := 1; i <= n; i++ {
		require.NoError(t, db.Create(&models.AccessLevel{Name: levelName(i)}).Error)
	}
}

func levelName(i int) string {
	return "level-" + string(rune('a'+i-1))
}

func currentLevelIDs(t *testing.T, db *gorm.DB, groupID uint) []uint {
	t.Helper()

	var ids []uint
	require.NoError(t, db.Model(&models.GroupAccessLevel{}).
		Where("group_id = ?", groupID).
		Order("access_level_id").
		Pluck("access_level_id", &ids).Error)

	return ids
}

func TestReconcileDiff(t *testing.T) {
	db := setupTestDB(t)
	seedLevels(t, db, 4)

	// current = {1,2,3}
	_, err := Reconcile(db, groupLevels, uint(1), []uint{1, 2, 3})
	require.NoError(t, err)

	// desired = {2,3,4}: exactly one delete for {1} and one insert for {4}
	res, err := Reconcile(db, groupLevels, uint(1), []uint{2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, []uint{2, 3, 4}, currentLevelIDs(t, db, 1))
}

func TestReconcileIdempotent(t *testing.T) {
	db := setupTestDB(t)
	seedLevels(t, db, 3)

	res, err := Reconcile(db, groupLevels, uint(1), []uint{1, 3})
	require.NoError(t, err)
	assert.True(t, res.Changed())

	// second call with the same target set performs no writes
	res, err = Reconcile(db, groupLevels, uint(1), []uint{1, 3})
	require.NoError(t, err)
	assert.False(t, res.Changed(), "second identical call must be a no-op")
	assert.Equal(t, []uint{1, 3}, currentLevelIDs(t, db, 1))
}

func TestReconcileEmptyDesiredRemovesAll(t *testing.T) {
	db := setupTestDB(t)
	seedLevels(t, db, 3)

	_, err := Reconcile(db, groupLevels, uint(1), []uint{1, 2, 3})
	require.NoError(t, err)

	res, err := Reconcile(db, groupLevels, uint(1), []uint{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Removed)
	assert.Empty(t, currentLevelIDs(t, db, 1))
}

func TestReconcileDropsStaleIDs(t *testing.T) {
	db := setupTestDB(t)
	seedLevels(t, db, 2)

	// 99 references no access level and is silently dropped
	res, err := Reconcile(db, groupLevels, uint(1), []uint{1, 99})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, []uint{1}, currentLevelIDs(t, db, 1))
}

func TestReconcileScopedToOwner(t *testing.T) {
	db := setupTestDB(t)
	seedLevels(t, db, 3)
	require.NoError(t, db.Create(&models.Group{Name: "sales"}).Error)

	_, err := Reconcile(db, groupLevels, uint(1), []uint{1, 2})
	require.NoError(t, err)
	_, err = Reconcile(db, groupLevels, uint(2), []uint{2, 3})
	require.NoError(t, err)

	// clearing group 2 leaves group 1 untouched
	_, err = Reconcile(db, groupLevels, uint(2), []uint(nil))
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, currentLevelIDs(t, db, 1))
	assert.Empty(t, currentLevelIDs(t, db, 2))
}
