// Package group provides CRUD and association reconciliation for user groups.
package group

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/db/assoc"
	"github.com/docvault/docvault/internal/db/dberr"
	"github.com/docvault/docvault/internal/db/models"
)

// membersDef describes the group↔user association.
var membersDef = assoc.Def{
	Table:         models.UserGroup{}.TableName(),
	OwnerColumn:   "group_id",
	ForeignColumn: "user_id",
	ForeignTable:  models.User{}.TableName(),
}

// levelsDef describes the group↔access-level association.
var levelsDef = assoc.Def{
	Table:         models.GroupAccessLevel{}.TableName(),
	OwnerColumn:   "group_id",
	ForeignColumn: "access_level_id",
	ForeignTable:  models.AccessLevel{}.TableName(),
}

// Create creates a new group. A duplicate name surfaces as a conflict.
func Create(db *gorm.DB, name, description string) (*models.Group, error) {
	g := &models.Group{Name: name, Description: description}

	if err := db.Create(g).Error; err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindConflict, err, "group name already exists")
		}

		return nil, apperr.Internal(err, "failed to create group")
	}

	return g, nil
}

// GetByID retrieves a group by its ID.
func GetByID(db *gorm.DB, id uint) (*models.Group, error) {
	var g models.Group
	if err := db.First(&g, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("group")
		}

		return nil, apperr.Internal(err, "failed to load group")
	}

	return &g, nil
}

// GetAll retrieves all groups ordered by name.
func GetAll(db *gorm.DB) ([]models.Group, error) {
	var groups []models.Group
	if err := db.Order("name").Find(&groups).Error; err != nil {
		return nil, apperr.Internal(err, "failed to load groups")
	}

	return groups, nil
}

// Update renames a group or changes its description.
func Update(db *gorm.DB, id uint, name, description string) (*models.Group, error) {
	g, err := GetByID(db, id)
	if err != nil {
		return nil, err
	}

	g.Name = name
	g.Description = description

	if err := db.Save(g).Error; err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindConflict, err, "group name already exists")
		}

		return nil, apperr.Internal(err, "failed to update group")
	}

	return g, nil
}

// Delete removes a group. Association rows cascade with it.
func Delete(db *gorm.DB, id uint) error {
	res := db.Delete(&models.Group{}, id)
	if res.Error != nil {
		return apperr.Internal(res.Error, "failed to delete group")
	}

	if res.RowsAffected == 0 {
		return apperr.NotFound("group")
	}

	// cascading association cleanup for engines without FK enforcement
	if err := db.Where("group_id = ?", id).Delete(&models.UserGroup{}).Error; err != nil {
		return apperr.Internal(err, "failed to delete group memberships")
	}

	if err := db.Where("group_id = ?", id).Delete(&models.GroupAccessLevel{}).Error; err != nil {
		return apperr.Internal(err, "failed to delete group access levels")
	}

	return nil
}

// SetMembers makes the group's membership equal the valid subset of userIDs.
// Call sites wrap this in retry.Do: concurrent reconciliation of the same
// group deadlocks on delete/insert lock ordering.
func SetMembers(tx *gorm.DB, groupID uint, userIDs []uint64) (assoc.Result, error) {
	if err := mustExist(tx, groupID); err != nil {
		return assoc.Result{}, err
	}

	res, err := assoc.Reconcile(tx, membersDef, groupID, userIDs)
	if err != nil {
		return res, reconcileErr(err, "failed to reconcile group members")
	}

	return res, nil
}

// SetAccessLevels makes the group's assigned access levels equal the valid
// subset of levelIDs. Same retry requirement as SetMembers.
func SetAccessLevels(tx *gorm.DB, groupID uint, levelIDs []uint) (assoc.Result, error) {
	if err := mustExist(tx, groupID); err != nil {
		return assoc.Result{}, err
	}

	res, err := assoc.Reconcile(tx, levelsDef, groupID, levelIDs)
	if err != nil {
		return res, reconcileErr(err, "failed to reconcile group access levels")
	}

	return res, nil
}

// Members returns the users belonging to the group.
func Members(db *gorm.DB, groupID uint) ([]models.User, error) {
	if err := mustExist(db, groupID); err != nil {
		return nil, err
	}

	var users []models.User
	err := db.Model(&models.User{}).
		Joins("JOIN user_groups ON user_groups.user_id = users.id").
		Where("user_groups.group_id = ?", groupID).
		Order("users.username").
		Find(&users).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to load group members")
	}

	return users, nil
}

// AccessLevels returns the access levels assigned to the group.
func AccessLevels(db *gorm.DB, groupID uint) ([]models.AccessLevel, error) {
	if err := mustExist(db, groupID); err != nil {
		return nil, err
	}

	var levels []models.AccessLevel
	err := db.Model(&models.AccessLevel{}).
		Joins("JOIN group_access_levels ON group_access_levels.access_level_id = access_levels.id").
		Where("group_access_levels.group_id = ?", groupID).
		Order("access_levels.name").
		Find(&levels).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to load group access levels")
	}

	return levels, nil
}

func mustExist(db *gorm.DB, groupID uint) error {
	var count int64
	if err := db.Model(&models.Group{}).Where("id = ?", groupID).Count(&count).Error; err != nil {
		return apperr.Internal(err, "failed to check group existence")
	}

	if count == 0 {
		return apperr.NotFound("group")
	}

	return nil
}

func reconcileErr(err error, msg string) error {
	if dberr.IsUniqueViolation(err) {
		return apperr.Wrap(apperr.KindConflict, err, msg)
	}

	// deadlocks must stay unwrapped so retry.Do can classify them
	return err
}
