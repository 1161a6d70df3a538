package access

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/db/models"
)

// VisibleFolders returns the subfolders of parentID (roots when nil) the
// user may see. A folder is visible when the user created it, or when any
// file the user may see lives in the folder or anywhere below it. The
// containment check matches the folder's ID against the materialized
// folder paths of the user's visible files, so one pattern covers both
// "directly contains" and "is an ancestor of".
func VisibleFolders(db *gorm.DB, userID uint64, isAdmin bool, parentID *uint64) ([]models.Folder, error) {
	q := db.Order("name")
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}

	var candidates []models.Folder
	if err := q.Find(&candidates).Error; err != nil {
		return nil, apperr.Internal(err, "failed to list folders")
	}

	if isAdmin {
		return candidates, nil
	}

	visible := make([]models.Folder, 0, len(candidates))

	for _, f := range candidates {
		if f.CreatedByUserID == userID {
			visible = append(visible, f)

			continue
		}

		ok, err := folderHasVisibleFile(db, userID, f.ID)
		if err != nil {
			return nil, err
		}

		if ok {
			visible = append(visible, f)
		}
	}

	return visible, nil
}

// folderHasVisibleFile reports whether any file the user may see lives in
// the folder or anywhere below it, resolved by the database through one
// LIKE match on the materialized folder path.
func folderHasVisibleFile(db *gorm.DB, userID, folderID uint64) (bool, error) {
	var count int64
	err := Query(db, userID, false).
		Where("files.folder_path LIKE ?", fmt.Sprintf("%%/%d/%%", folderID)).
		Count(&count).Error
	if err != nil {
		return false, apperr.Internal(err, "failed to check folder visibility")
	}

	return count > 0, nil
}
