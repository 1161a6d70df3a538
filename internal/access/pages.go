package access

import (
	"time"

	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/db/models"
)

const (
	defaultPerPage = 20
	maxPerPage     = 200
)

// Filters narrows a file search. Zero values mean "no constraint". Date
// upper bounds given at midnight are stretched to the end of that day so a
// user filtering "to 2026-08-28" still sees files uploaded that afternoon.
type Filters struct {
	// Name matches a substring of the original file name.
	Name string
	// Extension matches the file extension exactly, without the dot.
	Extension string
	// Content matches a substring of the extracted text.
	Content string
	// UploadedFrom/UploadedTo bound the upload timestamp.
	UploadedFrom *time.Time
	UploadedTo   *time.Time
	// ModifiedFrom/ModifiedTo bound the last-update timestamp.
	ModifiedFrom *time.Time
	ModifiedTo   *time.Time
	// OwnerOnly restricts results to files the user uploaded themselves.
	OwnerOnly bool
}

// Page is one page of search results plus the total across all pages.
type Page struct {
	Items   []models.File `json:"items"`
	Total   int64         `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

// Search returns a page of files visible to the user matching the filters.
// The count and the page rows are taken from the same filtered relation, so
// paging through all pages yields exactly Total rows with no gaps or
// duplicates as long as the data does not change underneath.
func Search(db *gorm.DB, userID uint64, isAdmin bool, f Filters, page, perPage int) (*Page, error) {
	if page < 1 {
		page = 1
	}

	if perPage < 1 {
		perPage = defaultPerPage
	}

	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	base := applyFilters(Query(db, userID, isAdmin), userID, f)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, apperr.Internal(err, "failed to count search results")
	}

	var items []models.File
	err := base.
		Order("files.id").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&items).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to load search results")
	}

	return &Page{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

// CachedPage returns one page of the user's accessible files read from the
// materialized cache instead of the live membership graph, so browsing
// costs one indexed join regardless of how many groups and levels sit
// between the user and the files.
func CachedPage(db *gorm.DB, userID uint64, isAdmin bool, page, perPage int) (*Page, error) {
	if page < 1 {
		page = 1
	}

	if perPage < 1 {
		perPage = defaultPerPage
	}

	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	base := CachedQuery(db, userID, isAdmin)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, apperr.Internal(err, "failed to count cached files")
	}

	var items []models.File
	err := base.
		Order("files.id").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&items).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to load cached files")
	}

	return &Page{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

// InFolder returns a page of visible files stored directly in the folder,
// or in no folder when folderID is nil.
func InFolder(db *gorm.DB, userID uint64, isAdmin bool, folderID *uint64, page, perPage int) (*Page, error) {
	f := Filters{}

	wrap := func(q *gorm.DB) *gorm.DB {
		if folderID == nil {
			return q.Where("files.folder_id IS NULL")
		}

		return q.Where("files.folder_id = ?", *folderID)
	}

	if page < 1 {
		page = 1
	}

	if perPage < 1 {
		perPage = defaultPerPage
	}

	base := wrap(applyFilters(Query(db, userID, isAdmin), userID, f))

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, apperr.Internal(err, "failed to count folder files")
	}

	var items []models.File
	err := base.
		Order("files.original_name").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&items).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to load folder files")
	}

	return &Page{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

func applyFilters(q *gorm.DB, userID uint64, f Filters) *gorm.DB {
	if f.Name != "" {
		q = q.Where("files.original_name LIKE ?", "%"+f.Name+"%")
	}

	if f.Extension != "" {
		q = q.Where("files.extension = ?", f.Extension)
	}

	if f.Content != "" {
		q = q.Where("files.extracted_text LIKE ?", "%"+f.Content+"%")
	}

	if f.UploadedFrom != nil {
		q = q.Where("files.created_at >= ?", *f.UploadedFrom)
	}

	if f.UploadedTo != nil {
		q = q.Where("files.created_at <= ?", endOfDay(*f.UploadedTo))
	}

	if f.ModifiedFrom != nil {
		q = q.Where("files.updated_at >= ?", *f.ModifiedFrom)
	}

	if f.ModifiedTo != nil {
		q = q.Where("files.updated_at <= ?", endOfDay(*f.ModifiedTo))
	}

	if f.OwnerOnly {
		q = q.Where("files.uploaded_by_user_id = ?", userID)
	}

	return q
}

// endOfDay stretches a midnight timestamp to the last instant of its day.
// Timestamps that already carry a time of day are left alone.
func endOfDay(t time.Time) time.Time {
	if t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0 {
		return t
	}

	return t.Add(24*time.Hour - time.Nanosecond)
}
