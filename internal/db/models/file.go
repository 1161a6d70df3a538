package models

import "time"

// ProcessingStatus tracks how far a file has progressed through ingestion.
type ProcessingStatus string

const (
	// StatusUploaded means the bytes are durably stored but not yet processed.
	StatusUploaded ProcessingStatus = "uploaded"
	// StatusProcessed means text extraction completed (or was skipped).
	StatusProcessed ProcessingStatus = "processed"
	// StatusFailed means text extraction failed; the file itself is kept.
	StatusFailed ProcessingStatus = "failed"
)

// File represents an uploaded document.
// Access to a file is granted if the requester is the owner, is admin, or
// shares at least one access level between their groups and the file's
// access levels.
type File struct {
	// ID is the unique identifier for the file.
	ID uint64 `gorm:"primaryKey"`
	// OriginalName is the file name as uploaded by the client.
	OriginalName string `gorm:"size:255;not null"`
	// Extension is the file extension without the leading dot.
	Extension string `gorm:"size:20;index"`
	// MimeType is the detected content type of the upload.
	MimeType string `gorm:"size:100"`
	// SizeBytes is the stored size of the file in bytes.
	SizeBytes int64
	// StoragePath is the absolute path of the stored bytes on disk.
	StoragePath string `gorm:"size:512;not null"`
	// DownloadLink is the public path the file is served from.
	DownloadLink string `gorm:"size:512"`
	// UploadedByUserID is the ID of the owning user.
	UploadedByUserID uint64 `gorm:"column:uploaded_by_user_id;index;not null"`
	// FolderID is the containing folder, nil for the root.
	FolderID *uint64 `gorm:"column:folder_id;index"`
	// FolderPath is the materialized ancestor path of the containing folder,
	// e.g. "/3/17/". It must be recomputed whenever the folder moves.
	FolderPath string `gorm:"size:512"`
	// ExtractedText is the text pulled out of the document, if any.
	ExtractedText string `gorm:"type:text"`
	// Status is the ingestion state of the file.
	Status ProcessingStatus `gorm:"type:varchar(20);not null;default:'uploaded'"`
	// ErrorMessage records why extraction failed, if it did.
	ErrorMessage string `gorm:"size:512"`
	// CreatedAt is the upload timestamp (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the last modification timestamp (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the File model.
func (File) TableName() string {
	return "files"
}
