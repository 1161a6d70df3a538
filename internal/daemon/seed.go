package daemon

import (
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/internal/db/models"
)

func seed(_ *config.Config, db *gorm.DB) {
	// Seed initial data if the user table is empty

	var count int64
	db.Model(&models.User{}).Count(&count)
	if count == 0 {
		// Create default admin user; change the password on first login
		db.Create(
			&models.User{
				Username: "admin",
				Email:    "admin@localhost",
				Password: models.HashPassword("changeme"),
				Active:   true,
				Role:     models.RoleAdmin,
			},
		)
	}

	var levels int64
	db.Model(&models.AccessLevel{}).Count(&levels)
	if levels == 0 {
		// Default level so new uploads are shareable out of the box
		db.Create(
			&models.AccessLevel{
				Name:            "general",
				Description:     "Default access level assigned to new documents",
				IsDefault:       true,
				CreatedByUserID: 1,
			},
		)
	}
}
