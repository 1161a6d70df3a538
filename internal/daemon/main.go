// Package daemon assembles the application: database, storage, extraction
// client, upload pipeline and the web service.
package daemon

import (
	"fmt"

	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/internal/db/dsn"
	"github.com/docvault/docvault/internal/db/models"
	"github.com/docvault/docvault/internal/extract"
	"github.com/docvault/docvault/internal/storage"
	"github.com/docvault/docvault/internal/upload"
	"github.com/docvault/docvault/internal/web"
)

// Daemon represents the main application daemon.
type Daemon struct {
	webService *web.Service
	addr       string
}

// Start starts the Daemon's web service.
func (d *Daemon) Start() error {
	go d.webService.WaitShutdown()

	return d.webService.Start(d.addr)
}

// New creates a new Daemon instance with the provided configuration.
func New(cfg *config.Config) *Daemon {
	if cfg == nil {
		log.Fatal().Msg("config is nil")
		return nil
	}

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	if err = db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.AccessLevel{},
		&models.UserGroup{},
		&models.GroupAccessLevel{},
		&models.Folder{},
		&models.File{},
		&models.FileAccessLevel{},
		&models.UserAccessFile{},
	); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	seed(cfg, db)

	store, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare storage directories")
	}

	pipeline := upload.NewPipeline(db, store, extract.NewClient(cfg.Extraction), upload.NewTracker())

	return &Daemon{
		webService: web.New(cfg, db, store, pipeline),
		addr:       fmt.Sprintf(":%d", cfg.Webserver.Port),
	}
}

// openDatabase opens the engine selected by the configuration. MySQL is the
// default; postgres is the supported alternative.
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DB.GormEngine == "postgres" {
		return gorm.Open(gormpostgres.Open(dsn.Create(cfg)), &gorm.Config{})
	}

	return gorm.Open(gormmysql.Open(dsn.Create(cfg)), &gorm.Config{})
}
