package config

import (
	"github.com/docvault/docvault/internal/logger"
)

// Config overall data structure.
type Config struct {
	DevMode    bool // enable dev mode for development
	DB         DB
	Log        logger.Log
	Title      string
	Webserver  Webserver
	Storage    Storage
	Extraction Extraction
}

// Webserver implement webserver settings.
type Webserver struct {
	CleanPath      bool   // use clean path middleware to allow multi slash requests
	DisableRecover bool   // disable recover middleware
	Domain         string // domain name for the webserver
	Port           int    // listening port for the webserver
	ShutDownTime   int    // wait time for shutdown
	URL            string // base url for the webserver
}

// Storage holds the document storage settings.
type Storage struct {
	UploadDir     string // directory for durably stored uploads
	TempDir       string // scratch directory for in-flight processing
	MaxUploadSize int64  // per-file upload cap in bytes
}

// Extraction holds the remote text-extraction service settings.
type Extraction struct {
	URL     string // base url of the extraction (OCR) service
	Timeout int    // per-call timeout in seconds
}
