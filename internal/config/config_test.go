package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
)

const testTOML = `
Title = "DocVault"
DevMode = false

[Webserver]
Port = 8080
URL = "http://localhost:8080"

[DB]
Host = "localhost"
Port = 3306
User = "docvault"
Name = "docvault"
GormEngine = "mysql"

[Extraction]
URL = "http://ocr:9292/ocr"
`

// writeTestConfig writes a main.toml into a temp dir and returns the dir path
// with a trailing separator, the shape ReadConfig expects.
func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.toml"), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	return dir + string(filepath.Separator)
}

func TestReadConfig(t *testing.T) {
	cfg, err := ReadConfig(writeTestConfig(t, testTOML))
	if err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}

	if cfg.Title != "DocVault" {
		t.Errorf("Config.Title = %q, want %q", cfg.Title, "DocVault")
	}

	if cfg.Webserver.Port != 8080 {
		t.Errorf("Webserver.Port = %d, want 8080", cfg.Webserver.Port)
	}

	if cfg.DB.GormEngine != "mysql" {
		t.Errorf("DB.GormEngine = %q, want mysql", cfg.DB.GormEngine)
	}

	// defaults are applied before validation
	if cfg.Webserver.ShutDownTime != 5 {
		t.Errorf("ShutDownTime = %d, want default 5", cfg.Webserver.ShutDownTime)
	}

	if cfg.Storage.MaxUploadSize != defaultMaxUploadSize {
		t.Errorf("MaxUploadSize = %d, want default %d", cfg.Storage.MaxUploadSize, defaultMaxUploadSize)
	}
}

func TestReadConfigEnvOverride(t *testing.T) {
	t.Setenv("DOCVAULT_CONFIG_JSON", `{"Webserver":{"Port":9090,"URL":"http://override:9090"}}`)

	cfg, err := ReadConfig(writeTestConfig(t, testTOML))
	if err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}

	if cfg.Webserver.Port != 9090 {
		t.Errorf("Webserver.Port = %d, want env override 9090", cfg.Webserver.Port)
	}

	if cfg.Title != "DocVault" {
		t.Errorf("Config.Title = %q, env override must not clear toml values", cfg.Title)
	}
}

func TestReadConfigValidation(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name: "missing webserver port",
			content: `
[Webserver]
URL = "http://localhost"
[Extraction]
URL = "http://ocr"
`,
			wantErr: ErrWebServerPortCanNotBeZero,
		},
		{
			name: "missing webserver url",
			content: `
[Webserver]
Port = 8080
[Extraction]
URL = "http://ocr"
`,
			wantErr: ErrEmptyURL,
		},
		{
			name: "missing extraction url",
			content: `
[Webserver]
Port = 8080
URL = "http://localhost"
`,
			wantErr: ErrEmptyExtractionURL,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadConfig(writeTestConfig(t, tc.content))
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ReadConfig() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config

	ApplyDefaults(&cfg)

	if cfg.Storage.UploadDir == "" || cfg.Storage.TempDir == "" {
		t.Error("ApplyDefaults should fill storage directories")
	}

	if cfg.Storage.MaxUploadSize != defaultMaxUploadSize {
		t.Errorf("MaxUploadSize = %d, want %d", cfg.Storage.MaxUploadSize, defaultMaxUploadSize)
	}

	if cfg.Extraction.Timeout != defaultOCRTimeout {
		t.Errorf("Extraction.Timeout = %d, want %d", cfg.Extraction.Timeout, defaultOCRTimeout)
	}
}
