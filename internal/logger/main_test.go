package logger_test

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"

	"github.com/docvault/docvault/internal/logger"
)

func TestLogger(t *testing.T) {
	type testCase struct {
		name             string
		cfg              logger.Log
		shouldHaveOutput bool
		outputIsJSON     bool
	}

	testCases := []testCase{
		{
			name: "no logger enabled log level not set",
			cfg: logger.Log{
				LogLevel:    "",
				ServiceName: "test",
				AppName:     "test",
			},
			shouldHaveOutput: false,
		},
		{
			name: "console enabled log level info",
			cfg: logger.Log{
				LogLevel:    "info",
				ServiceName: "test",
				AppName:     "test",
				Console:     logger.Console{Enabled: true},
			},
			shouldHaveOutput: true,
			outputIsJSON:     true,
		},
		{
			name: "console enabled console writer enabled",
			cfg: logger.Log{
				LogLevel:    "info",
				ServiceName: "test",
				AppName:     "test",
				Console:     logger.Console{Enabled: true, UseConsoleWriter: true},
			},
			shouldHaveOutput: true,
		},
		{
			name: "console enabled console writer disabled trace expect json stack",
			cfg: logger.Log{
				LogLevel:     "trace",
				ServiceName:  "test",
				AppName:      "test",
				ReportCaller: true,
				Console:      logger.Console{Enabled: true, UseConsoleWriter: false},
			},
			shouldHaveOutput: true,
			outputIsJSON:     true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := testLoggerConfig(t, tc.cfg)

			switch {
			case out == "" && tc.shouldHaveOutput:
				t.Errorf("expected console output but got none")
			case tc.outputIsJSON && out != "":
				for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
					if !json.Valid([]byte(line)) {
						t.Errorf("expected JSON output, got: %s", line)
					}
				}
			}
		})
	}
}

func TestLoggerConfigErrors(t *testing.T) {
	if err := logger.Init(logger.Log{LogLevel: "info", AppName: "test"}); err == nil {
		t.Error("expected error for empty service name")
	}

	if err := logger.Init(logger.Log{LogLevel: "info", ServiceName: "test"}); err == nil {
		t.Error("expected error for empty app name")
	}

	if err := logger.Init(logger.Log{LogLevel: "bogus", ServiceName: "test", AppName: "test"}); err == nil {
		t.Error("expected error for unsupported log level")
	}
}

// testLoggerConfig initializes the logger with cfg, emits one info entry and
// captures what reaches stdout.
func testLoggerConfig(t *testing.T, cfg logger.Log) string {
	t.Helper()

	origStdout := os.Stdout

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}

	os.Stdout = w

	defer func() { os.Stdout = origStdout }()

	if err = logger.Init(cfg); err != nil {
		t.Fatalf("logger.Init() error = %v", err)
	}

	log.Info().Msg("test message")

	_ = w.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("failed to read captured output: %v", err)
	}

	return string(out)
}
