package logger

// Console implements a console based logger.
type Console struct {
	Enabled          bool `toml:"enabled"`
	UseConsoleWriter bool
}

// LogFile implements a file based logger.
type LogFile struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`

	AccessLog        string `toml:"access"`
	AccessMaxSize    int    `toml:"accessMaxSize"`
	AccessMaxBackups int    `toml:"accessMaxBackups"`
	AccessMaxAge     int    `toml:"accessMaxAge"`

	ErrorLog        string `toml:"error"`
	ErrorMaxSize    int    `toml:"errorMaxSize"`
	ErrorMaxBackups int    `toml:"errorMaxBackups"`
	ErrorMaxAge     int    `toml:"errorMaxAge"`

	InfoLog        string `toml:"info"`
	InfoMaxSize    int    `toml:"infoMaxSize"`
	InfoMaxBackups int    `toml:"infoMaxBackups"`
	InfoMaxAge     int    `toml:"infoMaxAge"`

	WarnLog        string `toml:"warn"`
	WarnMaxSize    int    `toml:"warnMaxSize"`
	WarnMaxBackups int    `toml:"warnMaxBackups"`
	WarnMaxAge     int    `toml:"warnMaxAge"`
}

// Log is the logging configuration consumed by Init.
type Log struct {
	AppName     string `toml:"appName"`
	ServiceName string `toml:"serviceName"`
	LogLevel    string `toml:"logLevel"`

	ReportCaller bool `toml:"reportCaller"`

	// DisableCheckAlive suppresses access logging of liveness probes.
	DisableCheckAlive bool `toml:"disableCheckAlive"`
	// EnableAccessLogToConsole mirrors the access log to the console writer.
	EnableAccessLogToConsole bool `toml:"enableAccessLogToConsole"`

	Console Console `toml:"console"`
	File    LogFile `toml:"file"`
}
