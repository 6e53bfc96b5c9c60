package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// ConfigDirName is the main configuration directory name
	ConfigDirName = ".tea-assistant"

	// ConfigFileName is the default configuration file inside ConfigDirName
	ConfigFileName = "config.yaml"

	LogDirName = "log"

	// LogFileName is the rotated server log
	LogFileName = "tea-assistant.log"

	// ErrorLogFileName collects failed HTTP exchanges
	ErrorLogFileName = "bad_requests.log"

	// DatabaseFileName is the sqlite file for chat records
	DatabaseFileName = "tea-assistant.db"

	// RecordDirName holds recorded upstream exchanges
	RecordDirName = "record"

	DefaultHost = "localhost"
	DefaultPort = 12680

	// DefaultUpstreamTimeout bounds one upstream stream, including follow-ups' connects
	DefaultUpstreamTimeout = 120 * time.Second

	DefaultModel = "gpt-4o-mini"

	DefaultRetentionDays = 30
)

// GetConfDir returns the config directory path (default: ~/.tea-assistant)
func GetConfDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home directory is not accessible
		return ConfigDirName
	}
	return filepath.Join(homeDir, ConfigDirName)
}

// DefaultConfigFile returns ~/.tea-assistant/config.yaml
func DefaultConfigFile() string {
	return filepath.Join(GetConfDir(), ConfigFileName)
}
