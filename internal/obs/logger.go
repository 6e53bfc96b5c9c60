package obs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogRotationConfig holds configuration for log rotation
type LogRotationConfig struct {
	Filename   string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`    // megabytes
	MaxBackups int    `yaml:"max_backups"` // rotated files kept
	MaxAge     int    `yaml:"max_age"`     // days
	Compress   bool   `yaml:"compress"`
}

// DefaultLogRotationConfig returns default log rotation settings
func DefaultLogRotationConfig(logFile string) LogRotationConfig {
	return LogRotationConfig{
		Filename:   logFile,
		MaxSize:    10,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
	}
}

// NewRotatingWriter creates a lumberjack writer for cfg. The directory is created.
func NewRotatingWriter(cfg LogRotationConfig) (*lumberjack.Logger, error) {
	if cfg.Filename == "" {
		return nil, fmt.Errorf("log file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}, nil
}

// LoggingOptions selects level and outputs for the process logger.
type LoggingOptions struct {
	Debug    bool
	Verbose  bool
	Rotation LogRotationConfig
	// Recent receives a copy of every entry when set.
	Recent *MemoryLogHook
	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

// SetupLogging configures the standard logrus logger. The returned closer
// releases the log file.
func SetupLogging(opts LoggingOptions) (io.Closer, error) {
	switch {
	case opts.Verbose:
		logrus.SetLevel(logrus.TraceLevel)
	case opts.Debug:
		logrus.SetLevel(logrus.DebugLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	if opts.Recent != nil {
		logrus.AddHook(opts.Recent)
	}

	if opts.Rotation.Filename == "" {
		logrus.SetOutput(stdout)
		return nopCloser{}, nil
	}

	logWriter, err := NewRotatingWriter(opts.Rotation)
	if err != nil {
		return nil, err
	}
	logrus.SetOutput(io.MultiWriter(stdout, logWriter))
	logrus.Infof("Logging to file: %s (with rotation)", opts.Rotation.Filename)
	return logWriter, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
