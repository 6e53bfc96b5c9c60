package options

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tingly-dev/tea-assistant/internal/config"
	"github.com/tingly-dev/tea-assistant/internal/record"
)

// ServeFlags holds flags for starting the server
type ServeFlags struct {
	Port       int
	Host       string
	Debug      bool
	LogFile    string
	NoWatch    bool
	RecordMode string
	RecordDir  string
}

// ServeOptions contains resolved options for starting the server
type ServeOptions struct {
	Host       string
	Port       int
	Debug      bool
	LogFile    string
	Watch      bool
	RecordMode record.Mode
	RecordDir  string
}

// AddServeFlags adds all serve-related flags to a command
func AddServeFlags(cmd *cobra.Command, flags *ServeFlags) {
	cmd.Flags().IntVarP(&flags.Port, "port", "p", 0, fmt.Sprintf("Server port (default: from config or %d)", config.DefaultPort))
	cmd.Flags().StringVar(&flags.Host, "host", "", "Server host (default: from config or localhost)")
	cmd.Flags().BoolVar(&flags.Debug, "debug", false, "Enable debug mode including gin and debug level logging (default: false)")
	cmd.Flags().StringVar(&flags.LogFile, "log-file", "", "Log file path (default: ~/.tea-assistant/log/tea-assistant.log)")
	cmd.Flags().BoolVar(&flags.NoWatch, "no-watch", false, "Disable config hot reload")
	cmd.Flags().StringVar(&flags.RecordMode, "record-mode", "", "Record mode: empty=disabled, 'all'=record request+response, 'response'=response only (default: from config)")
	cmd.Flags().StringVar(&flags.RecordDir, "record-dir", "", "Record directory (default: ~/.tea-assistant/record/)")
}

// ResolveServeOptions resolves CLI flags with config file defaults
// Priority: CLI flag > Config > Default
func ResolveServeOptions(cmd *cobra.Command, flags ServeFlags, cfg *config.Config) (ServeOptions, error) {
	opts := ServeOptions{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Debug:   cfg.Server.Debug,
		LogFile: cfg.Log.Filename,
		Watch:   !flags.NoWatch,
	}

	if cmd.Flags().Changed("host") {
		opts.Host = flags.Host
	}
	if flags.Port != 0 {
		opts.Port = flags.Port
	}
	if cmd.Flags().Changed("debug") {
		opts.Debug = flags.Debug
	}
	if flags.LogFile != "" {
		opts.LogFile = flags.LogFile
	}

	rawMode := cfg.Upstream.RecordMode
	if cmd.Flags().Changed("record-mode") {
		rawMode = flags.RecordMode
	}
	mode, err := record.ParseMode(rawMode)
	if err != nil {
		return ServeOptions{}, err
	}
	opts.RecordMode = mode

	opts.RecordDir = cfg.Upstream.RecordDir
	if flags.RecordDir != "" {
		opts.RecordDir = flags.RecordDir
	}
	if opts.RecordDir == "" {
		opts.RecordDir = filepath.Join(filepath.Dir(cfg.ConfigFile), config.RecordDirName)
	}
	return opts, nil
}

// Apply writes the resolved options back so the server sees one config.
func (o ServeOptions) Apply(cfg *config.Config) {
	cfg.Server.Host = o.Host
	cfg.Server.Port = o.Port
	cfg.Server.Debug = o.Debug
	cfg.Log.Filename = o.LogFile
	cfg.Upstream.RecordMode = string(o.RecordMode)
	cfg.Upstream.RecordDir = o.RecordDir
}
