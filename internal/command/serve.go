package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tingly-dev/tea-assistant/internal/command/options"
	"github.com/tingly-dev/tea-assistant/internal/config"
	"github.com/tingly-dev/tea-assistant/internal/data/db"
	"github.com/tingly-dev/tea-assistant/internal/obs"
	"github.com/tingly-dev/tea-assistant/internal/obs/otel"
	"github.com/tingly-dev/tea-assistant/internal/server"
	"github.com/tingly-dev/tea-assistant/internal/server/middleware"
)

const (
	shutdownTimeout = 15 * time.Second
	memoryLogSize   = 1000
)

// ServeCommand starts the chat server
func ServeCommand(configPath *string, build BuildInfo) *cobra.Command {
	var flags options.ServeFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tea assistant server",
		Long: `Start the HTTP server that streams assistant replies on POST /api/chat.
Upstream calls go to the configured OpenAI-compatible provider.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			opts, err := options.ResolveServeOptions(cmd, flags, cfg)
			if err != nil {
				return err
			}
			opts.Apply(cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			verbose, _ := cmd.Flags().GetBool("verbose")
			return runServer(cfg, opts, verbose, build)
		},
	}

	options.AddServeFlags(cmd, &flags)
	return cmd
}

func runServer(cfg *config.Config, opts options.ServeOptions, verbose bool, build BuildInfo) error {
	recent := obs.NewMemoryLogHook(memoryLogSize, logrus.InfoLevel)
	logCloser, err := obs.SetupLogging(obs.LoggingOptions{
		Debug:    opts.Debug,
		Verbose:  verbose,
		Rotation: cfg.Log,
		Recent:   recent,
	})
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logCloser.Close()

	ctx := context.Background()
	meters, err := otel.NewMeterSetup(ctx, cfg.Metrics)
	if err != nil {
		return err
	}

	serverOpts := []server.ServerOption{
		server.WithVersion(build.Version),
		server.WithHost(opts.Host),
		server.WithMemoryLog(recent),
		server.WithTracker(meters.Tracker()),
		server.WithWatcher(opts.Watch),
	}

	var store *db.ChatRecordStore
	if cfg.Storage.Enabled {
		store, err = db.NewChatRecordStore(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		serverOpts = append(serverOpts, server.WithStore(store))
		logrus.Infof("Chat records stored in %s", store.Path())
	}

	errorLogPath := filepath.Join(filepath.Dir(cfg.ConfigFile), config.LogDirName, config.ErrorLogFileName)
	errorMW, err := middleware.NewErrorLogMiddleware(obs.DefaultLogRotationConfig(errorLogPath))
	if err != nil {
		logrus.Warnf("Error log disabled: %v", err)
	} else {
		serverOpts = append(serverOpts, server.WithErrorLog(errorMW))
	}

	srv, err := server.NewServer(cfg, serverOpts...)
	if err != nil {
		if errorMW != nil {
			errorMW.Stop()
		}
		return err
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(opts.Port)
	}()

	fmt.Printf("Tea assistant %s listening on %s:%d\n", build.Version, opts.Host, opts.Port)

	select {
	case err := <-serverErr:
		_ = meters.Shutdown(ctx)
		if err != nil {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
		return nil
	case <-sigChan:
		fmt.Println("\nReceived shutdown signal, stopping server...")
	}

	stopCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		logrus.Errorf("Server shutdown failed: %v", err)
	}
	if err := meters.Shutdown(stopCtx); err != nil {
		logrus.Warnf("Failed to flush metrics: %v", err)
	}
	logrus.Info("Server stopped")
	return nil
}
