package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/nexarchive/internal/app"
	"github.com/aatumaykin/nexarchive/internal/constants"
	"github.com/aatumaykin/nexarchive/internal/logger"
	"github.com/aatumaykin/nexarchive/internal/messages"
)

var (
	serveLogLevel string
	serveMCP      bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the archive daemon (main command)",
	Long: `Start the archive daemon with the specified configuration.
This opens the archive database and the message source, restores a persisted
job (paused), starts the hourly/daily ticks and listens for control requests
on the workspace socket.

With --mcp the daemon also serves its tools over MCP on stdin/stdout; logs
then go to stderr.`,
	Run: serveHandler,
}

func init() {
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "", "Override logging.level")
	serveCmd.Flags().BoolVar(&serveMCP, "mcp", false, "Serve MCP tools on stdio")
}

func serveHandler(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Print(messages.FormatConfigLoadError(err))
		os.Exit(1)
	}

	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}
	if serveMCP {
		cfg.MCP.Enabled = true
	}
	if cfg.MCP.Enabled && cfg.Logging.Output == "stdout" {
		// stdout carries the MCP protocol
		cfg.Logging.Output = "stderr"
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Print(messages.FormatValidationErrors(errs))
		os.Exit(1)
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		fmt.Printf("❌ Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	log.Info("🚀 Starting nexarchive",
		logger.Field{Key: "version", Value: Version},
		logger.Field{Key: "git_commit", Value: GitCommit},
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "workspace", Value: cfg.Workspace.Path},
		logger.Field{Key: "source", Value: cfg.Source.Kind},
		logger.Field{Key: "state_backend", Value: cfg.State.Backend},
	)

	watchPath := ""
	if _, err := os.Stat(configPath); err == nil {
		watchPath = configPath
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	application := app.New(cfg, watchPath, log)
	if err := application.Initialize(ctx); err != nil {
		log.Error("Failed to start nexarchive", err)
		application.Shutdown()
		os.Exit(1)
	}

	if cfg.MCP.Enabled {
		go func() {
			log.Info("MCP server listening on stdio")
			if err := application.MCP().ServeStdio(); err != nil {
				log.Error("MCP server stopped", err)
			}
			// stdin closed: the client is gone
			sigChan <- syscall.SIGTERM
		}()
	}

	log.Info("✅ nexarchive is running", logger.Field{Key: "pid", Value: os.Getpid()})

	sig := <-sigChan
	log.Info("Received shutdown signal", logger.Field{Key: "signal", Value: sig.String()})
	log.Info(constants.MsgDaemonStopping)

	if err := application.Shutdown(); err != nil {
		log.Error("Error during shutdown", err)
		os.Exit(1)
	}
	log.Info("👋 nexarchive stopped gracefully")
}
