package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/apkforge/apkforge/pkg/config"
	"github.com/apkforge/apkforge/pkg/logger"
	"github.com/apkforge/apkforge/pkg/pipeline"
	"github.com/apkforge/apkforge/pkg/runner"
	"github.com/apkforge/apkforge/pkg/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the build server",
		Long: `Start the long-lived build server. Builds are triggered with
POST /api/build (NDJSON stream) or over /api/build/ws (WebSocket), and
finished packages are served from the downloads prefix.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Local .env values feed the APKFORGE_ environment overrides
			_ = godotenv.Load()

			manager := config.NewManager()
			settings, err := manager.Load(cfgFile, ".")
			if err != nil {
				return err
			}
			if listenAddr != "" {
				settings.ListenAddr = listenAddr
			}
			if verbosity != "" {
				settings.LogLevel = verbosity
			}

			log := logger.CreateLogger(settings.LogFile, settings.LogLevel)
			if used := manager.ConfigFileUsed(); used != "" {
				log.Info("Using config file", logger.WithField("file", used))
				startLogLevelReload(used, log)
			}

			ctrl := pipeline.NewController(pipeline.Config{
				WorkspaceDir:  settings.WorkspaceDir,
				PublicDir:     settings.PublicDir,
				PublicPrefix:  settings.PublicPrefix,
				BaseURL:       settings.BaseURL,
				KeepWorkspace: settings.KeepWorkspace,
				Git:           settings.Git,
				Npm:           settings.Npm,
				Npx:           settings.Npx,
			}, runner.NewExecRunner(log), log)

			srv := server.New(server.Config{
				ListenAddr:   settings.ListenAddr,
				PublicDir:    settings.PublicDir,
				PublicPrefix: settings.PublicPrefix,
			}, ctrl, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			printInfo(fmt.Sprintf("Serving on %s", settings.ListenAddr))
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "listen address (overrides config)")

	return cmd
}

// startLogLevelReload watches the config file and applies log level changes
// without a restart. Other settings keep their boot values.
func startLogLevelReload(configPath string, log logger.Logger) {
	rm := config.NewReloadManager(configPath, log)
	rm.AddCallback(func(settings config.Settings, err error) {
		if err != nil {
			return
		}
		if sl, ok := log.(*logger.SessionLogger); ok {
			sl.SetLevel(settings.LogLevel)
		}
	})
	if err := rm.StartWatching(); err != nil {
		log.Warn("Config hot reload unavailable", logger.WithField("error", err))
	}
}
