package cli

import (
	"fmt"

	"github.com/apkforge/apkforge/pkg/config"
	"github.com/apkforge/apkforge/pkg/interfaces"
	"github.com/apkforge/apkforge/pkg/logger"
	"github.com/apkforge/apkforge/pkg/notifier"
	"github.com/apkforge/apkforge/pkg/pipeline"
	"github.com/apkforge/apkforge/pkg/runner"
	"github.com/apkforge/apkforge/pkg/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	var (
		req           types.BuildRequest
		orientation   string
		outputDir     string
		keepWorkspace bool
	)

	cmd := &cobra.Command{
		Use:   "build <repo-url>",
		Short: "Build one repository into an APK and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.RepoURL = args[0]
			req.Orientation = types.Orientation(orientation)

			manager := config.NewManager()
			settings, err := manager.Load(cfgFile, ".")
			if err != nil {
				return err
			}
			if verbosity != "" {
				settings.LogLevel = verbosity
			}
			if outputDir != "" {
				settings.PublicDir = outputDir
			}

			log := logger.CreateLogger(settings.LogFile, settings.LogLevel)

			ctrl := pipeline.NewController(pipeline.Config{
				WorkspaceDir:  settings.WorkspaceDir,
				PublicDir:     settings.PublicDir,
				BaseURL:       settings.BaseURL,
				KeepWorkspace: keepWorkspace || settings.KeepWorkspace,
				Git:           settings.Git,
				Npm:           settings.Npm,
				Npx:           settings.Npx,
			}, runner.NewExecRunner(log), log)

			notify := notifier.New(notifier.Config{Enabled: settings.Notifications}, log)

			artifact, err := ctrl.Run(cmd.Context(), req, &consolePublisher{}, pipeline.Origin{})
			if err != nil {
				notify.NotifyBuildFailure(req.AppName, err)
				printError(fmt.Sprintf("Build failed: %v", err))
				return err
			}

			notify.NotifyBuildSuccess(req.AppName, *artifact)
			printSuccess(fmt.Sprintf("Package written to %s", artifact.Path))
			return nil
		},
	}

	cmd.Flags().StringVar(&req.AppName, "name", "", "application display name")
	cmd.Flags().StringVar(&req.AppID, "app-id", "", "Android application id (reverse-DNS)")
	cmd.Flags().StringVar(&orientation, "orientation", "", "screen orientation (portrait, landscape, user)")
	cmd.Flags().BoolVar(&req.Fullscreen, "fullscreen", false, "hide the status bar")
	cmd.Flags().StringVar(&req.VersionCode, "version-code", "", "Android versionCode")
	cmd.Flags().StringVar(&req.VersionName, "version-name", "", "Android versionName")
	cmd.Flags().StringVar(&req.Icon, "icon", "", "launcher icon URL or data: URI")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory to place the finished APK in")
	cmd.Flags().BoolVar(&keepWorkspace, "keep-workspace", false, "keep the session workspace for inspection")

	return cmd
}

// consolePublisher renders stream events to the terminal instead of a
// network peer.
type consolePublisher struct{}

func (p *consolePublisher) Publish(event types.Event) error {
	switch event.Type {
	case types.EventTypeStatus:
		printInfo(fmt.Sprintf("Stage: %s", event.Status))
	case types.EventTypeLog:
		if event.Log == nil {
			return nil
		}
		switch event.Log.Level {
		case types.LogLevelError:
			fmt.Println(color.RedString(event.Log.Message))
		case types.LogLevelCommand:
			fmt.Println(color.CyanString(event.Log.Message))
		case types.LogLevelSuccess:
			fmt.Println(color.GreenString(event.Log.Message))
		default:
			fmt.Println(event.Log.Message)
		}
	case types.EventTypeResult:
		if event.Result != nil && event.Result.Success && event.Result.DownloadURL != "" {
			printInfo(fmt.Sprintf("Download: %s", event.Result.DownloadURL))
		}
	}
	return nil
}

func (p *consolePublisher) Close() error { return nil }

var _ interfaces.Publisher = (*consolePublisher)(nil)
