// Package notifier provides build notification functionality
package notifier

import (
	"fmt"

	"github.com/apkforge/apkforge/pkg/logger"
	"github.com/apkforge/apkforge/pkg/types"
	"github.com/gen2brain/beeep"
)

// BuildNotifier delivers desktop notifications for finished builds
type BuildNotifier struct {
	enabled bool
	logger  logger.Logger
}

// Config represents notification configuration
type Config struct {
	Enabled bool
}

// New creates a new build notifier
func New(config Config, log logger.Logger) *BuildNotifier {
	return &BuildNotifier{
		enabled: config.Enabled,
		logger:  log,
	}
}

// NotifyBuildSuccess notifies that a build produced an installable package
func (n *BuildNotifier) NotifyBuildSuccess(appName string, artifact types.BuildArtifact) {
	if !n.enabled {
		return
	}

	title := "✅ Package Ready"
	message := fmt.Sprintf("%s packaged as %s", appName, artifact.FileName)

	n.send(title, message)
}

// NotifyBuildFailure notifies that a build failed
func (n *BuildNotifier) NotifyBuildFailure(appName string, err error) {
	if !n.enabled {
		return
	}

	title := "❌ Build Failed"
	message := fmt.Sprintf("%s: %v", appName, err)

	n.send(title, message)
}

func (n *BuildNotifier) send(title, message string) {
	if err := beeep.Notify(title, message, ""); err != nil {
		if n.logger != nil {
			n.logger.Debug("Failed to send notification", logger.WithField("error", err))
		}
	}
}
