// Package interfaces provides abstractions for dependency injection and testability
package interfaces

import (
	"context"

	"github.com/apkforge/apkforge/pkg/types"
)

// StreamKind identifies which output stream of an external process a line
// was read from.
type StreamKind string

const (
	StreamStdout StreamKind = "stdout"
	StreamStderr StreamKind = "stderr"
)

// LineCallback is invoked for every non-blank output line of an external
// process, in the order received per stream. Interleaving between the two
// streams is not guaranteed.
type LineCallback func(line string, stream StreamKind)

// CommandRunner executes external commands. It is the single seam through
// which the pipeline touches the outside world.
type CommandRunner interface {
	Run(ctx context.Context, command string, args []string, workDir string, onLine LineCallback) error
}

// Publisher pushes session events to a caller over a long-lived channel.
// Publish is called in emission order; Close is called exactly once by the
// pipeline controller regardless of which state was reached.
type Publisher interface {
	Publish(event types.Event) error
	Close() error
}

// Notifier delivers out-of-band build notifications
type Notifier interface {
	NotifyBuildSuccess(appName string, artifact types.BuildArtifact)
	NotifyBuildFailure(appName string, err error)
}
