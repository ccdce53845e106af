// Package types provides core types and configurations for apkforge
package types

import (
	"fmt"
	"time"
)

// Orientation represents the requested screen orientation of the packaged app
type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
	// OrientationUser leaves the orientation unconstrained; the manifest is
	// never touched for this value.
	OrientationUser Orientation = "user"
)

// BuildMode represents the detected layout of a cloned repository
type BuildMode string

const (
	BuildModeNestedFrontend BuildMode = "nested-frontend"
	BuildModeRootProject    BuildMode = "root-project"
	BuildModeStatic         BuildMode = "static"
)

// Stage represents a named step in the fixed pipeline sequence
type Stage string

const (
	StageIdle         Stage = "idle"
	StageCloning      Stage = "cloning"
	StageInstalling   Stage = "installing"
	StageBuilding     Stage = "building"
	StageStaging      Stage = "staging"
	StageWrappingInit Stage = "wrapping_init"
	StagePlatformAdd  Stage = "platform_add"
	StageNativePatch  Stage = "native_patch"
	StagePlatformSync Stage = "platform_sync"
	StageIconApply    Stage = "icon_apply"
	StageCompiling    Stage = "compiling"
	StageSuccess      Stage = "success"
	StageError        Stage = "error"
)

// IsTerminal reports whether the stage ends a session
func (s Stage) IsTerminal() bool {
	return s == StageSuccess || s == StageError
}

// LogLevel represents the severity tag of a log entry
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelCommand LogLevel = "command"
	LogLevelError   LogLevel = "error"
	LogLevelSuccess LogLevel = "success"
)

// LogEntry represents one line of session output. Entries are append-only;
// emission order is the only meaningful order.
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Level     LogLevel  `json:"level"`
}

// BuildRequest represents the immutable input of one pipeline run
type BuildRequest struct {
	RepoURL     string      `json:"repoUrl"`
	AppName     string      `json:"appName,omitempty"`
	AppID       string      `json:"appId,omitempty"`
	Orientation Orientation `json:"orientation,omitempty"`
	Fullscreen  bool        `json:"fullscreen,omitempty"`
	VersionCode string      `json:"versionCode,omitempty"`
	VersionName string      `json:"versionName,omitempty"`
	// Icon is either an http(s) URL or a data: URI carrying an inline image
	Icon string `json:"icon,omitempty"`
}

// ApplyDefaults fills every optional field with its documented default
func (r *BuildRequest) ApplyDefaults() {
	if r.AppName == "" {
		r.AppName = "WebApp"
	}
	if r.AppID == "" {
		r.AppID = "com.webapp.generated"
	}
	if r.Orientation == "" {
		r.Orientation = OrientationPortrait
	}
	if r.VersionCode == "" {
		r.VersionCode = "1"
	}
	if r.VersionName == "" {
		r.VersionName = "1.0"
	}
}

// Validate rejects a malformed request before any side effect occurs
func (r *BuildRequest) Validate() error {
	if r.RepoURL == "" {
		return fmt.Errorf("repoUrl is required")
	}
	switch r.Orientation {
	case "", OrientationPortrait, OrientationLandscape, OrientationUser:
	default:
		return fmt.Errorf("invalid orientation: %s", r.Orientation)
	}
	return nil
}

// ProjectLayout represents the Structure Detector's classification of a
// cloned tree. Derived fresh per session, never persisted.
type ProjectLayout struct {
	Mode            BuildMode `json:"mode"`
	BuildOutputDir  string    `json:"buildOutputDir,omitempty"`
	HasRootManifest bool      `json:"hasRootManifest"`
	HasFrontendDir  bool      `json:"hasFrontendDir"`
}

// PatchResult represents the outcome of one idempotent patch operation
type PatchResult struct {
	Changed bool
	Reason  string
}

// BuildArtifact represents the published package of a successful session
type BuildArtifact struct {
	FileName    string `json:"fileName"`
	Path        string `json:"path"`
	DownloadURL string `json:"downloadUrl"`
}

// EventType discriminates stream event payloads
type EventType string

const (
	EventTypeLog    EventType = "log"
	EventTypeStatus EventType = "status"
	EventTypeResult EventType = "result"
)

// Result represents the terminal outcome of a session
type Result struct {
	Success     bool   `json:"success"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Event is the envelope pushed over a session's stream. Exactly one of Log,
// Status, Result is set, matching Type.
type Event struct {
	Type   EventType `json:"type"`
	Log    *LogEntry `json:"log,omitempty"`
	Status Stage     `json:"status,omitempty"`
	Result *Result   `json:"result,omitempty"`
}

// LogEvent wraps a log entry into an event
func LogEvent(entry LogEntry) Event {
	return Event{Type: EventTypeLog, Log: &entry}
}

// StatusEvent wraps a stage transition into an event
func StatusEvent(stage Stage) Event {
	return Event{Type: EventTypeStatus, Status: stage}
}

// ResultEvent wraps a terminal result into an event
func ResultEvent(result Result) Event {
	return Event{Type: EventTypeResult, Result: &result}
}
