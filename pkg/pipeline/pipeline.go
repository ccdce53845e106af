// Package pipeline drives the fixed stage sequence that turns a web
// repository into a published Android package.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apkforge/apkforge/pkg/android"
	"github.com/apkforge/apkforge/pkg/assets"
	"github.com/apkforge/apkforge/pkg/detect"
	"github.com/apkforge/apkforge/pkg/interfaces"
	"github.com/apkforge/apkforge/pkg/logger"
	"github.com/apkforge/apkforge/pkg/types"
	"github.com/apkforge/apkforge/pkg/utils"
)

// debugAPKPath is where the native build tool leaves the compiled package,
// relative to the native project directory.
var debugAPKPath = filepath.Join("app", "build", "outputs", "apk", "debug", "app-debug.apk")

// capacitorPackages are installed into the project for the wrapping toolkit
var capacitorPackages = []string{"@capacitor/core", "@capacitor/cli", "@capacitor/android"}

// Config holds the controller's environment
type Config struct {
	WorkspaceDir string
	PublicDir    string
	// PublicPrefix is the URL path under which the public dir is served
	PublicPrefix string
	// BaseURL overrides the scheme://host derived from the trigger request
	BaseURL       string
	KeepWorkspace bool

	// External tool binaries, overridable for exotic installs
	Git string
	Npm string
	Npx string
}

// withDefaults fills zero-valued config fields
func (c Config) withDefaults() Config {
	if c.WorkspaceDir == "" {
		c.WorkspaceDir = "workspace"
	}
	if c.PublicDir == "" {
		c.PublicDir = "public"
	}
	if c.PublicPrefix == "" {
		c.PublicPrefix = "/downloads/"
	}
	if c.Git == "" {
		c.Git = "git"
	}
	if c.Npm == "" {
		c.Npm = "npm"
	}
	if c.Npx == "" {
		c.Npx = "npx"
	}
	return c
}

// Origin carries the forwarded protocol and host of the trigger request,
// used to construct externally reachable download URLs.
type Origin struct {
	Scheme string
	Host   string
}

// Controller owns the end-to-end stage sequence of a build session
type Controller struct {
	config Config
	runner interfaces.CommandRunner
	stager *assets.Stager
	icons  *android.IconInstaller
	logger logger.Logger
}

// NewController creates a pipeline controller
func NewController(cfg Config, run interfaces.CommandRunner, log logger.Logger) *Controller {
	return &Controller{
		config: cfg.withDefaults(),
		runner: run,
		stager: assets.NewStager(log),
		icons:  android.NewIconInstaller(log),
		logger: log,
	}
}

// Run executes the full pipeline for one request, pushing events through
// pub. The publisher is closed exactly once before Run returns, whatever
// state the session reached. The returned artifact is non-nil only on
// success.
func (c *Controller) Run(ctx context.Context, req types.BuildRequest, pub interfaces.Publisher, origin Origin) (artifact *types.BuildArtifact, err error) {
	if err := req.Validate(); err != nil {
		// Input errors are surfaced before any session side effect
		if pub != nil {
			_ = pub.Publish(types.ResultEvent(types.Result{Success: false, Error: err.Error()}))
			_ = pub.Close()
		}
		return nil, err
	}
	req.ApplyDefaults()

	s := newSession("", req, pub, c.logger)
	s.WorkDir = filepath.Join(c.config.WorkspaceDir, s.ID)

	defer func() {
		if pub != nil {
			_ = pub.Close()
		}
		if !c.config.KeepWorkspace {
			os.RemoveAll(s.WorkDir)
		}
	}()

	if mkErr := utils.EnsureDirectory(s.WorkDir); mkErr != nil {
		err = fmt.Errorf("failed to create session workspace: %w", mkErr)
		s.finish(types.Result{Success: false, Error: err.Error()})
		return nil, err
	}

	s.emit(types.LogLevelInfo, "Build session %s started for %s", shortID(s.ID), req.RepoURL)

	artifact, err = c.runStages(ctx, s, req, origin)
	if err != nil {
		s.finish(types.Result{Success: false, Error: err.Error()})
		return nil, err
	}

	s.emit(types.LogLevelSuccess, "Build complete: %s", artifact.FileName)
	s.finish(types.Result{Success: true, DownloadURL: artifact.DownloadURL})
	return artifact, nil
}

// runStages walks the fixed forward-only stage sequence. Any error is
// terminal for the session; the caller converts it into the error state.
func (c *Controller) runStages(ctx context.Context, s *Session, req types.BuildRequest, origin Origin) (*types.BuildArtifact, error) {
	s.setStage(types.StageCloning)
	if err := c.runTool(ctx, s, s.WorkDir, c.config.Git, "clone", "--depth", "1", req.RepoURL, "."); err != nil {
		return nil, err
	}

	layout := detect.Detect(s.WorkDir)
	s.emit(types.LogLevelInfo, "Detected %s project layout", layout.Mode)

	manifestDir := c.manifestDir(s.WorkDir, layout)
	if manifestDir != "" {
		s.setStage(types.StageInstalling)
		if err := c.runTool(ctx, s, manifestDir, c.config.Npm, "install"); err != nil {
			return nil, err
		}

		s.setStage(types.StageBuilding)
		if hasBuildScript(manifestDir) {
			if err := c.runTool(ctx, s, manifestDir, c.config.Npm, "run", "build"); err != nil {
				return nil, err
			}
		} else {
			s.emit(types.LogLevelInfo, "No build script declared, assuming pre-built or static assets")
		}

		// Output directories only exist after the build ran
		layout = detect.Detect(s.WorkDir)
	}

	s.setStage(types.StageStaging)
	if err := c.stager.Stage(layout, s.WorkDir, req.Fullscreen); err != nil {
		return nil, err
	}

	s.setStage(types.StageWrappingInit)
	if err := c.ensureRootManifest(s, req); err != nil {
		return nil, err
	}
	installArgs := append([]string{"install", "--save-dev"}, capacitorPackages...)
	if err := c.runTool(ctx, s, s.WorkDir, c.config.Npm, installArgs...); err != nil {
		return nil, err
	}
	if err := c.runTool(ctx, s, s.WorkDir, c.config.Npx, "cap", "init", req.AppName, req.AppID, "--web-dir", assets.WebRootName); err != nil {
		return nil, err
	}

	s.setStage(types.StagePlatformAdd)
	if err := c.runTool(ctx, s, s.WorkDir, c.config.Npx, "cap", "add", "android"); err != nil {
		return nil, err
	}

	s.setStage(types.StageNativePatch)
	androidDir := filepath.Join(s.WorkDir, "android")
	patcher := android.NewPatcher(androidDir, s.logger)
	for name, result := range patcher.Apply(req) {
		if result.Changed {
			s.emit(types.LogLevelInfo, "Applied %s patch", name)
		} else if result.Reason != "" {
			s.emit(types.LogLevelInfo, "Skipped %s patch: %s", name, result.Reason)
		}
	}

	s.setStage(types.StagePlatformSync)
	if err := c.runTool(ctx, s, s.WorkDir, c.config.Npx, "cap", "sync", "android"); err != nil {
		return nil, err
	}

	resDir := filepath.Join(androidDir, "app", "src", "main", "res")
	if req.Icon != "" && utils.DirectoryExists(resDir) {
		s.setStage(types.StageIconApply)
		if err := c.icons.Install(resDir, req.Icon); err != nil {
			// Best effort: icon trouble never fails the build
			s.emit(types.LogLevelError, "Icon could not be applied: %v", err)
		} else {
			s.emit(types.LogLevelInfo, "Launcher icon applied")
		}
	}

	s.setStage(types.StageCompiling)
	gradlew := filepath.Join(androidDir, "gradlew")
	if err := os.Chmod(gradlew, 0755); err != nil {
		s.emit(types.LogLevelInfo, "Could not mark gradlew executable: %v", err)
	}
	if err := c.runTool(ctx, s, androidDir, "./gradlew", "assembleDebug"); err != nil {
		return nil, err
	}

	return c.publishArtifact(s, req, origin)
}

// manifestDir returns the directory whose dependency manifest drives the
// install and build steps, or "" when the project has none.
func (c *Controller) manifestDir(workDir string, layout types.ProjectLayout) string {
	if layout.HasFrontendDir {
		frontend := filepath.Join(workDir, "frontend")
		if utils.FileExists(filepath.Join(frontend, "package.json")) {
			return frontend
		}
	}
	if layout.HasRootManifest {
		return workDir
	}
	return ""
}

// hasBuildScript reports whether the manifest declares a build step
func hasBuildScript(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return false
	}
	var manifest struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return false
	}
	return manifest.Scripts["build"] != ""
}

// ensureRootManifest synthesizes a minimal project descriptor when the
// cloned repository has none. The wrapping toolkit's tooling expects one
// regardless of the original project's structure.
func (c *Controller) ensureRootManifest(s *Session, req types.BuildRequest) error {
	path := filepath.Join(s.WorkDir, "package.json")
	if utils.FileExists(path) {
		return nil
	}

	manifest := map[string]interface{}{
		"name":    utils.SanitizeFileName(req.AppName),
		"version": "1.0.0",
		"private": true,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to synthesize project manifest: %w", err)
	}

	s.emit(types.LogLevelInfo, "Synthesized minimal package.json for toolkit")
	return nil
}

// runTool funnels an external command through the process runner, echoing
// the command line and forwarding its output into the session log. stdout
// lines are tagged info, stderr lines error.
func (c *Controller) runTool(ctx context.Context, s *Session, dir, command string, args ...string) error {
	s.emit(types.LogLevelCommand, "$ %s", displayCommand(command, args))

	return c.runner.Run(ctx, command, args, dir, func(line string, stream interfaces.StreamKind) {
		level := types.LogLevelInfo
		if stream == interfaces.StreamStderr {
			level = types.LogLevelError
		}
		s.emit(level, "%s", line)
	})
}

func displayCommand(command string, args []string) string {
	out := command
	for _, a := range args {
		out += " " + a
	}
	return out
}

// publishArtifact verifies the compiled package exists and moves it into
// the public directory under a collision-free name. Compiler success and
// artifact presence are verified independently.
func (c *Controller) publishArtifact(s *Session, req types.BuildRequest, origin Origin) (*types.BuildArtifact, error) {
	apkPath := filepath.Join(s.WorkDir, "android", debugAPKPath)
	if !utils.FileExists(apkPath) {
		return nil, fmt.Errorf("compile reported success but package not found at %s", apkPath)
	}

	if err := utils.EnsureDirectory(c.config.PublicDir); err != nil {
		return nil, fmt.Errorf("failed to create public directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.apk", utils.SanitizeFileName(req.AppName), utils.SanitizeFileName(req.VersionName))
	target := filepath.Join(c.config.PublicDir, name)
	if utils.Exists(target) {
		// The public dir is shared between sessions; never clobber another
		// session's output.
		name = fmt.Sprintf("%s_%s_%s.apk", utils.SanitizeFileName(req.AppName), utils.SanitizeFileName(req.VersionName), shortID(s.ID))
		target = filepath.Join(c.config.PublicDir, name)
	}

	if err := utils.MoveFile(apkPath, target); err != nil {
		return nil, fmt.Errorf("failed to publish package: %w", err)
	}

	return &types.BuildArtifact{
		FileName:    name,
		Path:        target,
		DownloadURL: c.downloadURL(origin, name),
	}, nil
}

// downloadURL builds the externally reachable URL of a published package
func (c *Controller) downloadURL(origin Origin, fileName string) string {
	base := c.config.BaseURL
	if base == "" {
		scheme := origin.Scheme
		if scheme == "" {
			scheme = "http"
		}
		host := origin.Host
		if host == "" {
			host = "localhost"
		}
		base = scheme + "://" + host
	}
	return base + c.config.PublicPrefix + fileName
}
