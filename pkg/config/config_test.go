package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apkforge/apkforge/pkg/config"
	"github.com/apkforge/apkforge/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logger.Logger {
	return logger.CreateLoggerWithOutput("", "error", &bytes.Buffer{})
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	settings, err := config.NewManager().Load("", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", settings.ListenAddr)
	assert.Equal(t, "workspace", settings.WorkspaceDir)
	assert.Equal(t, "public", settings.PublicDir)
	assert.Equal(t, "/downloads/", settings.PublicPrefix)
	assert.Equal(t, "info", settings.LogLevel)
	assert.Equal(t, "git", settings.Git)
	assert.True(t, settings.Notifications)
	assert.False(t, settings.KeepWorkspace)
}

func TestLoad_JSONFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "apkforge.config.json", `{
		"listenAddr": ":9090",
		"baseUrl": "https://forge.example.com",
		"keepWorkspace": true,
		"logLevel": "debug"
	}`)

	settings, err := config.NewManager().Load("", dir)
	require.NoError(t, err)

	assert.Equal(t, ":9090", settings.ListenAddr)
	assert.Equal(t, "https://forge.example.com", settings.BaseURL)
	assert.True(t, settings.KeepWorkspace)
	assert.Equal(t, "debug", settings.LogLevel)
	// Unset keys keep their defaults
	assert.Equal(t, "public", settings.PublicDir)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "apkforge.config.yaml", "listenAddr: \":7070\"\nnpm: pnpm\n")

	settings, err := config.NewManager().Load("", dir)
	require.NoError(t, err)

	assert.Equal(t, ":7070", settings.ListenAddr)
	assert.Equal(t, "pnpm", settings.Npm)
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "custom.json", `{"publicPrefix": "/artifacts/"}`)

	settings, err := config.NewManager().Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "/artifacts/", settings.PublicPrefix)
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	_, err := config.NewManager().Load(filepath.Join(t.TempDir(), "nope.json"), "")
	assert.Error(t, err)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("APKFORGE_LISTENADDR", ":6060")

	settings, err := config.NewManager().Load("", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ":6060", settings.ListenAddr)
}

func TestLoad_RejectsInvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "apkforge.config.json", `{"logLevel": "loud"}`)

	_, err := config.NewManager().Load("", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Settings)
		wantErr bool
	}{
		{"defaults are valid", func(s *config.Settings) {}, false},
		{"empty listen addr", func(s *config.Settings) { s.ListenAddr = "" }, true},
		{"empty workspace dir", func(s *config.Settings) { s.WorkspaceDir = "" }, true},
		{"empty public dir", func(s *config.Settings) { s.PublicDir = "" }, true},
		{"relative public prefix", func(s *config.Settings) { s.PublicPrefix = "downloads/" }, true},
		{"bad log level", func(s *config.Settings) { s.LogLevel = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := config.DefaultSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	dir := t.TempDir()

	path, err := config.WriteDefault(dir)
	require.NoError(t, err)
	assert.FileExists(t, path)

	settings, err := config.NewManager().Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSettings(), settings)

	// Second write refuses to clobber
	_, err = config.WriteDefault(dir)
	assert.Error(t, err)
}

func TestReloadManager_TriggerReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "apkforge.config.json", `{"logLevel": "debug"}`)

	rm := config.NewReloadManager(path, testLogger())

	reloaded := make(chan config.Settings, 1)
	rm.AddCallback(func(s config.Settings, err error) {
		if err == nil {
			reloaded <- s
		}
	})

	rm.TriggerReload()

	select {
	case s := <-reloaded:
		assert.Equal(t, "debug", s.LogLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestReloadManager_WatchesFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "apkforge.config.json", `{"logLevel": "info"}`)

	rm := config.NewReloadManager(path, testLogger())
	rm.SetDebouncePeriod(20 * time.Millisecond)
	require.NoError(t, rm.StartWatching())
	defer rm.StopWatching()

	assert.True(t, rm.IsWatching())

	reloaded := make(chan config.Settings, 4)
	rm.AddCallback(func(s config.Settings, err error) {
		if err == nil {
			reloaded <- s
		}
	})

	// Ensure the mtime moves forward even on coarse filesystems
	time.Sleep(50 * time.Millisecond)
	writeConfig(t, dir, "apkforge.config.json", `{"logLevel": "warn"}`)

	select {
	case s := <-reloaded:
		assert.Equal(t, "warn", s.LogLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never delivered the change")
	}
}

func TestReloadManager_StartTwiceFails(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "apkforge.config.json", `{}`)

	rm := config.NewReloadManager(path, testLogger())
	require.NoError(t, rm.StartWatching())
	defer rm.StopWatching()

	assert.Error(t, rm.StartWatching())
}
