// Package config handles configuration loading and management
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigFileName is the base name looked up in the working directory,
// with .json or .yaml extension.
const ConfigFileName = "apkforge.config"

// Settings is the full server and pipeline configuration.
type Settings struct {
	ListenAddr    string `json:"listenAddr" mapstructure:"listenAddr"`
	WorkspaceDir  string `json:"workspaceDir" mapstructure:"workspaceDir"`
	PublicDir     string `json:"publicDir" mapstructure:"publicDir"`
	PublicPrefix  string `json:"publicPrefix" mapstructure:"publicPrefix"`
	BaseURL       string `json:"baseUrl" mapstructure:"baseUrl"`
	KeepWorkspace bool   `json:"keepWorkspace" mapstructure:"keepWorkspace"`

	LogLevel string `json:"logLevel" mapstructure:"logLevel"`
	LogFile  string `json:"logFile" mapstructure:"logFile"`

	// Tool overrides, mostly useful for tests and exotic environments
	Git string `json:"git" mapstructure:"git"`
	Npm string `json:"npm" mapstructure:"npm"`
	Npx string `json:"npx" mapstructure:"npx"`

	Notifications bool `json:"notifications" mapstructure:"notifications"`
}

// DefaultSettings returns the configuration used when no file is present.
func DefaultSettings() Settings {
	return Settings{
		ListenAddr:    ":8080",
		WorkspaceDir:  "workspace",
		PublicDir:     "public",
		PublicPrefix:  "/downloads/",
		LogLevel:      "info",
		Git:           "git",
		Npm:           "npm",
		Npx:           "npx",
		Notifications: true,
	}
}

// Manager handles configuration operations
type Manager struct {
	v *viper.Viper
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{v: viper.New()}
}

// Load reads configuration from an explicit file, or searches dir for
// apkforge.config.json / apkforge.config.yaml when path is empty.
// Environment variables prefixed APKFORGE_ override file values either way.
func (m *Manager) Load(path, dir string) (Settings, error) {
	settings := DefaultSettings()

	m.v.SetEnvPrefix("APKFORGE")
	m.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.v.AutomaticEnv()
	m.applyDefaults(settings)

	if path != "" {
		m.v.SetConfigFile(path)
		if err := m.v.ReadInConfig(); err != nil {
			return settings, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		if dir == "" {
			dir = "."
		}
		m.v.AddConfigPath(dir)
		m.v.SetConfigName(ConfigFileName)
		if err := m.v.ReadInConfig(); err != nil {
			// Missing file falls back to defaults; anything else is fatal
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return settings, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if err := m.v.Unmarshal(&settings); err != nil {
		return settings, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

// ConfigFileUsed returns the path of the file the last Load read, if any.
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Validate rejects settings the server cannot start with.
func (s Settings) Validate() error {
	if s.ListenAddr == "" {
		return fmt.Errorf("listenAddr must not be empty")
	}
	if s.WorkspaceDir == "" {
		return fmt.Errorf("workspaceDir must not be empty")
	}
	if s.PublicDir == "" {
		return fmt.Errorf("publicDir must not be empty")
	}
	if !strings.HasPrefix(s.PublicPrefix, "/") {
		return fmt.Errorf("publicPrefix must start with /: %q", s.PublicPrefix)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", s.LogLevel)
	}
	return nil
}

// WriteDefault writes a default JSON config file, refusing to clobber
// an existing one.
func WriteDefault(dir string) (string, error) {
	path := filepath.Join(dir, ConfigFileName+".json")
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("config file already exists: %s", path)
	}

	v := viper.New()
	m := &Manager{v: v}
	m.applyDefaults(DefaultSettings())
	v.SetConfigFile(path)
	if err := v.WriteConfigAs(path); err != nil {
		return path, fmt.Errorf("failed to write config file: %w", err)
	}
	return path, nil
}

func (m *Manager) applyDefaults(s Settings) {
	m.v.SetDefault("listenAddr", s.ListenAddr)
	m.v.SetDefault("workspaceDir", s.WorkspaceDir)
	m.v.SetDefault("publicDir", s.PublicDir)
	m.v.SetDefault("publicPrefix", s.PublicPrefix)
	m.v.SetDefault("baseUrl", s.BaseURL)
	m.v.SetDefault("keepWorkspace", s.KeepWorkspace)
	m.v.SetDefault("logLevel", s.LogLevel)
	m.v.SetDefault("logFile", s.LogFile)
	m.v.SetDefault("git", s.Git)
	m.v.SetDefault("npm", s.Npm)
	m.v.SetDefault("npx", s.Npx)
	m.v.SetDefault("notifications", s.Notifications)
}
