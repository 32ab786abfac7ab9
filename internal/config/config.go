// Package config loads and persists the bridge daemon configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// SocketConfig holds the local socket listener settings
type SocketConfig struct {
	Path           string `json:"path,omitempty"`            // Socket path (Unix) or pipe name (Windows); empty uses the platform default
	Permissions    string `json:"permissions,omitempty"`     // Octal file mode for the Unix socket, e.g. "0600"
	MaxConnections int    `json:"max_connections,omitempty"` // Maximum concurrent peer connections; 0 uses the built-in default
}

// GetSocketPath returns the configured socket path, falling back to the
// platform default when none is set.
func (s SocketConfig) GetSocketPath() string {
	if strings.TrimSpace(s.Path) != "" {
		return s.Path
	}
	return DefaultSocketPath()
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `json:"level"` // debug, info, warn, error, none
	Path  string `json:"path"`  // Log file path; empty logs to stderr only
}

// ExtensionConfig describes one known extension peer. Entries are keyed by
// the peer's executable name as reported by the operating system.
type ExtensionConfig struct {
	ExtensionName         string   `json:"extension_name"`
	AppNames              []string `json:"app_names,omitempty"`
	SupportsNotifications bool     `json:"supports_notifications"`
}

// Config represents the daemon configuration
type Config struct {
	Socket     SocketConfig               `json:"socket"`
	Log        LogConfig                  `json:"log"`
	Extensions map[string]ExtensionConfig `json:"extensions,omitempty"`
	PidFile    string                     `json:"pid_file"`
	LockFile   string                     `json:"lock_file"`

	// DebugAddr enables the HTTP debug listener (pprof profiles and a
	// bridge status snapshot) when set, e.g. "127.0.0.1:6061". The debug
	// surface carries no authentication; bind it to loopback only.
	DebugAddr string `json:"debug_addr,omitempty"`

	// ActivationTimeoutSeconds bounds how long a new connection may sit in
	// the connecting state before it is destroyed. 0 disables the bound.
	ActivationTimeoutSeconds int `json:"activation_timeout_seconds"`
}

// ActivationTimeout returns the configured activation bound as a duration.
func (c *Config) ActivationTimeout() time.Duration {
	if c.ActivationTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.ActivationTimeoutSeconds) * time.Second
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "extbridge")
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "extbridge")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", "extbridge")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "extbridge")
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, "extbridge")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "extbridge")
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, "extbridge")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", "extbridge")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "extbridge")
	}
}

// DefaultSocketPath returns the platform default socket address.
func DefaultSocketPath() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\extbridge`
	}
	if runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtimeDir != "" {
		return filepath.Join(runtimeDir, "extbridge.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("extbridge-%d.sock", os.Getuid()))
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	stateDir := defaultStateDir()

	return &Config{
		Socket: SocketConfig{
			Path:           "",
			Permissions:    "0600",
			MaxConnections: 32,
		},
		Log: LogConfig{
			Level: "info",
			Path:  filepath.Join(stateDir, "extbridge.log"),
		},
		Extensions:               make(map[string]ExtensionConfig),
		PidFile:                  filepath.Join(stateDir, "extbridge.pid"),
		LockFile:                 filepath.Join(stateDir, "extbridge.lock"),
		ActivationTimeoutSeconds: 30,
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config if file doesn't exist
			return config, nil
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	// Ensure critical fields have defaults if still empty
	stateDir := defaultStateDir()
	if config.Socket.Permissions == "" {
		config.Socket.Permissions = "0600"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.PidFile == "" {
		config.PidFile = filepath.Join(stateDir, "extbridge.pid")
	}
	if config.LockFile == "" {
		config.LockFile = filepath.Join(stateDir, "extbridge.lock")
	}
	if config.Extensions == nil {
		config.Extensions = make(map[string]ExtensionConfig)
	}

	return config, nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}
