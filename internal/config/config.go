package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/codefionn/wifichat/internal/consts"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Environment variables that override file values
const (
	EnvDeviceName = "WIFICHAT_DEVICE_NAME"
	EnvPort       = "WIFICHAT_PORT"
	EnvUIAddr     = "WIFICHAT_UI_ADDR"
	EnvLogLevel   = "WIFICHAT_LOG_LEVEL"
	EnvLogPath    = "WIFICHAT_LOG_PATH"
)

// Config represents node configuration
type Config struct {
	DeviceName         string   `json:"device_name"`              // sender of every outgoing chat row
	DeviceAddress      string   `json:"device_address,omitempty"` // this device's roster entry
	Port               int      `json:"port"`
	DialTimeoutSeconds int      `json:"dial_timeout_seconds"`
	MailboxSize        int      `json:"mailbox_size"`
	UIAddr             string   `json:"ui_addr"`         // empty disables the UI bridge
	LogLevel           string   `json:"log_level"`       // debug, info, warn, error, none
	LogPath            string   `json:"log_path"`        // empty logs to stderr
	Peers              []string `json:"peers,omitempty"` // seeds the peer registry
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "wifichat")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", "wifichat")
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, "wifichat")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "wifichat")
	}
}

// DefaultDeviceName derives a device name from the hostname, falling back to
// a random short id.
func DefaultDeviceName() string {
	if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
		return host
	}
	return "device-" + uuid.NewString()[:8]
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		DeviceName:         DefaultDeviceName(),
		Port:               consts.DefaultPort,
		DialTimeoutSeconds: int(consts.DefaultDialTimeout / time.Second),
		MailboxSize:        consts.DefaultMailboxSize,
		UIAddr:             consts.DefaultUIAddr,
		LogLevel:           "info",
	}
}

// Load loads configuration from file. A missing file yields the defaults.
// Values from the environment (and a .env file in the working directory)
// override the file.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, err
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.fillDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvDeviceName)); v != "" {
		c.DeviceName = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Port = port
	}
	if v, ok := os.LookupEnv(EnvUIAddr); ok {
		c.UIAddr = strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogPath)); v != "" {
		c.LogPath = v
	}
	return nil
}

func (c *Config) fillDefaults() {
	if strings.TrimSpace(c.DeviceName) == "" {
		c.DeviceName = DefaultDeviceName()
	}
	if c.DialTimeoutSeconds <= 0 {
		c.DialTimeoutSeconds = int(consts.DefaultDialTimeout / time.Second)
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = consts.DefaultMailboxSize
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports configuration values the node cannot run with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if strings.Contains(c.DeviceName, "^&^") {
		return fmt.Errorf("device name %q contains the row delimiter", c.DeviceName)
	}
	return nil
}

// DialTimeout returns the dial timeout as a duration
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSeconds) * time.Second
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
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
