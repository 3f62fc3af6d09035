package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codefionn/wifichat/internal/consts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvDeviceName, EnvPort, EnvLogLevel, EnvLogPath} {
		t.Setenv(key, "")
	}
	// Run from an empty directory so a developer's .env is not picked up
	t.Chdir(t.TempDir())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotEmpty(t, cfg.DeviceName)
	assert.Equal(t, consts.DefaultPort, cfg.Port)
	assert.Equal(t, consts.DefaultDialTimeout, cfg.DialTimeout())
	assert.Equal(t, consts.DefaultMailboxSize, cfg.MailboxSize)
	assert.Equal(t, consts.DefaultUIAddr, cfg.UIAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, consts.DefaultPort, cfg.Port)
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"device_name": "pixel",
		"device_address": "AA:BB",
		"port": 2080,
		"log_level": "debug",
		"peers": ["CC:DD", "EE:FF"]
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pixel", cfg.DeviceName)
	assert.Equal(t, "AA:BB", cfg.DeviceAddress)
	assert.Equal(t, 2080, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"CC:DD", "EE:FF"}, cfg.Peers)
	// Zero values in the file fall back to defaults
	assert.Equal(t, consts.DefaultMailboxSize, cfg.MailboxSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"device_name":"file","port":2080}`), 0644))

	t.Setenv(EnvDeviceName, "env")
	t.Setenv(EnvPort, "3080")
	t.Setenv(EnvUIAddr, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.DeviceName)
	assert.Equal(t, 3080, cfg.Port)
	assert.Empty(t, cfg.UIAddr)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.WriteFile(".env", []byte(EnvLogLevel+"=warn\n"), 0644))
	t.Cleanup(func() { os.Unsetenv(EnvLogLevel) })
	os.Unsetenv(EnvLogLevel)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	t.Run("bad json", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{`), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("port out of range", func(t *testing.T) {
		path := filepath.Join(dir, "port.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"port":70000}`), 0644))
		_, err := Load(path)
		assert.ErrorContains(t, err, "out of range")
	})

	t.Run("device name with row delimiter", func(t *testing.T) {
		path := filepath.Join(dir, "name.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"device_name":"a^&^b"}`), 0644))
		_, err := Load(path)
		assert.ErrorContains(t, err, "delimiter")
	})

	t.Run("non numeric port env", func(t *testing.T) {
		t.Setenv(EnvPort, "ten")
		_, err := Load("")
		assert.ErrorContains(t, err, EnvPort)
	})
}

func TestSaveAndLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.DeviceName = "saved"
	cfg.Peers = []string{"AA:BB"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.DeviceName)
	assert.Equal(t, []string{"AA:BB"}, loaded.Peers)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if os.Getenv("APPDATA") == "" {
		assert.Equal(t, filepath.Join("/tmp/xdg", "wifichat", "config.json"), GetConfigPath())
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level":"info"}`), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config) { changes <- cfg })
	}()

	// Keep rewriting until the watcher has been registered
	deadline := time.After(consts.Timeout5Seconds)
	for {
		require.NoError(t, os.WriteFile(path, []byte(`{"log_level":"debug"}`), 0644))
		select {
		case cfg := <-changes:
			assert.Equal(t, "debug", cfg.LogLevel)
			cancel()
			require.NoError(t, <-done)
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}
}
