package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:7890", cfg.ListenAddress)
	assert.NotEmpty(t, cfg.PendingScreenshots)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logLevel: debug
intakeUrl: http://intake.local/plays
screenshotWatchDirs:
  - /var/screenshots
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://intake.local/plays", cfg.IntakeURL)
	assert.Equal(t, []string{"/var/screenshots"}, cfg.ScreenshotWatchDirs)
	// unspecified keys keep their defaults
	assert.Equal(t, "127.0.0.1:7890", cfg.ListenAddress)
	assert.Equal(t, int64(4), cfg.WorkerPoolSize)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
