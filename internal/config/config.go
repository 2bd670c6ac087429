// Package config loads arcadewatchd's YAML configuration file, merging it
// with coded defaults the way the teacher's cmd/common/config.go does:
// read → parse → merge-with-defaults, so a sparse or missing config file
// still produces a runnable daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/imdario/mergo"
	"gopkg.in/yaml.v3"

	"github.com/kagehashi-labs/arcadewatchd/internal/logging"
)

// Config is every path, URL, and tunable this daemon needs at startup.
type Config struct {
	LogLevel  string `yaml:"logLevel"`
	LogOutput string `yaml:"logOutput"`

	GamesDB string `yaml:"gamesDb"`
	PlaysDB string `yaml:"playsDb"`

	PendingScreenshots string `yaml:"pendingScreenshots"`
	PendingSaves       string `yaml:"pendingSaves"`
	KeepSaves          string `yaml:"keepSaves"`
	ExtraDirectory     string `yaml:"extraDirectory"`
	LatestScreenshot   string `yaml:"latestScreenshot"`
	TrimGamePrefix     string `yaml:"trimGamePrefix"`

	// Emulator-side directories to watch for new screenshots and save
	// files. These are where the emulator writes, not this daemon's own
	// pending_* trees; leaving either empty disables that watcher.
	ScreenshotWatchDirs []string `yaml:"screenshotWatchDirs"`
	SaveWatchDirs       []string `yaml:"saveWatchDirs"`

	IntakeURL      string `yaml:"intakeUrl"`
	ScreenshotURL  string `yaml:"screenshotUrl"`
	ScreenshotExtraURL string `yaml:"screenshotExtraUrl"`
	SaveURL        string `yaml:"saveUrl"`

	ListenAddress string `yaml:"listenAddress"`

	NotifierMode  string `yaml:"notifierMode"`
	LEDRedPath    string `yaml:"ledRedPath"`
	LEDGreenPath  string `yaml:"ledGreenPath"`

	WorkerPoolSize int64 `yaml:"workerPoolSize"`
}

// Defaults returns the coded default Config, relative to the user's cache
// directory the way the teacher anchors CacheDir.
func Defaults() Config {
	cacheDir, _ := os.UserCacheDir()
	base := filepath.Join(cacheDir, "arcadewatchd")
	return Config{
		LogLevel:           "info",
		LogOutput:          "stdout",
		GamesDB:            filepath.Join(base, "games.db"),
		PlaysDB:            filepath.Join(base, "plays.db"),
		PendingScreenshots: filepath.Join(base, "pending_screenshots"),
		PendingSaves:       filepath.Join(base, "pending_saves"),
		KeepSaves:          filepath.Join(base, "keep_saves"),
		ExtraDirectory:     filepath.Join(base, "pending_screenshots", "extra"),
		LatestScreenshot:   filepath.Join(base, "pending_screenshots", "latest.png"),
		ListenAddress:      "127.0.0.1:7890",
		NotifierMode:       "log",
		WorkerPoolSize:     4,
	}
}

func readConfigFile(path string) ([]byte, error) { return os.ReadFile(path) }

func parseConfig(data []byte) (*Config, error) {
	c := &Config{}
	err := yaml.Unmarshal(data, c)
	return c, err
}

func mergeWithDefaults(c *Config, defaults Config) error {
	return mergo.Merge(c, defaults)
}

// Load reads path, merges with Defaults(), and returns the result. A
// missing config file is not an error — the daemon runs on defaults alone,
// matching the teacher's LoadConfig fallback behavior.
func Load(path string) (*Config, error) {
	log := logging.Named("config")
	defaults := Defaults()

	raw, err := readConfigFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str(logging.FieldPath, path).Msg("configuration file not found, using defaults")
			d := defaults
			return &d, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg, err := parseConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := mergeWithDefaults(cfg, defaults); err != nil {
		return nil, fmt.Errorf("merging config with defaults: %w", err)
	}

	return cfg, nil
}
