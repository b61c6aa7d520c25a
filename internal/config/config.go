package config

import (
	"log/slog"
	"path/filepath"
	"strings"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Classifier ClassifierConfig
	Chat       ChatConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

// ClassifierConfig configures the text classifier. Empty paths resolve
// under the data directory.
type ClassifierConfig struct {
	CorpusPath  string
	ModelPath   string
	MinExamples int
	Trees       int
	MaxDepth    int
	Seed        int
}

// ChatConfig configures the question/answer responder.
type ChatConfig struct {
	CorpusPath string
	ModelPath  string
	Threshold  float64
	Fallback   string
}

type LogConfig struct {
	Level string
}

// SlogLevel maps Level to a slog level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Classifier: ClassifierConfig{
			MinExamples: 20,
			Trees:       200,
			MaxDepth:    10,
			Seed:        42,
		},
		Chat: ChatConfig{
			Threshold: 0.8,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.parrot.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/parrot/config.json.
//
// Environment variables (PARROT_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	cfg.resolvePaths()
	return cfg, nil
}

func (c *Config) resolvePaths() {
	dir := c.Storage.DataDir
	if c.Classifier.CorpusPath == "" {
		c.Classifier.CorpusPath = filepath.Join(dir, "training_data.json")
	}
	if c.Classifier.ModelPath == "" {
		c.Classifier.ModelPath = filepath.Join(dir, "model", "model.bin")
	}
	if c.Chat.CorpusPath == "" {
		c.Chat.CorpusPath = filepath.Join(dir, "chat_data.json")
	}
	if c.Chat.ModelPath == "" {
		c.Chat.ModelPath = filepath.Join(dir, "model", "chat_model.bin")
	}
}
