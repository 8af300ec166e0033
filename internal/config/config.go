package config

import (
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Training TrainingConfig
	Ingest   IngestConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type TrainingConfig struct {
	TestRatio       float64
	Seed            int
	MinRows         int
	MaxCategories   int
	RetrainSchedule string
}

type IngestConfig struct {
	WatchDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Training: TrainingConfig{
			TestRatio:     0.2,
			Seed:          42,
			MinRows:       20,
			MaxCategories: 50,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a JSON file at
// $XDG_CONFIG_HOME/houser/config.json, then applies HOUSER_*
// environment variable overrides. A .env file in the working directory
// is loaded first, if present.
//
// The API token is generated on first load and persisted so the CLI
// and the server agree on it across restarts.
func Load() (Config, error) {
	godotenv.Load()
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if cfg.Server.APIToken == "" {
		token := uuid.NewString()
		if err := b.SetString(apiTokenKey, token); err != nil {
			return Config{}, err
		}
		cfg.Server.APIToken = token
	}

	return cfg, nil
}
