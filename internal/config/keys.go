package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

const apiTokenKey = "server.api_token"

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "HOUSER_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: apiTokenKey, typ: kString, env: "HOUSER_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "HOUSER_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "training.test_ratio", typ: kFloat, env: "HOUSER_TRAINING_TEST_RATIO",
		apply:   func(cfg *Config, v any) { cfg.Training.TestRatio = v.(float64) },
		extract: func(cfg Config) any { return cfg.Training.TestRatio },
	},
	{
		key: "training.seed", typ: kInt, env: "HOUSER_TRAINING_SEED",
		apply:   func(cfg *Config, v any) { cfg.Training.Seed = v.(int) },
		extract: func(cfg Config) any { return cfg.Training.Seed },
	},
	{
		key: "training.min_rows", typ: kInt, env: "HOUSER_TRAINING_MIN_ROWS",
		apply:   func(cfg *Config, v any) { cfg.Training.MinRows = v.(int) },
		extract: func(cfg Config) any { return cfg.Training.MinRows },
	},
	{
		key: "training.max_categories", typ: kInt, env: "HOUSER_TRAINING_MAX_CATEGORIES",
		apply:   func(cfg *Config, v any) { cfg.Training.MaxCategories = v.(int) },
		extract: func(cfg Config) any { return cfg.Training.MaxCategories },
	},
	{
		key: "training.retrain_schedule", typ: kString, env: "HOUSER_TRAINING_RETRAIN_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Training.RetrainSchedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Training.RetrainSchedule },
	},
	{
		key: "ingest.watch_dir", typ: kString, env: "HOUSER_INGEST_WATCH_DIR",
		apply:   func(cfg *Config, v any) { cfg.Ingest.WatchDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Ingest.WatchDir },
	},
	{
		key: "log.level", typ: kString, env: "HOUSER_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
