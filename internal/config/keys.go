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
		key: "server.port", typ: kInt, env: "PARROT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "PARROT_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PARROT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "classifier.corpus_path", typ: kString, env: "PARROT_CLASSIFIER_CORPUS_PATH",
		apply:   func(cfg *Config, v any) { cfg.Classifier.CorpusPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Classifier.CorpusPath },
	},
	{
		key: "classifier.model_path", typ: kString, env: "PARROT_CLASSIFIER_MODEL_PATH",
		apply:   func(cfg *Config, v any) { cfg.Classifier.ModelPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Classifier.ModelPath },
	},
	{
		key: "classifier.min_examples", typ: kInt, env: "PARROT_CLASSIFIER_MIN_EXAMPLES",
		apply:   func(cfg *Config, v any) { cfg.Classifier.MinExamples = v.(int) },
		extract: func(cfg Config) any { return cfg.Classifier.MinExamples },
	},
	{
		key: "classifier.trees", typ: kInt, env: "PARROT_CLASSIFIER_TREES",
		apply:   func(cfg *Config, v any) { cfg.Classifier.Trees = v.(int) },
		extract: func(cfg Config) any { return cfg.Classifier.Trees },
	},
	{
		key: "classifier.max_depth", typ: kInt, env: "PARROT_CLASSIFIER_MAX_DEPTH",
		apply:   func(cfg *Config, v any) { cfg.Classifier.MaxDepth = v.(int) },
		extract: func(cfg Config) any { return cfg.Classifier.MaxDepth },
	},
	{
		key: "classifier.seed", typ: kInt, env: "PARROT_CLASSIFIER_SEED",
		apply:   func(cfg *Config, v any) { cfg.Classifier.Seed = v.(int) },
		extract: func(cfg Config) any { return cfg.Classifier.Seed },
	},
	{
		key: "chat.corpus_path", typ: kString, env: "PARROT_CHAT_CORPUS_PATH",
		apply:   func(cfg *Config, v any) { cfg.Chat.CorpusPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.CorpusPath },
	},
	{
		key: "chat.model_path", typ: kString, env: "PARROT_CHAT_MODEL_PATH",
		apply:   func(cfg *Config, v any) { cfg.Chat.ModelPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.ModelPath },
	},
	{
		key: "chat.threshold", typ: kFloat, env: "PARROT_CHAT_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Chat.Threshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Chat.Threshold },
	},
	{
		key: "chat.fallback", typ: kString, env: "PARROT_CHAT_FALLBACK",
		apply:   func(cfg *Config, v any) { cfg.Chat.Fallback = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.Fallback },
	},
	{
		key: "log.level", typ: kString, env: "PARROT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
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
			v, ok, err := b.GetFloat(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
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
