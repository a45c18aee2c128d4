// Package config loads PromptOps configuration from YAML with sensible
// local-first defaults. A missing config file is not an error; the defaults
// target a local Ollama instance.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds PromptOps configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Guardrails GuardrailsConfig `yaml:"guardrails"`
	Prompts    PromptsConfig    `yaml:"prompts"`
	Chat       ChatConfig       `yaml:"chat"`
	Events     EventsConfig     `yaml:"events"`
	Evals      EvalsConfig      `yaml:"evals"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"` // HTTP listen address, e.g. ":8080"
}

type OllamaConfig struct {
	BaseURL        string  `yaml:"base_url"` // e.g. "http://127.0.0.1:11434"
	Model          string  `yaml:"model"`    // e.g. "llama3.2:1b"
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

type GuardrailsConfig struct {
	// PolicyPath points at a policy JSON file. When empty the policy is
	// resolved from PROMPTOPS_POLICY_PATH and PROMPTOPS_STRICT_GUARDRAILS.
	PolicyPath string `yaml:"policy_path"`
}

type PromptsConfig struct {
	Version string `yaml:"version"` // prompt version file, e.g. "prompts/versions/v1_baseline.json"
}

type ChatConfig struct {
	HistoryPairs int `yaml:"history_pairs"` // user/assistant pairs kept per turn
}

type EventsConfig struct {
	QueueSize         int          `yaml:"queue_size"`
	Workers           int          `yaml:"workers"`
	ShutdownTimeoutMS int          `yaml:"shutdown_timeout_ms"`
	Sinks             []SinkConfig `yaml:"sinks"`
}

type SinkConfig struct {
	Type      string            `yaml:"type"` // file_jsonl | webhook
	Path      string            `yaml:"path"`
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	TimeoutMS int               `yaml:"timeout_ms"`
}

type EvalsConfig struct {
	DataDir     string `yaml:"data_dir"`
	ResultsDir  string `yaml:"results_dir"`
	Concurrency int    `yaml:"concurrency"`
}

// Load reads configuration from a YAML file. If the file doesn't exist, it
// returns a default config and no error. Environment overrides
// (OLLAMA_BASE_URL, OLLAMA_MODEL, PROMPT_VERSION) apply after file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultConfig()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}

	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = "http://127.0.0.1:11434"
	}
	if cfg.Ollama.Model == "" {
		cfg.Ollama.Model = "llama3.2:1b"
	}
	if cfg.Ollama.Temperature == 0 {
		cfg.Ollama.Temperature = 0.1
	}
	if cfg.Ollama.TimeoutSeconds == 0 {
		cfg.Ollama.TimeoutSeconds = 120
	}

	if cfg.Prompts.Version == "" {
		cfg.Prompts.Version = "prompts/versions/v1_baseline.json"
	}

	if cfg.Chat.HistoryPairs == 0 {
		cfg.Chat.HistoryPairs = 8
	}

	if cfg.Events.QueueSize == 0 {
		cfg.Events.QueueSize = 256
	}
	if cfg.Events.Workers == 0 {
		cfg.Events.Workers = 2
	}
	if cfg.Events.ShutdownTimeoutMS == 0 {
		cfg.Events.ShutdownTimeoutMS = 5000
	}
	if len(cfg.Events.Sinks) == 0 {
		cfg.Events.Sinks = []SinkConfig{
			{Type: "file_jsonl", Path: "eval/results/internal_metrics.jsonl"},
		}
	}

	if cfg.Evals.DataDir == "" {
		cfg.Evals.DataDir = "eval/data"
	}
	if cfg.Evals.ResultsDir == "" {
		cfg.Evals.ResultsDir = "eval/results"
	}
	if cfg.Evals.Concurrency == 0 {
		cfg.Evals.Concurrency = 4
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.Ollama.Model = v
	}
	if v := os.Getenv("PROMPT_VERSION"); v != "" {
		cfg.Prompts.Version = v
	}
}
