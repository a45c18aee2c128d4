package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the loaded config for required fields and usable values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}

	if err := validateOllamaConfig(cfg.Ollama); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Prompts.Version) == "" {
		return errors.New("prompts.version must be set")
	}

	if cfg.Chat.HistoryPairs < 0 {
		return fmt.Errorf("chat.history_pairs must not be negative, got %d", cfg.Chat.HistoryPairs)
	}

	if err := validateEventsConfig(cfg.Events); err != nil {
		return err
	}

	if err := validateEvalsConfig(cfg.Evals); err != nil {
		return err
	}

	return nil
}

func validateOllamaConfig(o OllamaConfig) error {
	if strings.TrimSpace(o.Model) == "" {
		return errors.New("ollama.model must be set")
	}
	if strings.TrimSpace(o.BaseURL) == "" {
		return errors.New("ollama.base_url must be set")
	}
	u, err := url.Parse(o.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ollama.base_url %q is not a valid URL", o.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("ollama.base_url must be http or https")
	}
	if o.TimeoutSeconds <= 0 {
		return fmt.Errorf("ollama.timeout_seconds must be positive, got %d", o.TimeoutSeconds)
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		return fmt.Errorf("ollama.temperature must be in [0, 2], got %v", o.Temperature)
	}
	return nil
}

func validateEventsConfig(a EventsConfig) error {
	if a.QueueSize < 1 {
		return fmt.Errorf("events.queue_size must be positive, got %d", a.QueueSize)
	}
	if a.Workers < 1 {
		return fmt.Errorf("events.workers must be positive, got %d", a.Workers)
	}
	for i, s := range a.Sinks {
		switch strings.ToLower(strings.TrimSpace(s.Type)) {
		case "file_jsonl":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("events sink %d (file_jsonl) missing path", i)
			}
		case "webhook":
			if strings.TrimSpace(s.URL) == "" {
				return fmt.Errorf("events sink %d (webhook) missing url", i)
			}
			u, err := url.Parse(s.URL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("events sink %d (webhook) has invalid url", i)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("events sink %d (webhook) url must be http or https", i)
			}
		default:
			return fmt.Errorf("events sink %d has unknown type %q", i, s.Type)
		}
	}
	return nil
}

func validateEvalsConfig(e EvalsConfig) error {
	if strings.TrimSpace(e.DataDir) == "" {
		return errors.New("evals.data_dir must be set")
	}
	if strings.TrimSpace(e.ResultsDir) == "" {
		return errors.New("evals.results_dir must be set")
	}
	if e.Concurrency < 1 {
		return fmt.Errorf("evals.concurrency must be positive, got %d", e.Concurrency)
	}
	return nil
}
