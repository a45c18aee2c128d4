package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.Server.Addr)
	}
	if cfg.Ollama.BaseURL != "http://127.0.0.1:11434" {
		t.Fatalf("expected default base url, got %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.Model != "llama3.2:1b" {
		t.Fatalf("expected default model, got %q", cfg.Ollama.Model)
	}
	if cfg.Chat.HistoryPairs != 8 {
		t.Fatalf("expected default history pairs, got %d", cfg.Chat.HistoryPairs)
	}
	if len(cfg.Events.Sinks) != 1 || cfg.Events.Sinks[0].Type != "file_jsonl" {
		t.Fatalf("expected default file sink, got %+v", cfg.Events.Sinks)
	}
}

func TestLoadAppliesFileAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
server:
  addr: ":9090"
ollama:
  model: "qwen2.5:3b"
chat:
  history_pairs: 4
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("expected file addr, got %q", cfg.Server.Addr)
	}
	if cfg.Ollama.Model != "qwen2.5:3b" {
		t.Fatalf("expected file model, got %q", cfg.Ollama.Model)
	}
	// untouched sections still get defaults
	if cfg.Ollama.TimeoutSeconds != 120 {
		t.Fatalf("expected default timeout, got %d", cfg.Ollama.TimeoutSeconds)
	}
	if cfg.Chat.HistoryPairs != 4 {
		t.Fatalf("expected file history pairs, got %d", cfg.Chat.HistoryPairs)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://10.0.0.5:11434")
	t.Setenv("OLLAMA_MODEL", "llama3.2:3b")
	t.Setenv("PROMPT_VERSION", "prompts/versions/v2_strict_json.json")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ollama.BaseURL != "http://10.0.0.5:11434" {
		t.Fatalf("expected env base url, got %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.Model != "llama3.2:3b" {
		t.Fatalf("expected env model, got %q", cfg.Ollama.Model)
	}
	if cfg.Prompts.Version != "prompts/versions/v2_strict_json.json" {
		t.Fatalf("expected env prompt version, got %q", cfg.Prompts.Version)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [broken"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected yaml error")
	}
}
