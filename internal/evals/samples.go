package evals

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/promptcraft-lab/promptops/internal/prompts"
)

// Sample is one evaluation case read from a JSONL dataset. Which of the
// expectation fields applies depends on Metric.
type Sample struct {
	ID               string   `json:"id"`
	Category         string   `json:"category"`
	Metric           string   `json:"metric"`
	Input            string   `json:"input"`
	Expected         string   `json:"expected"`
	ExpectedKeywords []string `json:"expected_keywords"`
	ExpectedJSONKeys []string `json:"expected_json_keys"`
	ExpectRefusal    bool     `json:"expect_refusal"`
}

// LoadSamples reads one JSONL file, skipping blank lines.
func LoadSamples(path string) ([]Sample, error) {
	text, err := prompts.ReadText(path)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	var out []Sample
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var s Sample
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			return nil, fmt.Errorf("parse sample %s line %d: %w", path, i+1, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CollectSamples gathers every *.jsonl dataset under dir in filename order.
func CollectSamples(dir string) ([]Sample, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("list sample files: %w", err)
	}
	var all []Sample
	for _, p := range paths {
		rows, err := LoadSamples(p)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}
