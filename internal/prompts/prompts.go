// Package prompts loads versioned prompt configurations. The system prompt
// itself is never shipped with the repo; it must arrive via environment so
// public checkouts cannot run with a live persona by accident.
package prompts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	EnvSystemPromptText = "PROMPTOPS_SYSTEM_PROMPT_TEXT"
	EnvSystemPromptPath = "PROMPTOPS_SYSTEM_PROMPT_PATH"
)

// ErrSystemPromptBlocked reports that no system prompt source is configured.
var ErrSystemPromptBlocked = errors.New(
	"system prompt loading is blocked for public safety: set " +
		EnvSystemPromptPath + " or " + EnvSystemPromptText)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// Version is a versioned prompt configuration file.
type Version struct {
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	FewShotExamples []Example `json:"few_shot_examples"`
}

// Example is one few-shot user/assistant exchange.
type Example struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// ReadText reads a UTF-8 text file, tolerating a BOM written by Windows
// editors.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimPrefix(data, utf8BOM)), nil
}

// LoadVersion reads a prompt version JSON file.
func LoadVersion(path string) (*Version, error) {
	text, err := ReadText(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt version: %w", err)
	}

	var v Version
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("parse prompt version %s: %w", path, err)
	}
	return &v, nil
}

// ResolveSystemPrompt returns the system prompt from the environment.
// PROMPTOPS_SYSTEM_PROMPT_TEXT wins over PROMPTOPS_SYSTEM_PROMPT_PATH;
// with neither set the prompt is refused outright.
func ResolveSystemPrompt() (string, error) {
	if text := strings.TrimSpace(os.Getenv(EnvSystemPromptText)); text != "" {
		return text, nil
	}

	if path := strings.TrimSpace(os.Getenv(EnvSystemPromptPath)); path != "" {
		text, err := ReadText(path)
		if err != nil {
			return "", fmt.Errorf("read system prompt file: %w", err)
		}
		return text, nil
	}

	return "", ErrSystemPromptBlocked
}
