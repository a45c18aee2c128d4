package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/promptcraft-lab/promptops/internal/inference"
)

// ErrModelNotFound reports that both the chat and generate endpoints
// returned 404, which usually means the model has not been pulled.
var ErrModelNotFound = errors.New("ollama returned 404 for chat/generate")

const (
	defaultOllamaBaseURL = "http://127.0.0.1:11434"
	defaultOllamaModel   = "llama3.2:1b"
	defaultTemperature   = 0.1
	defaultChatTimeout   = 120 * time.Second
	tagsTimeout          = 30 * time.Second
	retryBackoff         = 500 * time.Millisecond
)

// Ollama implements Provider against a local Ollama server.
type Ollama struct {
	baseURL          string
	model            string
	temperature      float64
	client           *http.Client
	maxResponseBytes int64
}

// NewOllama creates an Ollama provider. Zero values fall back to the
// defaults of a stock local install.
func NewOllama(baseURL, model string, temperature float64, timeout time.Duration) *Ollama {
	base := normalizeBaseURL(baseURL)
	if base == "" {
		base = defaultOllamaBaseURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	if timeout <= 0 {
		timeout = defaultChatTimeout
	}

	return &Ollama{
		baseURL:          base,
		model:            model,
		temperature:      temperature,
		maxResponseBytes: 4 * 1024 * 1024,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Streaming is always off; replies come back as a single body.
type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []inference.Message `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  ollamaOptions       `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaChatResponse struct {
	Message inference.Message `json:"message"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

type ollamaTagsResponse struct {
	Models []ollamaTagModel `json:"models"`
}

type ollamaTagModel struct {
	Name string `json:"name"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// ChatCompletion sends the conversation to /api/chat. A 404 falls back to
// /api/generate with a flattened prompt for older servers. Transient
// failures are retried once after a short pause.
func (p *Ollama) ChatCompletion(ctx context.Context, req *inference.Request) (*inference.Response, error) {
	var out *inference.Response
	backoff := retry.WithMaxRetries(1, retry.NewConstant(retryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := p.chatOnce(ctx, req)
		if err != nil {
			if errors.Is(err, ErrModelNotFound) {
				return err
			}
			return retry.RetryableError(err)
		}
		out = resp
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrModelNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("ollama chat failed after retry: %w", err)
	}
	return out, nil
}

func (p *Ollama) chatOnce(ctx context.Context, req *inference.Request) (*inference.Response, error) {
	payload := ollamaChatRequest{
		Model:    p.modelFor(req),
		Messages: req.Messages,
		Options:  ollamaOptions{Temperature: p.temperatureFor(req)},
	}

	respBody, status, err := p.post(ctx, "/api/chat", payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return p.generateFallback(ctx, req)
	}
	if status >= 400 {
		return nil, fmt.Errorf("ollama chat status %d: %s", status, errorDetail(respBody))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("decode ollama chat response: %w", err)
	}
	return &inference.Response{Content: chatResp.Message.Content}, nil
}

func (p *Ollama) generateFallback(ctx context.Context, req *inference.Request) (*inference.Response, error) {
	payload := ollamaGenerateRequest{
		Model:   p.modelFor(req),
		Prompt:  messagesToPrompt(req.Messages),
		Options: ollamaOptions{Temperature: p.temperatureFor(req)},
	}

	respBody, status, err := p.post(ctx, "/api/generate", payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		models, _ := p.ListModels(ctx)
		available := "none"
		if len(models) > 0 {
			available = strings.Join(models, ", ")
		}
		return nil, fmt.Errorf("%w: check base url (%s) and pull model %q (available models: %s)",
			ErrModelNotFound, p.baseURL, p.modelFor(req), available)
	}
	if status >= 400 {
		return nil, fmt.Errorf("ollama generate status %d: %s", status, errorDetail(respBody))
	}

	var genResp ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, fmt.Errorf("decode ollama generate response: %w", err)
	}
	return &inference.Response{Content: genResp.Response}, nil
}

// ListModels returns the model names reported by /api/tags.
func (p *Ollama) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, tagsTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, p.maxResponseBytes)).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode ollama tags response: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

func (p *Ollama) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("call ollama: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, p.maxResponseBytes+1)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read ollama response: %w", err)
	}
	if int64(len(respBody)) > p.maxResponseBytes {
		return nil, resp.StatusCode, fmt.Errorf("ollama response exceeded limit (%d bytes)", p.maxResponseBytes)
	}
	return respBody, resp.StatusCode, nil
}

func (p *Ollama) modelFor(req *inference.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.model
}

func (p *Ollama) temperatureFor(req *inference.Request) float64 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return p.temperature
}

func errorDetail(body []byte) string {
	var apiErr ollamaErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return apiErr.Error
	}
	detail := strings.TrimSpace(string(body))
	if detail == "" {
		return "no error body"
	}
	return detail
}

// normalizeBaseURL trims whitespace, trailing slashes, and a trailing /api
// segment so both http://host:11434 and http://host:11434/api work.
func normalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	return strings.TrimSuffix(base, "/api")
}

// messagesToPrompt flattens a chat transcript for the legacy generate
// endpoint.
func messagesToPrompt(messages []inference.Message) string {
	parts := make([]string, 0, len(messages)+1)
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = inference.RoleUser
		}
		parts = append(parts, strings.ToUpper(role)+": "+m.Content)
	}
	parts = append(parts, "ASSISTANT:")
	return strings.Join(parts, "\n\n")
}
