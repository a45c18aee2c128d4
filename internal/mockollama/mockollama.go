package mockollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort    = 18434
	defaultDelayMS = 50
	mockModel      = "mock-llm:latest"
)

// StartMockOllama launches a lightweight Ollama-compatible mock server for
// local development without a running Ollama daemon. If addr is empty, it
// listens on 127.0.0.1:MOCK_OLLAMA_PORT (default 18434). It returns a
// shutdown function and the base URL (e.g., http://127.0.0.1:18434).
func StartMockOllama(addr string) (func(context.Context) error, string, error) {
	if strings.TrimSpace(addr) == "" {
		port := strings.TrimSpace(os.Getenv("MOCK_OLLAMA_PORT"))
		if port == "" {
			port = fmt.Sprintf("%d", defaultPort)
		}
		addr = "127.0.0.1:" + port
	}

	delay := defaultDelayMS
	if val := strings.TrimSpace(os.Getenv("MOCK_DELAY_MS")); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed >= 0 {
			delay = parsed
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("mock ollama request method=%s path=%s", r.Method, r.URL.Path)

		p := r.URL.Path
		if len(p) > 1 {
			p = strings.TrimSuffix(p, "/")
		}

		switch {
		case r.Method == http.MethodPost && p == "/api/chat":
			writeChat(w, r, delay)
		case r.Method == http.MethodPost && p == "/api/generate":
			writeGenerate(w, r, delay)
		case r.Method == http.MethodGet && p == "/api/tags":
			writeTags(w)
		default:
			writeNotFoundJSON(w)
		}
	})

	srv := &http.Server{
		Handler: mux,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("mock ollama server error: %v", err)
		}
	}()

	shutdown := func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	}

	baseURL := "http://" + ln.Addr().String()
	log.Printf("mock ollama listening on %s (delay_ms=%d)", baseURL, delay)
	return shutdown, baseURL, nil
}

func writeNotFoundJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": "not found",
	})
}

// writeChat echoes the last user message so conversation flows stay
// inspectable during development.
func writeChat(w http.ResponseWriter, r *http.Request, delayMS int) {
	if delayMS > 0 {
		time.Sleep(time.Duration(delayMS) * time.Millisecond)
	}

	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	content := "This is a mock Ollama reply."
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == "user" {
				content = "Mock reply to: " + req.Messages[i].Content
				break
			}
		}
	}
	model := req.Model
	if model == "" {
		model = mockModel
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"model": model,
		"message": map[string]string{
			"role":    "assistant",
			"content": content,
		},
		"done": true,
	})
}

func writeGenerate(w http.ResponseWriter, r *http.Request, delayMS int) {
	if delayMS > 0 {
		time.Sleep(time.Duration(delayMS) * time.Millisecond)
	}

	var req struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	content := "This is a mock Ollama reply."
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Prompt != "" {
		content = "Mock reply to prompt of " + strconv.Itoa(len(req.Prompt)) + " chars."
	}
	model := req.Model
	if model == "" {
		model = mockModel
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"model":    model,
		"response": content,
		"done":     true,
	})
}

func writeTags(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"models": []map[string]any{
			{"name": mockModel},
		},
	})
}
