package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/promptcraft-lab/promptops/internal/guardrails"
	"github.com/promptcraft-lab/promptops/internal/inference"
	"github.com/promptcraft-lab/promptops/internal/mockollama"
	"github.com/promptcraft-lab/promptops/internal/prompts"
	"github.com/promptcraft-lab/promptops/internal/provider"
	"github.com/promptcraft-lab/promptops/internal/redact"
)

// A minimal REPL for trying prompt versions against the guarded pipeline.
// Unlike promptops-chat it keeps no history and records no events: every
// input stands alone.

func main() {
	model := flag.String("model", envOr("OLLAMA_MODEL", "llama3.2:1b"), "model name")
	baseURL := flag.String("base-url", envOr("OLLAMA_BASE_URL", "http://127.0.0.1:11434"), "Ollama base URL")
	promptVersion := flag.String("prompt-version", "prompts/versions/v1_baseline.json", "prompt version file")
	useMock := flag.Bool("mock", false, "run against a built-in mock Ollama server")
	flag.Parse()

	engine := guardrails.NewEngine(guardrails.NewStore())
	if err := engine.EnsureReady(); err != nil {
		log.Fatalf("guardrail policy configuration error: %v", err)
	}

	version, err := prompts.LoadVersion(*promptVersion)
	if err != nil {
		log.Fatalf("load prompt version: %v", err)
	}
	systemPrompt, err := prompts.ResolveSystemPrompt()
	if err != nil {
		log.Fatalf("resolve system prompt: %v", err)
	}

	base := *baseURL
	if *useMock {
		shutdown, mockURL, err := mockollama.StartMockOllama("")
		if err != nil {
			log.Fatalf("start mock ollama: %v", err)
		}
		defer shutdown(context.Background())
		base = mockURL
	}
	client := provider.NewOllama(base, *model, 0, 0)

	fmt.Println("Prompt playground started. Type 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nYou> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if lower := strings.ToLower(input); lower == "exit" || lower == "quit" {
			break
		}

		scope := engine.ClassifyTopicScope(input)
		risk := engine.DetectInjectionRisk(input)
		if risk.IsAttack {
			fmt.Printf("Assistant> %s\n", guardrails.SafeRefusal)
			continue
		}
		if !scope.IsInScope {
			if scope.BlockedCategory == guardrails.HarmfulCategory {
				fmt.Printf("Assistant> %s\n", guardrails.HarmfulContentRefusal)
			} else {
				fmt.Printf("Assistant> %s\n", guardrails.OutOfScopeRefusal)
			}
			continue
		}

		msgs := make([]inference.Message, 0, 2*len(version.FewShotExamples)+2)
		msgs = append(msgs, inference.Message{Role: inference.RoleSystem, Content: systemPrompt})
		for _, ex := range version.FewShotExamples {
			msgs = append(msgs,
				inference.Message{Role: inference.RoleUser, Content: ex.User},
				inference.Message{Role: inference.RoleAssistant, Content: ex.Assistant},
			)
		}
		msgs = append(msgs, inference.Message{Role: inference.RoleUser, Content: input})

		resp, err := client.ChatCompletion(context.Background(), &inference.Request{Messages: msgs})
		if err != nil {
			redact.Fatalf("chat failed: %v", err)
		}
		fmt.Printf("Assistant> %s\n", resp.Content)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
