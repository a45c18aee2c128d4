package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/promptcraft-lab/promptops/internal/evals"
	"github.com/promptcraft-lab/promptops/internal/guardrails"
	"github.com/promptcraft-lab/promptops/internal/prompts"
	"github.com/promptcraft-lab/promptops/internal/provider"
)

func main() {
	model := flag.String("model", envOr("OLLAMA_MODEL", "llama3.2:1b"), "model name")
	baseURL := flag.String("base-url", envOr("OLLAMA_BASE_URL", "http://127.0.0.1:11434"), "Ollama base URL")
	promptVersion := flag.String("prompt-version", "prompts/versions/v1_baseline.json", "prompt version file")
	dataDir := flag.String("data-dir", "eval/data", "directory of *.jsonl datasets")
	resultsDir := flag.String("results-dir", "eval/results", "directory for reports")
	concurrency := flag.Int("concurrency", 4, "samples scored in parallel")
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

	prov := provider.NewOllama(*baseURL, *model, 0, 0)
	ev := evals.New(prov, evals.Config{
		Model:        *model,
		SystemPrompt: systemPrompt,
		FewShot:      version.FewShotExamples,
		Concurrency:  *concurrency,
	})

	samples, err := evals.CollectSamples(*dataDir)
	if err != nil {
		log.Fatalf("collect samples: %v", err)
	}

	results, err := ev.Run(context.Background(), samples)
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}
	summary := evals.Summarize(results)

	outJSON := filepath.Join(*resultsDir, "latest_report.json")
	outMD := filepath.Join(*resultsDir, "latest_report.md")
	if err := evals.WriteReport(summary, outJSON, outMD); err != nil {
		log.Fatalf("write report: %v", err)
	}

	fmt.Println("Evaluation complete")
	fmt.Printf("Model: %s\n", *model)
	fmt.Printf("Pass rate: %v\n", summary.OverallPassRate)
	fmt.Printf("Report: %s\n", outMD)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
