package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/promptcraft-lab/promptops/internal/chat"
	"github.com/promptcraft-lab/promptops/internal/config"
	"github.com/promptcraft-lab/promptops/internal/eventlog"
	"github.com/promptcraft-lab/promptops/internal/guardrails"
	"github.com/promptcraft-lab/promptops/internal/prompts"
	"github.com/promptcraft-lab/promptops/internal/provider"
	"github.com/promptcraft-lab/promptops/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "promptops.yaml", "path to PromptOps config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	engine := buildEngine(cfg)
	if err := engine.EnsureReady(); err != nil {
		log.Fatalf("guardrail policy configuration error: %v", err)
	}

	version, err := prompts.LoadVersion(cfg.Prompts.Version)
	if err != nil {
		log.Fatalf("load prompt version: %v", err)
	}
	systemPrompt, err := prompts.ResolveSystemPrompt()
	if err != nil {
		log.Fatalf("resolve system prompt: %v", err)
	}

	prov := provider.NewOllama(
		cfg.Ollama.BaseURL,
		cfg.Ollama.Model,
		cfg.Ollama.Temperature,
		time.Duration(cfg.Ollama.TimeoutSeconds)*time.Second,
	)

	metricsSrv, err := telemetry.StartFromEnv()
	if err != nil {
		log.Fatalf("start metrics server: %v", err)
	}

	sinks, err := eventlog.NewSinks(cfg.Events.Sinks)
	if err != nil {
		log.Fatalf("configure event sinks: %v", err)
	}
	emitter := eventlog.NewEmitter(eventlog.EmitterConfig{
		QueueSize:       cfg.Events.QueueSize,
		Workers:         cfg.Events.Workers,
		ShutdownTimeout: time.Duration(cfg.Events.ShutdownTimeoutMS) * time.Millisecond,
	}, sinks)

	svc := chat.NewService(engine, prov, emitter, chat.Config{
		Model:        cfg.Ollama.Model,
		Temperature:  cfg.Ollama.Temperature,
		HistoryPairs: cfg.Chat.HistoryPairs,
		SystemPrompt: systemPrompt,
		FewShot:      version.FewShotExamples,
		LogTitles:    chat.LogChatTitles(),
	})
	sess := chat.NewSession(1)

	if chat.AdminMode() {
		fmt.Printf("Model: %s\n", cfg.Ollama.Model)
		fmt.Printf("Endpoint: %s\n", cfg.Ollama.BaseURL)
	}
	fmt.Println("PromptOps chat started. Type 'exit' to quit, '/stats' for session stats.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nYou> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		lower := strings.ToLower(input)
		if lower == "exit" || lower == "quit" {
			break
		}
		if lower == "/stats" {
			printStats(sess.StatsSnapshot())
			continue
		}

		res := svc.ProcessTurn(context.Background(), sess, input)
		fmt.Printf("Assistant> %s\n", res.Reply)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	emitter.Close(ctx)
	_ = metricsSrv.Shutdown(ctx)
}

func printStats(st chat.Stats) {
	fmt.Printf("Turns: %d\n", st.TotalTurns)
	fmt.Printf("Attack Attempts: %d\n", st.AttackAttempts)
	fmt.Printf("Blocked (Pre): %d\n", st.BlockedPrecheck)
	fmt.Printf("Blocked (Out-of-Scope): %d\n", st.OutOfScopeBlocked)
	fmt.Printf("Refused (Post): %d\n", st.RefusedPostcheck)
	fmt.Printf("Unsafe Passes: %d\n", st.UnsafePasses)
	fmt.Printf("Defense Success: %.2f%%\n", st.DefenseRate()*100)
	fmt.Printf("Avg Latency: %v ms\n", st.AvgLatencyMS)
}

func buildEngine(cfg *config.Config) *guardrails.Engine {
	if cfg.Guardrails.PolicyPath != "" {
		return guardrails.NewEngine(guardrails.NewFileStore(cfg.Guardrails.PolicyPath))
	}
	return guardrails.NewEngine(guardrails.NewStore())
}
