package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/promptcraft-lab/promptops/internal/chat"
	"github.com/promptcraft-lab/promptops/internal/config"
	"github.com/promptcraft-lab/promptops/internal/eventlog"
	"github.com/promptcraft-lab/promptops/internal/guardrails"
	"github.com/promptcraft-lab/promptops/internal/prompts"
	"github.com/promptcraft-lab/promptops/internal/provider"
	"github.com/promptcraft-lab/promptops/internal/server"
	"github.com/promptcraft-lab/promptops/internal/telemetry"
)

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
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

	srv := server.New(svc, chat.NewStore(), engine, prov)

	addr := cfg.Server.Addr
	if *addrFlag != "" {
		addr = *addrFlag
	}

	go func() {
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	emitter.Close(ctx)
	_ = metricsSrv.Shutdown(ctx)
}

func buildEngine(cfg *config.Config) *guardrails.Engine {
	if cfg.Guardrails.PolicyPath != "" {
		return guardrails.NewEngine(guardrails.NewFileStore(cfg.Guardrails.PolicyPath))
	}
	return guardrails.NewEngine(guardrails.NewStore())
}
