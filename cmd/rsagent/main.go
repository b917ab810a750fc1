// rsagent is the orchestrator server: it exposes the chat-turn,
// progress, abort, and session-management HTTP API and wires together
// every collaborator the Turn Orchestrator depends on (spec.md §4.1,
// §6). Grounded on tarsy's cmd/tarsy/main.go: flag-driven config
// directory, .env loading via godotenv, config.Initialize, then
// construct-and-serve.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/buxiuxian/summer-project/pkg/api"
	"github.com/buxiuxian/summer-project/pkg/billing"
	"github.com/buxiuxian/summer-project/pkg/classifier"
	"github.com/buxiuxian/summer-project/pkg/config"
	"github.com/buxiuxian/summer-project/pkg/creditclient"
	"github.com/buxiuxian/summer-project/pkg/generalanswer"
	"github.com/buxiuxian/summer-project/pkg/knowledge"
	"github.com/buxiuxian/summer-project/pkg/llmclient"
	"github.com/buxiuxian/summer-project/pkg/orchestrator"
	"github.com/buxiuxian/summer-project/pkg/progress"
	"github.com/buxiuxian/summer-project/pkg/ragclient"
	"github.com/buxiuxian/summer-project/pkg/registry"
	"github.com/buxiuxian/summer-project/pkg/remotejob"
	"github.com/buxiuxian/summer-project/pkg/remotejobclient"
	"github.com/buxiuxian/summer-project/pkg/sessionstore"
	"github.com/buxiuxian/summer-project/pkg/sessionstoreclient"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpAddr := ":" + getEnv("HTTP_PORT", "8090")
	sessionDir := getEnv("SESSION_CACHE_DIR", "./data/sessions")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}
	stats := cfg.Stats()
	log.Printf("Loaded configuration: mode=%s scenarios=%d", stats.Mode, stats.Scenarios)

	hub := progress.NewHub(cfg.Defaults.ProgressBufferCap, cfg.Defaults.CatchupCount, cfg.Defaults.HeartbeatInterval)
	heartbeatStop := make(chan struct{})
	go hub.StartHeartbeat(heartbeatStop)
	defer close(heartbeatStop)

	abort := orchestrator.NewAbortRegistry()
	billingMgr := billing.NewManager()

	llm := llmclient.New(cfg.Endpoints.LLMURL, cfg.Defaults.LLMTimeout)
	rag := ragclient.New(cfg.Endpoints.RAGURL, cfg.Defaults.LLMTimeout)
	remoteJobs := remotejobclient.New(cfg.Endpoints.RemoteJobURL, cfg.Defaults.LLMTimeout)
	credit := creditclient.New(cfg.Endpoints.CreditURL, cfg.Defaults.CreditTimeout)

	llmOpts := llmclient.CompletionOptions{Model: "default", Temperature: 0.2, MaxTokens: 2048}

	handlers := registry.New()
	knowledgePipeline := knowledge.New(llm, rag, billingMgr, hub, llmOpts)
	if err := handlers.Register(knowledgePipeline); err != nil {
		log.Fatalf("Failed to register knowledge handler: %v", err)
	}
	submitHandler, fetchHandler := remotejob.New(llm, remoteJobs, cfg.Scenarios, cfg.Defaults, billingMgr, hub, llmOpts)
	if err := handlers.Register(submitHandler); err != nil {
		log.Fatalf("Failed to register submit-job handler: %v", err)
	}
	if err := handlers.Register(fetchHandler); err != nil {
		log.Fatalf("Failed to register fetch-job handler: %v", err)
	}
	generalAnswerHandler := generalanswer.New(llm, billingMgr, hub, llmOpts)
	if err := handlers.Register(generalAnswerHandler); err != nil {
		log.Fatalf("Failed to register general-answer handler: %v", err)
	}

	intentClassifier := classifier.New(llm, billingMgr, hub, llmOpts)

	var remoteStore sessionstoreclient.Client
	if cfg.Mode == config.ModeProduction {
		remoteStore = sessionstoreclient.New(cfg.Endpoints.SessionStoreURL, cfg.Defaults.CreditTimeout)
	}
	localCache, err := sessionstore.NewLocalCache(sessionDir)
	if err != nil {
		log.Fatalf("Failed to initialize session cache: %v", err)
	}
	store := sessionstore.NewStore(cfg.Mode, localCache, remoteStore)

	orch := orchestrator.New(cfg, abort, billingMgr, credit, hub, store, intentClassifier, handlers)

	retentionStop := make(chan struct{})
	go runRetentionSweep(retentionStop, localCache, cfg.Defaults)
	defer close(retentionStop)

	server := api.NewServer(cfg, orch, hub, abort, store)

	go func() {
		log.Printf("HTTP server listening on %s", httpAddr)
		if err := server.Start(httpAddr); err != nil {
			log.Printf("HTTP server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}

// runRetentionSweep periodically enforces the local session cache's
// retention bounds (spec.md §5: MAX_AGE_DAYS/MAX_TOTAL). It runs in every
// mode and only ever touches the local session cache directory, never the
// remote store.
func runRetentionSweep(stop <-chan struct{}, cache *sessionstore.LocalCache, defaults *config.Defaults) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			maxAge := time.Duration(defaults.MaxAgeDays) * 24 * time.Hour
			if err := cache.EnforceRetention(maxAge, defaults.MaxTotal); err != nil {
				log.Printf("Session retention sweep failed: %v", err)
			}
		}
	}
}
