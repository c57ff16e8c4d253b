package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/recall/api"
	"github.com/xiaot623/recall/config"
	"github.com/xiaot623/recall/llm"
	"github.com/xiaot623/recall/memory"
	"github.com/xiaot623/recall/personality"
	"github.com/xiaot623/recall/pipeline"
	"github.com/xiaot623/recall/policy"
	"github.com/xiaot623/recall/service"
	"github.com/xiaot623/recall/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting recall...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("LLM gateway: %s", cfg.LLMBaseURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize LLM client
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout)

	// Initialize long-term memory. Without an API key the embedder falls
	// back to local hashing, which keeps the service usable offline.
	var embedder memory.Embedder
	if cfg.LLMAPIKey != "" {
		embedder = memory.NewLLMEmbedder(llmClient, cfg.EmbedModel, 1536)
	} else {
		log.Printf("WARN: no LLM API key set, using local hash embeddings")
		embedder = memory.NewHashEmbedder(384)
	}
	index, err := memory.NewChromemIndex("conversation_history")
	if err != nil {
		log.Fatalf("Failed to initialize vector index: %v", err)
	}
	retriever, err := memory.NewRetriever(embedder, index)
	if err != nil {
		log.Fatalf("Failed to initialize retriever: %v", err)
	}

	// Initialize personalities
	personalities, err := personality.NewManager(cfg.PersonalitiesDir)
	if err != nil {
		log.Fatalf("Failed to load personalities: %v", err)
	}

	// Initialize policy engine
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize embedding pipeline
	runner := pipeline.NewRunner(db, embedder, index, policyEngine, pipeline.Options{
		StalenessThreshold: cfg.StalenessThreshold,
		ChunkSize:          cfg.ChunkSize,
		RetryFailed:        cfg.RetryFailed,
	})
	go runner.Start(ctx, cfg.PipelineInterval)

	// Initialize service
	svc := service.New(db, retriever, personalities, llmClient, cfg)

	// Initialize handler
	h := api.NewHandler(svc, runner)

	// Create Echo server
	server := echo.New()
	server.HideBanner = true

	// Middleware
	server.Use(middleware.Logger())
	server.Use(middleware.Recover())
	server.Use(middleware.CORS())

	// Register routes
	h.RegisterRoutes(server)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down recall...")

	// Stop the pipeline scheduler, then drain the server.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Recall stopped")
}
