package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shadowmere/dungeon-gm/internal/config"
	"github.com/shadowmere/dungeon-gm/internal/handlers"
	"github.com/shadowmere/dungeon-gm/internal/logger"
	"github.com/shadowmere/dungeon-gm/internal/middleware"
	"github.com/shadowmere/dungeon-gm/internal/services"
	"github.com/shadowmere/dungeon-gm/pkg/prompts"
	"github.com/shadowmere/dungeon-gm/pkg/rewards"
	"github.com/shadowmere/dungeon-gm/pkg/session"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.Setup(cfg)

	log.Info("Starting Dungeon GM API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"gm_provider", cfg.Provider)

	var provider services.GMProvider
	switch cfg.Provider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Error("Anthropic API key is required when using anthropic provider")
			os.Exit(1)
		}
		provider = services.NewAnthropicService(cfg.AnthropicAPIKey, cfg.AnthropicModel, log)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Error("OpenAI API key is required when using openai provider")
			os.Exit(1)
		}
		provider = services.NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIModel, log)
	case "claude-cli":
		provider = services.NewClaudeCLIService(cfg.ClaudeCLIModel, log)
	case "gemini-cli":
		provider = services.NewGeminiCLIService(cfg.GeminiModel, log)
	case "mock":
		provider = services.NewMockGMProvider()
	default:
		log.Error("Invalid GM provider specified",
			"provider", cfg.Provider,
			"supported", []string{"anthropic", "openai", "claude-cli", "gemini-cli", "mock"})
		os.Exit(1)
	}
	log.Info("Using GM provider", "provider", provider.Name())

	var granter rewards.Granter = rewards.Noop{}
	if cfg.RewardsURL != "" {
		granter = rewards.NewChainService(cfg.RewardsURL, cfg.RewardsToken, log)
		log.Info("Reward gateway configured", "url", cfg.RewardsURL)
	}

	store := prompts.NewStore()
	manager := session.NewManager(log)

	wsHandler := handlers.NewWSHandler(provider, manager, store, granter, cfg.TurnTimeout, log)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	manager.StartSweeper(sweepCtx, wsHandler.CloseStale)

	mux := http.NewServeMux()
	mux.Handle("/health", handlers.NewHealthHandler(provider, manager, log))
	mux.Handle("/ws", wsHandler)

	if cfg.AdminToken != "" {
		adminHandler := handlers.NewAdminHandler(store, cfg.AdminToken, log)
		mux.Handle("/v1/prompts", adminHandler)
		mux.Handle("/v1/prompts/", adminHandler)
	} else {
		log.Warn("ADMIN_TOKEN not set, prompt admin endpoints disabled")
	}

	handler := middleware.Logger(log, mux)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays unset so long-lived sockets are not cut off
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")
	sweepCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}
