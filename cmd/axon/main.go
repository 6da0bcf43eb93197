// Axon gateway server — authenticates tenant API keys, merges agent
// configuration into chat-completion requests, and proxies them to the
// tenant's LLM provider with conversation memory and tracing.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/axongate/axon/pkg/api"
	"github.com/axongate/axon/pkg/cleanup"
	"github.com/axongate/axon/pkg/config"
	"github.com/axongate/axon/pkg/conversation"
	"github.com/axongate/axon/pkg/crypto"
	"github.com/axongate/axon/pkg/database"
	"github.com/axongate/axon/pkg/mcp"
	"github.com/axongate/axon/pkg/provider"
	"github.com/axongate/axon/pkg/tenant"
	"github.com/axongate/axon/pkg/trace"
	"github.com/axongate/axon/pkg/version"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, continuing with existing environment")
	}

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting axon",
		"version", version.Full(),
		"environment", cfg.Environment,
		"http_port", cfg.HTTPPort)

	ctx := context.Background()

	// 2. Initialize encryption
	var cryptoSvc *crypto.Service
	if cfg.MasterKey != nil {
		cryptoSvc, err = crypto.NewService(cfg.MasterKey, cfg.KeyVersion)
		if err != nil {
			slog.Error("Failed to initialize encryption", "error", err)
			os.Exit(1)
		}
	} else {
		cryptoSvc, err = crypto.NewEphemeralService()
		if err != nil {
			slog.Error("Failed to initialize ephemeral encryption", "error", err)
			os.Exit(1)
		}
	}

	// 3. Connect to the database and run migrations
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database")

	// 4. Build the gateway collaborators
	cache := tenant.NewCache(cfg.TenantCacheCapacity)
	resolver := tenant.NewResolver(dbClient.Client)
	registry := provider.NewRegistry(nil, provider.FallbackKeys{
		OpenAI: cfg.OpenAIAPIKey,
		Azure:  cfg.AzureAPIKey,
	})
	roundTripper := mcp.NewRoundTripper(mcp.NewClient(nil, cfg.MCPCallTimeout))
	conversations := conversation.NewManager(dbClient.Client, cryptoSvc)
	summarizer := conversation.NewSummarizer(conversations, registry)
	recorder := trace.NewRecorder(dbClient.Client, cryptoSvc)

	// 5. Start the retention sweeper
	cleanupSvc := cleanup.NewService(cleanup.Config{
		ConversationRetentionDays: cfg.ConversationRetentionDays,
		TraceRetentionMonths:      cfg.TraceRetentionMonths,
		Interval:                  cfg.CleanupInterval,
	}, dbClient.Client, dbClient.DB())
	cleanupSvc.Start(ctx)

	// 6. Start the HTTP server (non-blocking)
	server := api.NewServer(dbClient, cache, resolver, registry, roundTripper, conversations, summarizer, recorder)
	httpServer := server.NewHTTPServer(cfg.HTTPPort)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	exitCode := 0
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("HTTP server error triggered shutdown", "error", err)
		exitCode = 1
	}

	// 8. Graceful shutdown: stop accepting requests, then flush traces
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown incomplete", "error", err)
	}

	cleanupSvc.Stop()
	recorder.Flush(shutdownCtx)
	recorder.Stop()

	if err := dbClient.Close(); err != nil {
		slog.Error("Error closing database client", "error", err)
	}

	slog.Info("Shutdown complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
