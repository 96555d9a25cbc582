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

	"github.com/talkerbot/talker/bot"
	"github.com/talkerbot/talker/config"
	"github.com/talkerbot/talker/domain"
	"github.com/talkerbot/talker/llm"
	"github.com/talkerbot/talker/session"
	"github.com/talkerbot/talker/store"
	"github.com/talkerbot/talker/telegram"
)

func main() {
	// Load configuration
	cfg := config.Load()

	if cfg.BotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required")
	}

	log.Printf("Starting talker...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("OpenAI URL: %s", cfg.OpenAIBaseURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize model gateway client
	llmClient := llm.NewClient(cfg.OpenAIBaseURL, cfg.LLMTimeout)

	// Initialize session manager
	sessions := session.NewManager(llmClient, domain.DefaultLimits())

	// Initialize Telegram client
	tg := telegram.NewClient(cfg.BotToken, cfg.TelegramTimeout)

	// Initialize handler
	h := bot.NewHandler(db, sessions, tg)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Register routes
	h.RegisterRoutes(e)

	// Register the webhook with Telegram
	if cfg.WebhookURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.TelegramTimeout)
		if err := tg.SetWebhook(ctx, cfg.WebhookURL); err != nil {
			log.Printf("WARN: failed to set webhook: %v", err)
		}
		cancel()
	} else {
		log.Printf("WARN: WEBHOOK_URL not set, skipping webhook registration")
	}

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Webhook server started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down talker...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Talker stopped")
}
