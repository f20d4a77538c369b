package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gator-labs/chomp-bot/internal/auth"
	"github.com/gator-labs/chomp-bot/internal/chomp"
	"github.com/gator-labs/chomp-bot/internal/config"
	"github.com/gator-labs/chomp-bot/internal/handlers"
	"github.com/gator-labs/chomp-bot/internal/server"
	"github.com/gator-labs/chomp-bot/internal/session"
	"github.com/gator-labs/chomp-bot/internal/timer"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	_ "github.com/joho/godotenv/autoload"
	_ "modernc.org/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sessions, cleanup, err := buildSessionStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer cleanup()

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	b, err := bot.New(cfg.BotToken, bot.WithHTTPClient(cfg.HTTPTimeout, httpClient))
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	// Retry getMe with shorter timeout
	var botInfo *tgmodels.User
	for i := 0; i < 3; i++ {
		log.Printf("Attempting to connect to Telegram API (attempt %d/3)...", i+1)
		getMeCtx, getMeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		botInfo, err = b.GetMe(getMeCtx)
		getMeCancel()
		if err == nil {
			log.Printf("Successfully connected to Telegram API as @%s", botInfo.Username)
			break
		}
		log.Printf("Failed to get bot info (attempt %d/3): %v", i+1, err)
		if i < 2 {
			log.Printf("Retrying in 2 seconds...")
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatalf("Failed to get bot info after 3 attempts: %v", err)
	}

	backend := chomp.NewClient(cfg.WebAppURL, cfg.BotAPIKey, cfg.HTTPTimeout)
	otp := auth.NewOTPClient(cfg.DynamicAPIBase, cfg.DynamicBearerToken, cfg.DynamicEnvironmentID, cfg.HTTPTimeout)
	timers := timer.NewRegistry()

	handler := handlers.NewBotHandler(b, backend, otp, sessions, timers, cfg.BotToken, cfg.WebAppURL)

	b.RegisterHandlerMatchFunc(func(update *tgmodels.Update) bool {
		return true
	}, handler.HandleUpdate, logMiddleware)

	log.Printf("Bot started. Run mode: %s, backend: %s", cfg.RunMode, cfg.WebAppURL)

	if cfg.RunMode == config.RunModeWebhook {
		if _, err := b.SetWebhook(ctx, &bot.SetWebhookParams{URL: cfg.WebhookURL}); err != nil {
			log.Fatalf("Failed to set webhook: %v", err)
		}
		go b.StartWebhook(ctx)
		if err := server.Run(ctx, cfg.WebhookListen, server.NewRouter(b.WebhookHandler())); err != nil {
			log.Fatalf("Webhook server failed: %v", err)
		}
		return
	}

	b.Start(ctx)
}

func buildSessionStore(cfg *config.Config) (session.Store, func(), error) {
	if cfg.DBPath == "" {
		return session.NewMemoryStore(), func() {}, nil
	}

	sqlDB, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, nil, err
	}
	if err := session.InitSchema(sqlDB); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}

	queue := session.NewDBQueue(sqlDB)
	cleanup := func() {
		queue.Close()
		sqlDB.Close()
	}
	return session.NewSQLiteStore(queue), cleanup, nil
}

func formatUser(u tgmodels.User) string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if u.Username != "" {
		name += " @" + u.Username
	}
	return fmt.Sprintf("%s [%d]", name, u.ID)
}

func logMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
		if update.Message != nil && update.Message.From != nil {
			log.Printf("[MSG] from=%s text=%q", formatUser(*update.Message.From), update.Message.Text)
		}
		if update.CallbackQuery != nil {
			log.Printf("[CALLBACK] from=%s data=%q", formatUser(update.CallbackQuery.From), update.CallbackQuery.Data)
		}
		next(ctx, b, update)
	}
}
