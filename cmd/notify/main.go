package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gator-labs/chomp-bot/internal/chomp"
	"github.com/gator-labs/chomp-bot/internal/config"
	"github.com/go-telegram/bot"
	_ "github.com/joho/godotenv/autoload"
	"github.com/robfig/cron/v3"
)

func main() {
	message := flag.String("message", "", "notification text; prompted for interactively when empty")
	yes := flag.Bool("yes", false, "skip the confirmation prompt")
	schedule := flag.String("schedule", "", "cron spec to repeat the broadcast on (runs until interrupted)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.IsProduction() {
		fmt.Println("⚠️  WARNING: You are connected to the PRODUCTION environment!")
	} else {
		fmt.Println("🔧 Running in DEVELOPMENT environment")
	}
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	text := *message
	if text == "" {
		if *schedule != "" {
			log.Fatal("-schedule requires -message")
		}
		fmt.Print("Enter your notification message (emoji supported ✨): ")
		line, err := reader.ReadString('\n')
		if err != nil {
			log.Fatalf("Failed to read message: %v", err)
		}
		text = strings.TrimSpace(line)
	}
	if text == "" {
		log.Fatal("Empty message, nothing to send")
	}

	fmt.Println("\nMessage preview:")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println(text)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━")

	if !*yes && *schedule == "" {
		fmt.Println("\nThis message will be sent to all subscribed users.")
		fmt.Print("Send notification? (y/n): ")
		confirm, err := reader.ReadString('\n')
		if err != nil {
			log.Fatalf("Failed to read confirmation: %v", err)
		}
		if strings.ToLower(strings.TrimSpace(confirm)) != "y" {
			fmt.Println("\nNotification cancelled")
			return
		}
	}

	b, err := bot.New(cfg.BotToken)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}
	backend := chomp.NewClient(cfg.WebAppURL, cfg.BotAPIKey, cfg.HTTPTimeout)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(*schedule, func() {
			broadcast(context.Background(), b, backend, text)
		}); err != nil {
			log.Fatalf("Invalid cron spec %q: %v", *schedule, err)
		}
		log.Printf("[NOTIFY] Broadcasting %q on schedule %q", text, *schedule)
		c.Start()
		<-ctx.Done()
		<-c.Stop().Done()
		return
	}

	broadcast(ctx, b, backend, text)
}

func broadcast(ctx context.Context, b *bot.Bot, backend *chomp.Client, text string) {
	users, err := backend.ListSubscribers(ctx)
	if err != nil {
		log.Printf("[NOTIFY] Failed to fetch subscribers: %v", err)
		return
	}
	if len(users) == 0 {
		fmt.Println("\nNo subscribed users found")
		return
	}

	fmt.Printf("\nSending notification to %d users...\n", len(users))

	successCount := 0
	failCount := 0
	for _, user := range users {
		_, err := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: user.TelegramID,
			Text:   text,
		})
		if err != nil {
			log.Printf("[NOTIFY] Failed to send to user %d: %v", user.TelegramID, err)
			failCount++
			fmt.Print("x")
			continue
		}
		successCount++
		fmt.Print(".")
	}

	fmt.Printf("\n\nNotification sent successfully to %d users\n", successCount)
	if failCount > 0 {
		fmt.Printf("Failed to send to %d users\n", failCount)
	}
}
