package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"ssh-v2ray-bot/internal/bot"
	"ssh-v2ray-bot/internal/config"
	"ssh-v2ray-bot/internal/database"
	"ssh-v2ray-bot/internal/gate"
	"ssh-v2ray-bot/internal/issuer"
	"ssh-v2ray-bot/internal/ledger"
	"ssh-v2ray-bot/internal/provider"
	"ssh-v2ray-bot/internal/ratelimit"
	"ssh-v2ray-bot/internal/store"
	"ssh-v2ray-bot/internal/worker"
)

const reconcileInterval = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load Configuration
	cfg := config.LoadConfig()
	if err := cfg.Policy.Validate(); err != nil {
		log.Fatalf("Invalid coin policy: %v", err)
	}
	if cfg.BotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required")
	}

	// Connect to Database
	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}

	// Connect to Redis
	rdb, err := database.ConnectRedis(ctx, cfg)
	if err != nil {
		log.Fatalf("Could not connect to redis: %v", err)
	}
	defer rdb.Close()

	accounts := store.NewAccounts(db)
	generations := store.NewGenerations(db)
	engine := ledger.NewEngine(accounts, cfg.Policy, accounts)
	iss := issuer.New(gate.New(engine), provider.NewClient(cfg.ProviderURL, cfg.ProviderKey), generations)

	tgBot, err := bot.NewBot(cfg.BotToken, bot.Deps{
		Engine:       engine,
		Issuer:       iss,
		History:      generations,
		Stats:        accounts,
		Limiter:      ratelimit.New(rdb, ratelimit.DefaultLimits),
		Admins:       gate.NewAdminSet(cfg.AdminIDs),
		Channels:     cfg.SponsorChannels,
		Username:     cfg.BotUsername,
		AdminCredits: cfg.AdminTestCredits,
	})
	if err != nil {
		log.Fatalf("Could not create bot: %v", err)
	}

	reconciler := worker.NewReconciler(generations, engine, tgBot, cfg.RefundAfter)
	sched, err := reconciler.Start(ctx, reconcileInterval)
	if err != nil {
		log.Fatalf("Could not start refund reconciler: %v", err)
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			log.Printf("Scheduler shutdown: %v", err)
		}
	}()

	log.Printf("Service started (mode %s, cost %d)", cfg.Policy.Mode, cfg.Policy.GenerationCost)
	if err := tgBot.Start(ctx); err != nil {
		log.Printf("Bot stopped: %v", err)
	}
	log.Println("Shutting down")
}
