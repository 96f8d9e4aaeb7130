package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"pheme/feed"
	"pheme/internal"
	"pheme/ledger"
	"pheme/repositories"
	"pheme/runtime/workers"
	"pheme/services"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK = iota
	exitConfig
	exitStorage
	exitRuntime
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until SIGINT or SIGTERM.
// Deferred cleanups run before the exit code reaches main.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	demo, err := loadDemoConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("demo config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitStorage, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Mailbox
	users := repositories.NewUserRepository(db)
	deliveries := repositories.NewDeliveryRepository(db, log)
	source := feed.NewMemorySource(demo.FeedAccount)
	mailbox, err := services.NewMailbox(log, users, source, ledger.New(log, deliveries), services.Config{
		Delay:            config.DeliveryDelay,
		FetchConcurrency: config.FeedFetchConcurrency,
		Limiter:          config.FeedLimiter(),
	})
	if err != nil {
		return exitRuntime, fmt.Errorf("mailbox creation failed: %w", err)
	}

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Background workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewJanitorWorker(log, mailbox, config.PurgeInterval, config.PeakWindow),
		workers.NewHealthWorker(log, mailbox, config.HealthInterval),
	)
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	internal.StartDebugServer(ctx, log, db, config.DebugPort, func() map[string]any {
		return map[string]any{"mailboxes": len(mailbox.Queues())}
	})

	// 6. Demo exchange
	if demo.Enabled {
		if err := runDemo(ctx, log, demo, mailbox, source, deliveries); err != nil {
			sup.Stop()
			<-done
			return exitRuntime, fmt.Errorf("demo failed: %w", err)
		}
	}

	// 7. Wait for Stop
	<-ctx.Done()
	log.Info("Shutting down gracefully...")
	sup.Stop()
	<-done
	log.Info("Program stopped cleanly")
	return exitOK, nil
}
