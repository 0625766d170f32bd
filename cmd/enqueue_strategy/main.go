package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"gridHedgeBot/config"
	"gridHedgeBot/internal/adapters/binanceclient"
	"gridHedgeBot/internal/adapters/logger"
	"gridHedgeBot/internal/adapters/sqlite"
	"gridHedgeBot/internal/app"
)

var payloadPath = flag.String("file", "-", "strategy payload (JSON or YAML); - reads stdin")

func main() {
	flag.Parse()
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Read Payload
	var payload []byte
	if *payloadPath == "-" {
		payload, err = io.ReadAll(os.Stdin)
	} else {
		payload, err = os.ReadFile(*payloadPath)
	}
	if err != nil {
		log.Fatalf("FATAL: Failed to read payload: %v", err)
	}

	// 4. Initialize Repository and Exchange Client
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 5. Enqueue
	svc, err := app.NewHedgeService(cfg, app.Deps{Exchange: binanceClient, Store: repo, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize hedge service: %v", err)
	}
	st, err := svc.Enqueue(ctx, payload)
	if err != nil {
		appLogger.Error(ctx, err, "Strategy not enqueued")
		repo.Close()
		os.Exit(1)
	}
	fmt.Printf("Strategy %d (%s) queued for %s\n", st.ID, st.Name, st.Symbol)
}
