package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"gridHedgeBot/config"
	"gridHedgeBot/internal/adapters/logger"
	"gridHedgeBot/internal/adapters/sqlite"
	"gridHedgeBot/internal/domain"
	"gridHedgeBot/internal/utils"
)

var (
	symbol     = flag.String("symbol", "ETHUSDT", "symbol whose orders are exported")
	strategyID = flag.Int64("strategy", 0, "export only this strategy's orders")
	out        = flag.String("out", "", "output file (default data/orders_<symbol>_<date>.csv)")
)

func main() {
	flag.Parse()
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Initialize Repository
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	var orders []*domain.Order
	if *strategyID > 0 {
		orders, err = repo.FindOrdersByStrategy(ctx, *strategyID)
	} else {
		orders, err = repo.FindOrdersBySymbol(ctx, *symbol)
	}
	if err != nil {
		appLogger.Error(ctx, err, "Error reading orders")
		log.Fatalf("Error reading orders: %v", err)
	}
	appLogger.Info(ctx, "Fetched orders", map[string]interface{}{"count": len(orders)})

	filename := *out
	if filename == "" {
		filename = fmt.Sprintf("data/orders_%s_%s.csv", *symbol, time.Now().Format("20060102"))
	}
	if err := utils.WriteOrdersToCSV(orders, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
}
