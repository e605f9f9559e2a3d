package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"tradePilot/internal/adapters/binanceclient"
	"tradePilot/internal/adapters/logger"
	"tradePilot/internal/market"

	"github.com/joho/godotenv"
)

// Collects one market snapshot and prints it as JSON. Useful for inspecting
// exactly what the advisor is shown for a symbol.
func main() {
	_ = godotenv.Load()

	defaultTestnet := true
	if v := os.Getenv("IS_TESTNET"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			defaultTestnet = b
		}
	}

	symbol := flag.String("symbol", "BTCUSDT", "symbol to snapshot")
	candles := flag.Int("candles", 0, "candles per timeframe (0 = collector default)")
	depth := flag.Int("depth", 0, "order-book levels per side (0 = collector default)")
	testnet := flag.Bool("testnet", defaultTestnet, "use testnet endpoints")
	timeout := flag.Duration("timeout", 30*time.Second, "collection timeout")
	flag.Parse()

	appLogger := logger.NewStdLogger(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// Keys may be absent. Snapshot collection only touches public market
	// data endpoints, and the client tolerates empty credentials for those.
	exchangeClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     os.Getenv("BINANCE_API_KEY"),
		SecretKey:  os.Getenv("BINANCE_API_SECRET"),
		UseTestnet: *testnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("Error initializing exchange client: %v", err)
	}

	collector, err := market.NewCollector(market.Config{
		Exchange:       exchangeClient,
		Logger:         appLogger,
		CandleLimit:    *candles,
		OrderBookDepth: *depth,
	})
	if err != nil {
		log.Fatalf("Error initializing collector: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	snap, err := collector.Collect(ctx, strings.ToUpper(strings.TrimSpace(*symbol)))
	if err != nil {
		log.Fatalf("Error collecting snapshot for %s: %v", *symbol, err)
	}

	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		log.Fatalf("Error encoding snapshot: %v", err)
	}
	fmt.Println(string(out))
}
