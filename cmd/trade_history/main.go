package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"tradePilot/internal/adapters/logger"
	"tradePilot/internal/adapters/sqlite"
	"tradePilot/internal/analytics"
	"tradePilot/internal/domain"
	"tradePilot/internal/utils"

	"github.com/joho/godotenv"
)

func main() {
	// Only DB_PATH and LOG_LEVEL matter here, so read the environment
	// directly instead of going through config.LoadConfig, which insists
	// on exchange and advisor credentials this tool never uses.
	_ = godotenv.Load()

	defaultDB := os.Getenv("DB_PATH")
	if defaultDB == "" {
		defaultDB = "./data/trade_pilot.db"
	}

	dbPath := flag.String("db", defaultDB, "path to the trade ledger database")
	symbol := flag.String("symbol", "", "only show records for this symbol")
	limit := flag.Int("limit", 100, "maximum records when filtering by symbol")
	csvPath := flag.String("csv", "", "export records to this CSV file")
	flag.Parse()

	appLogger := logger.NewStdLogger(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: *dbPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("Error opening ledger at %s: %v", *dbPath, err)
	}
	defer repo.Close()

	ctx := context.Background()

	var records []*domain.TradeRecord
	if *symbol != "" {
		records, err = repo.FindBySymbol(ctx, *symbol, *limit)
	} else {
		records, err = repo.FindAll(ctx)
	}
	if err != nil {
		log.Fatalf("Error reading trade records: %v", err)
	}

	if len(records) == 0 {
		fmt.Println("No trade records found.")
		return
	}

	printRecords(records)
	printSummary(analytics.Analyze(records))

	if *csvPath != "" {
		if err := utils.WriteTradeRecordsToCSV(records, *csvPath); err != nil {
			log.Fatalf("Error writing CSV to %s: %v", *csvPath, err)
		}
		fmt.Printf("\nExported %d records to %s\n", len(records), *csvPath)
	}
}

func printRecords(records []*domain.TradeRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "EntryTime\tSymbol\tSide\tSize\tLev\tEntry\tExit\tPnL\tExitReason\tStatus\t")

	for _, r := range records {
		exitPrice := "-"
		pnl := "-"
		exitReason := "-"
		if r.Status == domain.StatusClosed {
			exitPrice = fmt.Sprintf("%.4f", r.ExitPrice)
			pnl = fmt.Sprintf("%.4f", r.PnL)
			exitReason = string(r.ExitReason)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%d\t%.4f\t%s\t%s\t%s\t%s\t\n",
			r.EntryTime.Format(time.RFC3339),
			r.Symbol,
			r.Side,
			r.Size,
			r.Leverage,
			r.EntryPrice,
			exitPrice,
			pnl,
			exitReason,
			r.Status,
		)
	}
	w.Flush()
}

func printSummary(perf *analytics.Performance) {
	if perf.TotalTrades == 0 {
		fmt.Println("\nNo closed trades yet.")
		return
	}

	fmt.Println("\n## Performance Summary")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintf(w, "Closed Trades\t%d\t\n", perf.TotalTrades)
	fmt.Fprintf(w, "Winning / Losing\t%d / %d\t\n", perf.WinningTrades, perf.LosingTrades)
	fmt.Fprintf(w, "Win Rate\t%.2f%%\t\n", perf.WinRate*100)
	fmt.Fprintf(w, "Total PnL\t%.4f\t\n", perf.TotalPnL)
	fmt.Fprintf(w, "Avg Win / Avg Loss\t%.4f / %.4f\t\n", perf.AverageWin, perf.AverageLoss)
	fmt.Fprintf(w, "Profit Factor\t%.2f\t\n", perf.ProfitFactor)
	fmt.Fprintf(w, "Expectancy\t%.4f\t\n", perf.Expectancy)
	fmt.Fprintf(w, "Max Drawdown\t%.4f\t\n", perf.MaxDrawdown)
	fmt.Fprintf(w, "Max Consec Wins / Losses\t%d / %d\t\n", perf.MaxConsecutiveWins, perf.MaxConsecutiveLosses)
	fmt.Fprintf(w, "Avg Holding\t%s\t\n", perf.AverageHolding.Round(time.Second))
	w.Flush()
}
