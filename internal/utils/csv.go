package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"tradePilot/internal/domain"
)

func WriteTradeRecordsToCSV(records []*domain.TradeRecord, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{
		"trade_id", "symbol", "side", "entry_time", "entry_price", "size", "leverage",
		"tp_price", "sl_price", "entry_reason", "exit_time", "exit_price", "pnl",
		"exit_reason", "status",
	})

	for _, r := range records {
		exitTime := ""
		if !r.ExitTime.IsZero() {
			exitTime = r.ExitTime.Format(time.RFC3339)
		}
		writer.Write([]string{
			r.ID,
			r.Symbol,
			string(r.Side),
			r.EntryTime.Format(time.RFC3339),
			strconv.FormatFloat(r.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(r.Size, 'f', -1, 64),
			strconv.Itoa(r.Leverage),
			strconv.FormatFloat(r.TakeProfit, 'f', -1, 64),
			strconv.FormatFloat(r.StopLoss, 'f', -1, 64),
			r.Reason,
			exitTime,
			strconv.FormatFloat(r.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(r.PnL, 'f', -1, 64),
			string(r.ExitReason),
			string(r.Status),
		})
	}
	return writer.Error()
}
