package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

// --- Mock Logger ---

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// --- Mock Exchange ---

type mockExchange struct {
	tickerPrice  float64
	tickerErr    error
	orderBook    *domain.OrderBook
	orderBookErr error
	klines       map[string][]domain.Candle // keyed by interval
	klinesErr    map[string]error           // keyed by interval
}

func (m *mockExchange) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	return m.tickerPrice, m.tickerErr
}

func (m *mockExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	if err, ok := m.klinesErr[interval]; ok {
		return nil, err
	}
	return m.klines[interval], nil
}

func (m *mockExchange) GetOrderBook(ctx context.Context, symbol string, depth int) (*domain.OrderBook, error) {
	return m.orderBook, m.orderBookErr
}

func (m *mockExchange) GetPosition(ctx context.Context, symbol string) (*ports.Position, error) {
	return nil, nil
}

func (m *mockExchange) GetAvailableBalance(ctx context.Context, asset string) (float64, error) {
	return 0, nil
}

func (m *mockExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}

func (m *mockExchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity string) (*ports.OrderResult, error) {
	return nil, nil
}

func (m *mockExchange) ClosePosition(ctx context.Context, symbol string, side domain.Side, quantity string) (*ports.OrderResult, error) {
	return nil, nil
}

func (m *mockExchange) SetTakeProfitStopLoss(ctx context.Context, symbol string, side domain.Side, takeProfit, stopLoss float64) error {
	return nil
}

func (m *mockExchange) CancelAllOrders(ctx context.Context, symbol string) error { return nil }

func (m *mockExchange) GetSymbolConstraints(ctx context.Context, symbol string) (*ports.SymbolConstraints, error) {
	return nil, nil
}

func (m *mockExchange) Ping(ctx context.Context) error { return nil }

// --- Helpers ---

// seriesOf builds an ascending candle series long enough for indicators to
// be defined on the tail.
func seriesOf(n int, start float64) []domain.Candle {
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]domain.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		next := price + float64(i%5) - 2
		candles[i] = domain.Candle{
			OpenTime: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:     price,
			High:     maxF(price, next) + 1,
			Low:      minF(price, next) - 1,
			Close:    next,
			Volume:   10,
		}
		price = next
	}
	return candles
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// --- Tests ---

func TestCollect_AssemblesSnapshot(t *testing.T) {
	exchange := &mockExchange{
		tickerPrice: 50000,
		orderBook: &domain.OrderBook{
			Bids: []domain.PriceLevel{{Price: 49999, Quantity: 1.5}},
			Asks: []domain.PriceLevel{{Price: 50001, Quantity: 0.7}},
		},
		klines: map[string][]domain.Candle{
			"5m":  seriesOf(30, 50000),
			"15m": seriesOf(30, 49800),
		},
	}
	collector, err := NewCollector(Config{Exchange: exchange, Logger: &mockLogger{}})
	require.NoError(t, err)

	snap, err := collector.Collect(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, 50000.0, snap.CurrentPrice)
	assert.False(t, snap.CollectedAt.IsZero())
	assert.Len(t, snap.Candles5m, 30)
	assert.Len(t, snap.Candles15m, 30)
	require.Len(t, snap.OrderBook.Bids, 1)
	assert.Equal(t, 49999.0, snap.OrderBook.Bids[0].Price)

	// Indicators must be attached on the tail of each series.
	last5m := domain.LastCandle(snap.Candles5m)
	require.NotNil(t, last5m)
	assert.NotNil(t, last5m.RSI)
	assert.NotNil(t, last5m.ATR)
	last15m := domain.LastCandle(snap.Candles15m)
	require.NotNil(t, last15m)
	assert.NotNil(t, last15m.RSI)
}

func TestCollect_ShortSeriesHasNilIndicators(t *testing.T) {
	exchange := &mockExchange{
		tickerPrice: 50000,
		orderBook:   &domain.OrderBook{},
		klines: map[string][]domain.Candle{
			"5m":  seriesOf(10, 50000),
			"15m": seriesOf(10, 49800),
		},
	}
	collector, err := NewCollector(Config{Exchange: exchange, Logger: &mockLogger{}})
	require.NoError(t, err)

	snap, err := collector.Collect(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	for _, candle := range snap.Candles5m {
		assert.Nil(t, candle.RSI)
		assert.Nil(t, candle.ATR)
	}
}

func TestCollect_DoesNotMutateExchangeCandles(t *testing.T) {
	source := seriesOf(30, 50000)
	exchange := &mockExchange{
		tickerPrice: 50000,
		orderBook:   &domain.OrderBook{},
		klines: map[string][]domain.Candle{
			"5m":  source,
			"15m": seriesOf(30, 49800),
		},
	}
	collector, err := NewCollector(Config{Exchange: exchange, Logger: &mockLogger{}})
	require.NoError(t, err)

	_, err = collector.Collect(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	for _, candle := range source {
		assert.Nil(t, candle.RSI)
		assert.Nil(t, candle.ATR)
	}
}

func TestCollect_TickerFailure(t *testing.T) {
	wantErr := errors.New("network down")
	exchange := &mockExchange{tickerErr: wantErr}
	collector, err := NewCollector(Config{Exchange: exchange, Logger: &mockLogger{}})
	require.NoError(t, err)

	snap, err := collector.Collect(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Nil(t, snap)
	assert.True(t, errors.Is(err, wantErr))
}

func TestCollect_KlineFailure(t *testing.T) {
	wantErr := errors.New("klines unavailable")
	exchange := &mockExchange{
		tickerPrice: 50000,
		orderBook:   &domain.OrderBook{},
		klines:      map[string][]domain.Candle{"5m": seriesOf(30, 50000)},
		klinesErr:   map[string]error{"15m": wantErr},
	}
	collector, err := NewCollector(Config{Exchange: exchange, Logger: &mockLogger{}})
	require.NoError(t, err)

	_, err = collector.Collect(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.True(t, errors.Is(err, wantErr))
}
