package app

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

// Mock implementations shared by the controller and monitor tests.

func defaultConstraints() *ports.SymbolConstraints {
	return &ports.SymbolConstraints{
		MinQty:            decimal.RequireFromString("0.001"),
		MaxQty:            decimal.RequireFromString("1000"),
		QtyStep:           decimal.RequireFromString("0.001"),
		PricePrecision:    2,
		QuantityPrecision: 3,
	}
}

type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

// mockExchange simulates the position lifecycle: a market order creates
// the position returned by later GetPosition calls, ClosePosition
// removes it. All fields are guarded so concurrent handlers can share
// one instance.
type mockExchange struct {
	mu sync.Mutex

	position    *ports.Position
	positionErr error

	tickerPrice float64
	tickerErr   error

	balance     float64
	balanceErr  error
	constraints *ports.SymbolConstraints

	leverageErr   error
	orderErr      error
	closeErr      error
	tpslErr       error
	cancelErr     error
	fillOnOrder   bool // market order materializes a position
	fillLeverage  int
	fillPrice     float64
	closeDropsPos bool // successful close removes the position

	leverageCalls int
	lastLeverage  int
	orderCalls    int
	closeCalls    int
	tpslCalls     int
	cancelCalls   int
	positionCalls int
}

func newMockExchange() *mockExchange {
	return &mockExchange{
		tickerPrice:   100,
		balance:       1000,
		fillLeverage:  5,
		fillPrice:     100,
		fillOnOrder:   true,
		closeDropsPos: true,
		constraints:   defaultConstraints(),
	}
}

func (m *mockExchange) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickerPrice, m.tickerErr
}

func (m *mockExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	return nil, nil
}

func (m *mockExchange) GetOrderBook(ctx context.Context, symbol string, depth int) (*domain.OrderBook, error) {
	return &domain.OrderBook{}, nil
}

func (m *mockExchange) GetPosition(ctx context.Context, symbol string) (*ports.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionCalls++
	if m.positionErr != nil {
		return nil, m.positionErr
	}
	if m.position == nil {
		return nil, nil
	}
	cp := *m.position
	return &cp, nil
}

func (m *mockExchange) GetAvailableBalance(ctx context.Context, asset string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, m.balanceErr
}

func (m *mockExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leverageCalls++
	m.lastLeverage = leverage
	return m.leverageErr
}

func (m *mockExchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity string) (*ports.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderCalls++
	if m.orderErr != nil {
		return nil, m.orderErr
	}
	if m.fillOnOrder {
		m.position = &ports.Position{
			Symbol:     symbol,
			Side:       side,
			Size:       0.5,
			EntryPrice: m.fillPrice,
			Leverage:   m.fillLeverage,
		}
	}
	return &ports.OrderResult{OrderID: int64(m.orderCalls), Symbol: symbol, Status: "FILLED"}, nil
}

func (m *mockExchange) ClosePosition(ctx context.Context, symbol string, side domain.Side, quantity string) (*ports.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	if m.closeErr != nil {
		return nil, m.closeErr
	}
	if m.closeDropsPos {
		m.position = nil
	}
	return &ports.OrderResult{OrderID: int64(1000 + m.closeCalls), Symbol: symbol, Status: "FILLED"}, nil
}

func (m *mockExchange) SetTakeProfitStopLoss(ctx context.Context, symbol string, side domain.Side, takeProfit, stopLoss float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tpslCalls++
	return m.tpslErr
}

func (m *mockExchange) CancelAllOrders(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCalls++
	return m.cancelErr
}

func (m *mockExchange) GetSymbolConstraints(ctx context.Context, symbol string) (*ports.SymbolConstraints, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.constraints, nil
}

func (m *mockExchange) Ping(ctx context.Context) error { return nil }

func (m *mockExchange) setPosition(p *ports.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = p
}

func (m *mockExchange) counts() (leverage, order, close, tpsl, cancel int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leverageCalls, m.orderCalls, m.closeCalls, m.tpslCalls, m.cancelCalls
}

type mockLedger struct {
	mu      sync.Mutex
	open    map[string]*domain.TradeRecord
	closed  []*domain.TradeRecord
	creates int

	createErr error
	findErr   error
	closeErr  error
}

func newMockLedger() *mockLedger {
	return &mockLedger{open: make(map[string]*domain.TradeRecord)}
}

func (m *mockLedger) Create(ctx context.Context, rec *domain.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.open[rec.Symbol]; exists {
		return ports.ErrStateConflict
	}
	cp := *rec
	m.open[rec.Symbol] = &cp
	return nil
}

func (m *mockLedger) FindOpenBySymbol(ctx context.Context, symbol string) (*domain.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	rec, ok := m.open[symbol]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *mockLedger) CloseRecord(ctx context.Context, id string, exitPrice float64, exitTime time.Time, pnl float64, reason domain.CloseReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeErr != nil {
		return m.closeErr
	}
	for symbol, rec := range m.open {
		if rec.ID == id {
			rec.ExitPrice = exitPrice
			rec.ExitTime = exitTime
			rec.PnL = pnl
			rec.ExitReason = reason
			rec.Status = domain.StatusClosed
			m.closed = append(m.closed, rec)
			delete(m.open, symbol)
			return nil
		}
	}
	return nil
}

func (m *mockLedger) FindByID(ctx context.Context, id string) (*domain.TradeRecord, error) {
	return nil, nil
}

func (m *mockLedger) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.TradeRecord, error) {
	return nil, nil
}

func (m *mockLedger) FindAll(ctx context.Context) ([]*domain.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.TradeRecord, 0, len(m.open)+len(m.closed))
	for _, rec := range m.open {
		cp := *rec
		out = append(out, &cp)
	}
	for _, rec := range m.closed {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockLedger) GetTotalProfit(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0.0
	for _, rec := range m.closed {
		total += rec.PnL
	}
	return total, nil
}

func (m *mockLedger) openRecord(symbol string) *domain.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.open[symbol]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

func (m *mockLedger) closedRecords() []*domain.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.TradeRecord, len(m.closed))
	copy(out, m.closed)
	return out
}

type mockEventStore struct {
	mu     sync.Mutex
	events []*domain.DecisionEvent
	err    error
}

func (m *mockEventStore) RecordEvent(ctx context.Context, ev *domain.DecisionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *ev
	m.events = append(m.events, &cp)
	return nil
}

func (m *mockEventStore) RecentEvents(ctx context.Context, limit int) ([]*domain.DecisionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.DecisionEvent, len(m.events))
	copy(out, m.events)
	return out, nil
}

func (m *mockEventStore) recorded() []*domain.DecisionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.DecisionEvent, len(m.events))
	copy(out, m.events)
	return out
}

type mockAdvisor struct {
	mu           sync.Mutex
	entryVerdict *ports.Verdict
	entryErr     error
	touchVerdict *ports.Verdict
	touchErr     error
	entryCalls   int
	touchCalls   int
}

func (m *mockAdvisor) VerifyEntry(ctx context.Context, symbol string, side domain.Side, snap *domain.MarketSnapshot) (*ports.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entryCalls++
	if m.entryErr != nil {
		return nil, m.entryErr
	}
	return m.entryVerdict, nil
}

func (m *mockAdvisor) VerifyTrendTouch(ctx context.Context, symbol string, position *ports.Position, snap *domain.MarketSnapshot) (*ports.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchCalls++
	if m.touchErr != nil {
		return nil, m.touchErr
	}
	return m.touchVerdict, nil
}

func (m *mockAdvisor) calls() (entry, touch int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entryCalls, m.touchCalls
}

type mockCollector struct {
	mu    sync.Mutex
	snap  *domain.MarketSnapshot
	err   error
	calls int
}

func (m *mockCollector) Collect(ctx context.Context, symbol string) (*domain.MarketSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	cp := *m.snap
	cp.Symbol = symbol
	return &cp, nil
}

type mockWatcher struct {
	mu        sync.Mutex
	watched   map[string]float64
	unwatched []string
}

func newMockWatcher() *mockWatcher {
	return &mockWatcher{watched: make(map[string]float64)}
}

func (m *mockWatcher) Watch(symbol string, side domain.Side, entryPrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watched[symbol] = entryPrice
}

func (m *mockWatcher) Unwatch(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watched, symbol)
	m.unwatched = append(m.unwatched, symbol)
}

func (m *mockWatcher) unwatchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unwatched)
}

// mockCloser satisfies Closer for monitor tests.
type mockCloser struct {
	mu      sync.Mutex
	results map[string]*CloseResult
	calls   []struct {
		Symbol string
		Reason domain.CloseReason
	}
}

func newMockCloser() *mockCloser {
	return &mockCloser{results: make(map[string]*CloseResult)}
}

func (m *mockCloser) Close(ctx context.Context, symbol string, reason domain.CloseReason) *CloseResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, struct {
		Symbol string
		Reason domain.CloseReason
	}{symbol, reason})
	if res, ok := m.results[symbol]; ok {
		return res
	}
	return &CloseResult{Status: StatusSuccess, ExitPrice: 100, Message: "closed"}
}

func (m *mockCloser) closeCalls() []struct {
	Symbol string
	Reason domain.CloseReason
} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]struct {
		Symbol string
		Reason domain.CloseReason
	}, len(m.calls))
	copy(out, m.calls)
	return out
}
