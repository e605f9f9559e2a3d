package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradePilot/internal/app"
	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type stubHandler struct {
	openRes  *app.OpenResult
	closeRes *app.CloseResult
	touchRes *app.TouchResult
	states   map[string]domain.LifecycleState

	openSymbol  string
	openSide    domain.Side
	closeSymbol string
	touchSymbol string
	openCalls   int
	closeCalls  int
	touchCalls  int
}

func (h *stubHandler) HandleOpen(ctx context.Context, symbol string, side domain.Side) *app.OpenResult {
	h.openCalls++
	h.openSymbol = symbol
	h.openSide = side
	return h.openRes
}

func (h *stubHandler) HandleClose(ctx context.Context, symbol string) *app.CloseResult {
	h.closeCalls++
	h.closeSymbol = symbol
	return h.closeRes
}

func (h *stubHandler) HandleThresholdTouch(ctx context.Context, symbol string) *app.TouchResult {
	h.touchCalls++
	h.touchSymbol = symbol
	return h.touchRes
}

func (h *stubHandler) States() map[string]domain.LifecycleState {
	return h.states
}

type stubLedger struct {
	records []*domain.TradeRecord
	err     error
}

func (l *stubLedger) Create(ctx context.Context, rec *domain.TradeRecord) error { return nil }
func (l *stubLedger) FindOpenBySymbol(ctx context.Context, symbol string) (*domain.TradeRecord, error) {
	return nil, nil
}
func (l *stubLedger) CloseRecord(ctx context.Context, id string, exitPrice float64, exitTime time.Time, pnl float64, reason domain.CloseReason) error {
	return nil
}
func (l *stubLedger) FindByID(ctx context.Context, id string) (*domain.TradeRecord, error) {
	return nil, nil
}
func (l *stubLedger) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.TradeRecord, error) {
	return nil, nil
}
func (l *stubLedger) FindAll(ctx context.Context) ([]*domain.TradeRecord, error) {
	return l.records, l.err
}
func (l *stubLedger) GetTotalProfit(ctx context.Context) (float64, error) { return 0, nil }

func newTestServer(t *testing.T) (*Server, *stubHandler, *stubLedger) {
	t.Helper()
	h := &stubHandler{
		openRes:  &app.OpenResult{Status: app.StatusSuccess, Message: "long position opened for BTCUSDT", TradeID: "t-1", EntryPrice: 100},
		closeRes: &app.CloseResult{Status: app.StatusSuccess, Message: "long position closed for BTCUSDT", ExitPrice: 110, PnL: 25},
		touchRes: &app.TouchResult{Status: app.StatusMaintain, Message: "position maintained", ChangeRate: 2.5},
		states:   map[string]domain.LifecycleState{},
	}
	l := &stubLedger{}
	s, err := NewServer(ServerConfig{ListenAddr: ":0"}, noopLogger{}, h, l)
	require.NoError(t, err)
	return s, h, l
}

func postWebhook(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestWebhook_OpenDispatch(t *testing.T) {
	s, h, _ := newTestServer(t)

	rr := postWebhook(t, s, `{"event": "open_pos", "symbol": "btcusdt", "position": "Long"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, h.openCalls)
	assert.Equal(t, "BTCUSDT", h.openSymbol, "symbol must be uppercased")
	assert.Equal(t, domain.Long, h.openSide)

	var res app.OpenResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, app.StatusSuccess, res.Status)
	assert.Equal(t, "t-1", res.TradeID)
}

func TestWebhook_CloseDispatch(t *testing.T) {
	s, h, _ := newTestServer(t)

	rr := postWebhook(t, s, `{"event": "close_pos", "symbol": "ethusdt"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, h.closeCalls)
	assert.Equal(t, "ETHUSDT", h.closeSymbol)

	var res app.CloseResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 110.0, res.ExitPrice)
	assert.Equal(t, 25.0, res.PnL)
}

func TestWebhook_TrendTouchDispatch(t *testing.T) {
	s, h, _ := newTestServer(t)

	rr := postWebhook(t, s, `{"event": "close_trend_pos", "symbol": "BTCUSDT"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, h.touchCalls)

	var res app.TouchResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, app.StatusMaintain, res.Status)
	assert.Equal(t, 2.5, res.ChangeRate)
}

func TestWebhook_ControllerResultPassedThroughVerbatim(t *testing.T) {
	s, h, _ := newTestServer(t)
	h.openRes = &app.OpenResult{Status: app.StatusRejected, AIDecision: "no", Message: "entry rejected by advisor: overbought"}

	rr := postWebhook(t, s, `{"event": "open_pos", "symbol": "BTCUSDT", "position": "long"}`)

	// A processed signal is always 200; the outcome lives in the body.
	require.Equal(t, http.StatusOK, rr.Code)
	var res app.OpenResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, app.StatusRejected, res.Status)
	assert.Equal(t, "no", res.AIDecision)
}

func TestWebhook_MalformedJSON(t *testing.T) {
	s, h, _ := newTestServer(t)

	rr := postWebhook(t, s, `{not json`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decodeError(t, rr)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 0, h.openCalls+h.closeCalls+h.touchCalls)
}

func TestWebhook_MissingRequiredFields(t *testing.T) {
	s, _, _ := newTestServer(t)

	for _, body := range []string{`{}`, `{"event": "open_pos"}`, `{"symbol": "BTCUSDT"}`} {
		rr := postWebhook(t, s, body)
		require.Equal(t, http.StatusBadRequest, rr.Code, "body %s", body)
		resp := decodeError(t, rr)
		assert.Contains(t, resp.Message, "missing required fields")
	}
}

func TestWebhook_OpenWithoutPosition(t *testing.T) {
	s, h, _ := newTestServer(t)

	rr := postWebhook(t, s, `{"event": "open_pos", "symbol": "BTCUSDT"}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decodeError(t, rr)
	assert.Contains(t, resp.Message, "position")
	assert.Equal(t, 0, h.openCalls)
}

func TestWebhook_InvalidSide(t *testing.T) {
	s, h, _ := newTestServer(t)

	rr := postWebhook(t, s, `{"event": "open_pos", "symbol": "BTCUSDT", "position": "sideways"}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 0, h.openCalls)
}

func TestWebhook_UnknownEvent(t *testing.T) {
	s, h, _ := newTestServer(t)

	rr := postWebhook(t, s, `{"event": "rebalance", "symbol": "BTCUSDT"}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decodeError(t, rr)
	assert.Contains(t, resp.Message, "unknown event")
	assert.Equal(t, 0, h.openCalls+h.closeCalls+h.touchCalls)
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s, h, _ := newTestServer(t)
	h.states = map[string]domain.LifecycleState{
		"BTCUSDT": domain.StateOpen,
		"ETHUSDT": domain.StateFlat,
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.GreaterOrEqual(t, resp.UptimeSeconds, int64(0))
	assert.Equal(t, []string{"BTCUSDT"}, resp.ActiveSymbols)
	assert.Equal(t, "FLAT", resp.States["ETHUSDT"])
}

func TestPositionsEndpoint(t *testing.T) {
	s, _, l := newTestServer(t)
	l.records = []*domain.TradeRecord{
		{
			ID:         "t-1",
			Symbol:     "BTCUSDT",
			Side:       domain.Long,
			EntryPrice: 100,
			EntryTime:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Size:       0.5,
			Leverage:   5,
			TakeProfit: 103,
			StopLoss:   98.5,
			Reason:     "favorable conditions",
			Status:     domain.StatusOpen,
		},
		{ID: "t-2", Symbol: "ETHUSDT", Side: domain.Short, Status: domain.StatusClosed, PnL: -10},
	}

	req := httptest.NewRequest(http.MethodGet, "/positions", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp positionsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	require.Equal(t, 1, resp.Count, "closed records are not open positions")
	got := resp.Positions[0]
	assert.Equal(t, "t-1", got.TradeID)
	assert.Equal(t, "long", got.Side)
	assert.Equal(t, 100.0, got.EntryPrice)
	assert.Equal(t, 5, got.Leverage)
}

func TestPositionsEndpoint_LedgerError(t *testing.T) {
	s, _, l := newTestServer(t)
	l.err = ports.ErrQueryFailed

	req := httptest.NewRequest(http.MethodGet, "/positions", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "error", decodeError(t, rr).Status)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Body.String())
}
