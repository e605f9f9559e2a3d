package claudeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jpillora/backoff"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

const (
	defaultBaseURL    = "https://api.anthropic.com/v1"
	defaultModel      = "claude-3-7-sonnet-20250219"
	defaultMaxTokens  = 20000
	defaultTimeout    = 120 * time.Second
	defaultRetryDelay = 2 * time.Second

	apiVersion  = "2023-06-01"
	maxAttempts = 3
)

// Client implements the ports.Advisor interface against the Anthropic
// Messages API. Extended thinking is enabled so the model reasons before
// committing to a verdict.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	retryDelay time.Duration
	httpClient *http.Client
	logger     ports.Logger
}

// Config holds configuration specific to the advisor client adapter.
type Config struct {
	APIKey     string
	Model      string        // defaults to claude-3-7-sonnet-20250219
	BaseURL    string        // override for testing
	MaxTokens  int           // defaults to 20000
	Timeout    time.Duration // per-request timeout, defaults to 120s
	RetryDelay time.Duration // delay between retry attempts, defaults to 2s
	Logger     ports.Logger
}

// New creates a new advisor client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for advisor client")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("advisor client: %w: API key is required", ports.ErrValidation)
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	return &Client{
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxTokens:  maxTokens,
		retryDelay: retryDelay,
		httpClient: &http.Client{Timeout: timeout},
		logger:     cfg.Logger,
	}, nil
}

// positionSummary is the position context sent to the advisor on a
// trend-touch question.
type positionSummary struct {
	PositionType  string  `json:"position_type"`
	EntryPrice    float64 `json:"entry_price"`
	Size          float64 `json:"size"`
	Leverage      int     `json:"leverage"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	MarkPrice     float64 `json:"mark_price"`
}

// VerifyEntry asks whether a new position on the given side should be opened
// against the provided market context.
func (c *Client) VerifyEntry(ctx context.Context, symbol string, side domain.Side, snap *domain.MarketSnapshot) (*ports.Verdict, error) {
	op := "VerifyEntry"

	marketJSON, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrValidation, err)
	}

	direction := "upward"
	if side == domain.Short {
		direction = "downward"
	}

	prompt := fmt.Sprintf(`You are an expert crypto futures market analyst assisting a professional trader.

CURRENT MARKET DATA:
%s

QUESTION:
Based on the market data above, should the trader enter a %s position on %s perpetual futures now?
Analyze whether current market conditions are favorable for entering a %s trend.

Your analysis should consider:
- Price action and recent momentum
- Technical indicators
- Current market structure and volume patterns
- Potential support/resistance levels

Please provide your decision in JSON format:
{"Answer":"yes/no","Reason":"Brief explanation of your decision"}`, marketJSON, side, symbol, direction)

	text, err := c.generate(ctx, op, prompt)
	if err != nil {
		return nil, err
	}
	return c.parseVerdict(ctx, op, text), nil
}

// VerifyTrendTouch asks whether a held position should be closed after a
// trend threshold touch. "yes" means close, "no" means keep holding.
func (c *Client) VerifyTrendTouch(ctx context.Context, symbol string, pos *ports.Position, snap *domain.MarketSnapshot) (*ports.Verdict, error) {
	op := "VerifyTrendTouch"
	if pos == nil {
		return nil, fmt.Errorf("%s failed: %w: position is required", op, ports.ErrValidation)
	}

	marketJSON, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrValidation, err)
	}
	positionJSON, err := json.Marshal(positionSummary{
		PositionType:  string(pos.Side),
		EntryPrice:    pos.EntryPrice,
		Size:          pos.Size,
		Leverage:      pos.Leverage,
		UnrealizedPnL: pos.UnrealizedPnL,
		MarkPrice:     pos.MarkPrice,
	})
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrValidation, err)
	}

	prompt := fmt.Sprintf(`You are an expert crypto futures market analyst assisting a professional trader.

CURRENT MARKET DATA:
%s

CURRENT POSITION:
%s

SITUATION:
The trader is currently in a %s position on %s perpetual futures entered at %g.
The price has just touched a trend threshold, which is a critical decision point.

QUESTION:
Based on the comprehensive market data above and the current position information, what is the optimal decision for this %s position that was entered at %g?

Your analysis should consider:
- Current price in relation to entry price
- Whether the original trend is still intact
- Volume patterns and momentum indicators
- Risk of reversal versus potential for continuation

Please provide your decision in JSON format:
{"Answer":"yes/no","Reason":"Brief explanation of your decision (yes = close position, no = maintain position)"}`,
		marketJSON, positionJSON, pos.Side, symbol, pos.EntryPrice, pos.Side, pos.EntryPrice)

	text, err := c.generate(ctx, op, prompt)
	if err != nil {
		return nil, err
	}
	return c.parseVerdict(ctx, op, text), nil
}

// --- Messages API wire types ---

type messagesRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	Thinking    *thinkingConfig `json:"thinking,omitempty"`
	Messages    []message       `json:"messages"`
}

type thinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Type    string         `json:"type"`
	Content []contentBlock `json:"content"`
	Error   *apiError      `json:"error,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// generate sends the prompt and returns the concatenated text blocks of the
// response. Transient failures are retried a bounded number of times with a
// fixed delay before the error is surfaced.
func (c *Client) generate(ctx context.Context, op, prompt string) (string, error) {
	// The thinking budget must stay below max_tokens.
	thinkingBudget := c.maxTokens - 4000
	if thinkingBudget > 16000 {
		thinkingBudget = 16000
	}
	req := messagesRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: 1.0,
		Messages:    []message{{Role: "user", Content: prompt}},
	}
	if thinkingBudget > 0 {
		req.Thinking = &thinkingConfig{Type: "enabled", BudgetTokens: thinkingBudget}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%s failed: %w: %w", op, ports.ErrValidation, err)
	}

	retry := &backoff.Backoff{Min: c.retryDelay, Max: c.retryDelay, Factor: 1}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			c.logger.Info(ctx, op+": retrying advisor request", map[string]interface{}{"attempt": attempt, "maxAttempts": maxAttempts})
			select {
			case <-time.After(retry.Duration()):
			case <-ctx.Done():
				return "", fmt.Errorf("%s canceled: %w", op, ctx.Err())
			}
		}

		text, err := c.doRequest(ctx, body)
		if err == nil {
			c.logger.Debug(ctx, op+": advisor response received", map[string]interface{}{"model": c.model, "responseLength": len(text)})
			return text, nil
		}
		lastErr = err
		c.logger.Warn(ctx, op+": advisor request failed", map[string]interface{}{"attempt": attempt, "error": err.Error()})
		if ctx.Err() != nil {
			break
		}
	}

	finalErr := fmt.Errorf("%s failed: %w: %w", op, ports.ErrExternalService, lastErr)
	c.logger.Error(ctx, lastErr, op+": advisor unreachable after retries", map[string]interface{}{"maxAttempts": maxAttempts})
	return "", finalErr
}

func (c *Client) doRequest(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var decoded messagesResponse
		if err := json.Unmarshal(respBody, &decoded); err == nil && decoded.Error != nil {
			return "", fmt.Errorf("API error %d (%s): %s", resp.StatusCode, decoded.Error.Type, decoded.Error.Message)
		}
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded messagesResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	var sb strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// verdictPayload mirrors the JSON object the prompt asks the model for.
type verdictPayload struct {
	Answer string `json:"Answer"`
	Reason string `json:"Reason"`
}

// parseVerdict normalizes the advisor's free-form response onto a yes/no
// verdict. An unparseable response is logged and collapsed to a conservative
// "no" rather than surfaced as a failure.
func (c *Client) parseVerdict(ctx context.Context, op, text string) *ports.Verdict {
	payload, err := decodeVerdict(text)
	if err != nil {
		c.logger.Warn(ctx, op+": could not parse advisor response, defaulting to no", map[string]interface{}{
			"error":    fmt.Errorf("%w: %w", ports.ErrAdvisorParse, err).Error(),
			"response": truncate(text, 500),
		})
		return &ports.Verdict{Answer: "no", Reason: "failed to parse advisor response"}
	}

	verdict := &ports.Verdict{Answer: ports.NormalizeAnswer(payload.Answer), Reason: payload.Reason}
	c.logger.Info(ctx, op+": advisor verdict", map[string]interface{}{"answer": verdict.Answer, "reason": truncate(verdict.Reason, 200)})
	return verdict
}

// decodeVerdict extracts the JSON object from the response text, tolerating
// a surrounding markdown code fence.
func decodeVerdict(text string) (*verdictPayload, error) {
	jsonText := text
	if idx := strings.Index(text, "```json"); idx >= 0 {
		jsonText = text[idx+len("```json"):]
		if end := strings.Index(jsonText, "```"); end >= 0 {
			jsonText = jsonText[:end]
		}
	} else if idx := strings.Index(text, "```"); idx >= 0 {
		jsonText = text[idx+len("```"):]
		if end := strings.Index(jsonText, "```"); end >= 0 {
			jsonText = jsonText[:end]
		}
	}
	jsonText = strings.TrimSpace(jsonText)

	var payload verdictPayload
	if err := json.Unmarshal([]byte(jsonText), &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling verdict: %w", err)
	}
	if payload.Answer == "" {
		return nil, fmt.Errorf("verdict is missing the Answer field")
	}
	return &payload, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
