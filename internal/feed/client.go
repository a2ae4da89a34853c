// Package feed реализует внешние адаптеры торгового ядра:
// WebSocket поток цен и HTTP клиенты bridge-сервисов.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"polytrader/internal/models"
	"polytrader/pkg/utils"
)

// ============================================================
// BridgeClient - HTTP клиент CLOB bridge
// ============================================================
//
// Bridge инкапсулирует подписание и отправку ордеров в CLOB;
// мы разговариваем с ним по простому JSON REST API. Клиент
// реализует контракты PriceFeed, ExecutionBackend и
// MarketDiscovery торгового ядра.

// BridgeConfig - настройки клиента bridge
type BridgeConfig struct {
	BaseURL        string
	APIKey         string // передаётся в X-API-Key, пусто = без аутентификации
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	MaxIdleConns   int
}

// DefaultBridgeConfig возвращает настройки по умолчанию
func DefaultBridgeConfig(baseURL string) BridgeConfig {
	return BridgeConfig{
		BaseURL:        baseURL,
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 30 * time.Second,
		MaxIdleConns:   10,
	}
}

// BridgeClient - клиент bridge-сервиса
type BridgeClient struct {
	cfg    BridgeConfig
	client *http.Client
	log    *utils.Logger
}

// NewBridgeClient создаёт клиент с connection pooling
func NewBridgeClient(cfg BridgeConfig, log *utils.Logger) *BridgeClient {
	if log == nil {
		log = utils.L()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &BridgeClient{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		log: log.WithComponent("bridge_client"),
	}
}

// Close закрывает idle соединения
func (c *BridgeClient) Close() {
	if transport, ok := c.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// ============ PriceFeed ============

type priceResponse struct {
	TokenID string  `json:"token_id"`
	Price   float64 `json:"price"`
}

// GetPrice возвращает среднюю цену инструмента
func (c *BridgeClient) GetPrice(ctx context.Context, tokenID string) (float64, error) {
	var resp priceResponse
	path := "/price?token_id=" + url.QueryEscape(tokenID)
	if err := c.get(ctx, path, &resp); err != nil {
		return 0, err
	}
	if resp.Price <= 0 {
		return 0, fmt.Errorf("bridge returned non-positive price %.6f for %s", resp.Price, tokenID)
	}
	return resp.Price, nil
}

// ============ ExecutionBackend ============

type balanceResponse struct {
	USDC float64 `json:"usdc"`
}

// Balance возвращает доступный баланс в USDC
func (c *BridgeClient) Balance(ctx context.Context) (float64, error) {
	var resp balanceResponse
	if err := c.get(ctx, "/balance", &resp); err != nil {
		return 0, err
	}
	return resp.USDC, nil
}

// Execute отправляет рыночный ордер в bridge
func (c *BridgeClient) Execute(ctx context.Context, req *models.ExecutionRequest) (*models.ExecutionResult, error) {
	var result models.ExecutionResult
	if err := c.post(ctx, "/order", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ============ MarketDiscovery ============

type marketsResponse struct {
	Markets []*models.MarketContext `json:"markets"`
}

// Candidates возвращает рыночные контексты инструментов,
// отобранных bridge'ем для торгового цикла
func (c *BridgeClient) Candidates(ctx context.Context) ([]*models.MarketContext, error) {
	var resp marketsResponse
	if err := c.get(ctx, "/markets", &resp); err != nil {
		return nil, err
	}
	return resp.Markets, nil
}

// Health проверяет доступность bridge
func (c *BridgeClient) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil)
}

// ============ Транспорт ============

func (c *BridgeClient) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *BridgeClient) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *BridgeClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		// в тексте ошибки сохраняем статус: retry-классификация
		// различает 502/503 и клиентские ошибки по подстроке
		return fmt.Errorf("bridge %s %s: status %d: %s", method, path, resp.StatusCode, truncate(raw, 200))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// ============================================================
// DecisionClient - HTTP клиент decision-сервиса
// ============================================================

// DecisionClient запрашивает торговые рекомендации у внешнего
// decision-сервиса. Реализует контракт DecisionService.
type DecisionClient struct {
	baseURL string
	client  *http.Client
	log     *utils.Logger
}

// NewDecisionClient создаёт клиент decision-сервиса
func NewDecisionClient(baseURL string, timeout time.Duration, log *utils.Logger) *DecisionClient {
	if log == nil {
		log = utils.L()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &DecisionClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log.WithComponent("decision_client"),
	}
}

// Decide возвращает рекомендацию по рыночному контексту
func (c *DecisionClient) Decide(ctx context.Context, mc *models.MarketContext) (*models.Decision, error) {
	payload, err := json.Marshal(mc)
	if err != nil {
		return nil, fmt.Errorf("marshal market context: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/decide", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("decision request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("decision service: status %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var decision models.Decision
	if err := json.Unmarshal(raw, &decision); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}

	switch decision.Action {
	case models.ActionBuy, models.ActionSell, models.ActionHold:
	default:
		c.log.Warn("unknown decision action, holding",
			utils.String("action", string(decision.Action)),
		)
		return models.HoldDecision(fmt.Sprintf("unknown action %q", decision.Action)), nil
	}
	return &decision, nil
}
