package handlers

import (
	"context"
	"errors"
	"time"

	"polytrader/internal/bot"
	"polytrader/internal/config"
	"polytrader/internal/models"
)

// ============================================================
// Моки коллабораторов для тестов хэндлеров
// ============================================================

// ErrMockBackend - ошибка, возвращаемая моками по требованию
var ErrMockBackend = errors.New("mock backend error")

type mockFeed struct {
	prices map[string]float64
}

func (m *mockFeed) GetPrice(ctx context.Context, tokenID string) (float64, error) {
	if price, ok := m.prices[tokenID]; ok {
		return price, nil
	}
	return 0, ErrMockBackend
}

type mockDecider struct{}

func (m *mockDecider) Decide(ctx context.Context, mc *models.MarketContext) (*models.Decision, error) {
	return models.HoldDecision("test"), nil
}

type mockBackend struct {
	balance float64
	execErr error
}

func (m *mockBackend) Execute(ctx context.Context, req *models.ExecutionRequest) (*models.ExecutionResult, error) {
	if m.execErr != nil {
		return nil, m.execErr
	}
	return &models.ExecutionResult{
		Success:        true,
		ExecutedPrice:  req.Price,
		ExecutedAmount: req.Amount,
	}, nil
}

func (m *mockBackend) Balance(ctx context.Context) (float64, error) {
	return m.balance, nil
}

type mockDiscovery struct{}

func (m *mockDiscovery) Candidates(ctx context.Context) ([]*models.MarketContext, error) {
	return nil, nil
}

type mockTrades struct {
	pnls []float64
	err  error
}

func (m *mockTrades) Create(trade *models.TradeRecord) error { return nil }

func (m *mockTrades) ListPnl(limit int) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.pnls, nil
}

// mockOrderStore - OrderStore с управляемыми ошибками
type mockOrderStore struct {
	created []*models.OrderRecord
	err     error
}

func (m *mockOrderStore) Create(order *models.OrderRecord) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, order)
	return nil
}

func (m *mockOrderStore) UpdateStatus(id string, status string, filledAmount float64, executedPrice *float64) error {
	return m.err
}

func (m *mockOrderStore) GetActive() ([]*models.OrderRecord, error) {
	return nil, m.err
}

// newMockOrchestrator собирает оркестратор на моках для тестов
// хэндлеров. Таймеры не запускаются.
func newMockOrchestrator(trades bot.TradeStore) *bot.Orchestrator {
	dep := config.DependencyConfig{
		Breaker: config.BreakerConfig{FailureThreshold: 5, ResetTimeout: time.Second},
		Retry: config.RetryConfig{
			MaxRetries:   0,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   2,
		},
	}
	cfg := &config.Config{
		Bot: config.BotConfig{
			MonitorInterval:   time.Second,
			CycleInterval:     time.Minute,
			MaxTradesPerCycle: 3,
			MinConfidence:     0.7,
			RiskEnabled:       true,
			MaxCycleFailures:  3,
			PriceTTL:          time.Minute,
		},
		Risk: config.RiskConfig{
			MaxSingleTradeFraction:   0.10,
			MaxPositionFraction:      0.20,
			MaxTotalExposureFraction: 0.80,
			StopLossPercent:          10,
			TakeProfitPercent:        20,
			MinConfidence:            0.6,
			RiskPerTrade:             0.02,
			MinRiskReward:            2.0,
			BalanceReserve:           10,
		},
		Deps: config.DependenciesConfig{PriceFeed: dep, Decision: dep, Execution: dep},
	}

	return bot.NewOrchestrator(cfg, bot.Collaborators{
		PriceFeed: &mockFeed{prices: map[string]float64{}},
		Decision:  &mockDecider{},
		Execution: &mockBackend{balance: 1000},
		Discovery: &mockDiscovery{},
		Trades:    trades,
	}, nil)
}
