package bot

import (
	"context"
	"fmt"
	"time"

	"polytrader/internal/config"
	"polytrader/internal/models"
	"polytrader/pkg/breaker"
	"polytrader/pkg/ratelimit"
	"polytrader/pkg/retry"
	"polytrader/pkg/utils"
)

// ============================================================
// Контракты внешних коллабораторов
// ============================================================
//
// Ядро зависит только от этих узких интерфейсов. Реализации
// (HTTP клиенты, on-chain исполнители, БД) живут снаружи.

// PriceFeed - источник цен
type PriceFeed interface {
	// GetPrice возвращает текущую цену инструмента
	GetPrice(ctx context.Context, tokenID string) (float64, error)
}

// DecisionService - внешний сервис торговых решений
type DecisionService interface {
	// Decide возвращает рекомендацию по рыночному контексту
	Decide(ctx context.Context, mc *models.MarketContext) (*models.Decision, error)
}

// ExecutionBackend - внешний back-end исполнения сделок
type ExecutionBackend interface {
	// Execute исполняет сделку
	Execute(ctx context.Context, req *models.ExecutionRequest) (*models.ExecutionResult, error)

	// Balance возвращает доступный баланс в USDC
	Balance(ctx context.Context) (float64, error)
}

// MarketDiscovery - источник кандидатов для торгового цикла
type MarketDiscovery interface {
	// Candidates возвращает рыночные контексты инструментов,
	// пригодных для оценки в этом цикле
	Candidates(ctx context.Context) ([]*models.MarketContext, error)
}

// OrderStore - персистентность ордеров (контракт коллаборатора)
type OrderStore interface {
	Create(order *models.OrderRecord) error
	UpdateStatus(id string, status string, filledAmount float64, executedPrice *float64) error
	GetActive() ([]*models.OrderRecord, error)
}

// TradeStore - персистентность сделок
type TradeStore interface {
	Create(trade *models.TradeRecord) error
	ListPnl(limit int) ([]float64, error)
}

// CollaboratorError - типизированная ошибка внешней зависимости
type CollaboratorError struct {
	Dependency string
	Code       string
	Message    string
	Original   error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %s", e.Dependency, e.Message)
}

func (e *CollaboratorError) Unwrap() error { return e.Original }

// ============================================================
// Guard - breaker + retry + rate limit вокруг зависимости
// ============================================================

// Guard оборачивает вызовы одной внешней зависимости
//
// Композиция (снаружи внутрь): rate limit → breaker → retry.
// Breaker видит только ИТОГОВЫЙ исход retry-вызова, а не каждую
// промежуточную попытку - иначе внутренние retry преждевременно
// открывали бы breaker.
type Guard struct {
	name    string
	breaker *breaker.Breaker
	retry   retry.Config
	limiter *ratelimit.Limiter
	log     *utils.Logger
}

// NewGuard создаёт guard по конфигурации зависимости
func NewGuard(name string, cfg config.DependencyConfig, limiter *ratelimit.Limiter, log *utils.Logger) *Guard {
	if log == nil {
		log = utils.L()
	}
	log = log.WithDependency(name)

	retryCfg := retry.Config{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
		RetryIf:      retry.RetryIfMatches(cfg.Retry.RetryablePatterns),
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.Warn("retrying dependency call",
				utils.Int("attempt", attempt),
				utils.String("delay", delay.String()),
				utils.Err(err),
			)
			RecordDependencyRetry(name)
		},
	}

	g := &Guard{
		name:    name,
		retry:   retryCfg,
		limiter: limiter,
		log:     log,
	}

	g.breaker = breaker.New(breaker.Config{
		Name:             name,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
		OnStateChange: func(depName string, from, to breaker.State) {
			log.Warn("circuit breaker state changed",
				utils.String("from", string(from)),
				utils.String("to", string(to)),
			)
			UpdateBreakerState(depName, to)
		},
	})

	return g
}

// newDepLimiter строит rate limiter зависимости по её
// конфигурации. Rate <= 0 отключает лимитер (nil).
func newDepLimiter(cfg config.DependencyConfig) *ratelimit.Limiter {
	if cfg.RateLimit.Rate <= 0 {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.Rate, cfg.RateLimit.Burst)
}

// Call выполняет операцию под защитой guard'а
func Call[T any](ctx context.Context, g *Guard, operation func() (T, error)) (T, error) {
	var zero T

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, err
		}
	}

	return breaker.DoWithResult(ctx, g.breaker, func() (T, error) {
		result, err := retry.DoWithResult(ctx, operation, g.retry)
		if err != nil {
			RecordDependencyFailure(g.name)
		}
		return result, err
	})
}

// Breaker возвращает breaker зависимости (для интроспекции)
func (g *Guard) Breaker() *breaker.Breaker { return g.breaker }
