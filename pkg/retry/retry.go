package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Config конфигурация retry логики
//
// Экспоненциальный backoff с jitter:
// delay(i) = min(InitialDelay * Multiplier^i, MaxDelay) + jitter
//
// Jitter добавляет случайность чтобы избежать "thundering herd"
// при одновременном retry многих вызовов
type Config struct {
	// MaxRetries - количество ПОВТОРНЫХ попыток.
	// Всего выполняется не более MaxRetries+1 вызовов.
	MaxRetries int

	// InitialDelay - начальная задержка между попытками
	// По умолчанию: 100ms
	InitialDelay time.Duration

	// MaxDelay - максимальная задержка между попытками
	// По умолчанию: 30s
	MaxDelay time.Duration

	// Multiplier - множитель экспоненциального роста
	// По умолчанию: 2.0
	Multiplier float64

	// JitterFactor - фактор случайности (0.0 - 1.0)
	// По умолчанию: 0 (без jitter, детерминированные задержки)
	JitterFactor float64

	// RetryIf классифицирует ошибку: retryable или нет.
	// Не-retryable ошибка возвращается сразу, не расходуя попытки.
	// По умолчанию: retry всех ошибок.
	RetryIf func(error) bool

	// OnRetry - callback перед каждой повторной попыткой
	// (логирование, метрики)
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig возвращает конфигурацию по умолчанию
//
// Подходит для большинства вызовов внешних сервисов:
// 1 + 3 попытки с задержками 100ms, 200ms, 400ms
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// validate проверяет и устанавливает значения по умолчанию
func (c *Config) validate() {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

// Delay вычисляет задержку перед повторной попыткой после
// неудачной попытки attempt (0-indexed)
func (c *Config) Delay(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))

	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.JitterFactor > 0 {
		delay += delay * c.JitterFactor * (rand.Float64()*2 - 1)
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// Do выполняет операцию с повторными попытками
//
// Возвращает nil при успехе любой попытки, иначе последнюю
// ошибку после исчерпания попыток. Ожидание отменяемо через
// контекст и не блокирует другие горутины.
func Do(ctx context.Context, operation func() error, cfg Config) error {
	_, err := DoWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, cfg)
	return err
}

// DoWithResult выполняет операцию с результатом и retry
//
//	decision, err := retry.DoWithResult(ctx, func() (*models.Decision, error) {
//	    return svc.Decide(ctx, mc)
//	}, cfg)
func DoWithResult[T any](ctx context.Context, operation func() (T, error), cfg Config) (T, error) {
	cfg.validate()

	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, ctx.Err()
		default:
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Не-retryable ошибка возвращается немедленно
		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return zero, err
		}

		if attempt >= cfg.MaxRetries {
			break
		}

		delay := cfg.Delay(attempt)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// ============================================================
// Классификация ошибок
// ============================================================

// RetryableError - интерфейс ошибок, знающих о своей retryability
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable проверяет можно ли повторять операцию после ошибки
//
// Возвращает false для ошибок контекста и PermanentError,
// true для TemporaryError и Temporary()-ошибок, иначе true
// (по умолчанию повторяем).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}

	type temporary interface {
		Temporary() bool
	}
	var temp temporary
	if errors.As(err, &temp) {
		return temp.Temporary()
	}

	return true
}

// RetryIfMatches возвращает классификатор по allow-list сигнатур.
//
// Ошибка считается retryable если её текст содержит одну из
// сигнатур (без учёта регистра): network/timeout/rate-limit и т.п.
// Ошибки, явно помеченные Permanent/Temporary, классифицируются
// по метке независимо от текста.
func RetryIfMatches(patterns []string) func(error) bool {
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}

	return func(err error) bool {
		if err == nil {
			return false
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}

		// Явная метка важнее текстовой сигнатуры
		var retryable RetryableError
		if errors.As(err, &retryable) {
			return retryable.Retryable()
		}

		msg := strings.ToLower(err.Error())
		for _, p := range lowered {
			if strings.Contains(msg, p) {
				return true
			}
		}
		return false
	}
}

// ============================================================
// Wrapper errors
// ============================================================

// PermanentError оборачивает ошибку которую нельзя повторять
// (валидация, недостаток средств)
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Retryable возвращает false
func (e *PermanentError) Retryable() bool { return false }

// Permanent помечает ошибку как не-retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// TemporaryError оборачивает ошибку которую нужно повторять
type TemporaryError struct {
	Err error
}

func (e *TemporaryError) Error() string { return e.Err.Error() }

func (e *TemporaryError) Unwrap() error { return e.Err }

// Retryable возвращает true
func (e *TemporaryError) Retryable() bool { return true }

// Temporary возвращает true
func (e *TemporaryError) Temporary() bool { return true }

// Temporary помечает ошибку как retryable
func Temporary(err error) error {
	if err == nil {
		return nil
	}
	return &TemporaryError{Err: err}
}
