package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State - состояние circuit breaker'а
type State string

// Состояния
const (
	StateClosed   State = "CLOSED"    // вызовы проходят, ошибки считаются
	StateOpen     State = "OPEN"      // вызовы блокируются до истечения ResetTimeout
	StateHalfOpen State = "HALF_OPEN" // пробный вызов: успех закрывает, ошибка открывает
)

// ErrOpen возвращается когда breaker открыт и fallback не задан
var ErrOpen = errors.New("circuit breaker is open")

// Config конфигурация circuit breaker'а
type Config struct {
	// Name - имя защищаемой зависимости (для логов и метрик)
	Name string

	// FailureThreshold - число ПОСЛЕДОВАТЕЛЬНЫХ ошибок для
	// перехода CLOSED → OPEN. По умолчанию: 5.
	FailureThreshold int

	// ResetTimeout - время после последней ошибки, по истечении
	// которого OPEN → HALF_OPEN. По умолчанию: 30s.
	ResetTimeout time.Duration

	// OnStateChange - callback при смене состояния
	// (логирование, метрики)
	OnStateChange func(name string, from, to State)
}

// validate устанавливает значения по умолчанию
func (c *Config) validate() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.FailureThreshold < 1 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
}

// Breaker - circuit breaker одной внешней зависимости
//
// Переходы состояний (только эти):
// - CLOSED → OPEN: после FailureThreshold последовательных ошибок
// - OPEN → HALF_OPEN: по истечении ResetTimeout с последней ошибки
// - HALF_OPEN → CLOSED: следующий вызов успешен (счётчик сброшен)
// - HALF_OPEN → OPEN: следующий вызов неудачен (lastFailure обновлён)
//
// Каждая зависимость (price feed, decision service, execution
// back-end) владеет собственным экземпляром с независимыми
// порогами. Потокобезопасен: одного мьютекса достаточно на
// этом масштабе.
type Breaker struct {
	cfg Config

	mu           sync.Mutex
	state        State
	failureCount int
	lastFailure  time.Time
}

// New создаёт закрытый breaker
func New(cfg Config) *Breaker {
	cfg.validate()
	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
	}
}

// Name возвращает имя защищаемой зависимости
func (b *Breaker) Name() string { return b.cfg.Name }

// State возвращает текущее состояние.
// OPEN с истёкшим ResetTimeout отражается как OPEN до
// следующего вызова Do (переход ленивый).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counts возвращает счётчик последовательных ошибок и время
// последней ошибки
func (b *Breaker) Counts() (failures int, lastFailure time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount, b.lastFailure
}

// Do выполняет операцию под защитой breaker'а
//
// Если breaker открыт и ResetTimeout не истёк - операция НЕ
// вызывается, возвращается ErrOpen. Если истёк - переход в
// HALF_OPEN и одна пробная попытка.
func (b *Breaker) Do(ctx context.Context, operation func() error) error {
	_, err := DoWithResult(ctx, b, func() (struct{}, error) {
		return struct{}{}, operation()
	})
	return err
}

// DoWithFallback выполняет операцию; при открытом breaker'е или
// ошибке операции возвращает результат fallback'а.
//
// Типичный fallback - консервативное HOLD решение или пропуск
// цикла: известная-плохая зависимость не должна ронять процесс.
func (b *Breaker) DoWithFallback(ctx context.Context, operation func() error, fallback func(error) error) error {
	err := b.Do(ctx, operation)
	if err != nil && fallback != nil {
		return fallback(err)
	}
	return err
}

// DoWithResult выполняет операцию с результатом под защитой breaker'а
func DoWithResult[T any](ctx context.Context, b *Breaker, operation func() (T, error)) (T, error) {
	var zero T

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
	}

	if err := b.beforeCall(); err != nil {
		return zero, err
	}

	result, err := operation()
	b.afterCall(err)
	if err != nil {
		return zero, err
	}
	return result, nil
}

// beforeCall решает, пропускать ли вызов, и выполняет ленивый
// переход OPEN → HALF_OPEN
func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}

	if time.Since(b.lastFailure) <= b.cfg.ResetTimeout {
		return fmt.Errorf("%s: %w", b.cfg.Name, ErrOpen)
	}

	b.setState(StateHalfOpen)
	return nil
}

// afterCall фиксирует исход вызова
func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failureCount = 0
		if b.state == StateHalfOpen {
			b.setState(StateClosed)
		}
		return
	}

	b.failureCount++
	b.lastFailure = time.Now()

	// Пробный вызов из HALF_OPEN открывает breaker при любой
	// ошибке, независимо от порога
	if b.state == StateHalfOpen || b.failureCount >= b.cfg.FailureThreshold {
		b.setState(StateOpen)
	}
}

// setState меняет состояние; вызывается под мьютексом
func (b *Breaker) setState(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// IsOpen проверяет что ошибка вызвана открытым breaker'ом
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen)
}
