package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter - Token Bucket rate limiter для контроля частоты
// вызовов внешних сервисов (decision service, execution back-end)
//
// Алгоритм Token Bucket:
// - Ведро наполняется токенами с постоянной скоростью (rate токенов/сек)
// - Максимальная ёмкость ведра = burst
// - Каждый вызов потребляет 1 токен
// - Без токенов вызов ждёт (Wait) или отклоняется (Allow)
//
// Rate limiter стоит ПЕРЕД retry: повторная попытка тоже
// потребляет токен, иначе backoff обходил бы лимит сервиса.
//
//	limiter := ratelimit.New(5, 10) // 5 req/sec, burst 10
//	if err := limiter.Wait(ctx); err != nil { ... }
type Limiter struct {
	rate       float64 // токенов в секунду
	burst      float64 // ёмкость ведра
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// New создаёт rate limiter
//
// rate - вызовов в секунду, burst - допустимый всплеск
// (обычно 2x rate). Неположительные значения заменяются
// безопасными дефолтами.
func New(rate, burst float64) *Limiter {
	if rate <= 0 {
		rate = 5
	}
	if burst <= 0 {
		burst = rate * 2
	}

	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst, // стартуем с полным ведром
		lastRefill: time.Now(),
	}
}

// refill пополняет токены по прошедшему времени.
// Вызывается под мьютексом.
func (l *Limiter) refill() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()

	l.tokens += elapsed * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastRefill = now
}

// Wait блокирует до получения токена или отмены контекста
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()

		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}

		waitTime := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		select {
		case <-time.After(waitTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Allow проверяет доступность токена без блокировки
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Tokens возвращает текущее количество токенов
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens
}

// Rate возвращает скорость пополнения (токенов/сек)
func (l *Limiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rate
}

// Burst возвращает ёмкость ведра
func (l *Limiter) Burst() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.burst
}
