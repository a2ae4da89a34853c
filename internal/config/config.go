package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Bot      BotConfig
	Risk     RiskConfig
	Deps     DependenciesConfig
	Services ServicesConfig
	Logging  LoggingConfig
}

// ServicesConfig - адреса внешних сервисов
type ServicesConfig struct {
	BridgeURL   string // CLOB bridge (цены, баланс, исполнение, рынки)
	BridgeKey   string // API ключ bridge, пусто = без auth
	DecisionURL string // decision-сервис
	StreamURL   string // WebSocket поток цен, пусто = только REST
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// bcrypt-хэш API ключа для ops-эндпоинтов.
	// Пустое значение = аутентификация выключена (development).
	APIKeyHash string
}

// BotConfig - настройки торгового ядра
type BotConfig struct {
	// Два независимых таймера: быстрый тик мониторинга книги
	// ордеров и медленный торговый цикл оркестратора
	MonitorInterval time.Duration // тик мониторинга условных ордеров
	CycleInterval   time.Duration // торговый цикл оркестратора

	MaxTradesPerCycle int     // максимум сделок за цикл
	MinConfidence     float64 // минимальный confidence для действия
	RiskEnabled       bool    // применять ли риск-контроль

	// Бюджет последовательных ошибок цикла: при превышении
	// оркестратор останавливается с алертом вместо вечного цикла
	MaxCycleFailures int

	PriceTTL time.Duration // TTL записи в кэше цен
}

// RiskConfig - риск-профиль
type RiskConfig struct {
	// Два РАЗНЫХ лимита (настраиваются независимо):
	// - MaxSingleTradeFraction ограничивает допуск сделки (проверка admission)
	// - MaxPositionFraction ограничивает рекомендованный размер позиции (sizing)
	MaxSingleTradeFraction   float64
	MaxPositionFraction      float64
	MaxTotalExposureFraction float64

	StopLossPercent   float64 // позиционный SL, % от цены входа
	TakeProfitPercent float64 // позиционный TP, % от цены входа

	// Минимальный confidence для проверки допуска.
	// Отдельная настройка от Bot.MinConfidence (фильтр действий
	// оркестратора); по умолчанию совпадают.
	MinConfidence float64

	RiskPerTrade   float64 // доля портфеля под риск в одной сделке
	MinRiskReward  float64 // минимальный risk:reward для расчёта TP
	BalanceReserve float64 // неприкасаемый резерв баланса, USDC

	// Опциональные проверки качества инструмента
	MinLiquidity  float64
	MinVolume24h  float64
	MaxVolatility float64 // %, за 24ч
}

// BreakerConfig - настройки circuit breaker'а одной зависимости
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// RetryConfig - настройки retry одной зависимости
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	Multiplier        float64
	RetryablePatterns []string // сигнатуры retryable ошибок (timeout, rate limit...)
}

// RateLimitConfig - настройки rate limiter'а одной зависимости.
// Rate <= 0 отключает лимитер.
type RateLimitConfig struct {
	Rate  float64 // запросов в секунду
	Burst float64 // ёмкость ведра, <= 0 = удвоенный Rate
}

// DependencyConfig - rate limit + breaker + retry одной внешней
// зависимости
type DependencyConfig struct {
	Breaker   BreakerConfig
	Retry     RetryConfig
	RateLimit RateLimitConfig
}

// DependenciesConfig - настройки всех внешних зависимостей.
// Каждая зависимость владеет СВОИМ breaker'ом с независимыми порогами.
type DependenciesConfig struct {
	PriceFeed DependencyConfig
	Decision  DependencyConfig
	Execution DependencyConfig
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Сигнатуры retryable ошибок по умолчанию
var defaultRetryablePatterns = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"temporary",
	"rate limit",
	"too many requests",
	"503",
	"502",
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "polytrader"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			APIKeyHash: getEnv("API_KEY_HASH", ""),
		},
		Bot: BotConfig{
			MonitorInterval:   getEnvAsDuration("MONITOR_INTERVAL", 5*time.Second),
			CycleInterval:     getEnvAsDuration("CYCLE_INTERVAL", 5*time.Minute),
			MaxTradesPerCycle: getEnvAsInt("MAX_TRADES_PER_CYCLE", 3),
			MinConfidence:     getEnvAsFloat("MIN_CONFIDENCE", 0.6),
			RiskEnabled:       getEnvAsBool("RISK_ENABLED", true),
			MaxCycleFailures:  getEnvAsInt("MAX_CYCLE_FAILURES", 3),
			PriceTTL:          getEnvAsDuration("PRICE_TTL", 30*time.Second),
		},
		Risk: RiskConfig{
			MaxSingleTradeFraction:   getEnvAsFloat("MAX_SINGLE_TRADE_FRACTION", 0.10),
			MaxPositionFraction:      getEnvAsFloat("MAX_POSITION_FRACTION", 0.20),
			MaxTotalExposureFraction: getEnvAsFloat("MAX_TOTAL_EXPOSURE_FRACTION", 0.80),
			StopLossPercent:          getEnvAsFloat("STOP_LOSS_PERCENT", 10),
			TakeProfitPercent:        getEnvAsFloat("TAKE_PROFIT_PERCENT", 20),
			MinConfidence:            getEnvAsFloat("RISK_MIN_CONFIDENCE", 0.6),
			RiskPerTrade:             getEnvAsFloat("RISK_PER_TRADE", 0.02),
			MinRiskReward:            getEnvAsFloat("MIN_RISK_REWARD", 2.0),
			BalanceReserve:           getEnvAsFloat("BALANCE_RESERVE", 10),
			MinLiquidity:             getEnvAsFloat("MIN_LIQUIDITY", 0),
			MinVolume24h:             getEnvAsFloat("MIN_VOLUME_24H", 0),
			MaxVolatility:            getEnvAsFloat("MAX_VOLATILITY", 0),
		},
		Deps: DependenciesConfig{
			PriceFeed: loadDependency("PRICEFEED", 5, 30*time.Second, 3, 10),
			Decision:  loadDependency("DECISION", 3, 60*time.Second, 2, 2),
			Execution: loadDependency("EXECUTION", 3, 60*time.Second, 2, 5),
		},
		Services: ServicesConfig{
			BridgeURL:   getEnv("BRIDGE_URL", "http://localhost:8000"),
			BridgeKey:   getEnv("BRIDGE_API_KEY", ""),
			DecisionURL: getEnv("DECISION_URL", "http://localhost:8001"),
			StreamURL:   getEnv("STREAM_URL", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", ""),
		},
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDependency загружает настройки одной зависимости.
// prefix - префикс переменных окружения (PRICEFEED, DECISION, EXECUTION).
func loadDependency(prefix string, failureThreshold int, resetTimeout time.Duration, maxRetries int, rate float64) DependencyConfig {
	return DependencyConfig{
		Breaker: BreakerConfig{
			FailureThreshold: getEnvAsInt(prefix+"_BREAKER_THRESHOLD", failureThreshold),
			ResetTimeout:     getEnvAsDuration(prefix+"_BREAKER_RESET", resetTimeout),
		},
		Retry: RetryConfig{
			MaxRetries:        getEnvAsInt(prefix+"_MAX_RETRIES", maxRetries),
			InitialDelay:      getEnvAsDuration(prefix+"_RETRY_DELAY", 500*time.Millisecond),
			MaxDelay:          getEnvAsDuration(prefix+"_RETRY_MAX_DELAY", 10*time.Second),
			Multiplier:        getEnvAsFloat(prefix+"_RETRY_MULTIPLIER", 2.0),
			RetryablePatterns: getEnvAsSlice(prefix+"_RETRYABLE_PATTERNS", defaultRetryablePatterns),
		},
		RateLimit: RateLimitConfig{
			Rate:  getEnvAsFloat(prefix+"_RATE_LIMIT", rate),
			Burst: getEnvAsFloat(prefix+"_RATE_BURST", 0),
		},
	}
}

// validateRanges проверяет числовые диапазоны
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be in range 1-65535, got %d", c.Server.Port)
	}

	if c.Bot.MonitorInterval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL must be positive, got %v", c.Bot.MonitorInterval)
	}
	if c.Bot.CycleInterval <= 0 {
		return fmt.Errorf("CYCLE_INTERVAL must be positive, got %v", c.Bot.CycleInterval)
	}
	if c.Bot.MaxTradesPerCycle < 1 {
		return fmt.Errorf("MAX_TRADES_PER_CYCLE must be at least 1, got %d", c.Bot.MaxTradesPerCycle)
	}
	if c.Bot.MinConfidence < 0 || c.Bot.MinConfidence > 1 {
		return fmt.Errorf("MIN_CONFIDENCE must be in range 0-1, got %f", c.Bot.MinConfidence)
	}

	if err := validateFraction("MAX_SINGLE_TRADE_FRACTION", c.Risk.MaxSingleTradeFraction); err != nil {
		return err
	}
	if err := validateFraction("MAX_POSITION_FRACTION", c.Risk.MaxPositionFraction); err != nil {
		return err
	}
	if err := validateFraction("MAX_TOTAL_EXPOSURE_FRACTION", c.Risk.MaxTotalExposureFraction); err != nil {
		return err
	}
	if c.Risk.StopLossPercent <= 0 || c.Risk.StopLossPercent >= 100 {
		return fmt.Errorf("STOP_LOSS_PERCENT must be in range (0, 100), got %f", c.Risk.StopLossPercent)
	}
	if c.Risk.TakeProfitPercent <= 0 {
		return fmt.Errorf("TAKE_PROFIT_PERCENT must be positive, got %f", c.Risk.TakeProfitPercent)
	}
	if c.Risk.MinRiskReward <= 0 {
		return fmt.Errorf("MIN_RISK_REWARD must be positive, got %f", c.Risk.MinRiskReward)
	}

	for _, dep := range []struct {
		name string
		cfg  DependencyConfig
	}{
		{"PRICEFEED", c.Deps.PriceFeed},
		{"DECISION", c.Deps.Decision},
		{"EXECUTION", c.Deps.Execution},
	} {
		if dep.cfg.Breaker.FailureThreshold < 1 {
			return fmt.Errorf("%s_BREAKER_THRESHOLD must be at least 1", dep.name)
		}
		if dep.cfg.Breaker.ResetTimeout <= 0 {
			return fmt.Errorf("%s_BREAKER_RESET must be positive", dep.name)
		}
		if dep.cfg.Retry.MaxRetries < 0 {
			return fmt.Errorf("%s_MAX_RETRIES must not be negative", dep.name)
		}
		if dep.cfg.RateLimit.Rate < 0 {
			return fmt.Errorf("%s_RATE_LIMIT must not be negative", dep.name)
		}
	}

	return nil
}

// validateFraction проверяет что доля лежит в (0, 1]
func validateFraction(name string, v float64) error {
	if v <= 0 || v > 1 {
		return fmt.Errorf("%s must be in range (0, 1], got %f", name, v)
	}
	return nil
}

// ============================================================
// Helpers для чтения переменных окружения
// ============================================================

// getEnv возвращает значение переменной окружения или default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает int значение переменной окружения
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat возвращает float значение переменной окружения
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool возвращает bool значение переменной окружения
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration возвращает time.Duration значение переменной окружения
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice возвращает список значений, разделённых запятой
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
