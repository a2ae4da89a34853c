package models

// DecisionAction - рекомендованное действие
type DecisionAction string

// Действия decision-сервиса
const (
	ActionBuy  DecisionAction = "BUY"
	ActionSell DecisionAction = "SELL"
	ActionHold DecisionAction = "HOLD"
)

// MarketContext - рыночный контекст для decision-сервиса
type MarketContext struct {
	TokenID  string  `json:"token_id"`
	Question string  `json:"question,omitempty"` // текст рынка (для reasoning)
	Price    float64 `json:"price"`
	Balance  float64 `json:"balance"`

	// Опциональная статистика инструмента
	Volume24h  float64 `json:"volume_24h,omitempty"`
	Liquidity  float64 `json:"liquidity,omitempty"`
	Volatility float64 `json:"volatility,omitempty"` // за последние 24ч, %
}

// Decision - рекомендация decision-сервиса
type Decision struct {
	Action     DecisionAction `json:"action"`
	Confidence float64        `json:"confidence"` // 0..1
	Amount     float64        `json:"amount"`     // рекомендованный объём в USDC
	Reasoning  string         `json:"reasoning"`
	Strategy   string         `json:"strategy"`
	RiskLevel  string         `json:"risk_level"` // low, medium, high
}

// HoldDecision возвращает консервативное решение "ничего не делать".
// Используется как fallback при открытом circuit breaker'е.
func HoldDecision(reason string) *Decision {
	return &Decision{
		Action:     ActionHold,
		Confidence: 0,
		Reasoning:  reason,
		RiskLevel:  "high",
	}
}

// ExecutionRequest - запрос на исполнение сделки
type ExecutionRequest struct {
	TokenID string    `json:"token_id"`
	Side    OrderSide `json:"side"`
	Amount  float64   `json:"amount"`          // объём в USDC
	Price   float64   `json:"price,omitempty"` // 0 = market
}

// ExecutionResult - результат исполнения на back-end'е
type ExecutionResult struct {
	Success        bool    `json:"success"`
	ExecutedPrice  float64 `json:"executed_price,omitempty"`
	ExecutedAmount float64 `json:"executed_amount,omitempty"`
	TxRef          string  `json:"tx_ref,omitempty"`
	Error          string  `json:"error,omitempty"`
}
