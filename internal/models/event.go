package models

import "time"

// EventType - тип события торгового ядра
type EventType string

// Типы событий
const (
	EventOrderExecuted       EventType = "ORDER_EXECUTED"        // условный ордер исполнен
	EventOrderExecutionFail  EventType = "ORDER_EXECUTION_FAILED" // попытка исполнения не удалась
	EventOrderCancelled      EventType = "ORDER_CANCELLED"        // ордер отменён
	EventTradeExecuted       EventType = "TRADE_EXECUTED"         // сделка цикла исполнена
	EventRiskAlert           EventType = "RISK_ALERT"             // риск-событие (SL/TP позиции, отказ)
	EventOrchestratorStopped EventType = "ORCHESTRATOR_STOPPED"   // оркестратор остановлен (бюджет ошибок)
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// Event - структурированное событие для подписчиков
// (персистентность, уведомления, метрики). Доставка
// fire-and-forget, at-least-once не гарантируется медленным
// подписчикам: переполненный буфер отбрасывает событие.
type Event struct {
	Type      EventType `json:"type"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`

	OrderID string `json:"order_id,omitempty"`
	TokenID string `json:"token_id,omitempty"`
	Message string `json:"message"`

	// Дополнительные вычисленные поля события
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// NewEvent создаёт событие с текущим временем
func NewEvent(eventType EventType, severity, message string) *Event {
	return &Event{
		Type:      eventType,
		Severity:  severity,
		Timestamp: time.Now(),
		Message:   message,
		Meta:      make(map[string]interface{}),
	}
}
