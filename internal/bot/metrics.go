package bot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"polytrader/pkg/breaker"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для алертов (открытые breaker'ы, потери событий)
// - Анализ поведения мониторинга и циклов в production

// ============ Метрики мониторинга ордеров ============

// MonitorTickDuration - длительность тика мониторинга книги
var MonitorTickDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "polytrader",
		Subsystem: "monitor",
		Name:      "tick_duration_ms",
		Help:      "Duration of an order monitoring tick in milliseconds",
		Buckets:   []float64{0.5, 1, 5, 10, 50, 100, 500, 1000, 5000},
	},
)

// MonitorTicksSkipped - пропущенные тики (single-flight)
var MonitorTicksSkipped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "polytrader",
		Subsystem: "monitor",
		Name:      "ticks_skipped_total",
		Help:      "Number of timer firings skipped because the previous run was still in flight",
	},
	[]string{"timer"}, // monitor, cycle
)

// ActiveOrders - текущее количество ордеров в книге
var ActiveOrders = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "polytrader",
		Subsystem: "monitor",
		Name:      "active_orders",
		Help:      "Current number of conditional orders being monitored",
	},
)

// OrdersExecuted - исполненные условные ордера
var OrdersExecuted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "polytrader",
		Subsystem: "monitor",
		Name:      "orders_executed_total",
		Help:      "Total number of conditional orders filled",
	},
	[]string{"kind", "side"},
)

// OrderExecutionFailures - неудачные попытки исполнения
var OrderExecutionFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "polytrader",
		Subsystem: "monitor",
		Name:      "order_execution_failures_total",
		Help:      "Failed fill attempts (order left open for the next tick)",
	},
	[]string{"kind"},
)

// OrdersCancelled - отменённые ордера
var OrdersCancelled = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "polytrader",
		Subsystem: "monitor",
		Name:      "orders_cancelled_total",
		Help:      "Total number of cancelled orders",
	},
	[]string{"kind"},
)

// ============ Метрики торгового цикла ============

// CyclesTotal - выполненные циклы оркестратора
var CyclesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "polytrader",
		Subsystem: "orchestrator",
		Name:      "cycles_total",
		Help:      "Total number of trading cycles by result",
	},
	[]string{"result"}, // success, failed, stopped
)

// CycleDuration - длительность цикла
var CycleDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "polytrader",
		Subsystem: "orchestrator",
		Name:      "cycle_duration_ms",
		Help:      "Duration of a trading cycle in milliseconds",
		Buckets:   []float64{100, 500, 1000, 5000, 15000, 60000, 300000},
	},
)

// TradesTotal - сделки цикла
var TradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "polytrader",
		Subsystem: "orchestrator",
		Name:      "trades_total",
		Help:      "Total number of trades by result",
	},
	[]string{"side", "result"}, // result: success, failed, rejected
)

// ============ Метрики риска ============

// RiskAssessments - оценки сделок
var RiskAssessments = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "polytrader",
		Subsystem: "risk",
		Name:      "assessments_total",
		Help:      "Trade risk assessments by outcome",
	},
	[]string{"approved"},
)

// RiskScores - распределение риск-оценок
var RiskScores = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "polytrader",
		Subsystem: "risk",
		Name:      "score",
		Help:      "Risk score of assessed trades (0-100)",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90},
	},
)

// PositionsClosed - автоматические закрытия позиций
var PositionsClosed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "polytrader",
		Subsystem: "risk",
		Name:      "positions_closed_total",
		Help:      "Positions closed by automatic checks",
	},
	[]string{"reason"}, // stop_loss, take_profit, sell_decision
)

// ============ Метрики зависимостей ============

// BreakerState - состояние breaker'ов (0=closed, 1=half_open, 2=open)
var BreakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "polytrader",
		Subsystem: "deps",
		Name:      "breaker_state",
		Help:      "Circuit breaker state per dependency (0=closed, 1=half-open, 2=open)",
	},
	[]string{"dependency"},
)

// DependencyFailures - итоговые (после retry) ошибки зависимостей
var DependencyFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "polytrader",
		Subsystem: "deps",
		Name:      "failures_total",
		Help:      "Final failures of dependency calls after retries",
	},
	[]string{"dependency"},
)

// DependencyRetries - повторные попытки вызовов
var DependencyRetries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "polytrader",
		Subsystem: "deps",
		Name:      "retries_total",
		Help:      "Retry attempts of dependency calls",
	},
	[]string{"dependency"},
)

// ============ Метрики событий ============

// EventsDropped - события, отброшенные из-за переполнения буфера
var EventsDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "polytrader",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Events dropped due to subscriber buffer overflow",
	},
	[]string{"type"},
)

// ============ Вспомогательные функции ============

// RecordMonitorTick записывает метрики тика мониторинга
func RecordMonitorTick(duration time.Duration, fills int) {
	MonitorTickDuration.Observe(float64(duration.Milliseconds()))
}

// RecordTickSkipped записывает пропуск срабатывания таймера
func RecordTickSkipped(timer string) {
	MonitorTicksSkipped.WithLabelValues(timer).Inc()
}

// UpdateActiveOrders обновляет счётчик ордеров в книге
func UpdateActiveOrders(count int) {
	ActiveOrders.Set(float64(count))
}

// RecordOrderExecuted записывает исполнение условного ордера
func RecordOrderExecuted(kind, side string) {
	OrdersExecuted.WithLabelValues(kind, side).Inc()
}

// RecordOrderExecutionFailed записывает неудачную попытку исполнения
func RecordOrderExecutionFailed(kind string) {
	OrderExecutionFailures.WithLabelValues(kind).Inc()
}

// RecordOrderCancelled записывает отмену ордера
func RecordOrderCancelled(kind string) {
	OrdersCancelled.WithLabelValues(kind).Inc()
}

// RecordCycle записывает итог торгового цикла
func RecordCycle(result string, duration time.Duration) {
	CyclesTotal.WithLabelValues(result).Inc()
	CycleDuration.Observe(float64(duration.Milliseconds()))
}

// RecordTrade записывает итог сделки цикла
func RecordTrade(side, result string) {
	TradesTotal.WithLabelValues(side, result).Inc()
}

// RecordRiskAssessment записывает оценку сделки
func RecordRiskAssessment(approved bool, score float64) {
	approvedStr := "no"
	if approved {
		approvedStr = "yes"
	}
	RiskAssessments.WithLabelValues(approvedStr).Inc()
	RiskScores.Observe(score)
}

// RecordPositionClosed записывает автоматическое закрытие позиции
func RecordPositionClosed(reason string) {
	PositionsClosed.WithLabelValues(reason).Inc()
}

// UpdateBreakerState обновляет gauge состояния breaker'а
func UpdateBreakerState(dependency string, state breaker.State) {
	var v float64
	switch state {
	case breaker.StateHalfOpen:
		v = 1
	case breaker.StateOpen:
		v = 2
	}
	BreakerState.WithLabelValues(dependency).Set(v)
}

// RecordDependencyFailure записывает итоговую ошибку зависимости
func RecordDependencyFailure(dependency string) {
	DependencyFailures.WithLabelValues(dependency).Inc()
}

// RecordDependencyRetry записывает повторную попытку
func RecordDependencyRetry(dependency string) {
	DependencyRetries.WithLabelValues(dependency).Inc()
}

// RecordEventDropped записывает потерю события
func RecordEventDropped(eventType string) {
	EventsDropped.WithLabelValues(eventType).Inc()
}
