package bot

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"polytrader/internal/models"
	"polytrader/pkg/utils"
)

// Ошибки книги ордеров
var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrOrderTerminal  = errors.New("order is in terminal state")
	ErrMarketOrder    = errors.New("market orders must execute synchronously, not via the book")
	ErrInvalidOrder   = errors.New("invalid order")
	ErrDuplicateOrder = errors.New("order with this id already exists")
)

// FillExecutor исполняет сработавший ордер на back-end'е.
// Возвращает цену и объём фактического исполнения.
type FillExecutor func(order *models.Order, triggerPrice float64) (*models.ExecutionResult, error)

// OrderBook - книга условных ордеров с вычислителем условий
//
// Хранит ордера в {OPEN, PARTIALLY_FILLED}; Tick() прогоняет
// каждый через его триггер против кэша цен. Все мутации одного
// ордера - атомарный check-then-set под мьютексом книги:
// конкурирующие Tick и CancelOrder не могут дать одновременно
// FILLED и CANCELLED, проигравший становится no-op.
//
// Попытки исполнения идемпотентны: неудачный коммит оставляет
// ордер OPEN, он будет переоценён следующим тиком.
type OrderBook struct {
	mu     sync.Mutex
	orders map[string]*models.Order

	prices  *PriceCache
	execute FillExecutor
	events  *EventBus
	log     *utils.Logger
}

// NewOrderBook создаёт пустую книгу
func NewOrderBook(prices *PriceCache, execute FillExecutor, events *EventBus, log *utils.Logger) *OrderBook {
	if log == nil {
		log = utils.L()
	}
	return &OrderBook{
		orders:  make(map[string]*models.Order),
		prices:  prices,
		execute: execute,
		events:  events,
		log:     log.WithComponent("orderbook"),
	}
}

// AddOrder регистрирует условный ордер для мониторинга
//
// Рыночные ордера отклоняются: они исполняются синхронно при
// подаче, их появление в книге - нарушение инварианта, а не
// нормальный случай.
func (ob *OrderBook) AddOrder(order *models.Order) error {
	if order == nil || order.Trigger == nil {
		return ErrInvalidOrder
	}
	if order.Kind() == models.KindMarket {
		return ErrMarketOrder
	}
	if order.RequestedAmount <= 0 {
		return fmt.Errorf("%w: requested amount must be positive", ErrInvalidOrder)
	}
	if order.FilledAmount < 0 || order.FilledAmount > order.RequestedAmount {
		return fmt.Errorf("%w: filled amount out of range", ErrInvalidOrder)
	}
	if !order.IsActive() {
		return ErrOrderTerminal
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	if _, exists := ob.orders[order.ID]; exists {
		return ErrDuplicateOrder
	}
	ob.orders[order.ID] = order

	ob.log.Info("order added to book",
		utils.OrderID(order.ID),
		utils.Token(order.TokenID),
		utils.Side(string(order.Side)),
		utils.String("kind", string(order.Kind())),
		utils.Amount(order.RequestedAmount),
	)
	UpdateActiveOrders(len(ob.orders))
	return nil
}

// CancelOrder отменяет ордер. Валиден только из {OPEN,
// PARTIALLY_FILLED}; для терминального ордера возвращает
// ErrOrderTerminal.
func (ob *OrderBook) CancelOrder(id string) error {
	ob.mu.Lock()

	order, ok := ob.orders[id]
	if !ok {
		ob.mu.Unlock()
		return ErrOrderNotFound
	}
	if !CanTransition(order.Status, models.OrderStatusCancelled) {
		ob.mu.Unlock()
		return ErrOrderTerminal
	}

	now := time.Now()
	order.Status = models.OrderStatusCancelled
	order.CancelledAt = &now
	// Удаление из активного набора убивает и water mark
	// трейлинг-стопа: он живёт внутри триггера ордера
	delete(ob.orders, id)
	remaining := len(ob.orders)
	snapshot := *order
	ob.mu.Unlock()

	ob.log.Info("order cancelled", utils.OrderID(id), utils.Token(order.TokenID))
	RecordOrderCancelled(string(snapshot.Kind()))
	UpdateActiveOrders(remaining)

	ob.publishOrderEvent(models.EventOrderCancelled, models.SeverityInfo, &snapshot, 0, "cancelled by request")
	return nil
}

// Get возвращает копию ордера по id
func (ob *OrderBook) Get(id string) (*models.Order, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	order, ok := ob.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	snapshot := *order
	return &snapshot, nil
}

// Active возвращает копии всех активных ордеров,
// отсортированные по времени создания
func (ob *OrderBook) Active() []*models.Order {
	ob.mu.Lock()
	result := make([]*models.Order, 0, len(ob.orders))
	for _, o := range ob.orders {
		snapshot := *o
		result = append(result, &snapshot)
	}
	ob.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Len возвращает количество активных ордеров
func (ob *OrderBook) Len() int {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return len(ob.orders)
}

// Tick прогоняет все активные ордера через их условия
//
// Для ордера без свежей цены в кэше - пропуск до следующего
// тика. Сработавшие ордера исполняются; количество исполнений
// возвращается для метрик.
func (ob *OrderBook) Tick() int {
	start := time.Now()

	// Снимок активного набора: исполнение идёт вне лока книги,
	// чтобы не держать мьютекс на время сетевого вызова
	ob.mu.Lock()
	candidates := make([]*models.Order, 0, len(ob.orders))
	for _, o := range ob.orders {
		candidates = append(candidates, o)
	}
	ob.mu.Unlock()

	fills := 0
	for _, order := range candidates {
		price, ok := ob.prices.Get(order.TokenID)
		if !ok {
			continue
		}

		// Триггер оценивается под локом: trailing продвигает
		// water mark, параллельные тики исключены single-flight'ом,
		// но отмена может гоняться с оценкой
		ob.mu.Lock()
		current, alive := ob.orders[order.ID]
		if !alive || !current.IsActive() {
			ob.mu.Unlock()
			continue
		}
		fired := current.Trigger.ShouldFire(current.Side, price)
		ob.mu.Unlock()

		if !fired {
			continue
		}

		if ob.fill(order.ID, price) {
			fills++
		}
	}

	RecordMonitorTick(time.Since(start), fills)
	return fills
}

// fill выполняет переход ордера в FILLED
//
// Исполнение на back-end'е идёт вне лока; терминальный переход -
// атомарный check-then-set: непосредственно перед мутацией
// статус перепроверяется (защита от гонки с CancelOrder).
// Возвращает true если ордер исполнен.
func (ob *OrderBook) fill(id string, triggerPrice float64) bool {
	ob.mu.Lock()
	order, ok := ob.orders[id]
	if !ok || !order.IsActive() {
		ob.mu.Unlock()
		return false
	}
	attempt := *order
	ob.mu.Unlock()

	result, err := ob.execute(&attempt, triggerPrice)
	if err != nil || result == nil || !result.Success {
		// Ордер не тронут (остаётся OPEN) - безопасно повторить
		// на следующем тике
		reason := "execution backend error"
		if err != nil {
			reason = err.Error()
		} else if result != nil && result.Error != "" {
			reason = result.Error
		}
		ob.log.Warn("order execution failed, will retry next tick",
			utils.OrderID(id),
			utils.Token(attempt.TokenID),
			utils.Price(triggerPrice),
			utils.String("reason", reason),
		)
		RecordOrderExecutionFailed(string(attempt.Kind()))
		ob.publishOrderEvent(models.EventOrderExecutionFail, models.SeverityError, &attempt, triggerPrice, reason)
		return false
	}

	executedPrice := result.ExecutedPrice
	if executedPrice == 0 {
		executedPrice = triggerPrice
	}

	// Атомарный check-then-set: конкурентная отмена могла
	// выиграть пока шло исполнение
	ob.mu.Lock()
	order, ok = ob.orders[id]
	if !ok || !CanTransition(order.Status, models.OrderStatusFilled) {
		ob.mu.Unlock()
		ob.log.Warn("order vanished during execution, fill dropped", utils.OrderID(id))
		return false
	}

	now := time.Now()
	order.FilledAmount = order.RequestedAmount
	order.ExecutedPrice = executedPrice
	order.Status = models.OrderStatusFilled
	order.ExecutedAt = &now
	delete(ob.orders, id)
	remaining := len(ob.orders)
	snapshot := *order
	ob.mu.Unlock()

	ob.log.Info("order executed",
		utils.OrderID(id),
		utils.Token(snapshot.TokenID),
		utils.Side(string(snapshot.Side)),
		utils.String("kind", string(snapshot.Kind())),
		utils.Price(executedPrice),
		utils.Amount(snapshot.RequestedAmount),
	)
	RecordOrderExecuted(string(snapshot.Kind()), string(snapshot.Side))
	UpdateActiveOrders(remaining)

	ob.publishOrderEvent(models.EventOrderExecuted, models.SeverityInfo, &snapshot, executedPrice,
		fmt.Sprintf("%s trigger fired", snapshot.Kind()))
	return true
}

// publishOrderEvent публикует событие ордера в шину
func (ob *OrderBook) publishOrderEvent(eventType models.EventType, severity string, order *models.Order, price float64, reason string) {
	if ob.events == nil {
		return
	}

	event := models.NewEvent(eventType, severity, reason)
	event.OrderID = order.ID
	event.TokenID = order.TokenID
	event.Meta["side"] = string(order.Side)
	event.Meta["kind"] = string(order.Kind())
	event.Meta["requested_amount"] = order.RequestedAmount
	event.Meta["filled_amount"] = order.FilledAmount
	if price > 0 {
		event.Meta["executed_price"] = price
	}
	event.Meta["reason"] = reason
	ob.events.Publish(event)
}

// Restore загружает ордера (например, из БД при старте) в книгу,
// пропуская терминальные и рыночные. Возвращает количество
// восстановленных.
func (ob *OrderBook) Restore(orders []*models.Order) int {
	restored := 0
	for _, o := range orders {
		if o == nil || !o.IsActive() {
			continue
		}
		if err := ob.AddOrder(o); err == nil {
			restored++
		}
	}
	return restored
}
