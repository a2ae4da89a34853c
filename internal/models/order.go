package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderKind - тип условного ордера
type OrderKind string

// Типы ордеров
const (
	KindMarket       OrderKind = "MARKET"        // исполняется синхронно, в книгу не попадает
	KindLimit        OrderKind = "LIMIT"         // исполнение по достижении лимитной цены
	KindStopLoss     OrderKind = "STOP_LOSS"     // защитный стоп
	KindTakeProfit   OrderKind = "TAKE_PROFIT"   // фиксация прибыли
	KindTrailingStop OrderKind = "TRAILING_STOP" // следящий стоп от экстремума цены
)

// OrderSide - направление сделки
type OrderSide string

// Направления
const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderStatus - статус ордера
type OrderStatus string

// Статусы ордера. Filled и Cancelled - терминальные:
// после перехода в них ордер не изменяется.
const (
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

// ============================================================
// Триггеры - типизированные варианты условий исполнения
// ============================================================
//
// Каждый тип ордера несёт ТОЛЬКО свои поля условия:
// у лимитного ордера нет trailing percent, у трейлинг-стопа
// нет лимитной цены. Невалидные комбинации полей исключены
// на уровне типов.

// Trigger определяет условие исполнения условного ордера
type Trigger interface {
	// Kind возвращает тип ордера, которому принадлежит условие
	Kind() OrderKind

	// ShouldFire проверяет срабатывание условия на текущей цене.
	// Для трейлинг-стопа вызов также продвигает water mark,
	// поэтому порядок вызовов по тикам важен.
	ShouldFire(side OrderSide, price float64) bool
}

// LimitTrigger - условие лимитного ордера
type LimitTrigger struct {
	LimitPrice float64
}

// Kind возвращает KindLimit
func (t *LimitTrigger) Kind() OrderKind { return KindLimit }

// ShouldFire: BUY срабатывает при price <= limit, SELL при price >= limit
func (t *LimitTrigger) ShouldFire(side OrderSide, price float64) bool {
	if side == SideBuy {
		return price <= t.LimitPrice
	}
	return price >= t.LimitPrice
}

// StopLossTrigger - условие защитного стопа
type StopLossTrigger struct {
	StopPrice float64
}

// Kind возвращает KindStopLoss
func (t *StopLossTrigger) Kind() OrderKind { return KindStopLoss }

// ShouldFire: SELL (защита лонга) срабатывает при падении price <= stop,
// BUY (покрытие шорта) - при росте price >= stop
func (t *StopLossTrigger) ShouldFire(side OrderSide, price float64) bool {
	if side == SideBuy {
		return price >= t.StopPrice
	}
	return price <= t.StopPrice
}

// TakeProfitTrigger - условие фиксации прибыли
type TakeProfitTrigger struct {
	TargetPrice float64
}

// Kind возвращает KindTakeProfit
func (t *TakeProfitTrigger) Kind() OrderKind { return KindTakeProfit }

// ShouldFire: BUY срабатывает при price <= target, SELL при price >= target
func (t *TakeProfitTrigger) ShouldFire(side OrderSide, price float64) bool {
	if side == SideBuy {
		return price <= t.TargetPrice
	}
	return price >= t.TargetPrice
}

// TrailingTrigger - следящий стоп
//
// Water mark хранится внутри самого триггера (а не во внешней
// таблице по id ордера), поэтому не может рассинхронизироваться
// с ордером или пережить его:
// - SELL: high-water mark - максимум цены с момента создания,
//   двигается только вверх; срабатывание при откате на
//   TrailingPercent от максимума
// - BUY: low-water mark - минимум цены, двигается только вниз;
//   срабатывание при отскоке на TrailingPercent от минимума
type TrailingTrigger struct {
	TrailingPercent float64

	// WaterMark сидируется ценой входа при создании ордера
	WaterMark float64
}

// NewTrailingTrigger создаёт следящий стоп с сидированным water mark
func NewTrailingTrigger(trailingPercent, seedPrice float64) *TrailingTrigger {
	return &TrailingTrigger{
		TrailingPercent: trailingPercent,
		WaterMark:       seedPrice,
	}
}

// Kind возвращает KindTrailingStop
func (t *TrailingTrigger) Kind() OrderKind { return KindTrailingStop }

// ShouldFire продвигает water mark и проверяет величину отката
func (t *TrailingTrigger) ShouldFire(side OrderSide, price float64) bool {
	if price <= 0 {
		return false
	}

	if side == SideSell {
		// High-water mark двигается только вверх
		if t.WaterMark <= 0 || price > t.WaterMark {
			t.WaterMark = price
		}
		retracement := (t.WaterMark - price) / t.WaterMark * 100
		return retracement >= t.TrailingPercent
	}

	// Low-water mark двигается только вниз
	if t.WaterMark <= 0 || price < t.WaterMark {
		t.WaterMark = price
	}
	rebound := (price - t.WaterMark) / t.WaterMark * 100
	return rebound >= t.TrailingPercent
}

// MarketTrigger - маркер рыночного ордера
//
// Рыночные ордера исполняются синхронно при подаче и НИКОГДА
// не попадают в книгу условных ордеров - OrderBook.AddOrder
// отклоняет их как нарушение инварианта.
type MarketTrigger struct{}

// Kind возвращает KindMarket
func (t *MarketTrigger) Kind() OrderKind { return KindMarket }

// ShouldFire: рыночный ордер "срабатывает" немедленно
func (t *MarketTrigger) ShouldFire(side OrderSide, price float64) bool { return true }

// ============================================================
// Ордер
// ============================================================

// Order - условная заявка на сделку
//
// Инварианты:
// - RemainingAmount() = RequestedAmount - FilledAmount >= 0 всегда
// - после перехода в FILLED или CANCELLED поля не изменяются
// - тип ордера определяется триггером, невалидные комбинации
//   полей условий невозможны
type Order struct {
	ID      string    `json:"id"`
	Owner   string    `json:"owner"`
	TokenID string    `json:"token_id"` // идентификатор инструмента (CLOB token id)
	Side    OrderSide `json:"side"`

	// Условие исполнения (типизированный вариант по типу ордера)
	Trigger Trigger `json:"-"`

	RequestedAmount float64     `json:"requested_amount"` // объём в USDC
	FilledAmount    float64     `json:"filled_amount"`
	Status          OrderStatus `json:"status"`

	// Цена фактического исполнения (после FILLED)
	ExecutedPrice float64 `json:"executed_price,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// NewOrder создаёт открытый ордер с уникальным ID
func NewOrder(owner, tokenID string, side OrderSide, trigger Trigger, amount float64) *Order {
	return &Order{
		ID:              uuid.NewString(),
		Owner:           owner,
		TokenID:         tokenID,
		Side:            side,
		Trigger:         trigger,
		RequestedAmount: amount,
		Status:          OrderStatusOpen,
		CreatedAt:       time.Now(),
	}
}

// Kind возвращает тип ордера (определяется триггером)
func (o *Order) Kind() OrderKind {
	if o.Trigger == nil {
		return KindMarket
	}
	return o.Trigger.Kind()
}

// RemainingAmount возвращает неисполненный остаток
func (o *Order) RemainingAmount() float64 {
	return o.RequestedAmount - o.FilledAmount
}

// IsTerminal возвращает true для FILLED и CANCELLED
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusFilled || o.Status == OrderStatusCancelled
}

// IsActive возвращает true если ордер подлежит мониторингу
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusOpen || o.Status == OrderStatusPartiallyFilled
}

// ============================================================
// Запись ордера для персистентности
// ============================================================

// OrderRecord - плоское представление ордера для БД.
// Поля условий денормализованы в nullable колонки; в памяти
// ордер всегда восстанавливается в типизированный вариант.
type OrderRecord struct {
	ID              string     `json:"id" db:"id"`
	Owner           string     `json:"owner" db:"owner"`
	TokenID         string     `json:"token_id" db:"token_id"`
	Kind            string     `json:"kind" db:"kind"`
	Side            string     `json:"side" db:"side"`
	LimitPrice      *float64   `json:"limit_price,omitempty" db:"limit_price"`
	StopPrice       *float64   `json:"stop_price,omitempty" db:"stop_price"`
	TargetPrice     *float64   `json:"target_price,omitempty" db:"target_price"`
	TrailingPercent *float64   `json:"trailing_percent,omitempty" db:"trailing_percent"`
	RequestedAmount float64    `json:"requested_amount" db:"requested_amount"`
	FilledAmount    float64    `json:"filled_amount" db:"filled_amount"`
	Status          string     `json:"status" db:"status"`
	ExecutedPrice   *float64   `json:"executed_price,omitempty" db:"executed_price"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	ExecutedAt      *time.Time `json:"executed_at,omitempty" db:"executed_at"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// ToRecord преобразует ордер в запись для БД
func (o *Order) ToRecord() *OrderRecord {
	rec := &OrderRecord{
		ID:              o.ID,
		Owner:           o.Owner,
		TokenID:         o.TokenID,
		Kind:            string(o.Kind()),
		Side:            string(o.Side),
		RequestedAmount: o.RequestedAmount,
		FilledAmount:    o.FilledAmount,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt,
		ExecutedAt:      o.ExecutedAt,
		CancelledAt:     o.CancelledAt,
	}
	if o.ExecutedPrice > 0 {
		p := o.ExecutedPrice
		rec.ExecutedPrice = &p
	}
	switch t := o.Trigger.(type) {
	case *LimitTrigger:
		p := t.LimitPrice
		rec.LimitPrice = &p
	case *StopLossTrigger:
		p := t.StopPrice
		rec.StopPrice = &p
	case *TakeProfitTrigger:
		p := t.TargetPrice
		rec.TargetPrice = &p
	case *TrailingTrigger:
		p := t.TrailingPercent
		rec.TrailingPercent = &p
	}
	return rec
}

// ToOrder восстанавливает типизированный ордер из записи БД.
// Возвращает nil для записей с неизвестным типом или без
// обязательных полей условия.
func (r *OrderRecord) ToOrder() *Order {
	var trigger Trigger
	switch OrderKind(r.Kind) {
	case KindLimit:
		if r.LimitPrice == nil {
			return nil
		}
		trigger = &LimitTrigger{LimitPrice: *r.LimitPrice}
	case KindStopLoss:
		if r.StopPrice == nil {
			return nil
		}
		trigger = &StopLossTrigger{StopPrice: *r.StopPrice}
	case KindTakeProfit:
		if r.TargetPrice == nil {
			return nil
		}
		trigger = &TakeProfitTrigger{TargetPrice: *r.TargetPrice}
	case KindTrailingStop:
		if r.TrailingPercent == nil {
			return nil
		}
		// Экстремум цен, наблюдавшийся до рестарта, не восстановим -
		// water mark пересидируется первым тиком
		trigger = &TrailingTrigger{TrailingPercent: *r.TrailingPercent}
	default:
		return nil
	}

	o := &Order{
		ID:              r.ID,
		Owner:           r.Owner,
		TokenID:         r.TokenID,
		Side:            OrderSide(r.Side),
		Trigger:         trigger,
		RequestedAmount: r.RequestedAmount,
		FilledAmount:    r.FilledAmount,
		Status:          OrderStatus(r.Status),
		CreatedAt:       r.CreatedAt,
		ExecutedAt:      r.ExecutedAt,
		CancelledAt:     r.CancelledAt,
	}
	if r.ExecutedPrice != nil {
		o.ExecutedPrice = *r.ExecutedPrice
	}
	return o
}
