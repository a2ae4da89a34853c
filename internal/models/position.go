package models

import "time"

// PositionStatus - статус позиции
type PositionStatus string

// Статусы позиции
const (
	PositionStatusOpen     PositionStatus = "open"
	PositionStatusClosed   PositionStatus = "closed"
	PositionStatusStopLoss PositionStatus = "stop_loss" // закрыта автоматическим стопом
)

// Position - открытая позиция по инструменту
//
// Создаётся при исполнении BUY, цена обновляется периодическим
// refresh'ем из кэша цен, закрывается SELL-исполнением либо
// позиционным stop-loss/take-profit (процентные пороги от цены
// входа - отдельный механизм от ордеров в книге).
type Position struct {
	ID           string         `json:"id"`
	TokenID      string         `json:"token_id"`
	EntryPrice   float64        `json:"entry_price"`
	CurrentPrice float64        `json:"current_price"`
	Amount       float64        `json:"amount"` // количество токенов
	Strategy     string         `json:"strategy"`
	Confidence   float64        `json:"confidence"` // confidence решения на входе
	Status       PositionStatus `json:"status"`

	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	ExitPrice  float64    `json:"exit_price,omitempty"`
	ExitReason string     `json:"exit_reason,omitempty"`
}

// Value возвращает текущую стоимость позиции в USDC
func (p *Position) Value() float64 {
	return p.CurrentPrice * p.Amount
}

// EntryValue возвращает стоимость позиции по цене входа
func (p *Position) EntryValue() float64 {
	return p.EntryPrice * p.Amount
}

// UnrealizedPnl возвращает нереализованный PNL в USDC
func (p *Position) UnrealizedPnl() float64 {
	return (p.CurrentPrice - p.EntryPrice) * p.Amount
}

// PnlPercent возвращает процентное изменение от цены входа
func (p *Position) PnlPercent() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100
}

// IsOpen возвращает true для открытой позиции
func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}
