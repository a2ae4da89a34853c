package models

import "time"

// TradeRecord - запись об исполненной сделке
type TradeRecord struct {
	ID         string    `json:"id" db:"id"`
	TokenID    string    `json:"token_id" db:"token_id"`
	Side       string    `json:"side" db:"side"`
	Amount     float64   `json:"amount" db:"amount"`       // объём в USDC
	Price      float64   `json:"price" db:"price"`         // цена исполнения
	Pnl        float64   `json:"pnl" db:"pnl"`             // реализованный PNL (0 для входа)
	Strategy   string    `json:"strategy" db:"strategy"`
	Confidence float64   `json:"confidence" db:"confidence"`
	TxRef      string    `json:"tx_ref,omitempty" db:"tx_ref"` // ссылка на транзакцию back-end'а
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
