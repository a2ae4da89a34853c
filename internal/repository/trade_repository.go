package repository

import (
	"database/sql"
	"errors"

	"polytrader/internal/models"
)

// Ошибки репозитория сделок
var (
	ErrTradeNotFound = errors.New("trade not found")
)

// TradeRepository - работа с таблицей trades
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create создает запись о сделке
func (r *TradeRepository) Create(trade *models.TradeRecord) error {
	query := `
		INSERT INTO trades (id, token_id, side, amount, price, pnl, strategy, confidence, tx_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(
		query,
		trade.ID,
		trade.TokenID,
		trade.Side,
		trade.Amount,
		trade.Price,
		trade.Pnl,
		trade.Strategy,
		trade.Confidence,
		trade.TxRef,
		trade.CreatedAt,
	)
	return err
}

// GetByID возвращает сделку по ID
func (r *TradeRepository) GetByID(id string) (*models.TradeRecord, error) {
	query := `
		SELECT id, token_id, side, amount, price, pnl, strategy, confidence, tx_ref, created_at
		FROM trades
		WHERE id = $1`

	trade := &models.TradeRecord{}
	err := r.db.QueryRow(query, id).Scan(
		&trade.ID,
		&trade.TokenID,
		&trade.Side,
		&trade.Amount,
		&trade.Price,
		&trade.Pnl,
		&trade.Strategy,
		&trade.Confidence,
		&trade.TxRef,
		&trade.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}

	return trade, nil
}

// GetRecent возвращает последние N сделок
func (r *TradeRepository) GetRecent(limit int) ([]*models.TradeRecord, error) {
	query := `
		SELECT id, token_id, side, amount, price, pnl, strategy, confidence, tx_ref, created_at
		FROM trades
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.TradeRecord
	for rows.Next() {
		trade := &models.TradeRecord{}
		err := rows.Scan(
			&trade.ID,
			&trade.TokenID,
			&trade.Side,
			&trade.Amount,
			&trade.Price,
			&trade.Pnl,
			&trade.Strategy,
			&trade.Confidence,
			&trade.TxRef,
			&trade.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}

// ListPnl возвращает PNL последних N сделок в хронологическом
// порядке (старые первыми) для расчёта drawdown
func (r *TradeRepository) ListPnl(limit int) ([]float64, error) {
	query := `
		SELECT pnl FROM (
			SELECT pnl, created_at
			FROM trades
			ORDER BY created_at DESC
			LIMIT $1
		) recent
		ORDER BY created_at ASC`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pnls []float64
	for rows.Next() {
		var pnl float64
		if err := rows.Scan(&pnl); err != nil {
			return nil, err
		}
		pnls = append(pnls, pnl)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return pnls, nil
}

// TotalPnl возвращает суммарный реализованный PNL
func (r *TradeRepository) TotalPnl() (float64, error) {
	var total sql.NullFloat64
	err := r.db.QueryRow(`SELECT SUM(pnl) FROM trades`).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}
