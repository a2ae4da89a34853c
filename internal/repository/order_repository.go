package repository

import (
	"database/sql"
	"errors"

	"polytrader/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository - работа с таблицей orders
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, owner, token_id, kind, side, limit_price, stop_price, target_price, trailing_percent,
		requested_amount, filled_amount, status, executed_price, created_at, executed_at, cancelled_at`

// Create создает запись об ордере
func (r *OrderRepository) Create(order *models.OrderRecord) error {
	query := `
		INSERT INTO orders (id, owner, token_id, kind, side, limit_price, stop_price, target_price, trailing_percent,
			requested_amount, filled_amount, status, executed_price, created_at, executed_at, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.db.Exec(
		query,
		order.ID,
		order.Owner,
		order.TokenID,
		order.Kind,
		order.Side,
		order.LimitPrice,
		order.StopPrice,
		order.TargetPrice,
		order.TrailingPercent,
		order.RequestedAmount,
		order.FilledAmount,
		order.Status,
		order.ExecutedPrice,
		order.CreatedAt,
		order.ExecutedAt,
		order.CancelledAt,
	)
	return err
}

// UpdateStatus обновляет статус и результат исполнения ордера
func (r *OrderRepository) UpdateStatus(id string, status string, filledAmount float64, executedPrice *float64) error {
	query := `
		UPDATE orders
		SET status = $2,
			filled_amount = $3,
			executed_price = $4,
			executed_at = CASE WHEN $2 = 'FILLED' THEN NOW() ELSE executed_at END,
			cancelled_at = CASE WHEN $2 = 'CANCELLED' THEN NOW() ELSE cancelled_at END
		WHERE id = $1`

	result, err := r.db.Exec(query, id, status, filledAmount, executedPrice)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(id string) (*models.OrderRecord, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE id = $1`

	order := &models.OrderRecord{}
	err := r.db.QueryRow(query, id).Scan(
		&order.ID,
		&order.Owner,
		&order.TokenID,
		&order.Kind,
		&order.Side,
		&order.LimitPrice,
		&order.StopPrice,
		&order.TargetPrice,
		&order.TrailingPercent,
		&order.RequestedAmount,
		&order.FilledAmount,
		&order.Status,
		&order.ExecutedPrice,
		&order.CreatedAt,
		&order.ExecutedAt,
		&order.CancelledAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

// GetActive возвращает не-терминальные ордера для восстановления
// книги после рестарта
func (r *OrderRepository) GetActive() ([]*models.OrderRecord, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status IN ('OPEN', 'PARTIALLY_FILLED')
		ORDER BY created_at ASC`

	return r.queryOrders(query)
}

// GetRecent возвращает последние N ордеров
func (r *OrderRepository) GetRecent(limit int) ([]*models.OrderRecord, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1`

	return r.queryOrders(query, limit)
}

// GetByToken возвращает ордера инструмента
func (r *OrderRepository) GetByToken(tokenID string) ([]*models.OrderRecord, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE token_id = $1
		ORDER BY created_at DESC`

	return r.queryOrders(query, tokenID)
}

func (r *OrderRepository) queryOrders(query string, args ...interface{}) ([]*models.OrderRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.OrderRecord
	for rows.Next() {
		order := &models.OrderRecord{}
		err := rows.Scan(
			&order.ID,
			&order.Owner,
			&order.TokenID,
			&order.Kind,
			&order.Side,
			&order.LimitPrice,
			&order.StopPrice,
			&order.TargetPrice,
			&order.TrailingPercent,
			&order.RequestedAmount,
			&order.FilledAmount,
			&order.Status,
			&order.ExecutedPrice,
			&order.CreatedAt,
			&order.ExecutedAt,
			&order.CancelledAt,
		)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}
