package bot

import (
	"context"

	"github.com/google/uuid"

	"polytrader/internal/models"
	"polytrader/pkg/utils"
)

// ============================================================
// Recorder - персистентность событий торгового ядра
// ============================================================
//
// Подписывается на шину событий и асинхронно сбрасывает их в БД:
// статусы ордеров в order store, сделки в trade store. Ядро не
// блокируется на записи; потерянная запись не ломает торговлю,
// но логируется как ошибка.

// Recorder переносит события шины в персистентные хранилища
type Recorder struct {
	orders OrderStore
	trades TradeStore
	log    *utils.Logger

	unsubscribe func()
	done        chan struct{}
}

// NewRecorder создаёт recorder. Любое из хранилищ может быть nil,
// тогда соответствующие события игнорируются.
func NewRecorder(orders OrderStore, trades TradeStore, log *utils.Logger) *Recorder {
	if log == nil {
		log = utils.L()
	}
	return &Recorder{
		orders: orders,
		trades: trades,
		log:    log.WithComponent("recorder"),
	}
}

// Start подписывается на шину и запускает горутину записи
func (r *Recorder) Start(ctx context.Context, bus *EventBus) {
	events, unsubscribe := bus.Subscribe(256)
	r.unsubscribe = unsubscribe
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				r.handle(event)
			}
		}
	}()
}

// Stop отписывается и дожидается слива буфера
func (r *Recorder) Stop() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	if r.done != nil {
		<-r.done
	}
}

func (r *Recorder) handle(event *models.Event) {
	switch event.Type {
	case models.EventOrderExecuted:
		r.recordOrderStatus(event, string(models.OrderStatusFilled))
	case models.EventOrderCancelled:
		r.recordOrderStatus(event, string(models.OrderStatusCancelled))
	case models.EventTradeExecuted:
		r.recordTrade(event)
	}
}

func (r *Recorder) recordOrderStatus(event *models.Event, status string) {
	if r.orders == nil || event.OrderID == "" {
		return
	}

	filled := metaFloat(event.Meta, "filled_amount")
	var executedPrice *float64
	if price := metaFloat(event.Meta, "executed_price"); price > 0 {
		executedPrice = &price
	}

	if err := r.orders.UpdateStatus(event.OrderID, status, filled, executedPrice); err != nil {
		r.log.Error("failed to persist order status",
			utils.OrderID(event.OrderID),
			utils.State(status),
			utils.Err(err),
		)
	}
}

func (r *Recorder) recordTrade(event *models.Event) {
	if r.trades == nil {
		return
	}

	trade := &models.TradeRecord{
		ID:         uuid.New().String(),
		TokenID:    event.TokenID,
		Side:       metaString(event.Meta, "side"),
		Amount:     metaFloat(event.Meta, "amount"),
		Price:      metaFloat(event.Meta, "executed_price"),
		Pnl:        metaFloat(event.Meta, "pnl"),
		Strategy:   metaString(event.Meta, "strategy"),
		Confidence: metaFloat(event.Meta, "confidence"),
		TxRef:      metaString(event.Meta, "tx_ref"),
		CreatedAt:  event.Timestamp,
	}

	if err := r.trades.Create(trade); err != nil {
		r.log.Error("failed to persist trade",
			utils.Token(event.TokenID),
			utils.Err(err),
		)
	}
}

func metaFloat(meta map[string]interface{}, key string) float64 {
	if meta == nil {
		return 0
	}
	if v, ok := meta[key].(float64); ok {
		return v
	}
	return 0
}

func metaString(meta map[string]interface{}, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}
