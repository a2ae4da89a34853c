package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"polytrader/internal/bot"
	"polytrader/internal/models"
	"polytrader/pkg/utils"
)

// OrderHandler обрабатывает запросы книги условных ордеров.
//
// Endpoints:
// - GET /api/v1/orders - активные ордера
// - POST /api/v1/orders - поставить условный ордер
// - GET /api/v1/orders/{id} - получить ордер
// - DELETE /api/v1/orders/{id} - отменить ордер
type OrderHandler struct {
	orchestrator *bot.Orchestrator
	store        bot.OrderStore // nil = без персистентности
	log          *utils.Logger
}

// NewOrderHandler создает новый OrderHandler
func NewOrderHandler(orchestrator *bot.Orchestrator, store bot.OrderStore, log *utils.Logger) *OrderHandler {
	if log == nil {
		log = utils.L()
	}
	return &OrderHandler{
		orchestrator: orchestrator,
		store:        store,
		log:          log.WithComponent("order_handler"),
	}
}

// createOrderRequest - запрос постановки условного ордера.
// Поле условия зависит от kind: limit_price для LIMIT,
// stop_price для STOP_LOSS, target_price для TAKE_PROFIT,
// trailing_percent для TRAILING_STOP.
type createOrderRequest struct {
	Owner           string  `json:"owner"`
	TokenID         string  `json:"token_id"`
	Side            string  `json:"side"`
	Kind            string  `json:"kind"`
	Amount          float64 `json:"amount"` // объём в USDC
	LimitPrice      float64 `json:"limit_price,omitempty"`
	StopPrice       float64 `json:"stop_price,omitempty"`
	TargetPrice     float64 `json:"target_price,omitempty"`
	TrailingPercent float64 `json:"trailing_percent,omitempty"`
}

// CreateOrder ставит условный ордер в книгу мониторинга
//
// POST /api/v1/orders
// Request:
//
//	{
//	  "owner": "strategy-1",
//	  "token_id": "7132...901",
//	  "side": "BUY",
//	  "kind": "LIMIT",
//	  "amount": 50,
//	  "limit_price": 0.45
//	}
//
// Response 201 Created: ордер в статусе OPEN
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if req.TokenID == "" {
		writeError(w, http.StatusBadRequest, "token_id is required")
		return
	}
	side := models.OrderSide(req.Side)
	if side != models.SideBuy && side != models.SideSell {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid side %q", req.Side))
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	trigger, err := h.buildTrigger(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order := models.NewOrder(req.Owner, req.TokenID, side, trigger, req.Amount)

	if err := h.orchestrator.Book().AddOrder(order); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, bot.ErrMarketOrder) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, "failed to place order", err.Error())
		return
	}

	if h.store != nil {
		if err := h.store.Create(order.ToRecord()); err != nil {
			// ордер уже мониторится; потеря записи не откатывает его
			h.log.Error("failed to persist order",
				utils.OrderID(order.ID),
				utils.Err(err),
			)
		}
	}

	writeJSON(w, http.StatusCreated, order)
}

// buildTrigger собирает типизированное условие из запроса
func (h *OrderHandler) buildTrigger(req *createOrderRequest) (models.Trigger, error) {
	switch models.OrderKind(req.Kind) {
	case models.KindLimit:
		if req.LimitPrice <= 0 {
			return nil, fmt.Errorf("limit_price must be positive for LIMIT order")
		}
		return &models.LimitTrigger{LimitPrice: req.LimitPrice}, nil
	case models.KindStopLoss:
		if req.StopPrice <= 0 {
			return nil, fmt.Errorf("stop_price must be positive for STOP_LOSS order")
		}
		return &models.StopLossTrigger{StopPrice: req.StopPrice}, nil
	case models.KindTakeProfit:
		if req.TargetPrice <= 0 {
			return nil, fmt.Errorf("target_price must be positive for TAKE_PROFIT order")
		}
		return &models.TakeProfitTrigger{TargetPrice: req.TargetPrice}, nil
	case models.KindTrailingStop:
		if req.TrailingPercent <= 0 || req.TrailingPercent >= 100 {
			return nil, fmt.Errorf("trailing_percent must be in (0, 100)")
		}
		seed, ok := h.orchestrator.Prices().Get(req.TokenID)
		if !ok {
			return nil, fmt.Errorf("no current price for %s, trailing order needs a seed price", req.TokenID)
		}
		return models.NewTrailingTrigger(req.TrailingPercent, seed), nil
	case models.KindMarket:
		return nil, fmt.Errorf("MARKET orders execute synchronously and are not monitored")
	default:
		return nil, fmt.Errorf("unknown order kind %q", req.Kind)
	}
}

// ListOrders возвращает активные ордера книги
//
// GET /api/v1/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.orchestrator.Book().Active()
	writeJSON(w, http.StatusOK, SuccessResponse{Data: orders})
}

// GetOrder возвращает ордер по ID
//
// GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	order, err := h.orchestrator.Book().Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CancelOrder отменяет активный ордер
//
// DELETE /api/v1/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.orchestrator.Book().CancelOrder(id); err != nil {
		switch {
		case errors.Is(err, bot.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, bot.ErrOrderTerminal):
			writeError(w, http.StatusConflict, "order already in terminal state")
		default:
			writeError(w, http.StatusInternalServerError, "failed to cancel order", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Message: "order cancelled"})
}
