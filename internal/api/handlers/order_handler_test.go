package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"polytrader/internal/models"
)

// ============ OrderHandler Tests ============

func postOrder(t *testing.T, handler *OrderHandler, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	jsonBody, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.CreateOrder(w, req)
	return w
}

func TestOrderHandler_CreateOrder(t *testing.T) {
	t.Run("successfully places a limit order", func(t *testing.T) {
		orchestrator := newMockOrchestrator(nil)
		store := &mockOrderStore{}
		handler := NewOrderHandler(orchestrator, store, nil)

		w := postOrder(t, handler, map[string]interface{}{
			"owner":       "strategy-1",
			"token_id":    "token-a",
			"side":        "BUY",
			"kind":        "LIMIT",
			"amount":      50,
			"limit_price": 0.45,
		})

		if w.Code != http.StatusCreated {
			t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
		}

		var order models.Order
		if err := json.NewDecoder(w.Body).Decode(&order); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if order.Status != models.OrderStatusOpen {
			t.Errorf("expected OPEN status, got %s", order.Status)
		}
		if orchestrator.Book().Len() != 1 {
			t.Error("order should be in the book")
		}
		if len(store.created) != 1 {
			t.Error("order should be persisted")
		}
	})

	t.Run("persist failure does not roll back the order", func(t *testing.T) {
		orchestrator := newMockOrchestrator(nil)
		store := &mockOrderStore{err: ErrMockBackend}
		handler := NewOrderHandler(orchestrator, store, nil)

		w := postOrder(t, handler, map[string]interface{}{
			"token_id":   "token-a",
			"side":       "SELL",
			"kind":       "STOP_LOSS",
			"amount":     10,
			"stop_price": 1.5,
		})

		if w.Code != http.StatusCreated {
			t.Fatalf("expected status %d, got %d", http.StatusCreated, w.Code)
		}
		if orchestrator.Book().Len() != 1 {
			t.Error("order must stay monitored despite the persistence error")
		}
	})

	t.Run("returns 400 on invalid JSON", func(t *testing.T) {
		handler := NewOrderHandler(newMockOrchestrator(nil), nil, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader([]byte("invalid json")))
		w := httptest.NewRecorder()
		handler.CreateOrder(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("validation errors", func(t *testing.T) {
		tests := []struct {
			name string
			body map[string]interface{}
		}{
			{"без token_id", map[string]interface{}{"side": "BUY", "kind": "LIMIT", "amount": 10, "limit_price": 1}},
			{"неизвестная сторона", map[string]interface{}{"token_id": "a", "side": "LONG", "kind": "LIMIT", "amount": 10, "limit_price": 1}},
			{"нулевой объём", map[string]interface{}{"token_id": "a", "side": "BUY", "kind": "LIMIT", "amount": 0, "limit_price": 1}},
			{"LIMIT без цены", map[string]interface{}{"token_id": "a", "side": "BUY", "kind": "LIMIT", "amount": 10}},
			{"STOP_LOSS без цены", map[string]interface{}{"token_id": "a", "side": "SELL", "kind": "STOP_LOSS", "amount": 10}},
			{"TAKE_PROFIT без цены", map[string]interface{}{"token_id": "a", "side": "SELL", "kind": "TAKE_PROFIT", "amount": 10}},
			{"trailing вне диапазона", map[string]interface{}{"token_id": "a", "side": "SELL", "kind": "TRAILING_STOP", "amount": 10, "trailing_percent": 150}},
			{"неизвестный kind", map[string]interface{}{"token_id": "a", "side": "BUY", "kind": "ICEBERG", "amount": 10}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				handler := NewOrderHandler(newMockOrchestrator(nil), nil, nil)
				w := postOrder(t, handler, tt.body)
				if w.Code != http.StatusBadRequest {
					t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
				}
			})
		}
	})

	t.Run("trailing order needs a seed price", func(t *testing.T) {
		orchestrator := newMockOrchestrator(nil)
		handler := NewOrderHandler(orchestrator, nil, nil)

		body := map[string]interface{}{
			"token_id": "token-a", "side": "SELL", "kind": "TRAILING_STOP",
			"amount": 10, "trailing_percent": 5,
		}
		if w := postOrder(t, handler, body); w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d without a cached price, got %d", http.StatusBadRequest, w.Code)
		}

		// цена появилась - ордер принимается
		orchestrator.Prices().Set("token-a", 1.20)
		if w := postOrder(t, handler, body); w.Code != http.StatusCreated {
			t.Errorf("expected status %d with a seed price, got %d", http.StatusCreated, w.Code)
		}
	})

	t.Run("market order is rejected with 422", func(t *testing.T) {
		handler := NewOrderHandler(newMockOrchestrator(nil), nil, nil)

		w := postOrder(t, handler, map[string]interface{}{
			"token_id": "token-a", "side": "BUY", "kind": "MARKET", "amount": 10,
		})
		// MARKET отклоняется ещё на сборке условия
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}

func TestOrderHandler_ListOrders(t *testing.T) {
	orchestrator := newMockOrchestrator(nil)
	handler := NewOrderHandler(orchestrator, nil, nil)

	order := models.NewOrder("test", "token-a", models.SideBuy, &models.LimitTrigger{LimitPrice: 1}, 10)
	orchestrator.Book().AddOrder(order)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	w := httptest.NewRecorder()
	handler.ListOrders(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response SuccessResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	orders, ok := response.Data.([]interface{})
	if !ok || len(orders) != 1 {
		t.Errorf("expected 1 order in response, got %v", response.Data)
	}
}

func TestOrderHandler_GetOrder(t *testing.T) {
	orchestrator := newMockOrchestrator(nil)
	handler := NewOrderHandler(orchestrator, nil, nil)

	order := models.NewOrder("test", "token-a", models.SideBuy, &models.LimitTrigger{LimitPrice: 1}, 10)
	orchestrator.Book().AddOrder(order)

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID, nil)
		req = mux.SetURLVars(req, map[string]string{"id": order.ID})
		w := httptest.NewRecorder()
		handler.GetOrder(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/missing", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "missing"})
		w := httptest.NewRecorder()
		handler.GetOrder(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})
}

func TestOrderHandler_CancelOrder(t *testing.T) {
	orchestrator := newMockOrchestrator(nil)
	handler := NewOrderHandler(orchestrator, nil, nil)

	order := models.NewOrder("test", "token-a", models.SideBuy, &models.LimitTrigger{LimitPrice: 1}, 10)
	orchestrator.Book().AddOrder(order)

	t.Run("success", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/orders/"+order.ID, nil)
		req = mux.SetURLVars(req, map[string]string{"id": order.ID})
		w := httptest.NewRecorder()
		handler.CancelOrder(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if orchestrator.Book().Len() != 0 {
			t.Error("order should be removed from the book")
		}
	})

	t.Run("already cancelled returns 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/orders/"+order.ID, nil)
		req = mux.SetURLVars(req, map[string]string{"id": order.ID})
		w := httptest.NewRecorder()
		handler.CancelOrder(w, req)

		// отменённый ордер удалён из книги, поэтому not found
		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})
}
