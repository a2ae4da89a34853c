package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ============ RiskHandler Tests ============

func TestRiskHandler_GetRisk(t *testing.T) {
	handler := NewRiskHandler(newMockOrchestrator(&mockTrades{pnls: []float64{5, -2}}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/risk", nil)
	w := httptest.NewRecorder()
	handler.GetRisk(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if _, ok := response["value_at_risk_note"]; !ok {
		t.Error("response should state the VaR approximation")
	}
}

func TestRiskHandler_AssessTrade(t *testing.T) {
	t.Run("approves a trade within limits", func(t *testing.T) {
		handler := NewRiskHandler(newMockOrchestrator(nil))

		body := map[string]interface{}{
			"token_id": "token-a", "side": "BUY",
			"amount": 50, "confidence": 0.9, "balance": 1000,
		}
		jsonBody, _ := json.Marshal(body)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/risk/assess", bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		handler.AssessTrade(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if approved, ok := response["approved"].(bool); !ok || !approved {
			t.Errorf("expected approved=true, got %v", response["approved"])
		}
	})

	t.Run("rejects an oversized trade", func(t *testing.T) {
		handler := NewRiskHandler(newMockOrchestrator(nil))

		// 500 из 1000 при лимите 10% на сделку
		body := map[string]interface{}{
			"token_id": "token-a", "side": "BUY",
			"amount": 500, "confidence": 0.9, "balance": 1000,
		}
		jsonBody, _ := json.Marshal(body)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/risk/assess", bytes.NewReader(jsonBody))
		w := httptest.NewRecorder()
		handler.AssessTrade(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d (assessment itself is a success)", http.StatusOK, w.Code)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if approved, ok := response["approved"].(bool); !ok || approved {
			t.Errorf("expected approved=false, got %v", response["approved"])
		}
		if _, ok := response["checks"]; !ok {
			t.Error("response should contain per-check details")
		}
	})

	t.Run("returns 400 on invalid JSON", func(t *testing.T) {
		handler := NewRiskHandler(newMockOrchestrator(nil))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/risk/assess", bytes.NewReader([]byte("invalid json")))
		w := httptest.NewRecorder()
		handler.AssessTrade(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("returns 400 on unknown side", func(t *testing.T) {
		handler := NewRiskHandler(newMockOrchestrator(nil))

		jsonBody, _ := json.Marshal(map[string]interface{}{
			"token_id": "token-a", "side": "LONG", "amount": 50, "balance": 1000,
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/risk/assess", bytes.NewReader(jsonBody))
		w := httptest.NewRecorder()
		handler.AssessTrade(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}

func TestRiskHandler_GetPositions(t *testing.T) {
	handler := NewRiskHandler(newMockOrchestrator(nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
	w := httptest.NewRecorder()
	handler.GetPositions(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
}
