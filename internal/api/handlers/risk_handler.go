package handlers

import (
	"net/http"

	"polytrader/internal/bot"
	"polytrader/internal/models"
)

// RiskHandler обрабатывает запросы риск-контроля и позиций.
//
// Endpoints:
// - GET /api/v1/risk - портфельный риск-снимок
// - POST /api/v1/risk/assess - оценить гипотетическую сделку
// - GET /api/v1/positions - открытые позиции
type RiskHandler struct {
	orchestrator *bot.Orchestrator
}

// NewRiskHandler создает новый RiskHandler
func NewRiskHandler(orchestrator *bot.Orchestrator) *RiskHandler {
	return &RiskHandler{orchestrator: orchestrator}
}

// GetRisk возвращает портфельный риск-снимок
//
// GET /api/v1/risk
func (h *RiskHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orchestrator.RiskStatus())
}

// assessRequest - гипотетическая сделка для прогона через
// риск-контроль без исполнения
type assessRequest struct {
	TokenID    string  `json:"token_id"`
	Side       string  `json:"side"`
	Amount     float64 `json:"amount"`
	Confidence float64 `json:"confidence"`
	Balance    float64 `json:"balance"`
	// Текущая экспозиция; 0 = берём открытые позиции бота
	OpenExposure float64               `json:"open_exposure,omitempty"`
	Stats        *models.MarketContext `json:"stats,omitempty"`
}

// AssessTrade прогоняет сделку через проверки допуска
//
// POST /api/v1/risk/assess
// Request: {"token_id": "...", "side": "BUY", "amount": 50, "confidence": 0.8, "balance": 1000}
func (h *RiskHandler) AssessTrade(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	side := models.OrderSide(req.Side)
	if side != models.SideBuy && side != models.SideSell {
		writeError(w, http.StatusBadRequest, "side must be BUY or SELL")
		return
	}

	exposure := req.OpenExposure
	if exposure <= 0 {
		exposure = h.orchestrator.OpenExposure()
	}
	assessment := h.orchestrator.Risk().AssessTrade(bot.TradeRequest{
		TokenID:      req.TokenID,
		Side:         side,
		Amount:       req.Amount,
		Confidence:   req.Confidence,
		Balance:      req.Balance,
		OpenExposure: exposure,
		Stats:        req.Stats,
	})
	writeJSON(w, http.StatusOK, assessment)
}

// GetPositions возвращает открытые позиции
//
// GET /api/v1/positions
func (h *RiskHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SuccessResponse{Data: h.orchestrator.Positions()})
}
