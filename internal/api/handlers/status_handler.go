package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"polytrader/internal/bot"
)

// StatusHandler обрабатывает запросы жизненного цикла и
// состояния оркестратора.
//
// Endpoints:
// - GET /api/v1/status - состояние оркестратора и breaker'ов
// - POST /api/v1/start - запустить оркестратор
// - POST /api/v1/stop - остановить оркестратор
// - PATCH /api/v1/config - частичное обновление runtime-конфига
// - GET /api/v1/performance?limit=N - торговая статистика
type StatusHandler struct {
	orchestrator *bot.Orchestrator
	baseCtx      context.Context
}

// NewStatusHandler создает новый StatusHandler.
// baseCtx - контекст времени жизни процесса, от него порождается
// run-контекст оркестратора; nil = context.Background().
func NewStatusHandler(orchestrator *bot.Orchestrator, baseCtx context.Context) *StatusHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &StatusHandler{orchestrator: orchestrator, baseCtx: baseCtx}
}

// GetStatus возвращает снимок состояния оркестратора
//
// GET /api/v1/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orchestrator.Status())
}

// Start запускает оркестратор. Повторный запуск работающего
// оркестратора - no-op с тем же ответом.
//
// Run-контекст порождается от baseCtx, НЕ от контекста запроса:
// net/http отменяет r.Context() по завершении хендлера, и циклы
// оркестратора умерли бы сразу после ответа.
//
// POST /api/v1/start
func (h *StatusHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.Start(h.baseCtx); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{
		Message: "orchestrator running",
		Data:    h.orchestrator.Status(),
	})
}

// Stop останавливает оркестратор
//
// POST /api/v1/stop
func (h *StatusHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.orchestrator.Stop()
	writeJSON(w, http.StatusOK, SuccessResponse{
		Message: "orchestrator stopped",
		Data:    h.orchestrator.Status(),
	})
}

// updateConfigRequest - тело PATCH /config.
// Интервалы принимаются строками в формате time.ParseDuration.
type updateConfigRequest struct {
	MonitorInterval   *string  `json:"monitor_interval,omitempty"`
	CycleInterval     *string  `json:"cycle_interval,omitempty"`
	MaxTradesPerCycle *int     `json:"max_trades_per_cycle,omitempty"`
	MinConfidence     *float64 `json:"min_confidence,omitempty"`
	RiskEnabled       *bool    `json:"risk_enabled,omitempty"`
	MaxCycleFailures  *int     `json:"max_cycle_failures,omitempty"`
}

// UpdateConfig применяет частичное обновление конфигурации.
// Отсутствующие поля не меняются.
//
// PATCH /api/v1/config
// Request: {"cycle_interval": "10m", "max_trades_per_cycle": 5}
func (h *StatusHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	upd := bot.ConfigUpdate{
		MaxTradesPerCycle: req.MaxTradesPerCycle,
		MinConfidence:     req.MinConfidence,
		RiskEnabled:       req.RiskEnabled,
		MaxCycleFailures:  req.MaxCycleFailures,
	}
	if req.MonitorInterval != nil {
		d, err := time.ParseDuration(*req.MonitorInterval)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid monitor_interval", err.Error())
			return
		}
		upd.MonitorInterval = &d
	}
	if req.CycleInterval != nil {
		d, err := time.ParseDuration(*req.CycleInterval)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid cycle_interval", err.Error())
			return
		}
		upd.CycleInterval = &d
	}

	if err := h.orchestrator.UpdateConfig(upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid config update", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Message: "config updated"})
}

// GetPerformance возвращает статистику по последним сделкам
//
// GET /api/v1/performance?limit=200
func (h *StatusHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	report, err := h.orchestrator.Performance(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build performance report", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Health возвращает 200, пока процесс жив
//
// GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"running": h.orchestrator.IsRunning(),
	})
}
