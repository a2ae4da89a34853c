// Package api собирает HTTP поверхность торгового супервизора.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"polytrader/internal/api/handlers"
	"polytrader/internal/api/middleware"
	"polytrader/internal/bot"
	"polytrader/pkg/utils"
)

// Dependencies содержит зависимости для API handlers
type Dependencies struct {
	Orchestrator *bot.Orchestrator
	OrderStore   bot.OrderStore  // nil = без персистентности ордеров
	APIKeyHash   string          // bcrypt-хэш ключа, пусто = без auth
	BaseCtx      context.Context // контекст времени жизни процесса для Start
	Logger       *utils.Logger
}

// SetupRoutes настраивает HTTP маршруты приложения
//
// Структура маршрутов:
//
// /health  - liveness (без auth)
// /metrics - Prometheus (без auth)
//
// /api/v1/ (X-API-Key)
//
//	├── GET   /status          - состояние оркестратора
//	├── POST  /start           - запустить оркестратор
//	├── POST  /stop            - остановить оркестратор
//	├── PATCH /config          - обновить runtime-конфиг
//	├── GET   /performance     - торговая статистика
//	├── /orders/
//	│   ├── GET    /           - активные ордера
//	│   ├── POST   /           - поставить условный ордер
//	│   ├── GET    /{id}       - получить ордер
//	│   └── DELETE /{id}       - отменить ордер
//	├── GET  /risk             - портфельный риск
//	├── POST /risk/assess      - оценить сделку
//	└── GET  /positions        - открытые позиции
//
// Middleware: Recovery → Logging → CORS глобально,
// APIKeyAuth только на /api/v1.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	statusHandler := handlers.NewStatusHandler(deps.Orchestrator, deps.BaseCtx)
	orderHandler := handlers.NewOrderHandler(deps.Orchestrator, deps.OrderStore, deps.Logger)
	riskHandler := handlers.NewRiskHandler(deps.Orchestrator)

	// Открытые маршруты
	router.HandleFunc("/health", statusHandler.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// API v1 под аутентификацией
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.APIKeyAuth(deps.APIKeyHash))

	api.HandleFunc("/status", statusHandler.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/start", statusHandler.Start).Methods(http.MethodPost)
	api.HandleFunc("/stop", statusHandler.Stop).Methods(http.MethodPost)
	api.HandleFunc("/config", statusHandler.UpdateConfig).Methods(http.MethodPatch)
	api.HandleFunc("/performance", statusHandler.GetPerformance).Methods(http.MethodGet)

	api.HandleFunc("/orders", orderHandler.ListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders", orderHandler.CreateOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", orderHandler.GetOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", orderHandler.CancelOrder).Methods(http.MethodDelete)

	api.HandleFunc("/risk", riskHandler.GetRisk).Methods(http.MethodGet)
	api.HandleFunc("/risk/assess", riskHandler.AssessTrade).Methods(http.MethodPost)
	api.HandleFunc("/positions", riskHandler.GetPositions).Methods(http.MethodGet)

	return router
}
