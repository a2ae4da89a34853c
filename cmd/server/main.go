package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"polytrader/internal/api"
	"polytrader/internal/bot"
	"polytrader/internal/config"
	"polytrader/internal/feed"
	"polytrader/internal/models"
	"polytrader/internal/repository"
	"polytrader/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Error("failed to connect to database", utils.Err(err))
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("connected to database",
		utils.String("host", cfg.Database.Host),
		utils.String("name", cfg.Database.Name),
	)

	// Инициализация репозиториев
	orderRepo := repository.NewOrderRepository(db)
	tradeRepo := repository.NewTradeRepository(db)

	// Клиенты внешних сервисов
	bridgeCfg := feed.DefaultBridgeConfig(cfg.Services.BridgeURL)
	bridgeCfg.APIKey = cfg.Services.BridgeKey
	bridge := feed.NewBridgeClient(bridgeCfg, logger)
	defer bridge.Close()

	decision := feed.NewDecisionClient(cfg.Services.DecisionURL, 60*time.Second, logger)

	// Торговое ядро
	orchestrator := bot.NewOrchestrator(cfg, bot.Collaborators{
		PriceFeed: bridge,
		Decision:  decision,
		Execution: bridge,
		Discovery: bridge,
		Trades:    tradeRepo,
	}, logger)

	// Восстановление книги ордеров после рестарта
	restoreOrders(orchestrator, orderRepo, logger)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Персистентность событий
	recorder := bot.NewRecorder(orderRepo, tradeRepo, logger)
	recorder.Start(rootCtx, orchestrator.Events())
	defer recorder.Stop()

	// WebSocket поток цен (опционально)
	var stream *feed.PriceStream
	if cfg.Services.StreamURL != "" {
		stream = feed.NewPriceStream(
			feed.DefaultStreamConfig(cfg.Services.StreamURL),
			func(tokenID string, price float64) {
				orchestrator.UpdatePrice(rootCtx, tokenID, price)
			},
			logger,
		)
		for _, order := range orchestrator.Book().Active() {
			stream.Subscribe(order.TokenID)
		}
		if err := stream.Connect(rootCtx); err != nil {
			// поток переподключится сам; торговля работает и по REST ценам
			logger.Warn("price stream connect failed", utils.Err(err))
		}
		defer stream.Close()
	}

	// Запуск оркестратора
	if err := orchestrator.Start(rootCtx); err != nil {
		logger.Error("failed to start orchestrator", utils.Err(err))
		os.Exit(1)
	}
	defer orchestrator.Stop()

	// HTTP сервер
	router := api.SetupRoutes(&api.Dependencies{
		Orchestrator: orchestrator,
		OrderStore:   orderRepo,
		APIKeyHash:   cfg.Security.APIKeyHash,
		BaseCtx:      rootCtx,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", utils.String("addr", server.Addr))
		var serveErr error
		if cfg.Server.UseHTTPS {
			serveErr = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			serveErr = server.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("server failed", utils.Err(serveErr))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", utils.Err(err))
	}

	logger.Info("server exited")
}

// restoreOrders загружает активные ордера из БД в книгу мониторинга
func restoreOrders(orchestrator *bot.Orchestrator, orderRepo *repository.OrderRepository, logger *utils.Logger) {
	records, err := orderRepo.GetActive()
	if err != nil {
		logger.Error("failed to load active orders", utils.Err(err))
		return
	}

	orders := make([]*models.Order, 0, len(records))
	for _, record := range records {
		order := record.ToOrder()
		if order == nil {
			logger.Warn("skipping unrestorable order record",
				utils.OrderID(record.ID),
				utils.String("kind", record.Kind),
			)
			continue
		}
		orders = append(orders, order)
	}

	restored := orchestrator.Book().Restore(orders)
	if restored > 0 {
		logger.Info("restored active orders", utils.Int("count", restored))
	}
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
