package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"polytrader/internal/config"
	"polytrader/internal/models"
	"polytrader/pkg/breaker"
	"polytrader/pkg/utils"
)

// ============================================================
// Orchestrator - торговый оркестратор
// ============================================================
//
// Владеет двумя независимыми таймерами:
// - тик мониторинга (быстрый): книга условных ордеров + проверка
//   stop-loss/take-profit открытых позиций по кэшу цен
// - торговый цикл (медленный): discovery → decision → risk →
//   execution, не больше MaxTradesPerCycle сделок за проход
//
// Оба таймера single-flight: пока предыдущий проход не завершён,
// новое срабатывание пропускается (и учитывается в метриках).
// Все вызовы внешних зависимостей идут через Guard
// (rate limit → breaker → retry).

// Collaborators - внешние зависимости оркестратора
type Collaborators struct {
	PriceFeed PriceFeed
	Decision  DecisionService
	Execution ExecutionBackend
	Discovery MarketDiscovery
	Trades    TradeStore // nil = Performance() без истории PNL
}

// Orchestrator координирует мониторинг ордеров и торговые циклы
type Orchestrator struct {
	mu      sync.Mutex // защищает running/cancel и runtime-конфиг
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	botCfg  config.BotConfig
	riskCfg config.RiskConfig

	prices *PriceCache
	book   *OrderBook
	risk   *RiskAssessor
	events *EventBus
	log    *utils.Logger

	collab Collaborators

	priceGuard    *Guard
	decisionGuard *Guard
	execGuard     *Guard

	// single-flight флаги таймеров
	monitorBusy atomic.Bool
	cycleBusy   atomic.Bool

	posMu     sync.RWMutex
	positions map[string]*models.Position // открытые позиции по token_id

	// статистика (под mu)
	cyclesCompleted     int64
	tradesExecuted      int64
	consecutiveFailures int
	lastCycleAt         time.Time
	lastCycleErr        string
	lastBalance         float64
	startedAt           time.Time
}

// NewOrchestrator собирает оркестратор из конфигурации и зависимостей
func NewOrchestrator(cfg *config.Config, collab Collaborators, log *utils.Logger) *Orchestrator {
	if log == nil {
		log = utils.L()
	}
	log = log.WithComponent("orchestrator")

	o := &Orchestrator{
		botCfg:    cfg.Bot,
		riskCfg:   cfg.Risk,
		collab:    collab,
		log:       log,
		positions: make(map[string]*models.Position),
	}

	o.prices = NewPriceCache(cfg.Bot.PriceTTL)
	o.events = NewEventBus()
	o.risk = NewRiskAssessor(cfg.Risk, log)

	o.priceGuard = NewGuard("price_feed", cfg.Deps.PriceFeed, newDepLimiter(cfg.Deps.PriceFeed), log)
	o.decisionGuard = NewGuard("decision", cfg.Deps.Decision, newDepLimiter(cfg.Deps.Decision), log)
	o.execGuard = NewGuard("execution", cfg.Deps.Execution, newDepLimiter(cfg.Deps.Execution), log)

	o.book = NewOrderBook(o.prices, o.fillExecutor, o.events, log)

	return o
}

// Book возвращает книгу условных ордеров
func (o *Orchestrator) Book() *OrderBook { return o.book }

// Events возвращает шину событий для подписчиков
func (o *Orchestrator) Events() *EventBus { return o.events }

// Risk возвращает риск-оценщик
func (o *Orchestrator) Risk() *RiskAssessor { return o.risk }

// Prices возвращает кэш цен
func (o *Orchestrator) Prices() *PriceCache { return o.prices }

// ============ Жизненный цикл ============

// Start запускает таймеры оркестратора.
// Повторный вызов на работающем оркестраторе - no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		o.log.Warn("start requested but orchestrator already running")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.consecutiveFailures = 0
	o.startedAt = time.Now()

	o.wg.Add(2)
	go o.monitorLoop(runCtx)
	go o.cycleLoop(runCtx)

	o.log.Info("orchestrator started",
		utils.String("monitor_interval", o.botCfg.MonitorInterval.String()),
		utils.String("cycle_interval", o.botCfg.CycleInterval.String()),
	)
	return nil
}

// Stop останавливает таймеры и дожидается завершения проходов.
// Повторный вызов на остановленном оркестраторе - no-op.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
	o.log.Info("orchestrator stopped")
}

// IsRunning возвращает true для работающего оркестратора
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// ConfigUpdate - частичное обновление runtime-конфигурации.
// nil-поля не трогают текущее значение.
type ConfigUpdate struct {
	MonitorInterval   *time.Duration `json:"monitor_interval,omitempty"`
	CycleInterval     *time.Duration `json:"cycle_interval,omitempty"`
	MaxTradesPerCycle *int           `json:"max_trades_per_cycle,omitempty"`
	MinConfidence     *float64       `json:"min_confidence,omitempty"`
	RiskEnabled       *bool          `json:"risk_enabled,omitempty"`
	MaxCycleFailures  *int           `json:"max_cycle_failures,omitempty"`
}

// UpdateConfig применяет частичное обновление на лету.
// Интервалы таймеров подхватываются со следующей итерации цикла.
func (o *Orchestrator) UpdateConfig(upd ConfigUpdate) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if upd.MonitorInterval != nil {
		if *upd.MonitorInterval <= 0 {
			return fmt.Errorf("monitor_interval must be positive")
		}
		o.botCfg.MonitorInterval = *upd.MonitorInterval
	}
	if upd.CycleInterval != nil {
		if *upd.CycleInterval <= 0 {
			return fmt.Errorf("cycle_interval must be positive")
		}
		o.botCfg.CycleInterval = *upd.CycleInterval
	}
	if upd.MaxTradesPerCycle != nil {
		if *upd.MaxTradesPerCycle < 0 {
			return fmt.Errorf("max_trades_per_cycle must be non-negative")
		}
		o.botCfg.MaxTradesPerCycle = *upd.MaxTradesPerCycle
	}
	if upd.MinConfidence != nil {
		if *upd.MinConfidence < 0 || *upd.MinConfidence > 1 {
			return fmt.Errorf("min_confidence must be in [0, 1]")
		}
		o.botCfg.MinConfidence = *upd.MinConfidence
	}
	if upd.RiskEnabled != nil {
		o.botCfg.RiskEnabled = *upd.RiskEnabled
	}
	if upd.MaxCycleFailures != nil {
		if *upd.MaxCycleFailures <= 0 {
			return fmt.Errorf("max_cycle_failures must be positive")
		}
		o.botCfg.MaxCycleFailures = *upd.MaxCycleFailures
	}

	o.log.Info("runtime config updated")
	return nil
}

func (o *Orchestrator) monitorInterval() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.botCfg.MonitorInterval
}

func (o *Orchestrator) cycleInterval() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.botCfg.CycleInterval
}

// ============ Таймеры ============

func (o *Orchestrator) monitorLoop(ctx context.Context) {
	defer o.wg.Done()

	timer := time.NewTimer(o.monitorInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if o.monitorBusy.CompareAndSwap(false, true) {
				o.runMonitorTick(ctx)
				o.monitorBusy.Store(false)
			} else {
				RecordTickSkipped("monitor")
			}
			timer.Reset(o.monitorInterval())
		}
	}
}

func (o *Orchestrator) cycleLoop(ctx context.Context) {
	defer o.wg.Done()

	timer := time.NewTimer(o.cycleInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if o.cycleBusy.CompareAndSwap(false, true) {
				stopped := o.runCycle(ctx)
				o.cycleBusy.Store(false)
				if stopped {
					// останов из цикла: в отдельной горутине,
					// иначе Stop() будет ждать сам себя
					go o.Stop()
					return
				}
			} else {
				RecordTickSkipped("cycle")
			}
			timer.Reset(o.cycleInterval())
		}
	}
}

// ============ Мониторинг: ордера и позиции ============

func (o *Orchestrator) runMonitorTick(ctx context.Context) {
	o.book.Tick()
	o.checkPositions(ctx)
}

// UpdatePrice принимает цену извне (WebSocket feed, API) и сразу
// прогоняет тик мониторинга, не дожидаясь таймера. Если тик уже
// идёт - ордера увидят свежую цену на следующем проходе.
func (o *Orchestrator) UpdatePrice(ctx context.Context, tokenID string, price float64) {
	if price <= 0 {
		return
	}
	o.prices.Set(tokenID, price)

	if o.monitorBusy.CompareAndSwap(false, true) {
		o.runMonitorTick(ctx)
		o.monitorBusy.Store(false)
	} else {
		RecordTickSkipped("monitor")
	}
}

// checkPositions проверяет stop-loss/take-profit открытых позиций
func (o *Orchestrator) checkPositions(ctx context.Context) {
	o.posMu.RLock()
	open := make([]*models.Position, 0, len(o.positions))
	for _, p := range o.positions {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	o.posMu.RUnlock()

	for _, pos := range open {
		price, ok := o.prices.Get(pos.TokenID)
		if !ok {
			continue
		}

		// Пишем CurrentPrice только под posMu: Positions()
		// копирует позиции конкурентно
		o.posMu.Lock()
		pos.CurrentPrice = price
		o.posMu.Unlock()

		check := o.risk.CheckPosition(pos, price)
		if !check.ShouldClose {
			continue
		}

		o.log.Warn("closing position",
			utils.Token(pos.TokenID),
			utils.Price(price),
			utils.String("reason", check.Reason),
		)

		if err := o.closePosition(ctx, pos, price, check.Reason); err != nil {
			o.log.Error("failed to close position",
				utils.Token(pos.TokenID),
				utils.Err(err),
			)
			continue
		}

		reason := "take_profit"
		status := models.PositionStatusClosed
		if pos.PnlPercent() < 0 {
			reason = "stop_loss"
			status = models.PositionStatusStopLoss
		}
		o.finalizePosition(pos, price, check.Reason, status)
		RecordPositionClosed(reason)

		event := models.NewEvent(models.EventRiskAlert, models.SeverityWarn, check.Reason)
		event.TokenID = pos.TokenID
		event.Meta["position_id"] = pos.ID
		event.Meta["exit_price"] = price
		event.Meta["pnl"] = pos.UnrealizedPnl()
		o.events.Publish(event)
	}
}

// closePosition продаёт позицию целиком через защищённый back-end
func (o *Orchestrator) closePosition(ctx context.Context, pos *models.Position, price float64, reason string) error {
	req := &models.ExecutionRequest{
		TokenID: pos.TokenID,
		Side:    models.SideSell,
		Amount:  pos.Amount * price, // объём в USDC по текущей цене
		Price:   price,
	}

	result, err := Call(ctx, o.execGuard, func() (*models.ExecutionResult, error) {
		return o.collab.Execution.Execute(ctx, req)
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("execution rejected: %s", result.Error)
	}

	o.publishTrade(pos.TokenID, models.SideSell, req.Amount, result, reason, pos.Strategy, pos.Confidence,
		(result.ExecutedPrice-pos.EntryPrice)*pos.Amount)
	return nil
}

func (o *Orchestrator) finalizePosition(pos *models.Position, exitPrice float64, reason string, status models.PositionStatus) {
	o.posMu.Lock()
	defer o.posMu.Unlock()

	now := time.Now()
	pos.Status = status
	pos.ClosedAt = &now
	pos.ExitPrice = exitPrice
	pos.ExitReason = reason
	delete(o.positions, pos.TokenID)
}

// ============ Торговый цикл ============

// runCycle выполняет один торговый проход.
// Возвращает true, если бюджет последовательных ошибок исчерпан
// и оркестратор должен остановиться.
func (o *Orchestrator) runCycle(ctx context.Context) bool {
	start := time.Now()
	o.log.Info("trading cycle started")

	err := o.doCycle(ctx)

	elapsed := time.Since(start)
	o.mu.Lock()
	o.lastCycleAt = time.Now()
	if err != nil {
		o.consecutiveFailures++
		o.lastCycleErr = err.Error()
	} else {
		o.consecutiveFailures = 0
		o.lastCycleErr = ""
		o.cyclesCompleted++
	}
	failures := o.consecutiveFailures
	budget := o.botCfg.MaxCycleFailures
	o.mu.Unlock()

	if err != nil {
		RecordCycle("failed", elapsed)
		o.log.Error("trading cycle failed",
			utils.Int("consecutive_failures", failures),
			utils.Err(err),
		)

		if failures >= budget {
			RecordCycle("stopped", elapsed)
			msg := fmt.Sprintf("orchestrator stopped: %d consecutive cycle failures (budget %d), last error: %v",
				failures, budget, err)
			o.log.Error(msg)

			alert := models.NewEvent(models.EventRiskAlert, models.SeverityError, msg)
			o.events.Publish(alert)
			stopped := models.NewEvent(models.EventOrchestratorStopped, models.SeverityError, msg)
			stopped.Meta["consecutive_failures"] = failures
			o.events.Publish(stopped)
			return true
		}
		return false
	}

	RecordCycle("success", elapsed)
	o.log.Info("trading cycle completed",
		utils.Latency(elapsed),
	)
	return false
}

func (o *Orchestrator) doCycle(ctx context.Context) error {
	balance, err := Call(ctx, o.execGuard, func() (float64, error) {
		return o.collab.Execution.Balance(ctx)
	})
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	o.mu.Lock()
	o.lastBalance = balance
	maxTrades := o.botCfg.MaxTradesPerCycle
	minConfidence := o.botCfg.MinConfidence
	riskEnabled := o.botCfg.RiskEnabled
	o.mu.Unlock()

	candidates, err := o.collab.Discovery.Candidates(ctx)
	if err != nil {
		return fmt.Errorf("discover candidates: %w", err)
	}

	o.log.Info("cycle context ready",
		utils.Float64("balance", balance),
		utils.Int("candidates", len(candidates)),
	)

	trades := 0
	for _, mc := range candidates {
		if trades >= maxTrades {
			o.log.Info("trade limit for cycle reached", utils.Int("limit", maxTrades))
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		mc.Balance = balance
		if mc.Price <= 0 {
			price, perr := Call(ctx, o.priceGuard, func() (float64, error) {
				return o.collab.PriceFeed.GetPrice(ctx, mc.TokenID)
			})
			if perr != nil {
				o.log.Warn("skipping candidate without price",
					utils.Token(mc.TokenID),
					utils.Err(perr),
				)
				continue
			}
			mc.Price = price
		}
		o.prices.Set(mc.TokenID, mc.Price)

		decision := o.decide(ctx, mc)
		if decision.Action == models.ActionHold {
			continue
		}
		if decision.Confidence < minConfidence {
			o.log.Debug("decision below confidence threshold",
				utils.Token(mc.TokenID),
				utils.Confidence(decision.Confidence),
			)
			continue
		}

		if o.executeDecision(ctx, mc, decision, balance, riskEnabled) {
			trades++
		}
	}

	return nil
}

// decide запрашивает решение у decision-сервиса.
// Открытый breaker деградирует в консервативный HOLD вместо
// ошибки цикла: недоступность советника не должна останавливать
// мониторинг и исполнение.
func (o *Orchestrator) decide(ctx context.Context, mc *models.MarketContext) *models.Decision {
	decision, err := Call(ctx, o.decisionGuard, func() (*models.Decision, error) {
		return o.collab.Decision.Decide(ctx, mc)
	})
	if err != nil {
		if breaker.IsOpen(err) {
			o.log.Warn("decision circuit open, holding",
				utils.Token(mc.TokenID),
			)
			return models.HoldDecision("decision service unavailable (circuit open)")
		}
		o.log.Warn("decision request failed, holding",
			utils.Token(mc.TokenID),
			utils.Err(err),
		)
		return models.HoldDecision(fmt.Sprintf("decision service error: %v", err))
	}
	if decision == nil {
		return models.HoldDecision("empty decision")
	}
	return decision
}

// executeDecision проводит решение через риск-контроль и исполнение.
// Возвращает true, если сделка исполнена.
func (o *Orchestrator) executeDecision(ctx context.Context, mc *models.MarketContext, decision *models.Decision, balance float64, riskEnabled bool) bool {
	side := models.SideBuy
	if decision.Action == models.ActionSell {
		side = models.SideSell
	}

	if side == models.SideSell && !o.hasOpenPosition(mc.TokenID) {
		o.log.Debug("sell decision without open position, skipping",
			utils.Token(mc.TokenID),
		)
		return false
	}

	amount := decision.Amount
	if side == models.SideSell {
		// продаём весь объём позиции по текущей цене
		if pos := o.openPosition(mc.TokenID); pos != nil {
			amount = pos.Amount * mc.Price
		}
	}
	if amount <= 0 {
		return false
	}

	if riskEnabled && side == models.SideBuy {
		assessment := o.risk.AssessTrade(TradeRequest{
			TokenID:      mc.TokenID,
			Side:         side,
			Amount:       amount,
			Confidence:   decision.Confidence,
			Balance:      balance,
			OpenExposure: o.OpenExposure(),
			Stats:        mc,
		})
		if !assessment.Approved {
			RecordTrade(string(side), "rejected")
			o.log.Warn("trade rejected by risk control",
				utils.Token(mc.TokenID),
				utils.Amount(amount),
				utils.RiskScore(assessment.RiskScore),
			)

			event := models.NewEvent(models.EventRiskAlert, models.SeverityInfo,
				fmt.Sprintf("trade rejected: %s %s for %.2f USDC", side, mc.TokenID, amount))
			event.TokenID = mc.TokenID
			event.Meta["risk_score"] = assessment.RiskScore
			event.Meta["checks"] = assessment.Checks
			o.events.Publish(event)
			return false
		}
	}

	req := &models.ExecutionRequest{
		TokenID: mc.TokenID,
		Side:    side,
		Amount:  amount,
		Price:   mc.Price,
	}
	result, err := Call(ctx, o.execGuard, func() (*models.ExecutionResult, error) {
		return o.collab.Execution.Execute(ctx, req)
	})
	if err != nil || !result.Success {
		RecordTrade(string(side), "failed")
		if err == nil {
			err = fmt.Errorf("execution rejected: %s", result.Error)
		}
		o.log.Error("trade execution failed",
			utils.Token(mc.TokenID),
			utils.Side(string(side)),
			utils.Err(err),
		)
		return false
	}

	RecordTrade(string(side), "success")
	o.mu.Lock()
	o.tradesExecuted++
	o.mu.Unlock()

	pnl := 0.0
	if side == models.SideBuy {
		o.trackPosition(mc, decision, result)
	} else if pos := o.openPosition(mc.TokenID); pos != nil {
		pnl = (result.ExecutedPrice - pos.EntryPrice) * pos.Amount
		o.finalizePosition(pos, result.ExecutedPrice, "sell decision: "+decision.Reasoning, models.PositionStatusClosed)
		RecordPositionClosed("sell_decision")
	}

	o.publishTrade(mc.TokenID, side, amount, result, decision.Reasoning, decision.Strategy, decision.Confidence, pnl)

	o.log.Info("trade executed",
		utils.Token(mc.TokenID),
		utils.Side(string(side)),
		utils.Amount(result.ExecutedAmount),
		utils.Price(result.ExecutedPrice),
	)
	return true
}

// trackPosition регистрирует открытую позицию после BUY
func (o *Orchestrator) trackPosition(mc *models.MarketContext, decision *models.Decision, result *models.ExecutionResult) {
	price := result.ExecutedPrice
	if price <= 0 {
		price = mc.Price
	}
	amount := result.ExecutedAmount
	if amount <= 0 && price > 0 {
		amount = decision.Amount / price
	}

	pos := &models.Position{
		ID:           uuid.New().String(),
		TokenID:      mc.TokenID,
		EntryPrice:   price,
		CurrentPrice: price,
		Amount:       amount,
		Strategy:     decision.Strategy,
		Confidence:   decision.Confidence,
		Status:       models.PositionStatusOpen,
		OpenedAt:     time.Now(),
	}

	o.posMu.Lock()
	o.positions[mc.TokenID] = pos
	o.posMu.Unlock()
}

func (o *Orchestrator) hasOpenPosition(tokenID string) bool {
	return o.openPosition(tokenID) != nil
}

func (o *Orchestrator) openPosition(tokenID string) *models.Position {
	o.posMu.RLock()
	defer o.posMu.RUnlock()
	pos := o.positions[tokenID]
	if pos != nil && pos.IsOpen() {
		return pos
	}
	return nil
}

// Positions возвращает снимок открытых позиций
func (o *Orchestrator) Positions() []*models.Position {
	o.posMu.RLock()
	defer o.posMu.RUnlock()

	out := make([]*models.Position, 0, len(o.positions))
	for _, p := range o.positions {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// OpenExposure возвращает суммарную стоимость открытых позиций в USDC
func (o *Orchestrator) OpenExposure() float64 {
	o.posMu.RLock()
	defer o.posMu.RUnlock()

	total := 0.0
	for _, p := range o.positions {
		if p.IsOpen() {
			total += p.Value()
		}
	}
	return total
}

func (o *Orchestrator) publishTrade(tokenID string, side models.OrderSide, amount float64, result *models.ExecutionResult, reasoning, strategy string, confidence, pnl float64) {
	event := models.NewEvent(models.EventTradeExecuted, models.SeverityInfo,
		fmt.Sprintf("%s %s for %.2f USDC at %.4f", side, tokenID, amount, result.ExecutedPrice))
	event.TokenID = tokenID
	event.Meta["side"] = string(side)
	event.Meta["amount"] = amount
	event.Meta["executed_price"] = result.ExecutedPrice
	event.Meta["executed_amount"] = result.ExecutedAmount
	event.Meta["tx_ref"] = result.TxRef
	event.Meta["reasoning"] = reasoning
	event.Meta["strategy"] = strategy
	event.Meta["confidence"] = confidence
	event.Meta["pnl"] = pnl
	o.events.Publish(event)
}

// fillExecutor исполняет условный ордер книги через защищённый back-end
func (o *Orchestrator) fillExecutor(order *models.Order, triggerPrice float64) (*models.ExecutionResult, error) {
	ctx, cancelFn := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelFn()

	req := &models.ExecutionRequest{
		TokenID: order.TokenID,
		Side:    order.Side,
		Amount:  order.RemainingAmount(),
		Price:   triggerPrice,
	}
	result, err := Call(ctx, o.execGuard, func() (*models.ExecutionResult, error) {
		return o.collab.Execution.Execute(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("execution rejected: %s", result.Error)
	}
	return result, nil
}

// ============ Интроспекция ============

// CycleStatus - снимок состояния оркестратора
type CycleStatus struct {
	Running             bool              `json:"running"`
	StartedAt           time.Time         `json:"started_at,omitempty"`
	CyclesCompleted     int64             `json:"cycles_completed"`
	TradesExecuted      int64             `json:"trades_executed"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	LastCycleAt         time.Time         `json:"last_cycle_at,omitempty"`
	LastCycleError      string            `json:"last_cycle_error,omitempty"`
	ActiveOrders        int               `json:"active_orders"`
	OpenPositions       int               `json:"open_positions"`
	Balance             float64           `json:"balance"`
	Breakers            map[string]string `json:"breakers"`
}

// Status возвращает текущее состояние оркестратора
func (o *Orchestrator) Status() *CycleStatus {
	o.mu.Lock()
	status := &CycleStatus{
		Running:             o.running,
		StartedAt:           o.startedAt,
		CyclesCompleted:     o.cyclesCompleted,
		TradesExecuted:      o.tradesExecuted,
		ConsecutiveFailures: o.consecutiveFailures,
		LastCycleAt:         o.lastCycleAt,
		LastCycleError:      o.lastCycleErr,
		Balance:             o.lastBalance,
	}
	o.mu.Unlock()

	status.ActiveOrders = o.book.Len()

	o.posMu.RLock()
	status.OpenPositions = len(o.positions)
	o.posMu.RUnlock()

	status.Breakers = map[string]string{
		"price_feed": string(o.priceGuard.Breaker().State()),
		"decision":   string(o.decisionGuard.Breaker().State()),
		"execution":  string(o.execGuard.Breaker().State()),
	}
	return status
}

// PerformanceReport - торговая статистика по истории PNL
type PerformanceReport struct {
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"` // %
	TotalPnl    float64 `json:"total_pnl"`
	AveragePnl  float64 `json:"average_pnl"`
	SharpeRatio float64 `json:"sharpe_ratio"`
	MaxDrawdown float64 `json:"max_drawdown"` // %
}

// Performance строит отчёт по последним сделкам из хранилища
func (o *Orchestrator) Performance(limit int) (*PerformanceReport, error) {
	if o.collab.Trades == nil {
		return &PerformanceReport{}, nil
	}
	if limit <= 0 {
		limit = 200
	}

	pnls, err := o.collab.Trades.ListPnl(limit)
	if err != nil {
		return nil, fmt.Errorf("load trade history: %w", err)
	}

	report := &PerformanceReport{Trades: len(pnls)}
	for _, pnl := range pnls {
		report.TotalPnl += pnl
		if pnl > 0 {
			report.Wins++
		} else if pnl < 0 {
			report.Losses++
		}
	}
	if len(pnls) > 0 {
		report.WinRate = float64(report.Wins) / float64(len(pnls)) * 100
		report.AveragePnl = report.TotalPnl / float64(len(pnls))
		report.SharpeRatio = utils.SharpeRatio(pnls)
		report.MaxDrawdown = utils.MaxDrawdown(pnls)
	}
	return report, nil
}

// RiskStatus строит портфельный риск-снимок по открытым позициям
func (o *Orchestrator) RiskStatus() *PortfolioRiskSnapshot {
	var pnls []float64
	if o.collab.Trades != nil {
		if loaded, err := o.collab.Trades.ListPnl(200); err == nil {
			pnls = loaded
		} else {
			o.log.Warn("failed to load pnl history for risk snapshot", utils.Err(err))
		}
	}

	o.mu.Lock()
	balance := o.lastBalance
	o.mu.Unlock()

	return o.risk.PortfolioRisk(o.Positions(), pnls, balance)
}
