package bot

import (
	"fmt"
	"time"

	"polytrader/internal/config"
	"polytrader/internal/models"
	"polytrader/pkg/utils"
)

// RiskAssessor - предторговые проверки допуска, расчёт размера
// позиции и портфельные риск-метрики
//
// Все проверки допуска независимы, для одобрения должны пройти
// ВСЕ. Каждый отказ несёт структурированную причину (не boolean),
// чтобы вызывающий код и тесты могли проверить ПОЧЕМУ сделка
// отклонена.
type RiskAssessor struct {
	cfg config.RiskConfig
	log *utils.Logger
}

// NewRiskAssessor создаёт риск-оценщик
func NewRiskAssessor(cfg config.RiskConfig, log *utils.Logger) *RiskAssessor {
	if log == nil {
		log = utils.L()
	}
	return &RiskAssessor{
		cfg: cfg,
		log: log.WithComponent("risk"),
	}
}

// ============================================================
// Допуск сделки
// ============================================================

// TradeRequest - параметры проверяемой сделки
type TradeRequest struct {
	TokenID    string
	Side       models.OrderSide
	Amount     float64 // объём в USDC
	Confidence float64 // 0..1
	Balance    float64 // доступный баланс в USDC

	// Суммарная стоимость уже открытых позиций в USDC; участвует
	// в проверке общего лимита экспозиции
	OpenExposure float64

	// Опциональная статистика инструмента; nil = проверки
	// качества пропускаются
	Stats *models.MarketContext
}

// RiskCheck - результат одной независимой проверки
type RiskCheck struct {
	Name   string  `json:"name"`
	Passed bool    `json:"passed"`
	Reason string  `json:"reason"`
	Ratio  float64 `json:"ratio"` // близость к лимиту, 0..1+ (1 = на лимите)
}

// Assessment - итог оценки сделки
type Assessment struct {
	Approved  bool        `json:"approved"`
	RiskScore float64     `json:"risk_score"` // 0-100 композит
	Checks    []RiskCheck `json:"checks"`
	Warnings  []string    `json:"warnings"`
}

// AssessTrade выполняет все проверки допуска
//
// RiskScore - композит 0-100 из близости каждой проверки к её
// лимиту, а не просто pass/fail: сделка у самого порога получает
// средний риск даже будучи формально одобренной.
func (ra *RiskAssessor) AssessTrade(req TradeRequest) *Assessment {
	assessment := &Assessment{}

	checks := []RiskCheck{
		ra.checkPositionSize(req),
		ra.checkBalance(req),
		ra.checkConfidence(req),
	}
	if ra.cfg.MaxTotalExposureFraction > 0 {
		checks = append(checks, ra.checkTotalExposure(req))
	}
	if req.Stats != nil {
		checks = append(checks, ra.checkInstrumentQuality(req.Stats)...)
	}

	assessment.Checks = checks
	assessment.Approved = true
	totalRatio := 0.0

	for _, c := range checks {
		if !c.Passed {
			assessment.Approved = false
		}
		// Близкие к лимиту проверки (>80%) попадают в warnings
		// даже при формальном прохождении
		if c.Passed && c.Ratio > 0.8 {
			assessment.Warnings = append(assessment.Warnings,
				fmt.Sprintf("%s is close to its limit (%.0f%%)", c.Name, c.Ratio*100))
		}
		totalRatio += utils.Clamp(c.Ratio, 0, 1)
	}

	if len(checks) > 0 {
		assessment.RiskScore = utils.Clamp(totalRatio/float64(len(checks))*100, 0, 100)
	}

	RecordRiskAssessment(assessment.Approved, assessment.RiskScore)
	if !assessment.Approved {
		ra.log.Info("trade rejected",
			utils.Token(req.TokenID),
			utils.Amount(req.Amount),
			utils.RiskScore(assessment.RiskScore),
			utils.Any("checks", failedNames(checks)),
		)
	}

	return assessment
}

// checkPositionSize: amount / balance <= MaxSingleTradeFraction
func (ra *RiskAssessor) checkPositionSize(req TradeRequest) RiskCheck {
	check := RiskCheck{Name: "position_size"}

	if req.Amount <= 0 {
		check.Reason = "trade amount must be positive"
		return check
	}
	if req.Balance <= 0 {
		check.Reason = "balance must be positive"
		return check
	}

	fraction := req.Amount / req.Balance
	check.Ratio = fraction / ra.cfg.MaxSingleTradeFraction
	if fraction > ra.cfg.MaxSingleTradeFraction {
		check.Reason = fmt.Sprintf("trade is %.1f%% of balance, limit is %.1f%%",
			fraction*100, ra.cfg.MaxSingleTradeFraction*100)
		return check
	}

	check.Passed = true
	check.Reason = "within single trade limit"
	return check
}

// checkBalance: amount <= balance - reserve
func (ra *RiskAssessor) checkBalance(req TradeRequest) RiskCheck {
	check := RiskCheck{Name: "balance"}

	available := req.Balance - ra.cfg.BalanceReserve
	if available <= 0 {
		check.Ratio = 1
		check.Reason = fmt.Sprintf("balance %.2f does not cover reserve %.2f",
			req.Balance, ra.cfg.BalanceReserve)
		return check
	}

	check.Ratio = req.Amount / available
	if req.Amount > available {
		check.Reason = fmt.Sprintf("amount %.2f exceeds available balance %.2f (reserve %.2f)",
			req.Amount, available, ra.cfg.BalanceReserve)
		return check
	}

	check.Passed = true
	check.Reason = "sufficient balance"
	return check
}

// checkTotalExposure: экспозиция после сделки не превышает
// MaxTotalExposureFraction от стоимости портфеля (открытые позиции
// плюс свободный баланс)
func (ra *RiskAssessor) checkTotalExposure(req TradeRequest) RiskCheck {
	check := RiskCheck{Name: "total_exposure"}

	portfolio := req.OpenExposure + req.Balance
	if portfolio <= 0 {
		check.Ratio = 1
		check.Reason = "portfolio value must be positive"
		return check
	}

	limit := portfolio * ra.cfg.MaxTotalExposureFraction
	projected := req.OpenExposure + req.Amount
	check.Ratio = projected / limit
	if projected > limit {
		check.Reason = fmt.Sprintf("exposure after trade %.2f exceeds %.0f%% of portfolio (limit %.2f)",
			projected, ra.cfg.MaxTotalExposureFraction*100, limit)
		return check
	}

	check.Passed = true
	check.Reason = "within total exposure limit"
	return check
}

// checkConfidence: confidence >= минимума
func (ra *RiskAssessor) checkConfidence(req TradeRequest) RiskCheck {
	check := RiskCheck{Name: "confidence"}

	minConf := ra.cfg.MinConfidence
	if req.Confidence < minConf {
		check.Ratio = 1
		check.Reason = fmt.Sprintf("confidence %.2f below minimum %.2f", req.Confidence, minConf)
		return check
	}

	// Чем ближе к минимуму, тем выше ratio
	if req.Confidence > 0 {
		check.Ratio = minConf / req.Confidence
	}
	check.Passed = true
	check.Reason = "confidence acceptable"
	return check
}

// checkInstrumentQuality - опциональные проверки ликвидности,
// объёма и волатильности. Нулевой лимит отключает проверку.
func (ra *RiskAssessor) checkInstrumentQuality(stats *models.MarketContext) []RiskCheck {
	var checks []RiskCheck

	if ra.cfg.MinLiquidity > 0 {
		c := RiskCheck{Name: "liquidity"}
		if stats.Liquidity < ra.cfg.MinLiquidity {
			c.Ratio = 1
			c.Reason = fmt.Sprintf("liquidity %.0f below minimum %.0f", stats.Liquidity, ra.cfg.MinLiquidity)
		} else {
			c.Passed = true
			c.Ratio = ra.cfg.MinLiquidity / stats.Liquidity
			c.Reason = "liquidity acceptable"
		}
		checks = append(checks, c)
	}

	if ra.cfg.MinVolume24h > 0 {
		c := RiskCheck{Name: "volume"}
		if stats.Volume24h < ra.cfg.MinVolume24h {
			c.Ratio = 1
			c.Reason = fmt.Sprintf("24h volume %.0f below minimum %.0f", stats.Volume24h, ra.cfg.MinVolume24h)
		} else {
			c.Passed = true
			c.Ratio = ra.cfg.MinVolume24h / stats.Volume24h
			c.Reason = "volume acceptable"
		}
		checks = append(checks, c)
	}

	if ra.cfg.MaxVolatility > 0 {
		c := RiskCheck{Name: "volatility"}
		c.Ratio = stats.Volatility / ra.cfg.MaxVolatility
		if stats.Volatility > ra.cfg.MaxVolatility {
			c.Reason = fmt.Sprintf("volatility %.1f%% above maximum %.1f%%", stats.Volatility, ra.cfg.MaxVolatility)
		} else {
			c.Passed = true
			c.Reason = "volatility acceptable"
		}
		checks = append(checks, c)
	}

	return checks
}

// failedNames возвращает имена проваленных проверок
func failedNames(checks []RiskCheck) []string {
	var names []string
	for _, c := range checks {
		if !c.Passed {
			names = append(names, c.Name)
		}
	}
	return names
}

// ============================================================
// Расчёт размера позиции
// ============================================================

// PositionSizing - рекомендация по размеру позиции
type PositionSizing struct {
	RecommendedQuantity float64 `json:"recommended_quantity"`
	RecommendedSize     float64 `json:"recommended_size"` // в USDC, с учётом кэпа
	StopLossPrice       float64 `json:"stop_loss_price"`
	TakeProfitPrice     float64 `json:"take_profit_price"`
	RiskRewardRatio     float64 `json:"risk_reward_ratio"`
}

// CalculatePositionSize вычисляет размер позиции от риска
//
// maxRisk = portfolioValue * riskPercent;
// quantity = maxRisk / |entry - stop|;
// size капится MaxPositionFraction портфеля (это ОТДЕЛЬНЫЙ лимит
// от MaxSingleTradeFraction проверки допуска);
// take-profit выводится из MinRiskReward на той же дистанции.
//
// riskPercent <= 0 заменяется конфигурационным RiskPerTrade.
func (ra *RiskAssessor) CalculatePositionSize(portfolioValue, entryPrice, stopLossPrice, riskPercent float64) (*PositionSizing, error) {
	if portfolioValue <= 0 {
		return nil, fmt.Errorf("portfolio value must be positive, got %f", portfolioValue)
	}
	if entryPrice <= 0 {
		return nil, fmt.Errorf("entry price must be positive, got %f", entryPrice)
	}
	stopDistance := utils.Abs(entryPrice - stopLossPrice)
	if stopDistance == 0 {
		return nil, fmt.Errorf("stop loss price must differ from entry price")
	}
	if riskPercent <= 0 {
		riskPercent = ra.cfg.RiskPerTrade
	}

	maxRisk := portfolioValue * riskPercent
	quantity := maxRisk / stopDistance
	size := quantity * entryPrice

	// Кэп размера долей портфеля
	maxSize := portfolioValue * ra.cfg.MaxPositionFraction
	if size > maxSize {
		size = maxSize
		quantity = size / entryPrice
	}

	// TP на дистанции risk:reward от входа, в сторону прибыли
	rewardDistance := stopDistance * ra.cfg.MinRiskReward
	takeProfit := entryPrice + rewardDistance
	if stopLossPrice > entryPrice {
		// Стоп выше входа - шортовая конфигурация, TP ниже
		takeProfit = entryPrice - rewardDistance
	}

	return &PositionSizing{
		RecommendedQuantity: quantity,
		RecommendedSize:     size,
		StopLossPrice:       stopLossPrice,
		TakeProfitPrice:     takeProfit,
		RiskRewardRatio:     ra.cfg.MinRiskReward,
	}, nil
}

// ============================================================
// Портфельный риск
// ============================================================

// PositionRisk - риск-разбивка одной позиции
type PositionRisk struct {
	TokenID       string  `json:"token_id"`
	Value         float64 `json:"value"`
	Weight        float64 `json:"weight"` // доля в портфеле, 0..1
	UnrealizedPnl float64 `json:"unrealized_pnl"`
	PnlPercent    float64 `json:"pnl_percent"`
}

// PortfolioRiskSnapshot - производный снимок риска портфеля.
// Не хранится: пересчитывается по требованию из текущих позиций
// и истории PNL сделок.
type PortfolioRiskSnapshot struct {
	Timestamp            time.Time      `json:"timestamp"`
	TotalValue           float64        `json:"total_value"`
	TotalExposure        float64        `json:"total_exposure"`
	UnrealizedPnl        float64        `json:"unrealized_pnl"`
	ValueAtRisk          float64        `json:"value_at_risk"`
	ValueAtRiskNote      string         `json:"value_at_risk_note"`
	SharpeRatio          float64        `json:"sharpe_ratio"`
	MaxDrawdown          float64        `json:"max_drawdown"`
	ConcentrationRisk    float64        `json:"concentration_risk"`    // HHI, 0-100
	DiversificationScore float64        `json:"diversification_score"` // 0-100
	Positions            []PositionRisk `json:"positions"`
}

// Доля от стоимости портфеля, используемая как VaR-приближение.
// Это ЯВНО упрощённый placeholder, не historical/parametric
// оценка - см. ValueAtRiskNote в снимке.
const varPlaceholderFraction = 0.05

// PortfolioRisk считает снимок риска портфеля
//
// balance - свободный баланс (входит в totalValue);
// tradePnls - ряд реализованных PNL по закрытым сделкам.
func (ra *RiskAssessor) PortfolioRisk(positions []*models.Position, tradePnls []float64, balance float64) *PortfolioRiskSnapshot {
	snapshot := &PortfolioRiskSnapshot{
		Timestamp:       time.Now(),
		ValueAtRiskNote: "simplified placeholder: flat 5% of total value, not a statistical estimate",
	}

	var values []float64
	for _, p := range positions {
		if p == nil || !p.IsOpen() {
			continue
		}
		value := p.Value()
		values = append(values, value)
		snapshot.TotalExposure += value
		snapshot.UnrealizedPnl += p.UnrealizedPnl()
		snapshot.Positions = append(snapshot.Positions, PositionRisk{
			TokenID:       p.TokenID,
			Value:         value,
			UnrealizedPnl: p.UnrealizedPnl(),
			PnlPercent:    p.PnlPercent(),
		})
	}

	snapshot.TotalValue = snapshot.TotalExposure + balance
	if snapshot.TotalExposure > 0 {
		for i := range snapshot.Positions {
			snapshot.Positions[i].Weight = snapshot.Positions[i].Value / snapshot.TotalExposure
		}
	}

	snapshot.ValueAtRisk = snapshot.TotalValue * varPlaceholderFraction
	snapshot.SharpeRatio = utils.SharpeRatio(tradePnls)
	snapshot.MaxDrawdown = utils.MaxDrawdown(tradePnls)
	snapshot.ConcentrationRisk = utils.HHI(values)
	snapshot.DiversificationScore = diversificationScore(values)

	return snapshot
}

// diversificationScore: min(10 * n, 50) базовых очков за число
// позиций + до 50 бонусных, обратно пропорциональных коэффициенту
// вариации размеров (равные размеры = максимальный бонус)
func diversificationScore(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	score := utils.Min(10*float64(n), 50)

	cv := utils.CoefficientOfVariation(values)
	bonus := 50 / (1 + cv)
	return utils.Clamp(score+bonus, 0, 100)
}

// ============================================================
// Позиционный stop-loss / take-profit
// ============================================================
//
// Отдельный механизм от ордеров в книге: фиксированные
// процентные пороги от цены входа, проверяются при refresh'е
// позиции.

// PositionCheck - результат проверки позиции
type PositionCheck struct {
	ShouldClose bool   `json:"should_close"`
	Reason      string `json:"reason"`
}

// CheckPosition проверяет пороги stop-loss/take-profit позиции
// от цены входа. Позицию НЕ мутирует: обновление CurrentPrice -
// забота владельца позиции под его локом.
func (ra *RiskAssessor) CheckPosition(position *models.Position, currentPrice float64) PositionCheck {
	if position == nil || !position.IsOpen() || currentPrice <= 0 {
		return PositionCheck{}
	}

	change := utils.PercentChange(position.EntryPrice, currentPrice)

	if change <= -ra.cfg.StopLossPercent {
		return PositionCheck{
			ShouldClose: true,
			Reason: fmt.Sprintf("stop-loss: price moved %.2f%% from entry %.4f, threshold -%.1f%%",
				change, position.EntryPrice, ra.cfg.StopLossPercent),
		}
	}

	if change >= ra.cfg.TakeProfitPercent {
		return PositionCheck{
			ShouldClose: true,
			Reason: fmt.Sprintf("take-profit: price moved +%.2f%% from entry %.4f, threshold +%.1f%%",
				change, position.EntryPrice, ra.cfg.TakeProfitPercent),
		}
	}

	return PositionCheck{}
}
