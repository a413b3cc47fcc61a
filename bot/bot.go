package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"binstra/basket"
	"binstra/config"
	"binstra/exchange"
	"binstra/feargreed"
	"binstra/logger"
	"binstra/state"
)

var hundred = decimal.NewFromInt(100)

// SentimentSource 情绪指数来源，实盘为 feargreed.Client
type SentimentSource interface {
	Current(ctx context.Context) (*feargreed.Index, error)
}

// TradingBot 周期性 DCA 策略引擎
// 每个决策周期：更新高点 -> 止盈平仓 -> 评估买入信号 -> 持久化
type TradingBot struct {
	cfg         *config.Config
	exchange    exchange.Client
	sentiment   SentimentSource
	state       *state.BotState
	store       state.Store
	tradeLogger *logger.TradeLogger
}

// New 创建策略引擎；sentiment 可为 nil（回放时逐周期传入读数）
func New(cfg *config.Config, ex exchange.Client, sentiment SentimentSource, st *state.BotState, store state.Store, tl *logger.TradeLogger) *TradingBot {
	return &TradingBot{
		cfg:         cfg,
		exchange:    ex,
		sentiment:   sentiment,
		state:       st,
		store:       store,
		tradeLogger: tl,
	}
}

// State 返回账本（只读用途）
func (t *TradingBot) State() *state.BotState {
	return t.state
}

// RunCycle 实盘入口：墙钟时间 + 实时情绪
func (t *TradingBot) RunCycle(ctx context.Context) error {
	return t.runCycle(ctx, time.Now().UTC(), nil)
}

// RunCycleAt 回放入口：模拟时钟 + 指定情绪读数
// 篮子的 ID 和持仓时长都用模拟时钟计算，绝不混入墙钟
func (t *TradingBot) RunCycleAt(ctx context.Context, simTime time.Time, fgOverride *feargreed.Index) error {
	return t.runCycle(ctx, simTime, fgOverride)
}

func (t *TradingBot) runCycle(ctx context.Context, now time.Time, fgOverride *feargreed.Index) error {
	symbol := t.cfg.Assets.CryptoSymbol

	prices, err := t.exchange.GetPrices(ctx, []string{symbol})
	if err != nil {
		return fmt.Errorf("获取报价失败: %w", err)
	}
	priceMap := make(map[string]decimal.Decimal, len(prices))
	for _, p := range prices {
		priceMap[p.Symbol] = p.Price
	}

	// 为所有有报价的符号更新观测高点
	for sym, price := range priceMap {
		t.state.UpdateRecentHigh(sym, price)
	}

	fg, degraded := t.resolveSentiment(ctx, fgOverride)
	logger.Log.Debug().
		Int("value", fg.Value).
		Str("class", fg.Classification).
		Bool("degraded", degraded).
		Msg("恐惧贪婪指数")

	record := &logger.CycleRecord{
		Timestamp:         now,
		Prices:            priceMap,
		FearGreedValue:    fg.Value,
		FearGreedClass:    fg.Classification,
		SentimentDegraded: degraded,
		Actions:           make([]logger.BasketAction, 0),
	}

	if err := t.closePass(ctx, priceMap, now, record); err != nil {
		return err
	}
	if err := t.openPass(ctx, fg, priceMap, now, record); err != nil {
		return err
	}

	t.state.LastUpdate = now

	if err := t.store.Save(t.state); err != nil {
		return fmt.Errorf("持久化账本快照失败: %w", err)
	}

	stats := t.state.Statistics()
	record.FiatBalance = t.state.FiatBalance
	record.PortfolioValue = t.state.TotalPortfolioValue(priceMap)
	record.ActiveBasketCount = stats.ActiveBasketCount
	record.TotalProfit = stats.TotalProfit
	if t.tradeLogger != nil {
		if err := t.tradeLogger.LogCycle(record); err != nil {
			logger.Log.Warn().Err(err).Msg("写入周期记录失败")
		}
	}

	logger.Log.Info().
		Str("portfolio", record.PortfolioValue.StringFixed(2)).
		Str("fiat", t.state.FiatBalance.StringFixed(2)).
		Int("active_baskets", stats.ActiveBasketCount).
		Int("trades", stats.TotalTrades).
		Float64("win_rate", stats.WinRate).
		Str("total_profit", stats.TotalProfit.StringFixed(2)).
		Msg("周期完成")

	return nil
}

// resolveSentiment 情绪是次级信号，接口不可用时降级为默认读数继续周期
// 降级读数与真实读数无法区分，因此单独携带 degraded 标志
func (t *TradingBot) resolveSentiment(ctx context.Context, override *feargreed.Index) (feargreed.Index, bool) {
	if override != nil {
		return *override, false
	}
	if t.sentiment == nil {
		return feargreed.Fallback(), true
	}
	idx, err := t.sentiment.Current(ctx)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("情绪指数不可用，使用降级默认值")
		return feargreed.Fallback(), true
	}
	return *idx, false
}

// closePass 止盈检查：达到目标的篮子先在交易所卖出，再在账本结算
// 本周期没有报价的资产不动，不算错误
func (t *TradingBot) closePass(ctx context.Context, priceMap map[string]decimal.Decimal, now time.Time, record *logger.CycleRecord) error {
	// 先拍快照再卖，避免边迭代边改账本
	toSell := make([]basket.Basket, 0, len(t.state.ActiveBaskets))
	for i := range t.state.ActiveBaskets {
		b := t.state.ActiveBaskets[i]
		price, ok := priceMap[b.Asset]
		if !ok {
			continue
		}
		if b.ShouldSell(price) {
			toSell = append(toSell, b)
		}
	}

	for _, b := range toSell {
		price := priceMap[b.Asset]
		logger.Log.Info().
			Str("basket", b.ID).
			Str("price", price.String()).
			Str("buy_price", b.BuyPrice.String()).
			Msg("止盈卖出")

		order, err := t.exchange.Sell(ctx, b.Asset, b.Quantity)
		if err != nil {
			return fmt.Errorf("卖出 %s 失败: %w", b.ID, err)
		}

		closed, err := t.state.CloseBasket(b.ID, price, now)
		if err != nil {
			// 账本不变量被破坏，说明引擎算出了非法动作，必须上抛
			return err
		}
		record.Actions = append(record.Actions, logger.BasketAction{
			Action:   "sell",
			BasketID: b.ID,
			Symbol:   b.Asset,
			Quantity: order.Quantity,
			Price:    price,
			Fee:      order.Fee,
			Profit:   closed.Profit,
			Success:  true,
		})
	}
	return nil
}

// openPass 买入信号评估：情绪触发与下跌触发相互独立，同时命中时下跌优先
// 每周期至多执行一次买入
func (t *TradingBot) openPass(ctx context.Context, fg feargreed.Index, priceMap map[string]decimal.Decimal, now time.Time, record *logger.CycleRecord) error {
	symbol := t.cfg.Assets.CryptoSymbol
	trading := t.cfg.Trading

	fearGreedSignal := fg.Value <= trading.FearGreedThreshold

	dipSignal := false
	dipPercent := decimal.Zero
	if price, ok := priceMap[symbol]; ok {
		dipSignal = t.state.IsPriceDip(symbol, price, trading.BuyTheDipPercent)
		if dipSignal {
			dipPercent = t.state.DipPercent(symbol, price)
		}
	}

	if !fearGreedSignal && !dipSignal {
		logger.Log.Debug().
			Int("fear_greed", fg.Value).
			Int("threshold", trading.FearGreedThreshold).
			Msg("无买入信号")
		return nil
	}

	if !t.state.HasFreeSlot(trading.BasketCount) {
		logger.Log.Info().
			Int("active", len(t.state.ActiveBaskets)).
			Int("max", trading.BasketCount).
			Msg("篮子槽位已满，跳过买入")
		return nil
	}

	var investmentPercent decimal.Decimal
	if dipSignal {
		investmentPercent = t.DipInvestmentPercent(dipPercent)
		logger.Log.Info().
			Str("dip_percent", dipPercent.StringFixed(2)).
			Str("investment_percent", investmentPercent.StringFixed(2)).
			Msg("下跌买入信号触发")
	} else {
		investmentPercent = t.InvestmentPercent(fg.Value)
		logger.Log.Info().
			Int("fear_greed", fg.Value).
			Str("investment_percent", investmentPercent.StringFixed(2)).
			Msg("情绪买入信号触发")
	}

	investmentAmount := t.state.FiatBalance.Mul(investmentPercent).Div(hundred)
	if !investmentAmount.IsPositive() {
		logger.Log.Info().Msg("没有可用资金开新篮子")
		return nil
	}

	order, err := t.exchange.Buy(ctx, symbol, investmentAmount)
	if err != nil {
		return fmt.Errorf("买入 %s 失败: %w", symbol, err)
	}

	// 用实际成交数量与价格建篮，时间戳用模拟时钟
	b, err := t.state.OpenBasket(symbol, order.Quantity, order.Price, trading.ProfitThresholdPercent, now)
	if err != nil {
		return err
	}

	logger.Log.Info().
		Str("basket", b.ID).
		Str("quantity", order.Quantity.String()).
		Str("price", order.Price.String()).
		Msg("新篮子建仓")

	record.Actions = append(record.Actions, logger.BasketAction{
		Action:   "buy",
		BasketID: b.ID,
		Symbol:   symbol,
		Quantity: order.Quantity,
		Price:    order.Price,
		Fee:      order.Fee,
		Success:  true,
	})
	return nil
}

// InvestmentPercent 情绪化仓位：指数越低（越恐惧）买得越多
// min + (max-min) * (100-value)/100
func (t *TradingBot) InvestmentPercent(fearGreedValue int) decimal.Decimal {
	trading := t.cfg.Trading
	spread := trading.MaxInvestmentPercent.Sub(trading.MinInvestmentPercent)
	factor := decimal.NewFromInt(int64(100 - fearGreedValue)).Div(hundred)
	return trading.MinInvestmentPercent.Add(spread.Mul(factor))
}

// DipInvestmentPercent 下跌仓位：从阈值处的 min 线性插值到理论 100% 跌幅的 max
func (t *TradingBot) DipInvestmentPercent(dipPercent decimal.Decimal) decimal.Decimal {
	trading := t.cfg.Trading
	threshold := trading.BuyTheDipPercent

	effective := dipPercent
	if effective.LessThan(threshold) {
		effective = threshold
	}

	factor := effective.Sub(threshold).Div(hundred.Sub(threshold))
	if factor.IsNegative() {
		factor = decimal.Zero
	}
	if factor.GreaterThan(decimal.NewFromInt(1)) {
		factor = decimal.NewFromInt(1)
	}

	spread := trading.MaxInvestmentPercent.Sub(trading.MinInvestmentPercent)
	return trading.MinInvestmentPercent.Add(spread.Mul(factor))
}
