package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"binstra/basket"
)

var (
	// ErrInsufficientFunds 买入金额超过可用法币余额
	ErrInsufficientFunds = errors.New("insufficient fiat balance")
	// ErrBasketNotFound 按 ID 找不到在仓篮子（重复平仓属于调用方 bug，不静默吞掉）
	ErrBasketNotFound = errors.New("basket not found")
)

var hundred = decimal.NewFromInt(100)

// BotState 资金账本：法币余额、在仓/已平仓篮子、近期高点与累计统计
// 只能通过本包的方法修改，决策周期内由单一持有者独占
type BotState struct {
	FiatBalance    decimal.Decimal            `json:"fiat_balance"`
	CryptoBalances map[string]decimal.Decimal `json:"crypto_balances"`
	ActiveBaskets  []basket.Basket            `json:"active_baskets"`
	ClosedBaskets  []basket.ClosedBasket      `json:"closed_baskets"`
	LastUpdate     time.Time                  `json:"last_update"`
	TotalInvested  decimal.Decimal            `json:"total_invested"`
	TotalProfit    decimal.Decimal            `json:"total_profit"`
	RecentHighs    map[string]decimal.Decimal `json:"recent_highs"` // symbol -> 观测到的最高价，只增不减
}

// Statistics 账本派生统计
type Statistics struct {
	TotalTrades          int             `json:"total_trades"`
	ProfitableTrades     int             `json:"profitable_trades"`
	WinRate              float64         `json:"win_rate"`
	TotalProfit          decimal.Decimal `json:"total_profit"`
	AverageProfitPercent decimal.Decimal `json:"average_profit_percent"`
	ActiveBasketCount    int             `json:"active_basket_count"`
}

// New 创建初始账本
func New(initialFiat decimal.Decimal, cryptoSymbol string, initialCrypto decimal.Decimal) *BotState {
	return &BotState{
		FiatBalance:    initialFiat,
		CryptoBalances: map[string]decimal.Decimal{cryptoSymbol: initialCrypto},
		ActiveBaskets:  make([]basket.Basket, 0),
		ClosedBaskets:  make([]basket.ClosedBasket, 0),
		LastUpdate:     time.Now().UTC(),
		TotalInvested:  decimal.Zero,
		TotalProfit:    decimal.Zero,
		RecentHighs:    make(map[string]decimal.Decimal),
	}
}

// OpenBasket 开仓：扣减法币余额并登记新篮子
// 调用方负责按可用余额计算买入量，这里是余额不变量的最后一道防线
func (s *BotState) OpenBasket(asset string, quantity, price, targetProfitPercent decimal.Decimal, ts time.Time) (*basket.Basket, error) {
	b, err := basket.New(asset, quantity, price, targetProfitPercent, ts)
	if err != nil {
		return nil, err
	}

	invested := b.InvestedAmount()
	if s.FiatBalance.LessThan(invested) {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, invested, s.FiatBalance)
	}

	s.FiatBalance = s.FiatBalance.Sub(invested)
	s.TotalInvested = s.TotalInvested.Add(invested)
	s.ActiveBaskets = append(s.ActiveBaskets, *b)
	s.LastUpdate = ts
	return b, nil
}

// CloseBasket 平仓：按卖出价结算指定篮子并记入已平仓日志
func (s *BotState) CloseBasket(basketID string, sellPrice decimal.Decimal, ts time.Time) (*basket.ClosedBasket, error) {
	idx := -1
	for i := range s.ActiveBaskets {
		if s.ActiveBaskets[i].ID == basketID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrBasketNotFound, basketID)
	}

	b := s.ActiveBaskets[idx]
	s.ActiveBaskets = append(s.ActiveBaskets[:idx], s.ActiveBaskets[idx+1:]...)

	profit := b.Profit(sellPrice)
	closed := basket.ClosedBasket{
		Basket:        b,
		SellPrice:     sellPrice,
		SellTimestamp: ts,
		Profit:        profit,
		ProfitPercent: b.ProfitPercent(sellPrice),
	}

	s.FiatBalance = s.FiatBalance.Add(b.Quantity.Mul(sellPrice))
	s.TotalProfit = s.TotalProfit.Add(profit)
	s.ClosedBaskets = append(s.ClosedBaskets, closed)
	s.LastUpdate = ts
	return &closed, nil
}

// TotalPortfolioValue 法币余额 + 在仓篮子估值 + 独立币种余额估值
// 当前 tick 没有报价的资产按 0 计值，不会被丢弃
func (s *BotState) TotalPortfolioValue(currentPrices map[string]decimal.Decimal) decimal.Decimal {
	total := s.FiatBalance

	for i := range s.ActiveBaskets {
		if price, ok := currentPrices[s.ActiveBaskets[i].Asset]; ok {
			total = total.Add(s.ActiveBaskets[i].CurrentValue(price))
		}
	}

	for asset, balance := range s.CryptoBalances {
		if price, ok := currentPrices[asset]; ok {
			total = total.Add(balance.Mul(price))
		}
	}

	return total
}

// HasFreeSlot 在仓篮子数是否还有空位
func (s *BotState) HasFreeSlot(maxBaskets int) bool {
	return len(s.ActiveBaskets) < maxBaskets
}

// UpdateRecentHigh 记录观测高点，只会单调抬升
func (s *BotState) UpdateRecentHigh(symbol string, currentPrice decimal.Decimal) {
	if high, ok := s.RecentHighs[symbol]; !ok || currentPrice.GreaterThan(high) {
		s.RecentHighs[symbol] = currentPrice
	}
}

// DipPercent 距近期高点的回撤百分比，恒 >= 0；无高点记录时为 0
func (s *BotState) DipPercent(symbol string, currentPrice decimal.Decimal) decimal.Decimal {
	high, ok := s.RecentHighs[symbol]
	if !ok || !high.IsPositive() {
		return decimal.Zero
	}
	drop := high.Sub(currentPrice).Div(high).Mul(hundred)
	if drop.IsNegative() {
		return decimal.Zero
	}
	return drop
}

// IsPriceDip 回撤达到阈值即视为下跌买入信号
func (s *BotState) IsPriceDip(symbol string, currentPrice, dipThresholdPercent decimal.Decimal) bool {
	high, ok := s.RecentHighs[symbol]
	if !ok || !high.IsPositive() {
		return false
	}
	return s.DipPercent(symbol, currentPrice).GreaterThanOrEqual(dipThresholdPercent)
}

// Statistics 计算交易统计
func (s *BotState) Statistics() Statistics {
	total := len(s.ClosedBaskets)
	profitable := 0
	sumPct := decimal.Zero
	for i := range s.ClosedBaskets {
		if s.ClosedBaskets[i].Profit.IsPositive() {
			profitable++
		}
		sumPct = sumPct.Add(s.ClosedBaskets[i].ProfitPercent)
	}

	winRate := 0.0
	avgPct := decimal.Zero
	if total > 0 {
		winRate = float64(profitable) / float64(total) * 100
		avgPct = sumPct.Div(decimal.NewFromInt(int64(total)))
	}

	return Statistics{
		TotalTrades:          total,
		ProfitableTrades:     profitable,
		WinRate:              winRate,
		TotalProfit:          s.TotalProfit,
		AverageProfitPercent: avgPct,
		ActiveBasketCount:    len(s.ActiveBaskets),
	}
}
