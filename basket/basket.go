package basket

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidBasket 篮子构造参数非法（数量或价格不为正）
var ErrInvalidBasket = errors.New("invalid basket")

var hundred = decimal.NewFromInt(100)

// Basket 一个独立的买入批次，创建后不可变
// 每个篮子有自己的止盈目标，独立于其他篮子平仓
type Basket struct {
	ID                  string          `json:"id"`                    // basket_<asset>_<unix时间戳>
	Asset               string          `json:"asset"`                 // 交易资产符号
	Quantity            decimal.Decimal `json:"quantity"`              // 持有数量
	BuyPrice            decimal.Decimal `json:"buy_price"`             // 买入价格
	BuyTimestamp        time.Time       `json:"buy_timestamp"`         // 买入时间
	TargetProfitPercent decimal.Decimal `json:"target_profit_percent"` // 目标利润百分比
}

// ClosedBasket 已平仓篮子，只追加不修改
type ClosedBasket struct {
	Basket        Basket          `json:"basket"`
	SellPrice     decimal.Decimal `json:"sell_price"`
	SellTimestamp time.Time       `json:"sell_timestamp"`
	Profit        decimal.Decimal `json:"profit"`
	ProfitPercent decimal.Decimal `json:"profit_percent"`
}

// New 创建新篮子
// quantity 和 buyPrice 必须严格为正，时间只按整 tick 前进，
// 因此 (asset, buyTimestamp) 派生的 ID 在同一资产的在仓篮子中唯一
func New(asset string, quantity, buyPrice, targetProfitPercent decimal.Decimal, buyTimestamp time.Time) (*Basket, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidBasket, quantity)
	}
	if !buyPrice.IsPositive() {
		return nil, fmt.Errorf("%w: buy price must be positive, got %s", ErrInvalidBasket, buyPrice)
	}
	return &Basket{
		ID:                  fmt.Sprintf("basket_%s_%d", asset, buyTimestamp.Unix()),
		Asset:               asset,
		Quantity:            quantity,
		BuyPrice:            buyPrice,
		BuyTimestamp:        buyTimestamp,
		TargetProfitPercent: targetProfitPercent,
	}, nil
}

// ShouldSell 当前价格的浮盈百分比达到目标即触发卖出（边界取等号）
func (b *Basket) ShouldSell(currentPrice decimal.Decimal) bool {
	return b.ProfitPercent(currentPrice).GreaterThanOrEqual(b.TargetProfitPercent)
}

// CurrentValue 按当前价格估值
func (b *Basket) CurrentValue(currentPrice decimal.Decimal) decimal.Decimal {
	return b.Quantity.Mul(currentPrice)
}

// InvestedAmount 买入投入的法币金额
func (b *Basket) InvestedAmount() decimal.Decimal {
	return b.Quantity.Mul(b.BuyPrice)
}

// Profit 按当前价格计算的浮动盈亏
func (b *Basket) Profit(currentPrice decimal.Decimal) decimal.Decimal {
	return b.CurrentValue(currentPrice).Sub(b.InvestedAmount())
}

// ProfitPercent 浮动盈亏百分比
// 构造时已校验 BuyPrice > 0，这里的除法是安全的
func (b *Basket) ProfitPercent(currentPrice decimal.Decimal) decimal.Decimal {
	return currentPrice.Sub(b.BuyPrice).Div(b.BuyPrice).Mul(hundred)
}
