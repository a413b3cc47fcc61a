package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrPriceUnavailable 请求的所有符号都无法报价
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrExecutionFailed 下单在交易所侧失败
	ErrExecutionFailed = errors.New("order execution failed")
)

// Price 单个符号的报价
type Price struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// OrderSide 买卖方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderResult 成交回报
type OrderResult struct {
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Fee       decimal.Decimal `json:"fee"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client 交易所能力边界：报价、买入、卖出
// 回放用 MockClient，实盘用 BinanceClient，由配置选择
type Client interface {
	// GetPrices 批量报价，一个符号都拿不到时返回 ErrPriceUnavailable
	GetPrices(ctx context.Context, symbols []string) ([]Price, error)
	// Buy 按法币金额市价买入
	Buy(ctx context.Context, symbol string, fiatAmount decimal.Decimal) (*OrderResult, error)
	// Sell 按数量市价卖出
	Sell(ctx context.Context, symbol string, quantity decimal.Decimal) (*OrderResult, error)
}
