package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// BinanceClient 币安现货实盘客户端
// 符号映射：资产符号 + 法币符号拼成交易对（BTC + USDT -> BTCUSDT）
type BinanceClient struct {
	client     *binance.Client
	fiatSymbol string
}

// NewBinanceClient 创建实盘客户端，sandbox 时走测试网
func NewBinanceClient(apiKey, apiSecret, fiatSymbol string, sandbox bool) *BinanceClient {
	binance.UseTestnet = sandbox
	return &BinanceClient{
		client:     binance.NewClient(apiKey, apiSecret),
		fiatSymbol: fiatSymbol,
	}
}

func (b *BinanceClient) pair(symbol string) string {
	return symbol + b.fiatSymbol
}

// GetPrices 批量拉取现货最新价
func (b *BinanceClient) GetPrices(ctx context.Context, symbols []string) ([]Price, error) {
	pairs := make([]string, 0, len(symbols))
	pairToSymbol := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		p := b.pair(sym)
		pairs = append(pairs, p)
		pairToSymbol[p] = sym
	}

	listed, err := b.client.NewListPricesService().Symbols(pairs).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}

	now := time.Now().UTC()
	prices := make([]Price, 0, len(listed))
	for _, item := range listed {
		sym, ok := pairToSymbol[item.Symbol]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(item.Price)
		if err != nil || !price.IsPositive() {
			continue
		}
		prices = append(prices, Price{Symbol: sym, Price: price, Timestamp: now})
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("%w: none of %v quoted", ErrPriceUnavailable, symbols)
	}
	return prices, nil
}

// Buy 按法币金额市价买入
func (b *BinanceClient) Buy(ctx context.Context, symbol string, fiatAmount decimal.Decimal) (*OrderResult, error) {
	resp, err := b.client.NewCreateOrderService().
		Symbol(b.pair(symbol)).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(fiatAmount.String()).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: buy %s: %v", ErrExecutionFailed, symbol, err)
	}
	return b.orderResult(symbol, OrderSideBuy, resp)
}

// Sell 按数量市价卖出
func (b *BinanceClient) Sell(ctx context.Context, symbol string, quantity decimal.Decimal) (*OrderResult, error) {
	resp, err := b.client.NewCreateOrderService().
		Symbol(b.pair(symbol)).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(quantity.String()).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: sell %s: %v", ErrExecutionFailed, symbol, err)
	}
	return b.orderResult(symbol, OrderSideSell, resp)
}

// orderResult 把成交明细折算成加权均价和总手续费
func (b *BinanceClient) orderResult(symbol string, side OrderSide, resp *binance.CreateOrderResponse) (*OrderResult, error) {
	executed, err := decimal.NewFromString(resp.ExecutedQuantity)
	if err != nil || !executed.IsPositive() {
		return nil, fmt.Errorf("%w: order %d filled zero quantity", ErrExecutionFailed, resp.OrderID)
	}
	quote, err := decimal.NewFromString(resp.CummulativeQuoteQuantity)
	if err != nil {
		return nil, fmt.Errorf("%w: bad quote quantity %q", ErrExecutionFailed, resp.CummulativeQuoteQuantity)
	}

	fee := decimal.Zero
	for _, fill := range resp.Fills {
		if c, err := decimal.NewFromString(fill.Commission); err == nil {
			fee = fee.Add(c)
		}
	}

	return &OrderResult{
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
		Symbol:    symbol,
		Side:      side,
		Quantity:  executed,
		Price:     quote.Div(executed),
		Fee:       fee,
		Timestamp: time.UnixMilli(resp.TransactTime).UTC(),
	}, nil
}
