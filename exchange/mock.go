package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"binstra/market"
)

// mockFeeRate 回放成交的固定比例手续费 0.1%
var mockFeeRate = decimal.NewFromFloat(0.001)

// MockClient 回放交易所：从历史快照序列按索引取价，确定性成交
// 回测驱动器通过 SetCurrentIndex 推进模拟时钟
type MockClient struct {
	snapshots    []market.Snapshot
	currentIndex int
	fiatSymbol   string
	balances     map[string]decimal.Decimal
}

// NewMockClient 创建回放交易所
func NewMockClient(snapshots []market.Snapshot, fiatSymbol string, initialBalances map[string]decimal.Decimal) *MockClient {
	balances := make(map[string]decimal.Decimal, len(initialBalances))
	for k, v := range initialBalances {
		balances[k] = v
	}
	return &MockClient{
		snapshots:  snapshots,
		fiatSymbol: fiatSymbol,
		balances:   balances,
	}
}

// SetCurrentIndex 把模拟时钟推进到第 index 个快照
func (m *MockClient) SetCurrentIndex(index int) {
	if index < 0 {
		index = 0
	}
	if max := len(m.snapshots) - 1; index > max && max >= 0 {
		index = max
	}
	m.currentIndex = index
}

// Balance 查询某资产的余额（测试用）
func (m *MockClient) Balance(asset string) decimal.Decimal {
	return m.balances[asset]
}

func (m *MockClient) current() (*market.Snapshot, error) {
	if m.currentIndex >= len(m.snapshots) {
		return nil, fmt.Errorf("%w: no snapshot at index %d", ErrPriceUnavailable, m.currentIndex)
	}
	return &m.snapshots[m.currentIndex], nil
}

// GetPrices 返回当前快照里的报价
func (m *MockClient) GetPrices(_ context.Context, symbols []string) ([]Price, error) {
	snap, err := m.current()
	if err != nil {
		return nil, err
	}

	prices := make([]Price, 0, len(symbols))
	for _, sym := range symbols {
		if p, ok := snap.Prices[sym]; ok {
			prices = append(prices, Price{Symbol: sym, Price: p, Timestamp: snap.Timestamp})
		}
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("%w: none of %v quoted at %s", ErrPriceUnavailable, symbols, snap.Timestamp)
	}
	return prices, nil
}

// Buy 按当前快照价格成交，收取固定比例手续费
func (m *MockClient) Buy(ctx context.Context, symbol string, fiatAmount decimal.Decimal) (*OrderResult, error) {
	prices, err := m.GetPrices(ctx, []string{symbol})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	price := prices[0].Price

	quantity := fiatAmount.Div(price)
	fee := fiatAmount.Mul(mockFeeRate)

	m.balances[m.fiatSymbol] = m.balances[m.fiatSymbol].Sub(fiatAmount.Add(fee))
	m.balances[symbol] = m.balances[symbol].Add(quantity)

	snap, _ := m.current()
	return &OrderResult{
		OrderID:   fmt.Sprintf("mock_buy_%d", snap.Timestamp.Unix()),
		Symbol:    symbol,
		Side:      OrderSideBuy,
		Quantity:  quantity,
		Price:     price,
		Fee:       fee,
		Timestamp: snap.Timestamp,
	}, nil
}

// Sell 按当前快照价格成交，收取固定比例手续费
func (m *MockClient) Sell(ctx context.Context, symbol string, quantity decimal.Decimal) (*OrderResult, error) {
	prices, err := m.GetPrices(ctx, []string{symbol})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	price := prices[0].Price

	amount := quantity.Mul(price)
	fee := amount.Mul(mockFeeRate)

	m.balances[symbol] = m.balances[symbol].Sub(quantity)
	m.balances[m.fiatSymbol] = m.balances[m.fiatSymbol].Add(amount.Sub(fee))

	snap, _ := m.current()
	return &OrderResult{
		OrderID:   fmt.Sprintf("mock_sell_%d", snap.Timestamp.Unix()),
		Symbol:    symbol,
		Side:      OrderSideSell,
		Quantity:  quantity,
		Price:     price,
		Fee:       fee,
		Timestamp: snap.Timestamp,
	}, nil
}
