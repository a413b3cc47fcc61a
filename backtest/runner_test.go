package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	botcfg "binstra/config"
	"binstra/feargreed"
	"binstra/market"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func snapshotsAt(start time.Time, prices ...string) []market.Snapshot {
	out := make([]market.Snapshot, 0, len(prices))
	for i, p := range prices {
		out = append(out, market.Snapshot{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Prices:    map[string]decimal.Decimal{"BTC": d(p)},
		})
	}
	return out
}

func testConfig(t *testing.T, fiat, crypto string) Config {
	t.Helper()
	return Config{
		RunID:         "test-run",
		Asset:         "BTC",
		FiatSymbol:    "USDT",
		Days:          1,
		InitialFiat:   d(fiat),
		InitialCrypto: d(crypto),
		Trading: botcfg.TradingConfig{
			BasketCount:            3,
			ProfitThresholdPercent: d("5"),
			MinInvestmentPercent:   d("10"),
			MaxInvestmentPercent:   d("50"),
			FearGreedThreshold:     30,
			BuyTheDipPercent:       d("50"),
		},
		DataDir:   t.TempDir(),
		OutputDir: t.TempDir(),
	}
}

func TestRunnerEmptySeries(t *testing.T) {
	cfg := testConfig(t, "10000", "0")
	r, err := newRunnerWithData(cfg, nil, nil)
	if err != nil {
		t.Fatalf("newRunnerWithData: %v", err)
	}

	if _, err := r.Run(context.Background()); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if r.Status() != RunStateFailed {
		t.Errorf("status = %s, want failed", r.Status())
	}
}

// 只持币不交易的三个 tick：1000 -> 1200 -> 900
// 峰值 1200，最大回撤 300 即 25%
func TestRunnerMaxDrawdown(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg := testConfig(t, "0", "1")
	// 情绪阈值压到 0，降级默认值 35 不会触发买入
	cfg.Trading.FearGreedThreshold = 0

	r, err := newRunnerWithData(cfg, snapshotsAt(start, "1000", "1200", "900"), nil)
	if err != nil {
		t.Fatalf("newRunnerWithData: %v", err)
	}

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !result.InitialPortfolioValue.Equal(d("1000")) {
		t.Errorf("initial value = %s, want 1000", result.InitialPortfolioValue)
	}
	if !result.FinalPortfolioValue.Equal(d("900")) {
		t.Errorf("final value = %s, want 900", result.FinalPortfolioValue)
	}
	if !result.MaxDrawdown.Equal(d("300")) {
		t.Errorf("max drawdown = %s, want 300", result.MaxDrawdown)
	}
	if !result.MaxDrawdownPercent.Equal(d("25")) {
		t.Errorf("max drawdown pct = %s, want 25", result.MaxDrawdownPercent)
	}
	if result.TotalTrades != 0 {
		t.Errorf("total trades = %d, want 0", result.TotalTrades)
	}
	if r.Status() != RunStateCompleted {
		t.Errorf("status = %s, want completed", r.Status())
	}

	// 初始点 + 每 tick 一点
	if len(r.equity) != 4 {
		t.Fatalf("equity points = %d, want 4", len(r.equity))
	}
	if !r.equity[2].Value.Equal(d("1200")) {
		t.Errorf("peak equity = %s, want 1200", r.equity[2].Value)
	}
}

// 完整买卖闭环：情绪 20 触发 42% 建仓，次 tick 达到止盈线平仓
func TestRunnerBuySellRoundTrip(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg := testConfig(t, "10000", "0")

	fgSeries := feargreed.Series{
		{Value: 20, Classification: "Extreme Fear", Timestamp: start},
		{Value: 80, Classification: "Extreme Greed", Timestamp: start.Add(time.Hour)},
	}

	r, err := newRunnerWithData(cfg, snapshotsAt(start, "100", "106"), fgSeries)
	if err != nil {
		t.Fatalf("newRunnerWithData: %v", err)
	}

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 10 + 40*0.8 = 42% of 10000 -> 4200 @ 100 -> 42 BTC
	// 卖在 106：回款 4452，利润 252
	if result.TotalTrades != 1 {
		t.Fatalf("total trades = %d, want 1", result.TotalTrades)
	}
	if result.ProfitableTrades != 1 {
		t.Errorf("profitable trades = %d, want 1", result.ProfitableTrades)
	}
	if result.WinRate != 100 {
		t.Errorf("win rate = %v, want 100", result.WinRate)
	}
	if !result.FinalPortfolioValue.Equal(d("10252")) {
		t.Errorf("final value = %s, want 10252", result.FinalPortfolioValue)
	}
	if !result.TotalReturn.Equal(d("252")) {
		t.Errorf("total return = %s, want 252", result.TotalReturn)
	}
	if !result.TotalReturnPercent.Equal(d("2.52")) {
		t.Errorf("return pct = %s, want 2.52", result.TotalReturnPercent)
	}

	// 结果落盘后能原样读回
	loaded, err := LoadResult(RunDir(cfg.OutputDir, cfg.RunID), cfg.Days)
	if err != nil {
		t.Fatalf("LoadResult: %v", err)
	}
	if loaded.RunID != result.RunID {
		t.Errorf("loaded run id = %s, want %s", loaded.RunID, result.RunID)
	}
	if !loaded.TotalReturn.Equal(result.TotalReturn) {
		t.Errorf("loaded return = %s, want %s", loaded.TotalReturn, result.TotalReturn)
	}
}

func TestRunnerCancellation(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg := testConfig(t, "1000", "0")
	cfg.Trading.FearGreedThreshold = 0

	r, err := newRunnerWithData(cfg, snapshotsAt(start, "100", "101"), nil)
	if err != nil {
		t.Fatalf("newRunnerWithData: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if r.Status() != RunStateFailed {
		t.Errorf("status = %s, want failed", r.Status())
	}
}

func TestStatusPayloadProgress(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg := testConfig(t, "0", "1")
	cfg.Trading.FearGreedThreshold = 0

	r, err := newRunnerWithData(cfg, snapshotsAt(start, "1000", "1100"), nil)
	if err != nil {
		t.Fatalf("newRunnerWithData: %v", err)
	}

	if got := r.StatusPayload(); got.State != RunStateCreated || got.ProgressPct != 0 {
		t.Errorf("pre-run payload = %+v", got)
	}

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	payload := r.StatusPayload()
	if payload.State != RunStateCompleted {
		t.Errorf("state = %s, want completed", payload.State)
	}
	if payload.ProgressPct != 100 {
		t.Errorf("progress = %v, want 100", payload.ProgressPct)
	}
	if payload.ProcessedTicks != 2 {
		t.Errorf("processed = %d, want 2", payload.ProcessedTicks)
	}
	if payload.Equity != "1100.00" {
		t.Errorf("equity = %s, want 1100.00", payload.Equity)
	}
}
