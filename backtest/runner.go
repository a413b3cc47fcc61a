package backtest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"binstra/bot"
	botcfg "binstra/config"
	"binstra/exchange"
	"binstra/feargreed"
	"binstra/logger"
	"binstra/market"
	"binstra/state"
)

// ErrNoData 空输入序列，零个 tick 的回测没有意义
var ErrNoData = errors.New("no historical data loaded")

var hundred = decimal.NewFromInt(100)

// RunState 运行状态
type RunState string

const (
	RunStateCreated   RunState = "created"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// StatusPayload API 用的状态响应
type StatusPayload struct {
	RunID          string   `json:"run_id"`
	State          RunState `json:"state"`
	ProgressPct    float64  `json:"progress_pct"`
	ProcessedTicks int      `json:"processed_ticks"`
	TotalTicks     int      `json:"total_ticks"`
	Equity         string   `json:"equity"`
	LastError      string   `json:"last_error,omitempty"`
}

// Runner 封装单次回测运行的生命周期
// 严格单线程逐 tick 推进：每个 tick 的决策周期完整结束后才进入下一个
type Runner struct {
	cfg       Config
	snapshots []market.Snapshot
	fgSeries  feargreed.Series

	mock *exchange.MockClient
	bot  *bot.TradingBot

	statusMu  sync.RWMutex
	status    RunState
	processed int
	lastValue decimal.Decimal
	lastError string
	result    *Result

	equity []EquityPoint

	// 回撤追踪：运行中的净值峰值、最大回撤及其对应峰值
	maxValue          decimal.Decimal
	maxDrawdown       decimal.Decimal
	peakAtMaxDrawdown decimal.Decimal
}

// NewRunner 加载历史数据并构建回测运行器
func NewRunner(cfg Config) (*Runner, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	snapshots, err := market.LoadHistoricalData(cfg.DataDir, cfg.Asset, cfg.Days)
	if err != nil {
		return nil, err
	}
	fgSeries, err := market.LoadFearGreedData(cfg.DataDir, cfg.Days)
	if err != nil {
		return nil, err
	}

	logger.Log.Info().
		Int("ticks", len(snapshots)).
		Int("fear_greed_points", len(fgSeries)).
		Str("run_id", cfg.RunID).
		Msg("历史数据加载完成")

	return newRunnerWithData(cfg, snapshots, fgSeries)
}

// newRunnerWithData 用已就绪的序列构建运行器（测试直接走这里）
func newRunnerWithData(cfg Config, snapshots []market.Snapshot, fgSeries feargreed.Series) (*Runner, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	runDir := RunDir(cfg.OutputDir, cfg.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建运行目录失败: %w", err)
	}

	initialBalances := map[string]decimal.Decimal{
		cfg.FiatSymbol: cfg.InitialFiat,
		cfg.Asset:      cfg.InitialCrypto,
	}
	mock := exchange.NewMockClient(snapshots, cfg.FiatSymbol, initialBalances)

	st := state.New(cfg.InitialFiat, cfg.Asset, cfg.InitialCrypto)
	store := state.NewFileStore(filepath.Join(runDir, "state.json"))
	tradeLogger := logger.NewTradeLogger(filepath.Join(runDir, "cycles"))

	runCfg := &botcfg.Config{
		Trading: cfg.Trading,
		Assets: botcfg.AssetConfig{
			InitialFiatAmount:   cfg.InitialFiat,
			InitialCryptoAmount: cfg.InitialCrypto,
			FiatSymbol:          cfg.FiatSymbol,
			CryptoSymbol:        cfg.Asset,
		},
		Mode: botcfg.ModeBacktest,
	}

	return &Runner{
		cfg:       cfg,
		snapshots: snapshots,
		fgSeries:  fgSeries,
		mock:      mock,
		bot:       bot.New(runCfg, mock, nil, st, store, tradeLogger),
		status:    RunStateCreated,
		equity:    make([]EquityPoint, 0, len(snapshots)+1),
	}, nil
}

// RunDir 运行产物目录
func RunDir(outputDir, runID string) string {
	return filepath.Join(outputDir, "runs", runID)
}

// Run 执行完整回放并产出汇总结果
// 任何一个 tick 失败都会中止整个回测，不做部分结果恢复
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if len(r.snapshots) == 0 {
		r.fail(ErrNoData)
		return nil, ErrNoData
	}

	r.setStatus(RunStateRunning)

	startDate := r.snapshots[0].Timestamp
	endDate := r.snapshots[len(r.snapshots)-1].Timestamp

	initialValue := r.bot.State().TotalPortfolioValue(r.snapshots[0].Prices)
	r.maxValue = initialValue
	r.maxDrawdown = decimal.Zero
	r.peakAtMaxDrawdown = initialValue
	r.recordEquity(startDate, initialValue, 0)

	logger.Log.Info().
		Time("start", startDate).
		Time("end", endDate).
		Str("initial_value", initialValue.StringFixed(2)).
		Msg("回测开始")

	for i, snap := range r.snapshots {
		select {
		case <-ctx.Done():
			err := fmt.Errorf("回测被取消: %w", ctx.Err())
			r.fail(err)
			return nil, err
		default:
		}

		// 模拟时钟推进到当前快照
		r.mock.SetCurrentIndex(i)
		fgOverride := r.sentimentFor(snap.Timestamp)

		if err := r.bot.RunCycleAt(ctx, snap.Timestamp, fgOverride); err != nil {
			err = fmt.Errorf("tick %d (%s) 失败: %w", i, snap.Timestamp, err)
			r.fail(err)
			return nil, err
		}

		value := r.bot.State().TotalPortfolioValue(snap.Prices)
		r.recordEquity(snap.Timestamp, value, i+1)
		r.trackDrawdown(value)
		r.setProgress(i+1, value)

		// 每个模拟日打一行进度（小时级数据即每 24 tick）
		if i%24 == 0 {
			logger.Log.Info().
				Int("day", i/24).
				Str("value", value.StringFixed(2)).
				Int("active_baskets", len(r.bot.State().ActiveBaskets)).
				Msg("回测进度")
		}
	}

	finalValue := r.bot.State().TotalPortfolioValue(r.snapshots[len(r.snapshots)-1].Prices)
	totalReturn := finalValue.Sub(initialValue)
	returnPct := decimal.Zero
	if initialValue.IsPositive() {
		returnPct = totalReturn.Div(initialValue).Mul(hundred)
	}
	drawdownPct := decimal.Zero
	if r.peakAtMaxDrawdown.IsPositive() {
		drawdownPct = r.maxDrawdown.Div(r.peakAtMaxDrawdown).Mul(hundred)
	}

	stats := r.bot.State().Statistics()
	result := &Result{
		RunID:                 r.cfg.RunID,
		PeriodDays:            r.cfg.Days,
		StartDate:             startDate,
		EndDate:               endDate,
		InitialPortfolioValue: initialValue,
		FinalPortfolioValue:   finalValue,
		TotalReturn:           totalReturn,
		TotalReturnPercent:    returnPct,
		TotalTrades:           stats.TotalTrades,
		ProfitableTrades:      stats.ProfitableTrades,
		WinRate:               stats.WinRate,
		MaxDrawdown:           r.maxDrawdown,
		MaxDrawdownPercent:    drawdownPct,
		ConfigUsed:            r.cfg.strategyConfig(),
	}

	runDir := RunDir(r.cfg.OutputDir, r.cfg.RunID)
	if err := SaveResult(runDir, result); err != nil {
		r.fail(err)
		return nil, err
	}
	if err := SaveEquityCurve(runDir, r.equity); err != nil {
		r.fail(err)
		return nil, err
	}

	r.statusMu.Lock()
	r.status = RunStateCompleted
	r.result = result
	r.statusMu.Unlock()

	logger.Log.Info().
		Str("total_return", totalReturn.StringFixed(2)).
		Str("return_pct", returnPct.StringFixed(2)).
		Str("max_drawdown", r.maxDrawdown.StringFixed(2)).
		Str("max_drawdown_pct", drawdownPct.StringFixed(2)).
		Float64("win_rate", stats.WinRate).
		Msg("回测完成")

	return result, nil
}

// sentimentFor 取时间距离最近的情绪读数，序列为空时返回 nil
// （bot 会落到降级默认值）
func (r *Runner) sentimentFor(ts time.Time) *feargreed.Index {
	return r.fgSeries.Nearest(ts)
}

func (r *Runner) recordEquity(ts time.Time, value decimal.Decimal, cycle int) {
	r.equity = append(r.equity, EquityPoint{Timestamp: ts, Value: value, Cycle: cycle})
}

// trackDrawdown 维护运行峰值，峰值之下的缺口取最大者
// 百分比只在结束时用该回撤对应的峰值换算一次
func (r *Runner) trackDrawdown(value decimal.Decimal) {
	if value.GreaterThan(r.maxValue) {
		r.maxValue = value
		return
	}
	drawdown := r.maxValue.Sub(value)
	if drawdown.GreaterThan(r.maxDrawdown) {
		r.maxDrawdown = drawdown
		r.peakAtMaxDrawdown = r.maxValue
	}
}

// Status 当前运行状态
func (r *Runner) Status() RunState {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status
}

// StatusPayload 构建 API 状态响应
func (r *Runner) StatusPayload() StatusPayload {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()

	progress := 0.0
	if total := len(r.snapshots); total > 0 {
		progress = float64(r.processed) / float64(total) * 100
	}
	return StatusPayload{
		RunID:          r.cfg.RunID,
		State:          r.status,
		ProgressPct:    progress,
		ProcessedTicks: r.processed,
		TotalTicks:     len(r.snapshots),
		Equity:         r.lastValue.StringFixed(2),
		LastError:      r.lastError,
	}
}

// RunID 本次运行的标识
func (r *Runner) RunID() string {
	return r.cfg.RunID
}

// Result 已完成运行的汇总结果，未完成时返回 nil
func (r *Runner) Result() *Result {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.result
}

func (r *Runner) setStatus(s RunState) {
	r.statusMu.Lock()
	r.status = s
	r.statusMu.Unlock()
}

func (r *Runner) setProgress(processed int, value decimal.Decimal) {
	r.statusMu.Lock()
	r.processed = processed
	r.lastValue = value
	r.statusMu.Unlock()
}

func (r *Runner) fail(err error) {
	r.statusMu.Lock()
	r.status = RunStateFailed
	r.lastError = err.Error()
	r.statusMu.Unlock()
}
