package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

// Result 一次回测的汇总，构造后不再修改
type Result struct {
	RunID                 string          `json:"run_id"`
	PeriodDays            int             `json:"period_days"`
	StartDate             time.Time       `json:"start_date"`
	EndDate               time.Time       `json:"end_date"`
	InitialPortfolioValue decimal.Decimal `json:"initial_portfolio_value"`
	FinalPortfolioValue   decimal.Decimal `json:"final_portfolio_value"`
	TotalReturn           decimal.Decimal `json:"total_return"`
	TotalReturnPercent    decimal.Decimal `json:"total_return_percent"`
	TotalTrades           int             `json:"total_trades"`
	ProfitableTrades      int             `json:"profitable_trades"`
	WinRate               float64         `json:"win_rate"`
	MaxDrawdown           decimal.Decimal `json:"max_drawdown"`
	MaxDrawdownPercent    decimal.Decimal `json:"max_drawdown_percent"`
	ConfigUsed            StrategyConfig  `json:"config_used"`
}

// EquityPoint 每个 tick 记录一次的组合净值点
type EquityPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
	Cycle     int             `json:"cycle"`
}

// SaveResult 把结果整体写入 run 目录，单文件整体替换
func SaveResult(runDir string, result *Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化回测结果失败: %w", err)
	}
	path := filepath.Join(runDir, fmt.Sprintf("result_%dd.json", result.PeriodDays))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入回测结果失败: %w", err)
	}
	return nil
}

// SaveEquityCurve 落盘完整净值曲线
func SaveEquityCurve(runDir string, points []EquityPoint) error {
	data, err := json.MarshalIndent(points, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化净值曲线失败: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "equity.json"), data, 0o644); err != nil {
		return fmt.Errorf("写入净值曲线失败: %w", err)
	}
	return nil
}

// LoadResult 读取已保存的回测结果
func LoadResult(runDir string, days int) (*Result, error) {
	data, err := os.ReadFile(filepath.Join(runDir, fmt.Sprintf("result_%dd.json", days)))
	if err != nil {
		return nil, fmt.Errorf("读取回测结果失败: %w", err)
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("解析回测结果失败: %w", err)
	}
	return &result, nil
}
