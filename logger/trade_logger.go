package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CycleRecord 一个决策周期的完整记录，每周期落一个 JSON 文件
type CycleRecord struct {
	Timestamp         time.Time                  `json:"timestamp"`           // 周期时间（回放时为模拟时钟）
	CycleNumber       int                        `json:"cycle_number"`        // 周期编号
	Prices            map[string]decimal.Decimal `json:"prices"`              // 本周期报价
	FearGreedValue    int                        `json:"fear_greed_value"`    // 恐惧贪婪指数
	FearGreedClass    string                     `json:"fear_greed_class"`    // 指数分类
	SentimentDegraded bool                       `json:"sentiment_degraded"`  // 是否使用了降级读数
	Actions           []BasketAction             `json:"actions"`             // 本周期执行的买卖
	FiatBalance       decimal.Decimal            `json:"fiat_balance"`        // 周期结束法币余额
	PortfolioValue    decimal.Decimal            `json:"portfolio_value"`     // 周期结束组合估值
	ActiveBasketCount int                        `json:"active_basket_count"` // 在仓篮子数
	TotalProfit       decimal.Decimal            `json:"total_profit"`        // 累计已实现利润
}

// BasketAction 单次篮子操作
type BasketAction struct {
	Action   string          `json:"action"` // buy / sell
	BasketID string          `json:"basket_id"`
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Fee      decimal.Decimal `json:"fee"`
	Profit   decimal.Decimal `json:"profit,omitempty"`
	Success  bool            `json:"success"`
	Error    string          `json:"error,omitempty"`
}

// TradeLogger 决策周期日志记录器
type TradeLogger struct {
	logDir      string
	cycleNumber int
}

// NewTradeLogger 创建周期日志记录器
func NewTradeLogger(logDir string) *TradeLogger {
	if logDir == "" {
		logDir = "cycle_logs"
	}
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		Log.Warn().Err(err).Str("dir", logDir).Msg("创建周期日志目录失败")
	}
	return &TradeLogger{logDir: logDir}
}

// SetCycleNumber 设置周期编号（回测从检查点恢复时使用）
func (l *TradeLogger) SetCycleNumber(cycle int) {
	l.cycleNumber = cycle
}

// LogCycle 写入一个周期记录
func (l *TradeLogger) LogCycle(record *CycleRecord) error {
	l.cycleNumber++
	record.CycleNumber = l.cycleNumber

	filename := fmt.Sprintf("cycle_%s_n%d.json",
		record.Timestamp.UTC().Format("20060102_150405"),
		record.CycleNumber)

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化周期记录失败: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.logDir, filename), data, 0o600); err != nil {
		return fmt.Errorf("写入周期记录失败: %w", err)
	}
	return nil
}

// LatestRecords 读取最近 n 条周期记录，按时间从旧到新
func (l *TradeLogger) LatestRecords(n int) ([]*CycleRecord, error) {
	entries, err := os.ReadDir(l.logDir)
	if err != nil {
		return nil, fmt.Errorf("读取周期日志目录失败: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "cycle_") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	// 文件名里带时间戳，字典序即时间序
	sort.Strings(names)
	if n > 0 && len(names) > n {
		names = names[len(names)-n:]
	}

	records := make([]*CycleRecord, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(l.logDir, name))
		if err != nil {
			continue
		}
		var rec CycleRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			Log.Warn().Err(err).Str("file", name).Msg("周期记录损坏，跳过")
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}
