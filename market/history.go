package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"binstra/feargreed"
)

// ErrDataNotFound 请求的符号/周期没有已录制的历史数据
var ErrDataNotFound = errors.New("historical data not found")

// Snapshot 一个 tick 的价格快照，外部供给，核心只读
type Snapshot struct {
	Timestamp time.Time                  `json:"timestamp"`
	Prices    map[string]decimal.Decimal `json:"prices"`
}

// rawSnapshot 兼容价格既可能是数字也可能是字符串的落盘格式
type rawSnapshot struct {
	Timestamp time.Time                  `json:"timestamp"`
	Prices    map[string]json.RawMessage `json:"prices"`
}

// LoadHistoricalData 读取 backtest-data/<asset>_prices_<N>d.json
// 返回按时间升序、时间戳去重后的快照序列
func LoadHistoricalData(dir, asset string, days int) ([]Snapshot, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s_prices_%dd.json", strings.ToLower(asset), days))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s %dd (%s)", ErrDataNotFound, asset, days, path)
		}
		return nil, fmt.Errorf("读取历史价格数据失败: %w", err)
	}

	var raw []rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("解析历史价格数据失败: %w", err)
	}

	// 同一时间戳后出现的记录覆盖先出现的
	byTime := make(map[time.Time]Snapshot, len(raw))
	for _, r := range raw {
		snap := Snapshot{Timestamp: r.Timestamp, Prices: make(map[string]decimal.Decimal, len(r.Prices))}
		for sym, v := range r.Prices {
			price, err := parsePrice(v)
			if err != nil {
				return nil, fmt.Errorf("解析 %s 在 %s 的价格失败: %w", sym, r.Timestamp, err)
			}
			snap.Prices[sym] = price
		}
		byTime[r.Timestamp.UTC()] = snap
	}

	snapshots := make([]Snapshot, 0, len(byTime))
	for _, snap := range byTime {
		snapshots = append(snapshots, snap)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.Before(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

// LoadFearGreedData 读取 backtest-data/fear_greed_<N>d.json
// 情绪序列是可选输入，文件缺失返回空序列而不是错误
func LoadFearGreedData(dir string, days int) (feargreed.Series, error) {
	path := filepath.Join(dir, fmt.Sprintf("fear_greed_%dd.json", days))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return feargreed.Series{}, nil
		}
		return nil, fmt.Errorf("读取恐惧贪婪数据失败: %w", err)
	}

	var series feargreed.Series
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, fmt.Errorf("解析恐惧贪婪数据失败: %w", err)
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	return series, nil
}

func parsePrice(v json.RawMessage) (decimal.Decimal, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return decimal.NewFromString(s)
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(n.String())
}
