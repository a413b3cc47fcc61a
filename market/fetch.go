package market

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"binstra/feargreed"
	"binstra/logger"
)

// klinePageLimit 币安单次 K 线请求上限
const klinePageLimit = 1000

// Fetcher 从币安和 alternative.me 录制回测数据文件
type Fetcher struct {
	client     *binance.Client
	sentiment  *feargreed.Client
	fiatSymbol string
}

// NewFetcher K 线是公开行情，不需要密钥
func NewFetcher(fiatSymbol string) *Fetcher {
	return &Fetcher{
		client:     binance.NewClient("", ""),
		sentiment:  feargreed.NewClient(""),
		fiatSymbol: fiatSymbol,
	}
}

// FetchHistoricalData 拉取最近 days 天的小时级收盘价
// 写入 <asset>_prices_<N>d.json，后续即可被 LoadHistoricalData 读取
func (f *Fetcher) FetchHistoricalData(ctx context.Context, dir, asset string, days int) error {
	pair := asset + f.fiatSymbol
	end := time.Now().UTC().Truncate(time.Hour)
	start := end.Add(-time.Duration(days) * 24 * time.Hour)

	snapshots := make([]Snapshot, 0, days*24)
	cursor := start
	for cursor.Before(end) {
		klines, err := f.client.NewKlinesService().
			Symbol(pair).
			Interval("1h").
			StartTime(cursor.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(klinePageLimit).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("拉取 %s K 线失败: %w", pair, err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			price, err := decimal.NewFromString(k.Close)
			if err != nil {
				continue
			}
			snapshots = append(snapshots, Snapshot{
				Timestamp: time.UnixMilli(k.CloseTime).UTC().Truncate(time.Hour),
				Prices:    map[string]decimal.Decimal{asset: price},
			})
		}
		cursor = time.UnixMilli(klines[len(klines)-1].CloseTime).UTC()
	}

	if len(snapshots) == 0 {
		return fmt.Errorf("%w: %s %dd", ErrDataNotFound, asset, days)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_prices_%dd.json", strings.ToLower(asset), days))
	if err := writeJSON(path, snapshots); err != nil {
		return err
	}

	logger.Log.Info().
		Str("pair", pair).
		Int("ticks", len(snapshots)).
		Str("file", path).
		Msg("历史价格数据已录制")
	return nil
}

// FetchFearGreedData 拉取最近 days 天的恐惧贪婪历史（按天一条）
// 写入 fear_greed_<N>d.json
func (f *Fetcher) FetchFearGreedData(ctx context.Context, dir string, days int) error {
	series, err := f.sentiment.History(ctx, days)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, fmt.Sprintf("fear_greed_%dd.json", days))
	if err := writeJSON(path, series); err != nil {
		return err
	}

	logger.Log.Info().
		Int("points", len(series)).
		Str("file", path).
		Msg("恐惧贪婪数据已录制")
	return nil
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建数据目录失败: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化数据失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入数据文件失败: %w", err)
	}
	return nil
}
