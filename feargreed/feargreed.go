package feargreed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"
)

// ErrSentimentUnavailable 恐惧贪婪指数接口不可用
var ErrSentimentUnavailable = errors.New("fear & greed index unavailable")

// DefaultBaseURL alternative.me 的公开接口
const DefaultBaseURL = "https://api.alternative.me/fng/"

// Index 市场情绪指数（0-100），低值偏向买入
type Index struct {
	Value          int       `json:"value"`
	Classification string    `json:"classification"`
	Timestamp      time.Time `json:"timestamp"`
}

// Fallback 接口不可用时的降级读数
// 与真实读数无法区分是个坑，调用方必须同时记录降级标志
func Fallback() Index {
	return Index{Value: 35, Classification: "Fear", Timestamp: time.Now().UTC()}
}

// Client 恐惧贪婪指数客户端
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient 创建客户端，超时由调用方通过 context 控制之外再兜底 10s
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type fngResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
		Timestamp           string `json:"timestamp"`
	} `json:"data"`
}

// Current 拉取最新指数
func (c *Client) Current(ctx context.Context) (*Index, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSentimentUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSentimentUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http %d", ErrSentimentUnavailable, resp.StatusCode)
	}

	var payload fngResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSentimentUnavailable, err)
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrSentimentUnavailable)
	}

	entry := payload.Data[0]
	value, err := strconv.Atoi(entry.Value)
	if err != nil {
		value = 50
	}
	classification := entry.ValueClassification
	if classification == "" {
		classification = "Neutral"
	}

	ts := time.Now().UTC()
	if unix, err := strconv.ParseInt(entry.Timestamp, 10, 64); err == nil {
		ts = time.Unix(unix, 0).UTC()
	}

	return &Index{Value: value, Classification: classification, Timestamp: ts}, nil
}

// History 拉取最近 days 天的历史读数（接口按天一条），按时间升序返回
func (c *Client) History(ctx context.Context, days int) (Series, error) {
	url := fmt.Sprintf("%s?limit=%d", c.baseURL, days)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSentimentUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSentimentUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http %d", ErrSentimentUnavailable, resp.StatusCode)
	}

	var payload fngResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSentimentUnavailable, err)
	}

	series := make(Series, 0, len(payload.Data))
	for _, entry := range payload.Data {
		value, err := strconv.Atoi(entry.Value)
		if err != nil {
			continue
		}
		unix, err := strconv.ParseInt(entry.Timestamp, 10, 64)
		if err != nil {
			continue
		}
		classification := entry.ValueClassification
		if classification == "" {
			classification = "Neutral"
		}
		series = append(series, Index{
			Value:          value,
			Classification: classification,
			Timestamp:      time.Unix(unix, 0).UTC(),
		})
	}

	// 接口按从新到旧返回
	sort.Slice(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	return series, nil
}

// Series 按时间排序的历史读数序列
type Series []Index

// Nearest 取与 ts 时间距离最近的读数
// 距离相同时取时间戳更早的那条，保证回放结果确定；空序列返回 nil
func (s Series) Nearest(ts time.Time) *Index {
	if len(s) == 0 {
		return nil
	}
	best := 0
	bestDist := absDuration(s[0].Timestamp.Sub(ts))
	for i := 1; i < len(s); i++ {
		dist := absDuration(s[i].Timestamp.Sub(ts))
		if dist < bestDist || (dist == bestDist && s[i].Timestamp.Before(s[best].Timestamp)) {
			best = i
			bestDist = dist
		}
	}
	idx := s[best]
	return &idx
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
