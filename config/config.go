package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Mode 运行模式
type Mode string

const (
	ModeLive     Mode = "live"
	ModeBacktest Mode = "backtest"
)

// ExchangeConfig 交易所接入配置，密钥从 .env 注入
type ExchangeConfig struct {
	Name      string `json:"name"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	Sandbox   bool   `json:"sandbox"`
}

// TradingConfig 策略参数
type TradingConfig struct {
	BasketCount            int             `json:"basket_count"`             // 最大在仓篮子数
	ProfitThresholdPercent decimal.Decimal `json:"profit_threshold_percent"` // 每个篮子的止盈目标
	MinInvestmentPercent   decimal.Decimal `json:"min_investment_percent"`   // 单次买入最小仓位百分比
	MaxInvestmentPercent   decimal.Decimal `json:"max_investment_percent"`   // 单次买入最大仓位百分比
	FearGreedThreshold     int             `json:"fear_greed_threshold"`     // 情绪买入阈值（<= 触发）
	BuyTheDipPercent       decimal.Decimal `json:"buy_the_dip_percent"`      // 下跌买入阈值百分比
}

// AssetConfig 初始资金与交易资产
type AssetConfig struct {
	InitialFiatAmount   decimal.Decimal `json:"initial_fiat_amount"`
	InitialCryptoAmount decimal.Decimal `json:"initial_crypto_amount"`
	FiatSymbol          string          `json:"fiat_symbol"`
	CryptoSymbol        string          `json:"crypto_symbol"`
}

// Config 完整运行配置
type Config struct {
	Exchange      ExchangeConfig `json:"exchange"`
	Trading       TradingConfig  `json:"trading"`
	Assets        AssetConfig    `json:"assets"`
	StateFile     string         `json:"state_file"`
	Mode          Mode           `json:"mode"`
	DataDir       string         `json:"data_dir"`        // 回测历史数据目录
	APIServerPort int            `json:"api_server_port"` // serve 模式监听端口
	LogLevel      string         `json:"log_level"`
	CycleLogDir   string         `json:"cycle_log_dir"`
}

// Load 读取 JSON 配置文件，.env 里的密钥覆盖文件内容
func Load(path string) (*Config, error) {
	// .env 不存在不算错误
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if key := os.Getenv("EXCHANGE_API_KEY"); key != "" {
		cfg.Exchange.APIKey = key
	}
	if secret := os.Getenv("EXCHANGE_API_SECRET"); secret != "" {
		cfg.Exchange.APISecret = secret
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StateFile == "" {
		c.StateFile = "bot_state.json"
	}
	if c.DataDir == "" {
		c.DataDir = "backtest-data"
	}
	if c.Mode == "" {
		c.Mode = ModeBacktest
	}
	if c.APIServerPort == 0 {
		c.APIServerPort = 8080
	}
	if c.CycleLogDir == "" {
		c.CycleLogDir = "cycle_logs"
	}
}

// Validate 校验策略参数范围
func (c *Config) Validate() error {
	if c.Assets.CryptoSymbol == "" || c.Assets.FiatSymbol == "" {
		return fmt.Errorf("assets.crypto_symbol 和 assets.fiat_symbol 不能为空")
	}
	if c.Trading.BasketCount <= 0 {
		return fmt.Errorf("trading.basket_count 必须大于 0")
	}
	if c.Trading.FearGreedThreshold < 0 || c.Trading.FearGreedThreshold > 100 {
		return fmt.Errorf("trading.fear_greed_threshold 必须在 0-100 之间")
	}
	if c.Trading.MinInvestmentPercent.IsNegative() ||
		c.Trading.MaxInvestmentPercent.LessThan(c.Trading.MinInvestmentPercent) {
		return fmt.Errorf("投资比例区间非法: min=%s max=%s",
			c.Trading.MinInvestmentPercent, c.Trading.MaxInvestmentPercent)
	}
	if c.Trading.BuyTheDipPercent.IsNegative() ||
		c.Trading.BuyTheDipPercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("trading.buy_the_dip_percent 必须在 [0,100) 区间")
	}
	if c.Mode != ModeLive && c.Mode != ModeBacktest {
		return fmt.Errorf("未知运行模式: %s", c.Mode)
	}
	return nil
}
