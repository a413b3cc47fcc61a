package backtest

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	botcfg "binstra/config"
)

// Config 单次回测运行的完整配置
type Config struct {
	RunID         string                `json:"run_id"`
	Asset         string                `json:"asset"`
	FiatSymbol    string                `json:"fiat_symbol"`
	Days          int                   `json:"days"`
	InitialFiat   decimal.Decimal       `json:"initial_fiat"`
	InitialCrypto decimal.Decimal       `json:"initial_crypto"`
	Trading       botcfg.TradingConfig  `json:"trading"`
	DataDir       string                `json:"data_dir"`
	OutputDir     string                `json:"output_dir"`
}

// StrategyConfig 结果里回显的策略参数
type StrategyConfig struct {
	BasketCount            int             `json:"basket_count"`
	ProfitThresholdPercent decimal.Decimal `json:"profit_threshold_percent"`
	MinInvestmentPercent   decimal.Decimal `json:"min_investment_percent"`
	MaxInvestmentPercent   decimal.Decimal `json:"max_investment_percent"`
	FearGreedThreshold     int             `json:"fear_greed_threshold"`
	BuyTheDipPercent       decimal.Decimal `json:"buy_the_dip_percent"`
}

// FromBotConfig 从运行配置派生回测配置
func FromBotConfig(cfg *botcfg.Config, days int) Config {
	return Config{
		Asset:         cfg.Assets.CryptoSymbol,
		FiatSymbol:    cfg.Assets.FiatSymbol,
		Days:          days,
		InitialFiat:   cfg.Assets.InitialFiatAmount,
		InitialCrypto: cfg.Assets.InitialCryptoAmount,
		Trading:       cfg.Trading,
		DataDir:       cfg.DataDir,
		OutputDir:     cfg.DataDir,
	}
}

func (c *Config) strategyConfig() StrategyConfig {
	return StrategyConfig{
		BasketCount:            c.Trading.BasketCount,
		ProfitThresholdPercent: c.Trading.ProfitThresholdPercent,
		MinInvestmentPercent:   c.Trading.MinInvestmentPercent,
		MaxInvestmentPercent:   c.Trading.MaxInvestmentPercent,
		FearGreedThreshold:     c.Trading.FearGreedThreshold,
		BuyTheDipPercent:       c.Trading.BuyTheDipPercent,
	}
}

func (c *Config) normalize() error {
	if c.Asset == "" {
		return fmt.Errorf("asset required")
	}
	if c.Days <= 0 {
		return fmt.Errorf("days must be positive")
	}
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}
	if c.FiatSymbol == "" {
		c.FiatSymbol = "USDT"
	}
	if c.DataDir == "" {
		c.DataDir = "backtest-data"
	}
	if c.OutputDir == "" {
		c.OutputDir = "backtest-data"
	}
	return nil
}
