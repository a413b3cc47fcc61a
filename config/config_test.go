package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `{
	"exchange": {"name": "binance", "sandbox": true},
	"trading": {
		"basket_count": 5,
		"profit_threshold_percent": "5",
		"min_investment_percent": "10",
		"max_investment_percent": "50",
		"fear_greed_threshold": 30,
		"buy_the_dip_percent": "15"
	},
	"assets": {
		"initial_fiat_amount": "10000",
		"fiat_symbol": "USDT",
		"crypto_symbol": "BTC"
	},
	"mode": "backtest"
}`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Trading.BasketCount != 5 {
		t.Errorf("basket count = %d, want 5", cfg.Trading.BasketCount)
	}
	if !cfg.Trading.ProfitThresholdPercent.Equal(decimal.NewFromInt(5)) {
		t.Errorf("profit threshold = %s, want 5", cfg.Trading.ProfitThresholdPercent)
	}
	if cfg.Mode != ModeBacktest {
		t.Errorf("mode = %s, want backtest", cfg.Mode)
	}

	// 未填字段落默认值
	if cfg.StateFile != "bot_state.json" {
		t.Errorf("state file = %s, want bot_state.json", cfg.StateFile)
	}
	if cfg.DataDir != "backtest-data" {
		t.Errorf("data dir = %s, want backtest-data", cfg.DataDir)
	}
	if cfg.APIServerPort != 8080 {
		t.Errorf("api port = %d, want 8080", cfg.APIServerPort)
	}
}

func TestLoadEnvSecretsOverride(t *testing.T) {
	t.Setenv("EXCHANGE_API_KEY", "env-key")
	t.Setenv("EXCHANGE_API_SECRET", "env-secret")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Exchange.APIKey != "env-key" {
		t.Errorf("api key = %s, want env-key", cfg.Exchange.APIKey)
	}
	if cfg.Exchange.APISecret != "env-secret" {
		t.Errorf("api secret = %s, want env-secret", cfg.Exchange.APISecret)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Trading: TradingConfig{
				BasketCount:            5,
				ProfitThresholdPercent: decimal.NewFromInt(5),
				MinInvestmentPercent:   decimal.NewFromInt(10),
				MaxInvestmentPercent:   decimal.NewFromInt(50),
				FearGreedThreshold:     30,
				BuyTheDipPercent:       decimal.NewFromInt(15),
			},
			Assets: AssetConfig{FiatSymbol: "USDT", CryptoSymbol: "BTC"},
			Mode:   ModeBacktest,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing symbols", func(c *Config) { c.Assets.CryptoSymbol = "" }, true},
		{"zero baskets", func(c *Config) { c.Trading.BasketCount = 0 }, true},
		{"threshold above 100", func(c *Config) { c.Trading.FearGreedThreshold = 101 }, true},
		{"max below min", func(c *Config) {
			c.Trading.MaxInvestmentPercent = decimal.NewFromInt(5)
		}, true},
		{"dip percent at 100", func(c *Config) {
			c.Trading.BuyTheDipPercent = decimal.NewFromInt(100)
		}, true},
		{"unknown mode", func(c *Config) { c.Mode = "paper" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
