package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"binstra/api"
	"binstra/backtest"
	"binstra/bot"
	"binstra/config"
	"binstra/exchange"
	"binstra/feargreed"
	"binstra/logger"
	"binstra/market"
	"binstra/state"
)

func main() {
	app := &cli.App{
		Name:  "binstra",
		Usage: "单资产 DCA 策略机器人：情绪与下跌双信号，支持历史回放",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.json",
				Usage:   "配置文件路径",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "实盘模式，按固定间隔执行决策周期",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "interval",
						Value: time.Hour,
						Usage: "决策周期间隔",
					},
				},
				Action: runLive,
			},
			{
				Name:  "backtest",
				Usage: "用已录制的历史数据回放策略",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "days",
						Required: true,
						Usage:    "回放天数，决定加载哪份数据文件",
					},
					&cli.StringFlag{
						Name:  "run-id",
						Usage: "运行标识，缺省自动生成",
					},
				},
				Action: runBacktest,
			},
			{
				Name:  "fetch",
				Usage: "录制回测数据：币安小时级收盘价 + 恐惧贪婪历史",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "days",
						Required: true,
						Usage:    "录制天数",
					},
				},
				Action: runFetch,
			},
			{
				Name:   "serve",
				Usage:  "启动只读监控与回测管理 API",
				Action: runServe,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("binstra 退出")
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.LogLevel)
	return cfg, nil
}

// newStore 状态文件以 .db/.sqlite 结尾时走 SQLite，否则整文件 JSON 快照
func newStore(cfg *config.Config) (state.Store, error) {
	if strings.HasSuffix(cfg.StateFile, ".db") || strings.HasSuffix(cfg.StateFile, ".sqlite") {
		return state.NewSQLiteStore(cfg.StateFile, "default")
	}
	return state.NewFileStore(cfg.StateFile), nil
}

func runLive(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Mode != config.ModeLive {
		return fmt.Errorf("run 命令要求 mode=live，当前为 %s", cfg.Mode)
	}
	if cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "" {
		return fmt.Errorf("缺少交易所密钥，请在 .env 设置 EXCHANGE_API_KEY / EXCHANGE_API_SECRET")
	}

	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	// 有快照就从快照续跑，没有就按配置的初始资金起步
	st, err := store.Load()
	if err != nil {
		if !errors.Is(err, state.ErrStateNotFound) {
			return err
		}
		st = state.New(cfg.Assets.InitialFiatAmount, cfg.Assets.CryptoSymbol, cfg.Assets.InitialCryptoAmount)
		logger.Log.Info().Msg("未找到历史快照，使用初始资金启动")
	} else {
		logger.Log.Info().
			Str("fiat", st.FiatBalance.StringFixed(2)).
			Int("active_baskets", len(st.ActiveBaskets)).
			Msg("从历史快照恢复")
	}

	ex := exchange.NewBinanceClient(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Assets.FiatSymbol, cfg.Exchange.Sandbox)
	sentiment := feargreed.NewClient("")
	tradeLogger := logger.NewTradeLogger(cfg.CycleLogDir)
	engine := bot.New(cfg, ex, sentiment, st, store, tradeLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := c.Duration("interval")
	logger.Log.Info().
		Str("symbol", cfg.Assets.CryptoSymbol).
		Dur("interval", interval).
		Msg("实盘模式启动")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 启动后立即执行一个周期，之后按间隔推进
	for {
		if err := engine.RunCycle(ctx); err != nil {
			// 单周期失败不终止进程，下个周期重试
			logger.Log.Error().Err(err).Msg("决策周期失败")
		}
		select {
		case <-ctx.Done():
			logger.Log.Info().Msg("收到退出信号，停止交易")
			return nil
		case <-ticker.C:
		}
	}
}

func runBacktest(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	btCfg := backtest.FromBotConfig(cfg, c.Int("days"))
	if id := c.String("run-id"); id != "" {
		btCfg.RunID = id
	}

	runner, err := backtest.NewRunner(btCfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("回测完成 (run_id=%s)\n", result.RunID)
	fmt.Printf("  区间:        %s ~ %s\n", result.StartDate.Format(time.RFC3339), result.EndDate.Format(time.RFC3339))
	fmt.Printf("  初始净值:    %s\n", result.InitialPortfolioValue.StringFixed(2))
	fmt.Printf("  最终净值:    %s\n", result.FinalPortfolioValue.StringFixed(2))
	fmt.Printf("  总收益:      %s (%s%%)\n", result.TotalReturn.StringFixed(2), result.TotalReturnPercent.StringFixed(2))
	fmt.Printf("  交易次数:    %d (胜率 %.1f%%)\n", result.TotalTrades, result.WinRate)
	fmt.Printf("  最大回撤:    %s (%s%%)\n", result.MaxDrawdown.StringFixed(2), result.MaxDrawdownPercent.StringFixed(2))
	return nil
}

func runFetch(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	days := c.Int("days")
	fetcher := market.NewFetcher(cfg.Assets.FiatSymbol)
	if err := fetcher.FetchHistoricalData(ctx, cfg.DataDir, cfg.Assets.CryptoSymbol, days); err != nil {
		return err
	}
	if err := fetcher.FetchFearGreedData(ctx, cfg.DataDir, days); err != nil {
		// 情绪序列是可选输入，录制失败不作废价格数据
		logger.Log.Warn().Err(err).Msg("恐惧贪婪数据录制失败，回测将使用降级默认值")
	}
	return nil
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg, store)
	return server.Run(cfg.APIServerPort)
}
