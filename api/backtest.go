package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"binstra/backtest"
	"binstra/logger"
)

// runManager 持有本进程内启动的全部回测运行
type runManager struct {
	mu   sync.RWMutex
	runs map[string]*backtest.Runner
}

func newRunManager() *runManager {
	return &runManager{runs: make(map[string]*backtest.Runner)}
}

func (m *runManager) add(r *backtest.Runner) {
	m.mu.Lock()
	m.runs[r.RunID()] = r
	m.mu.Unlock()
}

func (m *runManager) get(id string) (*backtest.Runner, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	return r, ok
}

// startBacktestRequest 回测启动请求，未填字段用运行配置的值
type startBacktestRequest struct {
	Days          int              `json:"days" binding:"required,gt=0"`
	InitialFiat   *decimal.Decimal `json:"initial_fiat"`
	InitialCrypto *decimal.Decimal `json:"initial_crypto"`
}

// handleStartBacktest 异步启动一次回测，立刻返回 run_id
func (s *Server) handleStartBacktest(c *gin.Context) {
	var req startBacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
			"code":  "INVALID_REQUEST",
		})
		return
	}

	cfg := backtest.FromBotConfig(s.cfg, req.Days)
	if req.InitialFiat != nil {
		cfg.InitialFiat = *req.InitialFiat
	}
	if req.InitialCrypto != nil {
		cfg.InitialCrypto = *req.InitialCrypto
	}

	runner, err := backtest.NewRunner(cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
			"code":  "BACKTEST_INIT_FAILED",
		})
		return
	}

	s.runs.add(runner)
	go func() {
		if _, err := runner.Run(context.Background()); err != nil {
			logger.Log.Error().Err(err).Str("run_id", runner.RunID()).Msg("回测运行失败")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"run_id": runner.RunID()})
}

func (s *Server) handleBacktestStatus(c *gin.Context) {
	runner, ok := s.runs.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "backtest run not found",
			"code":  "RUN_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, runner.StatusPayload())
}

// handleBacktestResult 结果只在运行完成后可读，未完成返回 404
func (s *Server) handleBacktestResult(c *gin.Context) {
	id := c.Param("id")
	runner, ok := s.runs.get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "backtest run not found",
			"code":  "RUN_NOT_FOUND",
		})
		return
	}
	result := runner.Result()
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "result not ready yet",
			"code":  "RESULT_NOT_READY",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}
