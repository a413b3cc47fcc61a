package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"binstra/config"
	"binstra/logger"
	"binstra/state"
)

// Server 只读监控 + 回测管理的 HTTP 服务
type Server struct {
	router      *gin.Engine
	corsOrigins []string
	cfg         *config.Config
	store       state.Store
	runs        *runManager
}

// NewServer 创建 API 服务；store 用于 /api/state 读取账本快照
func NewServer(cfg *config.Config, store state.Store) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		corsOrigins: []string{"*"},
		cfg:         cfg,
		store:       store,
		runs:        newRunManager(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(s.corsMiddleware())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	apiGroup := s.router.Group("/api")
	{
		apiGroup.GET("/health", s.handleHealth)
		apiGroup.GET("/state", s.handleState)
		apiGroup.GET("/statistics", s.handleStatistics)
		apiGroup.POST("/backtests", s.handleStartBacktest)
		apiGroup.GET("/backtests/:id", s.handleBacktestStatus)
		apiGroup.GET("/backtests/:id/result", s.handleBacktestResult)
	}
}

// Run 启动 HTTP 服务，阻塞直到监听失败
func (s *Server) Run(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logger.Log.Info().Str("addr", addr).Msg("API 服务启动")
	return s.router.Run(addr)
}

// corsMiddleware 按配置的来源白名单回写 CORS 头，"*" 表示放行所有来源
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": s.cfg.Mode})
}

// handleState 返回最近一次持久化的账本快照
func (s *Server) handleState(c *gin.Context) {
	st, err := s.store.Load()
	if err != nil {
		if errors.Is(err, state.ErrStateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "no state snapshot yet",
				"code":  "STATE_NOT_READY",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
			"code":  "STATE_LOAD_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleStatistics(c *gin.Context) {
	st, err := s.store.Load()
	if err != nil {
		if errors.Is(err, state.ErrStateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "no state snapshot yet",
				"code":  "STATE_NOT_READY",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
			"code":  "STATE_LOAD_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, st.Statistics())
}
