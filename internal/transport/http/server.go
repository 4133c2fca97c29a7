// Package opshttp 提供最小化的运维 HTTP 服务: 安全状态查询、kill switch 开关、
// 最近一次运行报告。不是看板, 只是给操作员和巡检脚本用的接口。
package opshttp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"skipper/internal/ledger/auditlog"
	"skipper/internal/logger"
	"skipper/internal/safety"
)

// Server wraps the gin router and its listen address.
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述运维服务依赖。
type ServerConfig struct {
	Addr   string
	Safety *safety.Machine
	Audit  *auditlog.Store
}

// NewServer 构建运维 HTTP server。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Safety == nil {
		return nil, errors.New("ops http server requires the safety machine")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9985"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	h := &handlers{safety: cfg.Safety, audit: cfg.Audit}
	api.GET("/safety", h.handleSafetyState)
	api.POST("/safety/killswitch", h.handleKillSwitch)
	api.GET("/runs/latest", h.handleLatestRun)

	return &Server{addr: cfg.Addr, router: router}, nil
}

type handlers struct {
	safety *safety.Machine
	audit  *auditlog.Store
}

func (h *handlers) handleSafetyState(c *gin.Context) {
	st, err := h.safety.State(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"drawdown_state":     st.DrawdownState.String(),
		"cooldown_remaining": st.CooldownRemaining,
		"peak_value_cents":   st.PeakPortfolioValueCents,
		"kill_switch_active": st.KillSwitchActive,
		"kill_switch_reason": st.KillSwitchReason,
		"updated_at":         st.UpdatedAtUnix,
	})
}

type killSwitchRequest struct {
	Active bool   `json:"active"`
	Reason string `json:"reason"`
}

func (h *handlers) handleKillSwitch(c *gin.Context) {
	var req killSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	if req.Active && strings.TrimSpace(req.Reason) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required when engaging the kill switch"})
		return
	}
	if err := h.safety.SetKillSwitch(c.Request.Context(), req.Active, req.Reason); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Warnf("运维接口: kill switch -> %v (%s)", req.Active, req.Reason)
	c.JSON(http.StatusOK, gin.H{"active": req.Active, "reason": req.Reason})
}

func (h *handlers) handleLatestRun(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit store not configured"})
		return
	}
	rec, ok, err := h.audit.LatestRunReport(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no runs recorded"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务并阻塞, ctx 取消时优雅退出。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
