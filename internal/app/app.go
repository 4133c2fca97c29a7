package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"skipper/internal/config"
	"skipper/internal/engine"
	"skipper/internal/ledger"
	"skipper/internal/ledger/auditlog"
	"skipper/internal/logger"
	"skipper/internal/report"
	"skipper/internal/safety"
	opshttp "skipper/internal/transport/http"
)

// App 负责应用级编排: 加载配置 → 初始化依赖 → 执行当日批次。
type App struct {
	cfg     *config.Config
	engine  *engine.Engine
	safety  *safety.Machine
	opsHTTP *opshttp.Server
	watcher *safety.Watcher
	store   ledger.Store
	audit   *auditlog.Store
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 执行一次当日批次。运维 HTTP 与 kill-switch 文件监听在批次期间同时运行,
// 批次结束后一并退出。
func (a *App) Run(ctx context.Context, date string) (*report.RunReport, error) {
	if a == nil || a.cfg == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, gctx := errgroup.WithContext(runCtx)

	if a.opsHTTP != nil {
		group.Go(func() error {
			if err := a.opsHTTP.Start(gctx); err != nil {
				return fmt.Errorf("ops http server error: %w", err)
			}
			return nil
		})
		logger.Infof("运维接口已启动: %s", a.opsHTTP.Addr())
	}
	if a.watcher != nil {
		group.Go(func() error {
			// 批次结束后 ctx 取消属于正常退出, 不作为错误上报。
			if err := a.watcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	var rep *report.RunReport
	group.Go(func() error {
		defer cancel()
		var err error
		rep, err = a.engine.Run(gctx, date)
		return err
	})

	err := group.Wait()
	return rep, err
}

// Safety exposes the safety machine for the CLI surface.
func (a *App) Safety() *safety.Machine {
	if a == nil {
		return nil
	}
	return a.safety
}

// Audit exposes the audit store for the CLI surface.
func (a *App) Audit() *auditlog.Store {
	if a == nil {
		return nil
	}
	return a.audit
}

// Close releases the stores.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var firstErr error
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			firstErr = err
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
