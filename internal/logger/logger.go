// Package logger 是 slog 之上的薄封装, 面向一天一跑的批处理进程:
// 进程级别的级别/输出控制, 加上绑定在每一行上的运行标识
// (运行日期 + trace id), 方便事后按 run 聚合日志。
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

type sink struct {
	mu    sync.RWMutex
	level slog.LevelVar
	out   *slog.Logger
	// run-scoped attrs, attached to every record until the run ends
	runArgs []any
}

var global = newSink(os.Stdout)

func newSink(w io.Writer) *sink {
	s := &sink{}
	s.level.Set(slog.LevelInfo)
	s.out = s.build(w)
	return s
}

func (s *sink) build(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &s.level}))
}

func (s *sink) emit(level slog.Level, format string, v ...any) {
	s.mu.RLock()
	out, args := s.out, s.runArgs
	s.mu.RUnlock()
	out.Log(context.Background(), level, fmt.Sprintf(format, v...), args...)
}

// SetOutput 重定向全部日志 (比如 run 子命令加开文件输出)。
func SetOutput(w io.Writer) {
	global.mu.Lock()
	global.out = global.build(w)
	global.mu.Unlock()
}

// SetLevel 按配置字符串设置级别, 未知值落回 info。
func SetLevel(level string) {
	lv, ok := levelNames[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		lv = slog.LevelInfo
	}
	global.level.Set(lv)
}

// BindRun 把运行日期和 trace id 挂到之后的每一行日志上。
// 引擎在 Run 入口调用, 结束时 UnbindRun。
func BindRun(date, traceID string) {
	if len(traceID) > 8 {
		traceID = traceID[:8]
	}
	global.mu.Lock()
	global.runArgs = []any{"run", date, "trace", traceID}
	global.mu.Unlock()
}

// UnbindRun 清除运行标识。
func UnbindRun() {
	global.mu.Lock()
	global.runArgs = nil
	global.mu.Unlock()
}

func Debugf(format string, v ...any) { global.emit(slog.LevelDebug, format, v...) }
func Infof(format string, v ...any)  { global.emit(slog.LevelInfo, format, v...) }
func Warnf(format string, v ...any)  { global.emit(slog.LevelWarn, format, v...) }
func Errorf(format string, v ...any) { global.emit(slog.LevelError, format, v...) }

// InfoBlock 按行输出一个多行文本块 (运行报告), 每行都带完整前缀,
// grep 单行也能看到级别和运行标识。
func InfoBlock(block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	for _, line := range strings.Split(block, "\n") {
		Infof("%s", line)
	}
}
