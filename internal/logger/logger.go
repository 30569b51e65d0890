// Package logger writes process logs to a file. The MCP transport owns
// stdout and stderr, so nothing may ever log there.
package logger

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envLogPath = "ERP_MCP_LOG"

var (
	mu    sync.Mutex
	base  *zap.Logger
	sugar *zap.SugaredLogger
)

// InitFromEnv opens the sink named by ERP_MCP_LOG, falling back to
// erp-mcp.log next to the executable.
func InitFromEnv() error {
	path := os.Getenv(envLogPath)
	if path == "" {
		path = "./erp-mcp.log"
		if exe, err := os.Executable(); err == nil {
			path = filepath.Join(filepath.Dir(exe), "erp-mcp.log")
		}
	}
	return Init(path)
}

// Init opens path in append mode, creating parent directories as needed,
// and installs a zap logger over it. Repeat calls are no-ops until Close.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if base != nil {
		return nil
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(f),
		zap.NewAtomicLevelAt(zapcore.InfoLevel),
	)
	base = zap.New(core)
	sugar = base.Sugar()
	return nil
}

// Close flushes and drops the current sink.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		return nil
	}
	err := base.Sync()
	base, sugar = nil, nil
	return err
}

func Infof(format string, args ...any) {
	if l := get(); l != nil {
		l.Infof(format, args...)
	}
}

func Warnf(format string, args ...any) {
	if l := get(); l != nil {
		l.Warnf(format, args...)
	}
}

func Errorf(format string, args ...any) {
	if l := get(); l != nil {
		l.Errorf(format, args...)
	}
}

// get lazily initialises on first use so library code can log before main
// has run Init.
func get() *zap.SugaredLogger {
	mu.Lock()
	l := sugar
	mu.Unlock()
	if l == nil {
		_ = InitFromEnv()
		mu.Lock()
		l = sugar
		mu.Unlock()
	}
	return l
}
