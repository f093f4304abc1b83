package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes how the process logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	Audit       AuditConfig
}

// AuditConfig controls the audit stream. Ledger events, job submissions and
// execution outcomes are written there.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// state 保存当前生效的 logger 与它们打开的文件。
type state struct {
	mu    sync.RWMutex
	app   *slog.Logger
	audit *slog.Logger
	files []*lumberjack.Logger
}

var (
	current state

	fallbackOnce sync.Once
	fallback     *slog.Logger
)

// Init builds the process and audit loggers. A second call replaces both and
// closes the files opened by the previous one.
func Init(cfg Config) error {
	var files []*lumberjack.Logger
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: true}

	app, err := newAppLogger(cfg.Format, cfg.OutputPaths, opts, &files)
	if err != nil {
		closeFiles(files)
		return err
	}
	audit := app.With(slog.String("stream", "audit"))
	if cfg.Audit.Enabled {
		audit, err = newAuditLogger(cfg.Audit, &files)
		if err != nil {
			closeFiles(files)
			return err
		}
	}

	current.mu.Lock()
	previous := current.files
	current.app, current.audit, current.files = app, audit, files
	current.mu.Unlock()
	return closeFiles(previous)
}

func newAppLogger(format string, outputs []string, opts *slog.HandlerOptions, files *[]*lumberjack.Logger) (*slog.Logger, error) {
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	writers := make([]io.Writer, 0, len(outputs))
	for _, out := range outputs {
		switch strings.ToLower(strings.TrimSpace(out)) {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			file, err := rollingFile(out, AuditConfig{})
			if err != nil {
				return nil, err
			}
			*files = append(*files, file)
			writers = append(writers, file)
		}
	}

	writer := writers[0]
	if len(writers) > 1 {
		writer = io.MultiWriter(writers...)
	}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(writer, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(writer, opts)), nil
}

// newAuditLogger 审计流固定为 JSON 与 info 级别，便于离线检索。
func newAuditLogger(cfg AuditConfig, files *[]*lumberjack.Logger) (*slog.Logger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("audit log path cannot be empty when enabled")
	}
	file, err := rollingFile(cfg.Path, cfg)
	if err != nil {
		return nil, err
	}
	*files = append(*files, file)
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With(slog.String("stream", "audit")), nil
}

// rollingFile 返回按大小滚动的文件写入器，未设置的上限使用默认值。
func rollingFile(path string, limits AuditConfig) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for %s: %w", path, err)
	}
	if limits.MaxSizeMB <= 0 {
		limits.MaxSizeMB = 100
	}
	if limits.MaxBackups <= 0 {
		limits.MaxBackups = 7
	}
	if limits.MaxAgeDays <= 0 {
		limits.MaxAgeDays = 30
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    limits.MaxSizeMB,
		MaxBackups: limits.MaxBackups,
		MaxAge:     limits.MaxAgeDays,
		Compress:   limits.Compress,
	}, nil
}

func closeFiles(files []*lumberjack.Logger) error {
	var err error
	for _, file := range files {
		err = errors.Join(err, file.Close())
	}
	return err
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the process logger. Before Init it writes JSON to stderr.
func L() *slog.Logger {
	current.mu.RLock()
	app := current.app
	current.mu.RUnlock()
	if app != nil {
		return app
	}
	fallbackOnce.Do(func() {
		fallback = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	})
	return fallback
}

// Audit returns the audit logger.
func Audit() *slog.Logger {
	current.mu.RLock()
	audit := current.audit
	current.mu.RUnlock()
	if audit != nil {
		return audit
	}
	return L().With(slog.String("stream", "audit"))
}

// Named returns a child logger tagged with the provided component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}

// Sync 关闭当前打开的日志文件，之后的写入会重新打开文件。
func Sync() error {
	current.mu.RLock()
	defer current.mu.RUnlock()
	return closeFiles(current.files)
}
