package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger 封装slog，支持可选的debug日志文件
type Logger struct {
	*slog.Logger
	debugFile *os.File
	mu        sync.RWMutex
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init 初始化全局logger
func Init() *Logger {
	once.Do(func() {
		defaultLogger = &Logger{
			Logger: slog.New(newTextHandler(os.Stdout, slog.LevelInfo)),
		}
	})
	return defaultLogger
}

// GetLogger 获取全局logger实例
func GetLogger() *Logger {
	if defaultLogger == nil {
		return Init()
	}
	return defaultLogger
}

// newTextHandler 创建自定义文本handler
func newTextHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("2006-01-02 15:04:05"))
			}
			if a.Key == slog.LevelKey {
				lv := a.Value.Any().(slog.Level)
				switch lv {
				case slog.LevelDebug:
					return slog.String("level", "DEBUG")
				case slog.LevelInfo:
					return slog.String("level", "INFO ")
				case slog.LevelWarn:
					return slog.String("level", "WARN ")
				case slog.LevelError:
					return slog.String("level", "ERROR")
				}
			}
			return a
		},
	})
}

// EnableDebugLog 开启debug日志文件，同时输出到控制台
func (l *Logger) EnableDebugLog(filePath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.debugFile != nil {
		l.debugFile.Close()
	}

	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("创建日志文件失败: %w", err)
	}

	l.debugFile = f
	l.Logger = slog.New(newTextHandler(io.MultiWriter(os.Stdout, f), slog.LevelDebug))
	l.Info("Debug日志已开启", "file", filePath)
	return nil
}

// DisableDebugLog 关闭debug日志文件，返回其路径
func (l *Logger) DisableDebugLog() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.debugFile == nil {
		return ""
	}

	filePath := l.debugFile.Name()
	l.debugFile.Close()
	l.debugFile = nil
	l.Logger = slog.New(newTextHandler(os.Stdout, slog.LevelInfo))
	return filePath
}

// IsDebugEnabled 检查debug模式是否开启
func (l *Logger) IsDebugEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.debugFile != nil
}

// sanitizeArgs 脱敏口令和token类字段
func sanitizeArgs(args []any) []any {
	if len(args) == 0 {
		return args
	}

	result := make([]any, len(args))
	copy(result, args)

	for i := 0; i < len(result)-1; i += 2 {
		key, ok := result[i].(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(key)
		if strings.Contains(lower, "password") || strings.Contains(lower, "token") || strings.Contains(lower, "secret") {
			result[i+1] = "***"
		}
	}

	return result
}

// 全局便捷方法
func Info(msg string, args ...any) {
	GetLogger().Info(msg, sanitizeArgs(args)...)
}

func Warn(msg string, args ...any) {
	GetLogger().Warn(msg, sanitizeArgs(args)...)
}

func Error(msg string, args ...any) {
	GetLogger().Error(msg, sanitizeArgs(args)...)
}

func Debug(msg string, args ...any) {
	GetLogger().Debug(msg, sanitizeArgs(args)...)
}

// EnableDebug 全局开启debug日志
func EnableDebug(filePath string) error {
	return GetLogger().EnableDebugLog(filePath)
}

// DisableDebug 全局关闭debug日志
func DisableDebug() string {
	return GetLogger().DisableDebugLog()
}
