package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Log struct {
	*slog.LevelVar
	*slog.Logger
}

// Logger 全局日志实例，命令行入口使用
var Logger *Log

func init() {
	Logger = New(os.Stderr)
	Logger.SetLogLevel("info")
}

// New 创建一个写入 w 的文本日志，time 字段改名为 timestamp
func New(w io.Writer) *Log {
	logLevel := &slog.LevelVar{}
	opts := &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "time" {
				return slog.Attr{Key: "timestamp", Value: slog.TimeValue(a.Value.Time())}
			}
			return a
		},
	}
	return &Log{
		LevelVar: logLevel,
		Logger:   slog.New(slog.NewTextHandler(w, opts)),
	}
}

// Discard 不输出任何内容，测试时注入
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (l *Log) SetLogLevel(level string) {
	level = strings.ToLower(level)
	switch level {
	case "debug":
		l.Set(slog.LevelDebug)
	case "info":
		l.Set(slog.LevelInfo)
	case "warn":
		l.Set(slog.LevelWarn)
	case "error":
		l.Set(slog.LevelError)
	}
}

// Lines 多行文本按行输出，空行跳过
func Lines(log *slog.Logger, level slog.Level, text string, args ...any) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		log.Log(context.Background(), level, line, args...)
	}
}

// ErrorLines 把错误链中每一层的信息分行输出
func ErrorLines(log *slog.Logger, err error) {
	for err != nil {
		next := errors.Unwrap(err)
		msg := err.Error()
		if next != nil {
			if own, ok := strings.CutSuffix(msg, next.Error()); ok {
				msg = strings.TrimSuffix(strings.TrimRight(own, " "), ":")
			}
		}
		Lines(log, slog.LevelError, msg)
		err = next
	}
}
