// Package logging はアプリケーション共通の slog ロガーを設定します。
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New は format（"json" または "text"）と level 文字列に従ったロガーを生成します。
// 解釈できないレベルは INFO として扱います。
func New(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Setup は LOG_FORMAT と LOG_LEVEL からロガーを作成し、既定のロガーとして設定します。
func Setup() *slog.Logger {
	logger := New(os.Stdout, os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lv
}
