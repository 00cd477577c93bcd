package logger

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func New(json bool, debug bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	encoding := "console"

	if json {
		encoding = "json"
	}

	if debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.Config{
		Encoding:         encoding,
		Level:            zap.NewAtomicLevelAt(level),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey: "msg",

			LevelKey:    "level",
			EncodeLevel: zapcore.LowercaseLevelEncoder,

			TimeKey:    "time",
			EncodeTime: zapcore.RFC3339TimeEncoder,

			CallerKey:    "caller",
			EncodeCaller: zapcore.ShortCallerEncoder,
		},
	}
	return cfg.Build()
}

// TruncateForLog shortens the provided string to the specified limit, appending an ellipsis when truncated.
func TruncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// PromptFields describes a prompt for debug logging. Token counting loads the
// BPE tables, so it only runs when the logger has debug enabled.
func PromptFields(log *zap.Logger, prompt string, previewLen int) []zap.Field {
	fields := []zap.Field{
		zap.Int("prompt_length", len([]rune(prompt))),
		zap.String("prompt_preview", TruncateForLog(prompt, previewLen)),
	}
	if log == nil || !log.Core().Enabled(zapcore.DebugLevel) {
		return fields
	}
	if n, err := CountTokens(prompt); err == nil {
		fields = append(fields, zap.Int("prompt_tokens", n))
	}
	return fields
}

// CountTokens approximates the token size of text with the cl100k encoding.
func CountTokens(text string) (int, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}
