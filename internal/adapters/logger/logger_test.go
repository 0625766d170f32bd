package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"Error", LevelError},
		{"nonsense", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestStdLogger_FiltersAndSortsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, LevelInfo)

	l.Debug(context.Background(), "hidden")
	l.Info(context.Background(), "order placed", map[string]interface{}{"symbol": "ETHUSDT", "qty": "0.5"})
	l.Error(context.Background(), errors.New("boom"), "cancel failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[INFO] order placed | qty=0.5 symbol=ETHUSDT")
	assert.Contains(t, out, "[ERROR] cancel failed | error: boom")
}

func TestZapLogger_WritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLoggerFrom(zap.New(core))

	l.Warn(context.Background(), "queue full", map[string]interface{}{"symbol": "BTCUSDT"})
	l.Error(context.Background(), errors.New("boom"), "submit failed")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "queue full", entries[0].Message)
		assert.Equal(t, "BTCUSDT", entries[0].ContextMap()["symbol"])
		assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
		assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	}
}
