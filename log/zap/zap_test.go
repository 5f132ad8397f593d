package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/swrcache"
)

func TestLoggerWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Error("fetch failed", swrcache.Fields{"key": "/groups/g1", "err": errors.New("boom"), "attempts": 4})
	l.Debug("dedup", nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	e := entries[0]
	if e.Message != "fetch failed" || e.Level != zapcore.ErrorLevel || e.LoggerName != "swrcache" {
		t.Fatalf("unexpected entry %+v", e.Entry)
	}
	ctx := e.ContextMap()
	if ctx["key"] != "/groups/g1" || ctx["err"] != "boom" {
		t.Fatalf("unexpected context %v", ctx)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	l.Warn("nothing", swrcache.Fields{"a": 1})
}
