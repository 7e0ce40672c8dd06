package log_test

import (
	"context"
	"testing"

	"github.com/jrife/cfstore/utils/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestOperation(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := log.WithFields(context.Background(), zap.String("table", "t1"))

	log.Operation(ctx, zap.New(core), "Get").Debug("start")

	entries := logs.AllUntimed()

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	fields := entries[0].ContextMap()

	if fields["table"] != "t1" || fields["operation"] != "Get" {
		t.Fatalf("expected table and operation fields, got %#v", fields)
	}
}

func TestLoggerFromContext(t *testing.T) {
	defaultLogger := zap.NewNop()
	logger, ctx := log.LoggerFromContext(context.Background(), defaultLogger)

	if logger != defaultLogger {
		t.Fatalf("expected the default logger")
	}

	if log.Logger(ctx) != defaultLogger {
		t.Fatalf("expected the default logger to be attached to the context")
	}
}
