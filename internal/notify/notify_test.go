package notify

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInbox_DrainKeepsOrderAndBounds(t *testing.T) {
	inbox := NewInbox(2)
	ctx := context.Background()
	Success(ctx, inbox, "one")
	Error(ctx, inbox, "two")
	Success(ctx, inbox, "three")

	items := inbox.Drain()
	if len(items) != 2 || items[0].Message != "two" || items[1].Message != "three" {
		t.Fatalf("unexpected items %+v", items)
	}
	if items[0].Level != LevelError || items[1].Level != LevelSuccess {
		t.Fatalf("unexpected levels %+v", items)
	}
	if again := inbox.Drain(); len(again) != 0 || again == nil {
		t.Fatalf("expected empty non-nil slice after drain, got %#v", again)
	}
}

func TestMultiAndLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	inbox := NewInbox(5)
	sink := Multi(NewLogSink(zap.New(core)), nil, inbox)

	Success(context.Background(), sink, "Account Created!")
	Error(context.Background(), sink, "Login failed")

	if got := len(inbox.Drain()); got != 2 {
		t.Fatalf("expected 2 inbox items, got %d", got)
	}
	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zap.InfoLevel || entries[1].Level != zap.WarnLevel {
		t.Fatalf("unexpected log levels %v %v", entries[0].Level, entries[1].Level)
	}
}

func TestNilSinkIsIgnored(t *testing.T) {
	Success(context.Background(), nil, "ignored")
}
