// Package notify entrega los avisos (toasts) de exito y error que genera la sesion.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification es un aviso para mostrar al usuario; no forma parte del contrato de datos.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Sink recibe avisos fire-and-forget.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

func Success(ctx context.Context, sink Sink, message string) {
	send(ctx, sink, LevelSuccess, message)
}

func Error(ctx context.Context, sink Sink, message string) {
	send(ctx, sink, LevelError, message)
}

func send(ctx context.Context, sink Sink, level Level, message string) {
	if sink == nil {
		return
	}
	sink.Notify(ctx, Notification{Level: level, Message: message, At: time.Now().UTC()})
}

// LogSink escribe los avisos en el logger.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, n Notification) {
	fields := []zap.Field{zap.String("level", string(n.Level)), zap.String("message", n.Message)}
	if n.Level == LevelError {
		s.logger.Warn("notification", fields...)
		return
	}
	s.logger.Info("notification", fields...)
}

// Inbox guarda los ultimos avisos de una sesion hasta que el cliente los lee.
type Inbox struct {
	mu    sync.Mutex
	size  int
	items []Notification
}

func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = 20
	}
	return &Inbox{size: size}
}

func (b *Inbox) Notify(_ context.Context, n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, n)
	if over := len(b.items) - b.size; over > 0 {
		b.items = append([]Notification(nil), b.items[over:]...)
	}
}

// Drain devuelve los avisos pendientes en orden y vacia la bandeja.
func (b *Inbox) Drain() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	if out == nil {
		return []Notification{}
	}
	return out
}

type multiSink []Sink

// Multi reparte cada aviso a todos los sinks no nulos.
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multiSink) Notify(ctx context.Context, n Notification) {
	for _, s := range m {
		s.Notify(ctx, n)
	}
}
