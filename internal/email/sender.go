package email

import (
	"context"
	"errors"
	"time"
)

// Sender define la interfaz para envio de codigos de verificacion de cuenta.
type Sender interface {
	SendVerificationCode(ctx context.Context, toEmail string, code string, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

// NewDisabledSender devuelve un Sender que siempre falla; se usa cuando no hay SMTP configurado.
func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendVerificationCode(_ context.Context, _ string, _ string, _ time.Time) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
