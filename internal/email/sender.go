package email

import (
	"context"
	"errors"
	"time"
)

// Sender define la interfaz para los correos transaccionales de autenticacion.
type Sender interface {
	SendRegistrationConfirmation(ctx context.Context, toEmail, link string, expiresAt time.Time) error
	SendPasswordReset(ctx context.Context, toEmail, link string, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendRegistrationConfirmation(_ context.Context, _, _ string, _ time.Time) error {
	return s.err()
}

func (s *disabledSender) SendPasswordReset(_ context.Context, _, _ string, _ time.Time) error {
	return s.err()
}

func (s *disabledSender) err() error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
