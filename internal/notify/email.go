// Package notify holds the outbound collaborator ports: email delivery for
// pickup codes and the notification rows shown to admins and hub managers.
// Both are fire-and-forget from the state machine's point of view.
package notify

import (
	"context"

	"hub-order-service/internal/util"

	"go.uber.org/zap"
)

// Email is a message for the external email collaborator
type Email struct {
	To      string
	Subject string
	Body    string
}

// EmailSender delivers email. A failed send is reported, never retried
// synchronously and never rolled back into order state.
type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

// LogEmailSender writes email to the log instead of delivering it. It stands
// in for the external provider in development and tests.
type LogEmailSender struct {
	logger *zap.Logger
}

// NewLogEmailSender creates a log-backed email sender
func NewLogEmailSender() *LogEmailSender {
	return &LogEmailSender{logger: util.GetLogger()}
}

// Send logs the email
func (s *LogEmailSender) Send(_ context.Context, email Email) error {
	s.logger.Info("Email (log sender)",
		zap.String("to", email.To),
		zap.String("subject", email.Subject))
	return nil
}
