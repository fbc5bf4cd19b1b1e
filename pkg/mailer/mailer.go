package mailer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Message is a single outbound email.
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	TextBody  string
	HTMLBody  string
}

// Mailer sends transactional mail (verification links, invites).
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ConsoleMailer logs messages instead of delivering them. Used in development
// and in tests.
type ConsoleMailer struct {
	logger *zap.Logger
}

// NewConsoleMailer constructs a console-backed mailer.
func NewConsoleMailer(logger *zap.Logger) *ConsoleMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleMailer{logger: logger}
}

// Send writes the message to the log.
func (m *ConsoleMailer) Send(_ context.Context, msg Message) error {
	if msg.ToAddress == "" {
		return fmt.Errorf("mail message has no recipient")
	}
	m.logger.Info("outgoing mail",
		zap.String("to", msg.ToAddress),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.TextBody),
	)
	return nil
}
