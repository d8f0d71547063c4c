package auth

import (
	"context"
	"log/slog"
)

// VerificationMessage is the payload handed to an EmailSender when a code is issued.
type VerificationMessage struct {
	UserID int64
	Name   string
	Email  string
	Code   string
}

// EmailSender delivers verification codes.
type EmailSender interface {
	SendVerificationCode(ctx context.Context, msg VerificationMessage) error
}

// NoopEmailSender drops every message.
type NoopEmailSender struct{}

// SendVerificationCode is a no-op.
func (NoopEmailSender) SendVerificationCode(_ context.Context, _ VerificationMessage) error {
	return nil
}

// LogEmailSender writes issued codes to the log. Dev only: the code is logged at debug level.
type LogEmailSender struct {
	Log *slog.Logger
}

// SendVerificationCode logs the message.
func (s LogEmailSender) SendVerificationCode(ctx context.Context, msg VerificationMessage) error {
	if s.Log == nil {
		return nil
	}
	s.Log.InfoContext(ctx, "auth.verification.issued", "user_id", msg.UserID, "email", msg.Email)
	s.Log.DebugContext(ctx, "auth.verification.code", "user_id", msg.UserID, "code", msg.Code)
	return nil
}
