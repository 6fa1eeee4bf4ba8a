package delivery

import (
	"context"
	"errors"

	"reminderd/internal/domain"
)

var (
	ErrUnsupportedService = errors.New("unsupported integration service")
	ErrInvalidCredentials = errors.New("invalid integration credentials")
	ErrChannelUnsupported = errors.New("channel not supported by adapter")
	ErrNotConfigured      = errors.New("delivery provider not configured")
)

// EmailMessage is one rendered email for one recipient.
type EmailMessage struct {
	RecipientID string
	To          string
	ToName      string
	Subject     string
	HTML        string
	Text        string
}

// SMSMessage is one rendered SMS for one E.164 number.
type SMSMessage struct {
	RecipientID string
	To          string
	Body        string
}

// Result counts per-message outcomes of one adapter call.
type Result struct {
	Success       int
	Failure       int
	EstimatedCost float64
}

// Adapter delivers rendered messages through one provider.
//
// A returned error means the whole call failed and every message in it is
// counted as failed. Partial failures are reported through Result.
type Adapter interface {
	Name() string
	Supports(ch domain.Channel) bool
	SendEmail(ctx context.Context, msgs []EmailMessage) (Result, error)
	SendSMS(ctx context.Context, msgs []SMSMessage) (Result, error)
}

// EmailSender and SMSSender are the per-channel halves of an Adapter.
type EmailSender interface {
	SendEmail(ctx context.Context, msgs []EmailMessage) (Result, error)
}

type SMSSender interface {
	SendSMS(ctx context.Context, msgs []SMSMessage) (Result, error)
}

// channelAdapter combines optional channel senders under one name.
type channelAdapter struct {
	name  string
	email EmailSender
	sms   SMSSender
}

func (a *channelAdapter) Name() string { return a.name }

func (a *channelAdapter) Supports(ch domain.Channel) bool {
	switch ch {
	case domain.ChannelEmail:
		return a.email != nil
	case domain.ChannelSMS:
		return a.sms != nil
	case domain.ChannelBoth:
		return a.email != nil && a.sms != nil
	}
	return false
}

func (a *channelAdapter) SendEmail(ctx context.Context, msgs []EmailMessage) (Result, error) {
	if a.email == nil {
		return Result{}, ErrChannelUnsupported
	}
	return a.email.SendEmail(ctx, msgs)
}

func (a *channelAdapter) SendSMS(ctx context.Context, msgs []SMSMessage) (Result, error) {
	if a.sms == nil {
		return Result{}, ErrChannelUnsupported
	}
	return a.sms.SendSMS(ctx, msgs)
}
