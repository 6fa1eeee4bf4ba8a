package delivery

import (
	"errors"
	"net/http"
)

// DefaultConfig is the platform-owned provider.
// Either half may be left empty; that channel is then unsupported.
type DefaultConfig struct {
	SMTP    SMTPConfig
	Gateway GatewayConfig
}

// NewDefault builds the platform provider. It fails only when neither
// channel is configured.
func NewDefault(cfg DefaultConfig, client *http.Client) (Adapter, error) {
	a := &channelAdapter{name: "default"}
	if m, err := newSMTPMailer(cfg.SMTP); err == nil {
		a.email = m
	}
	if g, err := newSMSGateway(cfg.Gateway, client); err == nil {
		a.sms = g
	}
	if a.email == nil && a.sms == nil {
		return nil, errors.Join(ErrNotConfigured, errors.New("neither smtp nor sms gateway configured"))
	}
	return a, nil
}
