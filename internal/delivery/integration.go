package delivery

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"reminderd/internal/domain"
)

// Integration config keys.
const (
	ConfigBaseURL        = "base_url"
	ConfigCostPerMessage = "cost_per_message"
)

// NewIntegration builds the adapter for an account-owned integration.
// creds must come from DecodeCredentials for the same service type.
func NewIntegration(integ domain.Integration, creds Credentials, client *http.Client) (Adapter, error) {
	if creds == nil || creds.Service() != integ.ServiceType {
		return nil, fmt.Errorf("%w: credentials do not match service %q", ErrInvalidCredentials, integ.ServiceType)
	}
	cost, err := parseCost(integ.Config)
	if err != nil {
		return nil, err
	}
	base := integ.Config[ConfigBaseURL]
	name := "integration:" + string(integ.ServiceType)

	switch c := creds.(type) {
	case SMTPCredentials:
		m, err := newSMTPMailer(SMTPConfig{
			Host:        c.Host,
			Port:        c.Port,
			Username:    c.Username,
			Password:    c.Password,
			From:        integ.SenderEmail,
			FromName:    integ.SenderName,
			ImplicitTLS: c.ImplicitTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return &channelAdapter{name: name, email: m}, nil
	case APIKeyCredentials:
		if strings.TrimSpace(integ.SenderEmail) == "" {
			return nil, fmt.Errorf("%w: sendgrid needs a sender email", ErrInvalidCredentials)
		}
		return &channelAdapter{name: name, email: &sendgridMailer{
			apiKey:   c.APIKey,
			endpoint: sendgridEndpoint(base),
			from:     sgAddress{Email: integ.SenderEmail, Name: integ.SenderName},
			cost:     cost,
			client:   client,
		}}, nil
	case TwilioCredentials:
		t, err := newTwilioSender(c, integ.SenderPhone, base, cost, client)
		if err != nil {
			return nil, err
		}
		return &channelAdapter{name: name, sms: t}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedService, integ.ServiceType)
	}
}

func parseCost(cfg map[string]string) (float64, error) {
	raw := strings.TrimSpace(cfg[ConfigCostPerMessage])
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidCredentials, ConfigCostPerMessage)
	}
	return v, nil
}
