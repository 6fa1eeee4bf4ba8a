package delivery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"reminderd/internal/domain"
)

// Credentials is the decoded, validated secret material of an integration.
// Concrete types: SMTPCredentials, APIKeyCredentials, TwilioCredentials.
type Credentials interface {
	Service() domain.ServiceType
}

type SMTPCredentials struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	ImplicitTLS bool   `json:"implicit_tls,omitempty"`
}

func (SMTPCredentials) Service() domain.ServiceType { return domain.ServiceSMTP }

type APIKeyCredentials struct {
	APIKey string `json:"api_key"`
}

func (APIKeyCredentials) Service() domain.ServiceType { return domain.ServiceSendGrid }

type TwilioCredentials struct {
	AccountSID          string `json:"account_sid"`
	AuthToken           string `json:"auth_token"`
	MessagingServiceSID string `json:"messaging_service_sid,omitempty"`
}

func (TwilioCredentials) Service() domain.ServiceType { return domain.ServiceTwilio }

// DecodeCredentials parses decrypted credential JSON for st.
// Unknown fields and missing required fields are rejected.
func DecodeCredentials(st domain.ServiceType, plaintext []byte) (Credentials, error) {
	switch st {
	case domain.ServiceSMTP:
		var c SMTPCredentials
		if err := decodeStrict(plaintext, &c); err != nil {
			return nil, err
		}
		if strings.TrimSpace(c.Host) == "" {
			return nil, fmt.Errorf("%w: smtp host is required", ErrInvalidCredentials)
		}
		if c.Port < 0 || c.Port > 65535 {
			return nil, fmt.Errorf("%w: smtp port out of range", ErrInvalidCredentials)
		}
		return c, nil
	case domain.ServiceSendGrid:
		var c APIKeyCredentials
		if err := decodeStrict(plaintext, &c); err != nil {
			return nil, err
		}
		if strings.TrimSpace(c.APIKey) == "" {
			return nil, fmt.Errorf("%w: api_key is required", ErrInvalidCredentials)
		}
		return c, nil
	case domain.ServiceTwilio:
		var c TwilioCredentials
		if err := decodeStrict(plaintext, &c); err != nil {
			return nil, err
		}
		if strings.TrimSpace(c.AccountSID) == "" || strings.TrimSpace(c.AuthToken) == "" {
			return nil, fmt.Errorf("%w: account_sid and auth_token are required", ErrInvalidCredentials)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedService, st)
	}
}

func decodeStrict(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return nil
}
