package delivery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// GatewayConfig describes a form-post SMS HTTP gateway.
type GatewayConfig struct {
	Endpoint       string
	Username       string
	APIKey         string
	SenderID       string
	CostPerMessage float64
}

type smsGateway struct {
	cfg    GatewayConfig
	client *http.Client
}

func newSMSGateway(cfg GatewayConfig, client *http.Client) (*smsGateway, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("%w: sms endpoint is required", ErrNotConfigured)
	}
	return &smsGateway{cfg: cfg, client: client}, nil
}

// SendSMS posts one form request per message.
// Auth failures and an ended ctx abort the call; other failures are
// counted per message.
func (g *smsGateway) SendSMS(ctx context.Context, msgs []SMSMessage) (Result, error) {
	var res Result
	for _, m := range msgs {
		form := url.Values{}
		form.Set("username", g.cfg.Username)
		form.Set("senderid", g.cfg.SenderID)
		form.Set("mobile", m.To)
		form.Set("msg", m.Body)
		form.Set("output", "json")

		var opts []requestOption
		if g.cfg.APIKey != "" {
			opts = append(opts, withHeader("apikey", g.cfg.APIKey))
		}
		if _, err := postForm(ctx, g.client, g.cfg.Endpoint, form, opts...); err != nil {
			if aerr := abortErr(ctx, err); aerr != nil {
				return Result{}, fmt.Errorf("sms gateway: %w", aerr)
			}
			res.Failure++
			continue
		}
		res.Success++
		res.EstimatedCost += g.cfg.CostPerMessage
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("sms gateway: %w", err)
	}
	return res, nil
}
