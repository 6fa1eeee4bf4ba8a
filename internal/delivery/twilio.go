package delivery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const twilioBaseURL = "https://api.twilio.com"

type twilioSender struct {
	creds    TwilioCredentials
	from     string
	endpoint string
	cost     float64
	client   *http.Client
}

func newTwilioSender(creds TwilioCredentials, from, base string, cost float64, client *http.Client) (*twilioSender, error) {
	if from == "" && creds.MessagingServiceSID == "" {
		return nil, fmt.Errorf("%w: twilio needs a sender phone or messaging_service_sid", ErrInvalidCredentials)
	}
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = twilioBaseURL
	}
	return &twilioSender{
		creds:    creds,
		from:     from,
		endpoint: fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", base, url.PathEscape(creds.AccountSID)),
		cost:     cost,
		client:   client,
	}, nil
}

func (t *twilioSender) SendSMS(ctx context.Context, msgs []SMSMessage) (Result, error) {
	var res Result
	for _, m := range msgs {
		form := url.Values{}
		form.Set("To", m.To)
		form.Set("Body", m.Body)
		if t.creds.MessagingServiceSID != "" {
			form.Set("MessagingServiceSid", t.creds.MessagingServiceSID)
		} else {
			form.Set("From", t.from)
		}
		if _, err := postForm(ctx, t.client, t.endpoint, form, withBasicAuth(t.creds.AccountSID, t.creds.AuthToken)); err != nil {
			if aerr := abortErr(ctx, err); aerr != nil {
				return Result{}, fmt.Errorf("twilio: %w", aerr)
			}
			res.Failure++
			continue
		}
		res.Success++
		res.EstimatedCost += t.cost
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("twilio: %w", err)
	}
	return res, nil
}
