package delivery

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const sendgridURL = "https://api.sendgrid.com/v3/mail/send"

type sendgridMailer struct {
	apiKey   string
	endpoint string
	from     sgAddress
	cost     float64
	client   *http.Client
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgMail struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

// SendEmail issues one v3 mail/send request per message since bodies are per recipient.
func (s *sendgridMailer) SendEmail(ctx context.Context, msgs []EmailMessage) (Result, error) {
	var res Result
	for _, m := range msgs {
		body := sgMail{
			Personalizations: []sgPersonalization{{To: []sgAddress{{Email: m.To, Name: m.ToName}}}},
			From:             s.from,
			Subject:          m.Subject,
		}
		if m.Text != "" {
			body.Content = append(body.Content, sgContent{Type: "text/plain", Value: m.Text})
		}
		if m.HTML != "" {
			body.Content = append(body.Content, sgContent{Type: "text/html", Value: m.HTML})
		}
		_, err := postJSON(ctx, s.client, s.endpoint, body, withHeader("Authorization", "Bearer "+s.apiKey))
		if err != nil {
			if aerr := abortErr(ctx, err); aerr != nil {
				return Result{}, fmt.Errorf("sendgrid: %w", aerr)
			}
			res.Failure++
			continue
		}
		res.Success++
		res.EstimatedCost += s.cost
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("sendgrid: %w", err)
	}
	return res, nil
}

func sendgridEndpoint(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return sendgridURL
	}
	return base + "/v3/mail/send"
}
