package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/resend/resend-go/v2"

	"alertreport/config"
	"alertreport/models"
)

// ResendDispatcher delivers the report through the Resend API.
type ResendDispatcher struct {
	client   *resend.Client
	from     string
	fromName string
}

// NewResendDispatcher creates the client. baseURL is only set for tests and
// self-hosted proxies.
func NewResendDispatcher(apiKey, baseURL, from, fromName string, httpClient *http.Client) (*ResendDispatcher, error) {
	var client *resend.Client
	if httpClient != nil {
		client = resend.NewCustomClient(httpClient, apiKey)
	} else {
		client = resend.NewClient(apiKey)
	}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, configError("parse resend base url", err)
		}
		client.BaseURL = u
	}
	return &ResendDispatcher{client: client, from: from, fromName: fromName}, nil
}

func (r *ResendDispatcher) Name() string {
	return config.ProviderResend
}

func (r *ResendDispatcher) fromAddress() string {
	if r.fromName != "" {
		return fmt.Sprintf("%s <%s>", r.fromName, r.from)
	}
	return r.from
}

func (r *ResendDispatcher) Send(ctx context.Context, req models.EmailRequest) models.DispatchResult {
	result := models.DispatchResult{Provider: r.Name()}

	params := &resend.SendEmailRequest{
		From:    r.fromAddress(),
		To:      req.To,
		Cc:      req.Cc,
		Bcc:     req.Bcc,
		Subject: req.Subject,
		Text:    req.Body,
	}

	sent, err := r.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		result.Err = transportError("send email via resend", err)
		result.Body = err.Error()
		return result
	}

	result.StatusCode = http.StatusOK
	result.Body = sent.Id
	return result
}
