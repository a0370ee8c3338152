package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"alertreport/config"
	"alertreport/models"
)

const sendGridSendPath = "/v3/mail/send"

// SendGridDispatcher delivers the report through SendGrid's v3 mail API.
type SendGridDispatcher struct {
	apiKey   string
	host     string
	from     string
	fromName string
	client   *rest.Client
}

// NewSendGridDispatcher uses httpClient for every request; nil means a
// client with a 30s timeout.
func NewSendGridDispatcher(apiKey, host, from, fromName string, httpClient *http.Client) *SendGridDispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if host == "" {
		host = "https://api.sendgrid.com"
	}
	if fromName == "" {
		fromName = "Alert Report"
	}
	return &SendGridDispatcher{
		apiKey:   apiKey,
		host:     host,
		from:     from,
		fromName: fromName,
		client:   &rest.Client{HTTPClient: httpClient},
	}
}

func (s *SendGridDispatcher) Name() string {
	return config.ProviderSendGrid
}

// buildMessage puts every recipient in one personalization so To, Cc and Bcc
// receive a single shared message.
func (s *SendGridDispatcher) buildMessage(req models.EmailRequest) *mail.SGMailV3 {
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(s.fromName, s.from))
	message.Subject = req.Subject

	p := mail.NewPersonalization()
	for _, addr := range req.To {
		p.AddTos(mail.NewEmail("", addr))
	}
	for _, addr := range req.Cc {
		p.AddCCs(mail.NewEmail("", addr))
	}
	for _, addr := range req.Bcc {
		p.AddBCCs(mail.NewEmail("", addr))
	}
	message.AddPersonalizations(p)
	message.AddContent(mail.NewContent("text/plain", req.Body))
	return message
}

func (s *SendGridDispatcher) Send(ctx context.Context, req models.EmailRequest) models.DispatchResult {
	result := models.DispatchResult{Provider: s.Name()}
	if err := ctx.Err(); err != nil {
		result.Err = transportError("send email via sendgrid", err)
		return result
	}

	request := sendgrid.GetRequest(s.apiKey, sendGridSendPath, s.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(s.buildMessage(req))

	response, err := s.client.SendWithContext(ctx, request)
	if err != nil {
		result.Err = transportError("send email via sendgrid", err)
		return result
	}

	result.StatusCode = response.StatusCode
	result.Body = response.Body
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		result.Err = transportError("send email via sendgrid", fmt.Errorf("HTTP %d", response.StatusCode))
	}
	return result
}
