package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/sirupsen/logrus"

	"alertreport/config"
	"alertreport/models"
)

// Dispatcher delivers a finished report. Implementations never panic or
// return errors past Send; failures are carried in the result.
type Dispatcher interface {
	Name() string
	Send(ctx context.Context, req models.EmailRequest) models.DispatchResult
}

// Deliver calls d.Send and turns a panic into a failed result.
func Deliver(ctx context.Context, d Dispatcher, req models.EmailRequest) (res models.DispatchResult) {
	defer func() {
		if r := recover(); r != nil {
			res = models.DispatchResult{
				Provider: d.Name(),
				Err:      transportError("dispatch", fmt.Errorf("panic: %v", r)),
			}
		}
	}()
	return d.Send(ctx, req)
}

// NewDispatcher picks the delivery strategy named by cfg.Provider.
func NewDispatcher(cfg config.EmailConfig, httpCfg config.HTTPConfig, logger *logrus.Logger) (Dispatcher, error) {
	httpClient := &http.Client{Timeout: httpCfg.Timeout}
	switch cfg.Provider {
	case config.ProviderAPI, "":
		retry := RetryConfig{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  httpCfg.RetryBaseDelay,
			MaxDelay:   httpCfg.RetryMaxDelay,
		}
		return NewEmailAPIDispatcher(cfg.EmailEndpoint(), cfg.APIAuthHeader, cfg.APIToken,
			WithDispatchHTTPClient(httpClient), WithDispatchRetry(retry)), nil
	case config.ProviderSendGrid:
		return NewSendGridDispatcher(cfg.SendGridAPIKey, cfg.SendGridHost, cfg.From, cfg.FromName, httpClient), nil
	case config.ProviderResend:
		return NewResendDispatcher(cfg.ResendAPIKey, cfg.ResendBaseURL, cfg.From, cfg.FromName, httpClient)
	case config.ProviderSMTP:
		return NewSMTPDispatcher(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.From,
			FromName: cfg.FromName,
			Timeout:  httpCfg.Timeout,
		}), nil
	case config.ProviderSlack:
		return NewSlackDispatcher(cfg.SlackWebhookURL, httpClient, logger), nil
	default:
		return nil, configError("select dispatcher", fmt.Errorf("unknown provider %q", cfg.Provider))
	}
}

// EmailAPIDispatcher posts the report as a form to an HTTP email gateway.
type EmailAPIDispatcher struct {
	endpoint   string
	authHeader string
	token      string
	httpClient *http.Client
	executor   failsafe.Executor[*http.Response]
}

type DispatchOption func(*EmailAPIDispatcher)

func WithDispatchHTTPClient(c *http.Client) DispatchOption {
	return func(d *EmailAPIDispatcher) {
		if c != nil {
			d.httpClient = c
		}
	}
}

// WithDispatchRetry enables retries. A retried POST may deliver twice if the
// gateway accepted the first attempt but failed to answer.
func WithDispatchRetry(cfg RetryConfig) DispatchOption {
	return func(d *EmailAPIDispatcher) {
		if cfg.MaxRetries > 0 {
			d.executor = NewHTTPExecutor(cfg)
		}
	}
}

// NewEmailAPIDispatcher sends to endpoint with "<authHeader>: <token>".
func NewEmailAPIDispatcher(endpoint, authHeader, token string, opts ...DispatchOption) *EmailAPIDispatcher {
	if authHeader == "" {
		authHeader = "Authorization"
	}
	d := &EmailAPIDispatcher{
		endpoint:   endpoint,
		authHeader: authHeader,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *EmailAPIDispatcher) Name() string {
	return config.ProviderAPI
}

func (d *EmailAPIDispatcher) Send(ctx context.Context, req models.EmailRequest) models.DispatchResult {
	result := models.DispatchResult{Provider: d.Name()}

	form := url.Values{}
	form.Set("subject", req.Subject)
	form.Set("to", strings.Join(req.To, ","))
	form.Set("cc", strings.Join(req.Cc, ","))
	form.Set("bcc", strings.Join(req.Bcc, ","))
	form.Set("body", req.Body)
	encoded := form.Encode()

	resp, err := executeHTTP(ctx, d.executor, func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if d.token != "" {
			httpReq.Header.Set(d.authHeader, d.token)
		}
		return d.httpClient.Do(httpReq)
	})
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		result.Err = transportError("send email", err)
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	result.StatusCode = resp.StatusCode
	result.Body = string(body)
	if err != nil {
		result.Err = transportError("read email response", err)
		return result
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Err = transportError("send email", fmt.Errorf("HTTP %d", resp.StatusCode))
	}
	return result
}
