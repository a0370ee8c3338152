package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"alertreport/config"
	"alertreport/models"
)

// SlackDispatcher posts the report to an incoming webhook.
type SlackDispatcher struct {
	webhookURL string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewSlackDispatcher(webhookURL string, httpClient *http.Client, logger *logrus.Logger) *SlackDispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SlackDispatcher{webhookURL: webhookURL, httpClient: httpClient, logger: logger}
}

func (s *SlackDispatcher) Name() string {
	return config.ProviderSlack
}

func (s *SlackDispatcher) Send(ctx context.Context, req models.EmailRequest) models.DispatchResult {
	result := models.DispatchResult{Provider: s.Name()}

	if s.webhookURL == "" {
		result.Err = configError("send slack message", fmt.Errorf("SLACK_WEBHOOK_URL not set"))
		return result
	}

	text := req.Body
	if req.Subject != "" {
		text = fmt.Sprintf("*%s*\n\n%s", req.Subject, req.Body)
	}
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		result.Err = parseError("marshal slack payload", err)
		return result
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		result.Err = configError("send slack message", err)
		return result
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		result.Err = transportError("send slack message", err)
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	result.StatusCode = resp.StatusCode
	result.Body = string(body)
	if resp.StatusCode >= 400 {
		s.logger.WithField("status", resp.StatusCode).Warn("Slack webhook rejected report")
		result.Err = transportError("send slack message", fmt.Errorf("HTTP %d", resp.StatusCode))
		return result
	}

	s.logger.Debug("Slack report sent")
	return result
}
