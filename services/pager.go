package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/sirupsen/logrus"

	"alertreport/models"
)

const DefaultPageSize = 100

// cursor is the pagination state after a page: either NextPage or Done.
type cursor interface {
	isCursor()
}

// NextPage carries the continuation URL exactly as the API returned it.
type NextPage struct {
	URL string
}

// Done marks the last page.
type Done struct{}

func (NextPage) isCursor() {}
func (Done) isCursor()     {}

type alertsPage struct {
	Data   json.RawMessage `json:"data"`
	Paging *struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// AlertPager pages through the alerts API.
type AlertPager struct {
	endpoint   string
	apiKey     string
	pageSize   int
	httpClient *http.Client
	executor   failsafe.Executor[*http.Response]
	logger     *logrus.Logger
	metrics    *Metrics
}

// PagerOption configures an AlertPager.
type PagerOption func(*AlertPager)

func WithPagerHTTPClient(c *http.Client) PagerOption {
	return func(p *AlertPager) {
		if c != nil {
			p.httpClient = c
		}
	}
}

func WithPagerRetry(cfg RetryConfig) PagerOption {
	return func(p *AlertPager) {
		p.executor = NewHTTPExecutor(cfg)
	}
}

func WithPagerLogger(l *logrus.Logger) PagerOption {
	return func(p *AlertPager) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithPagerMetrics(m *Metrics) PagerOption {
	return func(p *AlertPager) {
		p.metrics = m
	}
}

// NewAlertPager creates a pager for endpoint. apiKey is sent verbatim as the
// Authorization header on every request.
func NewAlertPager(endpoint, apiKey string, pageSize int, opts ...PagerOption) *AlertPager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	p := &AlertPager{
		endpoint:   endpoint,
		apiKey:     apiKey,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   NewHTTPExecutor(DefaultRetryConfig()),
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AlertStream is a single-pass sequence of alerts for one query.
type AlertStream struct {
	pager    *AlertPager
	ctx      context.Context
	query    string
	pages    int
	consumed bool
}

// FetchAll prepares a stream for query. Nothing is requested until the
// stream's Records sequence is ranged over.
func (p *AlertPager) FetchAll(ctx context.Context, query string) *AlertStream {
	return &AlertStream{pager: p, ctx: ctx, query: query}
}

// Pages returns how many pages have been fetched so far.
func (s *AlertStream) Pages() int {
	return s.pages
}

// Records yields every alert in page order. The first error ends the
// sequence; records already yielded must then be treated as incomplete.
// Ranging a second time yields an error without issuing requests.
func (s *AlertStream) Records() iter.Seq2[models.AlertRecord, error] {
	return func(yield func(models.AlertRecord, error) bool) {
		if s.consumed {
			yield(models.AlertRecord{}, errors.New("alert stream already consumed"))
			return
		}
		s.consumed = true

		firstURL, err := s.pager.firstPageURL(s.query)
		if err != nil {
			yield(models.AlertRecord{}, err)
			return
		}

		var next cursor = NextPage{URL: firstURL}
		for {
			page, ok := next.(NextPage)
			if !ok {
				return
			}

			records, following, err := s.pager.fetchPage(s.ctx, page.URL)
			if err != nil {
				yield(models.AlertRecord{}, err)
				return
			}
			s.pages++
			s.pager.metrics.PageFetched()
			s.pager.logger.WithFields(logrus.Fields{
				"page":    s.pages,
				"records": len(records),
			}).Debug("Fetched alerts page")

			for _, rec := range records {
				if !yield(rec, nil) {
					return
				}
			}
			next = following
		}
	}
}

func (p *AlertPager) firstPageURL(query string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", configError("parse alerts endpoint", err)
	}
	q := u.Query()
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(p.pageSize))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// fetchPage issues one GET and decodes the page. Continuation links are used
// verbatim; relative links are resolved against the alerts endpoint.
func (p *AlertPager) fetchPage(ctx context.Context, pageURL string) ([]models.AlertRecord, cursor, error) {
	target, err := p.resolve(pageURL)
	if err != nil {
		return nil, nil, err
	}

	resp, err := executeHTTP(ctx, p.executor, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", p.apiKey)
		req.Header.Set("Accept", "application/json")
		return p.httpClient.Do(req)
	})
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, nil, transportError("fetch alerts page", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, transportError("read alerts page", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, transportError("fetch alerts page", fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 512)))
	}

	var page alertsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, nil, parseError("decode alerts page", err)
	}
	if page.Data == nil {
		return nil, nil, parseError("decode alerts page", errors.New("response has no data field"))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(page.Data, &items); err != nil {
		return nil, nil, parseError("decode alerts page", err)
	}

	records := make([]models.AlertRecord, 0, len(items))
	for i, item := range items {
		var rec models.AlertRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, nil, parseError("decode alert", fmt.Errorf("item %d: %w", i, err))
		}
		rec.Raw = item
		records = append(records, rec)
	}

	if page.Paging == nil || page.Paging.Next == "" {
		return records, Done{}, nil
	}
	return records, NextPage{URL: page.Paging.Next}, nil
}

func (p *AlertPager) resolve(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", parseError("parse next page link", err)
	}
	if u.IsAbs() {
		return pageURL, nil
	}
	base, err := url.Parse(p.endpoint)
	if err != nil {
		return "", configError("parse alerts endpoint", err)
	}
	return base.ResolveReference(u).String(), nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
