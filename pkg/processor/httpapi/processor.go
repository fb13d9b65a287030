// Package httpapi replays queued mutations against a REST backend.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/nimburion/offlinequeue/pkg/mutation"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

const (
	// IdempotencyKeyHeader carries the queued request id so the backend can
	// deduplicate replays of the same mutation.
	IdempotencyKeyHeader = "Idempotency-Key"
	// RetriesHeader carries the number of failed attempts so far.
	RetriesHeader = "X-Mutation-Retries"

	idPlaceholder  = "{id}"
	maxErrorBody   = 512
	defaultTimeout = 30 * time.Second
)

// Config configures a Processor.
type Config struct {
	// BaseURL is prepended to every request path.
	BaseURL string
	// Path overrides the request endpoint as the URL path. "{id}" is replaced
	// with the "id" field of the request data.
	Path    string
	Headers map[string]string
	Timeout time.Duration
	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64
	Burst     int
	// DropOnClientError resolves the delivery on 4xx responses other than
	// 408 and 429, so the request is removed instead of retried.
	DropOnClientError bool
	UserAgent         string
}

// StatusError reports a non-success HTTP response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests
}

// IsServerFailure reports whether err indicates an unhealthy backend rather
// than a rejected request. It is meant as a circuit breaker failure filter.
func IsServerFailure(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}

// Processor sends each mutation as a JSON request: CREATE as POST, UPDATE as
// PUT and DELETE as DELETE.
type Processor struct {
	client  *resty.Client
	path    string
	limiter *rate.Limiter
	drop4xx bool
	logger  logger.Logger
}

// New validates cfg and builds the resty client.
func New(cfg Config, log logger.Logger) (*Processor, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("base URL is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("base URL %q must be an absolute http or https URL", cfg.BaseURL)
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit must not be negative, got %v", cfg.RateLimit)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "offlinequeue"
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json")
	for k, v := range cfg.Headers {
		client.SetHeader(k, v)
	}

	p := &Processor{
		client:  client,
		path:    strings.TrimSpace(cfg.Path),
		drop4xx: cfg.DropOnClientError,
		logger:  log.With("component", "httpapi"),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return p, nil
}

// Process implements queue.Processor.
func (p *Processor) Process(ctx context.Context, req mutation.QueuedRequest) error {
	method, err := Method(req.Type)
	if err != nil {
		return err
	}
	path, err := p.resolvePath(req)
	if err != nil {
		return err
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	r := p.client.R().
		SetContext(ctx).
		SetHeader(IdempotencyKeyHeader, req.ID).
		SetHeader(RetriesHeader, strconv.Itoa(req.Retries))
	if len(bytes.TrimSpace(req.Data)) > 0 {
		r.SetHeader("Content-Type", "application/json").SetBody([]byte(req.Data))
	}

	resp, err := r.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	if status < http.StatusBadRequest {
		p.logger.WithContext(ctx).Debug("mutation replayed", "method", method, "path", path, "status", status)
		return nil
	}

	statusErr := &StatusError{
		Method:     method,
		URL:        path,
		StatusCode: status,
		Body:       truncate(strings.TrimSpace(string(resp.Body())), maxErrorBody),
	}
	if !statusErr.Retryable() && p.drop4xx {
		p.logger.WithContext(ctx).Warn("backend rejected mutation, dropping",
			"method", method,
			"path", path,
			"status", status,
			"endpoint", req.Endpoint,
		)
		return nil
	}
	return statusErr
}

// Method maps a request type to its HTTP method.
func Method(t mutation.RequestType) (string, error) {
	switch t {
	case mutation.TypeCreate:
		return http.MethodPost, nil
	case mutation.TypeUpdate:
		return http.MethodPut, nil
	case mutation.TypeDelete:
		return http.MethodDelete, nil
	default:
		return "", fmt.Errorf("%w: no HTTP method for request type %q", mutation.ErrValidation, t)
	}
}

func (p *Processor) resolvePath(req mutation.QueuedRequest) (string, error) {
	path := p.path
	if path == "" {
		path = req.Endpoint
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.Contains(path, idPlaceholder) {
		return path, nil
	}

	id, err := dataID(req.Data)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(path, idPlaceholder, url.PathEscape(id)), nil
}

func dataID(data json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", fmt.Errorf("%w: path requires data.id but request has no data", mutation.ErrValidation)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return "", fmt.Errorf("%w: path requires data.id: %v", mutation.ErrValidation, err)
	}
	switch id := fields["id"].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case json.Number:
		return id.String(), nil
	}
	return "", fmt.Errorf("%w: path requires a string or numeric data.id", mutation.ErrValidation)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
