package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultReasoningEffort   = "medium"
	defaultRetries           = 2
	defaultRetryBackoff      = 1500 * time.Millisecond
	defaultTimeout           = 2 * time.Minute
	defaultMaxOutputBytes    = 256 * 1024
	defaultMaxOutputTokens   = 4000
	maxHTTPErrorBodyReadSize = 64 * 1024
)

var allowedReasoningEfforts = map[string]struct{}{
	"none":   {},
	"low":    {},
	"medium": {},
	"high":   {},
}

// RequestMetrics receives one observation per Complete call.
type RequestMetrics interface {
	LLMRequest(status string, d time.Duration)
}

type Config struct {
	Endpoint          string
	Model             string
	ReasoningEffort   string
	AuthToken         string
	Timeout           time.Duration
	Retries           *int // nil selects the default; 0 disables retries
	RetryBackoff      time.Duration
	MaxOutputBytes    int
	MaxOutputTokens   int
	RequestsPerSecond float64
	Logger            *zap.Logger
	Metrics           RequestMetrics
	Client            *http.Client
}

type Request struct {
	Instructions    string
	Input           string
	ReasoningEffort string
}

// Client talks to an OpenAI Responses-compatible endpoint in streaming mode.
// It is safe for concurrent use; all callers share one rate limiter.
type Client struct {
	endpoint        string
	model           string
	reasoningEffort string
	authToken       string
	retries         int
	retryBackoff    time.Duration
	maxOutputBytes  int
	maxOutputTokens int
	limiter         *rate.Limiter
	logger          *zap.Logger
	metrics         RequestMetrics
	client          *http.Client
}

func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("empty API endpoint")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid API endpoint %q: %w", endpoint, err)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("empty model")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := defaultRetries
	if cfg.Retries != nil {
		retries = max(*cfg.Retries, 0)
	}
	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = defaultRetryBackoff
	}
	maxOutputBytes := cfg.MaxOutputBytes
	if maxOutputBytes <= 0 {
		maxOutputBytes = defaultMaxOutputBytes
	}
	maxOutputTokens := cfg.MaxOutputTokens
	if maxOutputTokens <= 0 {
		maxOutputTokens = defaultMaxOutputTokens
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: timeout,
		}
	}

	return &Client{
		endpoint:        endpoint,
		model:           model,
		reasoningEffort: normalizeReasoningEffort(cfg.ReasoningEffort),
		authToken:       strings.TrimSpace(cfg.AuthToken),
		retries:         retries,
		retryBackoff:    retryBackoff,
		maxOutputBytes:  maxOutputBytes,
		maxOutputTokens: maxOutputTokens,
		limiter:         limiter,
		logger:          logger.With(zap.String("component", "llm")),
		metrics:         cfg.Metrics,
		client:          client,
	}, nil
}

func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	started := time.Now()
	text, err := c.complete(ctx, req)
	if c.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.LLMRequest(status, time.Since(started))
	}
	return text, err
}

func (c *Client) complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retries+1; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("wait for rate limiter: %w", err)
		}
		text, err := c.completeOnce(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryableAPIError(err) || attempt == c.retries+1 {
			break
		}
		wait := time.Duration(attempt) * c.retryBackoff
		c.logger.Warn("llm request retry", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown API completion error")
	}
	return "", lastErr
}

func (c *Client) completeOnce(ctx context.Context, req Request) (string, error) {
	effort := c.reasoningEffort
	if strings.TrimSpace(req.ReasoningEffort) != "" {
		effort = normalizeReasoningEffort(req.ReasoningEffort)
	}
	payload := newAPIRequest(c.model, effort, c.maxOutputTokens, req)
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal responses request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create API request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("responses api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxHTTPErrorBodyReadSize))
		if readErr != nil {
			return "", fmt.Errorf("responses api status=%d and read body failed: %w", resp.StatusCode, readErr)
		}
		return "", apiHTTPError{
			statusCode: resp.StatusCode,
			body:       strings.TrimSpace(string(body)),
		}
	}

	text, err := decodeStream(resp.Body, c.maxOutputBytes)
	if err != nil {
		return "", fmt.Errorf("read responses stream: %w", err)
	}
	return text, nil
}

func normalizeReasoningEffort(value string) string {
	effort := strings.ToLower(strings.TrimSpace(value))
	if effort == "" {
		return defaultReasoningEffort
	}
	if _, ok := allowedReasoningEfforts[effort]; !ok {
		return defaultReasoningEffort
	}
	return effort
}

func isRetryableAPIError(err error) bool {
	var statusErr apiHTTPError
	if errors.As(err, &statusErr) {
		return statusErr.statusCode == http.StatusTooManyRequests || statusErr.statusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

type apiHTTPError struct {
	statusCode int
	body       string
}

func (e apiHTTPError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("responses api status=%d", e.statusCode)
	}
	return fmt.Sprintf("responses api status=%d body=%s", e.statusCode, e.body)
}
