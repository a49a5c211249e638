// Package remote talks to the remote table service: Client issues paced,
// authenticated HTTP requests and normalizes their failures; Gateway maps
// the six record operations onto it.
package remote

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

	apperrors "github.com/triage-ai/palisade/services/record_gateway/internal/errors"
	"go.uber.org/zap"
)

const (
	DefaultTimeout   = 30 * time.Second
	MinTimeout       = 5 * time.Second
	MaxTimeout       = 120 * time.Second
	maxResponseBytes = 8 << 20

	outcomeOK = "ok"
)

// Limiter gates outbound calls. *ratelimit.Limiter satisfies it.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Observer is told the outcome of every request that reached the network.
type Observer interface {
	ObserveRemote(method, outcome string, d time.Duration)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL    string // e.g. https://api.airtable.com/v0
	BaseID     string
	Token      string
	Timeout    time.Duration
	Limiter    Limiter
	HTTPClient *http.Client // optional; copied, Timeout is set on the copy
	Observer   Observer     // optional
	Logger     *zap.Logger
}

// Client issues one HTTP request per remote operation.
type Client struct {
	root     string
	token    string
	timeout  time.Duration
	limiter  Limiter
	http     *http.Client
	observer Observer
	logger   *zap.Logger
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Limiter == nil {
		return nil, errors.New("remote client requires a limiter")
	}
	if cfg.Token == "" {
		return nil, errors.New("remote client requires an API token")
	}
	if cfg.BaseID == "" {
		return nil, errors.New("remote client requires a base id")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	hc := &http.Client{}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		hc = &copied
	}
	hc.Timeout = timeout

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		root:     strings.TrimRight(cfg.BaseURL, "/") + "/" + url.PathEscape(cfg.BaseID),
		token:    cfg.Token,
		timeout:  timeout,
		limiter:  cfg.Limiter,
		http:     hc,
		observer: cfg.Observer,
		logger:   logger,
	}, nil
}

// Send paces, issues, and decodes one request. path is relative to the base
// (e.g. "tblX/recY"); body, when non-nil, is encoded as JSON. A 2xx response
// body is returned as-is; anything else becomes a normalized error.
func (c *Client) Send(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindTransport, "encode request body", err)
		}
		payload = b
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, "request canceled before it was sent", err)
	}

	endpoint := c.root + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	raw, status, err := c.do(req)
	elapsed := time.Since(start)

	c.logger.Debug("remote request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("duration", elapsed),
		zap.Error(err),
	)
	if c.observer != nil {
		outcome := outcomeOK
		if err != nil {
			outcome = string(apperrors.KindOf(err))
		}
		c.observer.ObserveRemote(method, outcome, elapsed)
	}
	return raw, err
}

func (c *Client) do(req *http.Request) (json.RawMessage, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, c.transportError(req.Context(), err)
	}
	defer resp.Body.Close()

	data, err := readAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, resp.StatusCode, c.transportError(req.Context(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, statusError(resp.StatusCode, data)
	}

	if !json.Valid(data) {
		return nil, resp.StatusCode, apperrors.New(apperrors.KindTransport, "malformed response: body is not valid JSON")
	}
	return json.RawMessage(data), resp.StatusCode, nil
}

// statusError maps a non-2xx status onto the taxonomy.
func statusError(status int, body []byte) error {
	switch status {
	case http.StatusTooManyRequests:
		return apperrors.New(apperrors.KindRateLimited, "rate limit exceeded, retry later")
	case http.StatusUnauthorized:
		return apperrors.New(apperrors.KindUnauthorized, "check API credential")
	case http.StatusNotFound:
		return apperrors.New(apperrors.KindNotFound, "record or collection not found")
	default:
		text := strings.TrimSpace(string(body))
		if text == "" {
			text = http.StatusText(status)
		}
		return apperrors.Newf(apperrors.KindRemoteService, "status %d: %s", status, text)
	}
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return apperrors.Wrap(apperrors.KindTransport, "request canceled", err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.KindTimeout, "caller deadline exceeded before the response arrived", err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.Wrap(apperrors.KindTimeout, "request timed out after "+c.timeout.String(), err)
	}
	var tooLarge responseTooLargeError
	if errors.As(err, &tooLarge) {
		return apperrors.Wrap(apperrors.KindTransport, "malformed response", err)
	}
	return apperrors.Wrap(apperrors.KindTransport, "request failed", err)
}

type responseTooLargeError struct {
	limit int64
}

func (e responseTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeded limit of %d bytes", e.limit)
}

func readAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	lr := &io.LimitedReader{R: r, N: limit + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, responseTooLargeError{limit: limit}
	}
	return data, nil
}
