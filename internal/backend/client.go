package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"sidekick-relay/internal/models"
	"sidekick-relay/internal/translator"
)

const (
	contentTypeJSON   = "application/json"
	acceptEventStream = "text/event-stream"
	userAgent         = "sidekick-relay/0.1"

	maxErrorBodyBytes = 64 * 1024

	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// StatusError reports a backend response outside the 2xx range.
type StatusError struct {
	Code int
	Text string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Server responded with %d: %s", e.Code, e.Text)
}

// Options tunes the transport used to reach the inference server.
type Options struct {
	DialTimeout           time.Duration
	ResponseHeaderTimeout time.Duration
}

// Client opens streaming completions against an OpenAI-compatible server.
type Client struct {
	http *http.Client
}

// New constructs a backend client around the provided HTTP client.
func New(client *http.Client) (*Client, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	return &Client{http: client}, nil
}

// NewHTTPClient returns an HTTP client suited to long-lived streams. It sets no
// overall timeout; only connection setup and response headers are bounded.
func NewHTTPClient(opts Options) *http.Client {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{Transport: transport}
}

// Open posts the wire request and returns the response body once a 2xx status
// has been received. The body is bound to ctx: cancelling ctx aborts the
// connection and any pending read. Transport errors are returned unwrapped so
// their message reaches subscribers verbatim.
func (c *Client) Open(ctx context.Context, req translator.WireRequest) (io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", acceptEventStream)
	httpReq.Header.Set("User-Agent", userAgent)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		defer httpResp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBodyBytes))
		slog.Debug("backend rejected request",
			"url", req.URL,
			"status", httpResp.StatusCode,
			"body", strings.TrimSpace(string(body)),
		)
		return nil, &StatusError{Code: httpResp.StatusCode, Text: statusText(httpResp)}
	}

	return httpResp.Body, nil
}

// ListModels asks the server at base for the models it serves.
func (c *Client) ListModels(ctx context.Context, base string) ([]models.Model, error) {
	trimmed := translator.TrimBase(base)
	if trimmed == "" {
		return nil, errors.New("endpoint base must not be empty")
	}

	cfg := openai.DefaultConfig("")
	cfg.BaseURL = trimmed + "/v1"
	cfg.HTTPClient = c.http

	list, err := openai.NewClientWithConfig(cfg).ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models at %s: %w", trimmed, err)
	}

	out := make([]models.Model, 0, len(list.Models))
	for _, m := range list.Models {
		out = append(out, models.Model{ID: m.ID, OwnedBy: m.OwnedBy})
	}
	return out, nil
}

// statusText returns the reason phrase sent by the server, falling back to
// the canonical text for the code.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
