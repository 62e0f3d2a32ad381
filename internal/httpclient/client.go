package httpclient

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

	"github.com/torosent/chatstress/internal/auth"
	"github.com/torosent/chatstress/internal/config"
	"github.com/torosent/chatstress/internal/corpus"
)

// ChatRequest is the body of an OpenAI-style chat-completion call.
type ChatRequest struct {
	Model       string           `json:"model"`
	Messages    []corpus.Message `json:"messages"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature"`
}

type RequestBuilder struct {
	target       string
	model        string
	maxTokens    int
	temperature  float64
	headers      http.Header
	authProvider auth.Provider
}

// NewRequestBuilder validates the API settings and target URL. provider may
// be nil when the endpoint needs no credentials.
func NewRequestBuilder(api config.APIConfig, target string, provider auth.Provider) (*RequestBuilder, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("target URL is required")
	}
	if u, err := url.Parse(target); err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid target URL %q", target)
	}

	model := strings.TrimSpace(api.Model)
	if model == "" {
		return nil, errors.New("model is required")
	}

	headers := http.Header{}
	for key, value := range api.Headers {
		if strings.ContainsAny(key, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if canonicalKey == "" {
			return nil, fmt.Errorf("invalid header key %q", key)
		}

		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}

		headers.Set(canonicalKey, value)
	}

	return &RequestBuilder{
		target:       target,
		model:        model,
		maxTokens:    api.MaxTokens,
		temperature:  api.Temperature,
		headers:      headers,
		authProvider: provider,
	}, nil
}

// Target returns the URL every request is sent to.
func (b *RequestBuilder) Target() string {
	return b.target
}

// Build returns a POST carrying msg as the single chat message.
func (b *RequestBuilder) Build(ctx context.Context, msg corpus.Message) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(ChatRequest{
		Model:       b.model,
		Messages:    []corpus.Message{msg},
		MaxTokens:   b.maxTokens,
		Temperature: b.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.target, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header = make(http.Header, len(b.headers)+2)
	for key, values := range b.headers {
		for _, val := range values {
			req.Header.Add(key, val)
		}
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	req.ContentLength = int64(len(payload))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}

	if b.authProvider != nil {
		if err := b.authProvider.InjectHeader(ctx, req); err != nil {
			return nil, fmt.Errorf("auth provider inject header: %w", err)
		}
	}

	return req, nil
}

// NewClient returns a client whose overall timeout is timeout. Per-request
// deadlines set on the request context still apply.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
