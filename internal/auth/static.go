package auth

import (
	"context"
	"net/http"
	"strings"
)

// DefaultHeader is where API keys are sent unless configured otherwise.
const DefaultHeader = "Authorization"

// APIKeyProvider sends a fixed API key. With the Authorization header the key
// is sent as a bearer token; any other header (for example "api-key") carries
// the raw key.
type APIKeyProvider struct {
	key    string
	header string
}

// NewAPIKeyProvider returns a provider for key. An empty header selects
// DefaultHeader.
func NewAPIKeyProvider(key, header string) *APIKeyProvider {
	header = strings.TrimSpace(header)
	if header == "" {
		header = DefaultHeader
	}
	return &APIKeyProvider{key: key, header: http.CanonicalHeaderKey(header)}
}

// Token returns the key without any network calls.
func (p *APIKeyProvider) Token(ctx context.Context) (string, error) {
	return p.key, nil
}

// InjectHeader sets the configured header.
func (p *APIKeyProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	if p.header == DefaultHeader {
		req.Header.Set(p.header, "Bearer "+p.key)
		return nil
	}
	req.Header.Set(p.header, p.key)
	return nil
}

// Close is a no-op.
func (p *APIKeyProvider) Close() error {
	return nil
}

// Mask hides all but the last four characters of a secret for display.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
