package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ClientCredentialsProvider fetches bearer tokens with the OAuth2 client
// credentials grant. Tokens are cached until refreshBefore ahead of expiry and
// concurrent callers share a single in-flight fetch.
type ClientCredentialsProvider struct {
	tokenURL      string
	clientID      string
	clientSecret  string
	scopes        []string
	refreshBefore time.Duration
	httpClient    *http.Client

	group  singleflight.Group
	mu     sync.RWMutex
	token  string
	expiry time.Time
	now    func() time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error,omitempty"`
	ErrorDesc   string `json:"error_description,omitempty"`
}

// NewClientCredentialsProvider validates its arguments and returns a provider.
func NewClientCredentialsProvider(tokenURL, clientID, clientSecret string, scopes []string, refreshBefore time.Duration) (*ClientCredentialsProvider, error) {
	if strings.TrimSpace(tokenURL) == "" {
		return nil, errors.New("oauth2 token URL is required")
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("oauth2 client ID is required")
	}
	if refreshBefore < 0 {
		refreshBefore = 0
	}
	return &ClientCredentialsProvider{
		tokenURL:      tokenURL,
		clientID:      clientID,
		clientSecret:  clientSecret,
		scopes:        scopes,
		refreshBefore: refreshBefore,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		now:           time.Now,
	}, nil
}

// Token returns a cached token or fetches a new one.
func (p *ClientCredentialsProvider) Token(ctx context.Context) (string, error) {
	p.mu.RLock()
	token, expiry := p.token, p.expiry
	p.mu.RUnlock()
	if token != "" && p.now().Before(expiry) {
		return token, nil
	}

	v, err, _ := p.group.Do("token", func() (any, error) {
		p.mu.RLock()
		token, expiry := p.token, p.expiry
		p.mu.RUnlock()
		if token != "" && p.now().Before(expiry) {
			return token, nil
		}

		token, expiresIn, err := p.fetch(ctx)
		if err != nil {
			return "", err
		}
		p.mu.Lock()
		p.token = token
		p.expiry = p.now().Add(time.Duration(expiresIn)*time.Second - p.refreshBefore)
		p.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *ClientCredentialsProvider) fetch(ctx context.Context) (string, int, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if len(p.scopes) > 0 {
		form.Set("scope", strings.Join(p.scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.clientID, p.clientSecret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if body.Error != "" {
		return "", 0, fmt.Errorf("oauth2 error: %s - %s", body.Error, body.ErrorDesc)
	}
	if body.AccessToken == "" {
		return "", 0, errors.New("no access token in response")
	}
	return body.AccessToken, body.ExpiresIn, nil
}

// InjectHeader sets a bearer Authorization header.
func (p *ClientCredentialsProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	token, err := p.Token(ctx)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Close releases idle token-endpoint connections.
func (p *ClientCredentialsProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
