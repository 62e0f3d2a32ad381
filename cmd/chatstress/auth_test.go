package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/torosent/chatstress/internal/auth"
	"github.com/torosent/chatstress/internal/config"
)

func TestBuildAuthProvider(t *testing.T) {
	t.Run("api key", func(t *testing.T) {
		provider, err := buildAuthProvider(config.APIConfig{APIKey: "sk-abc"})
		if err != nil {
			t.Fatalf("buildAuthProvider() error = %v", err)
		}
		defer provider.Close()
		if _, ok := provider.(*auth.APIKeyProvider); !ok {
			t.Fatalf("provider = %T, want *auth.APIKeyProvider", provider)
		}

		req := httptest.NewRequest(http.MethodPost, "http://example.com", nil)
		if err := provider.InjectHeader(context.Background(), req); err != nil {
			t.Fatalf("InjectHeader() error = %v", err)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer sk-abc" {
			t.Errorf("Authorization = %q, want Bearer sk-abc", got)
		}
	})

	t.Run("custom header", func(t *testing.T) {
		provider, err := buildAuthProvider(config.APIConfig{APIKey: "k", AuthHeader: "api-key"})
		if err != nil {
			t.Fatalf("buildAuthProvider() error = %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "http://example.com", nil)
		if err := provider.InjectHeader(context.Background(), req); err != nil {
			t.Fatalf("InjectHeader() error = %v", err)
		}
		if got := req.Header.Get("Api-Key"); got != "k" {
			t.Errorf("Api-Key = %q, want k", got)
		}
	})

	t.Run("oauth2 client credentials", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
		}))
		defer srv.Close()

		provider, err := buildAuthProvider(config.APIConfig{
			OAuth2: config.OAuth2Config{TokenURL: srv.URL, ClientID: "id", ClientSecret: "secret"},
		})
		if err != nil {
			t.Fatalf("buildAuthProvider() error = %v", err)
		}
		defer provider.Close()
		if _, ok := provider.(*auth.ClientCredentialsProvider); !ok {
			t.Fatalf("provider = %T, want *auth.ClientCredentialsProvider", provider)
		}
		token, err := provider.Token(context.Background())
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if token != "tok-1" {
			t.Errorf("Token() = %q, want tok-1", token)
		}
	})
}
