// Package auth attaches credentials to chat-completion requests.
package auth

import (
	"context"
	"net/http"
)

// Provider obtains credentials and injects them into HTTP requests.
type Provider interface {
	// Token returns the current credential, using a cached value when valid.
	Token(ctx context.Context) (string, error)

	// InjectHeader sets the credential header on req.
	InjectHeader(ctx context.Context, req *http.Request) error

	// Close releases any resources held by the provider.
	Close() error
}
