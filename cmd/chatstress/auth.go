package main

import (
	"time"

	"github.com/torosent/chatstress/internal/auth"
	"github.com/torosent/chatstress/internal/config"
)

const defaultAuthRefreshLeeway = 30 * time.Second

// buildAuthProvider selects OAuth2 client credentials when a token URL is
// configured and the static API key otherwise.
func buildAuthProvider(api config.APIConfig) (auth.Provider, error) {
	if !api.OAuth2.Enabled() {
		return auth.NewAPIKeyProvider(api.APIKey, api.AuthHeader), nil
	}

	refreshWindow := api.OAuth2.RefreshBeforeExpiry
	if refreshWindow <= 0 {
		refreshWindow = defaultAuthRefreshLeeway
	}
	return auth.NewClientCredentialsProvider(
		api.OAuth2.TokenURL,
		api.OAuth2.ClientID,
		api.OAuth2.ClientSecret,
		api.OAuth2.Scopes,
		refreshWindow,
	)
}
