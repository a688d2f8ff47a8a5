package social

import (
	"context"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/vk"
)

// ProviderID is this application's internal provider identifier.
type ProviderID string

// Supported providers.
const (
	ProviderGoogle ProviderID = "google"
	ProviderGitHub ProviderID = "github"
	ProviderVK     ProviderID = "vk"
)

// ProviderConfig describes one provider surface.
type ProviderConfig struct {
	ID          ProviderID
	ClientID    string
	RedirectURL string
	Scopes      []string
	Endpoint    oauth2.Endpoint

	// ExchangeNeedsVerifier marks providers whose backend performs the
	// code/verifier check server-side: the retained PKCE verifier travels to
	// the exchange endpoint for these, and only these.
	ExchangeNeedsVerifier bool

	// ExchangeNeedsDeviceID marks providers whose exchange requires a device
	// identifier bound to the attempt.
	ExchangeNeedsDeviceID bool
}

// providerNames maps the names providers report on callbacks (directly or
// inside an encoded payload) to internal identifiers.
var providerNames = map[string]ProviderID{
	"google":        ProviderGoogle,
	"google-oauth2": ProviderGoogle,
	"github":        ProviderGitHub,
	"vk":            ProviderVK,
	"vkontakte":     ProviderVK,
	"vkid":          ProviderVK,
}

// MapProviderName resolves a provider-reported name to the internal ID.
func MapProviderName(name string) (ProviderID, error) {
	id, ok := providerNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", errors.Wrapf(ErrUnknownProvider, "%q", name)
	}
	return id, nil
}

// GitHubEndpoint returns the GitHub OAuth2 endpoint.
func GitHubEndpoint() oauth2.Endpoint {
	return github.Endpoint
}

// VKEndpoint returns the VK OAuth2 endpoint.
func VKEndpoint() oauth2.Endpoint {
	return vk.Endpoint
}

// GoogleEndpoint resolves Google's OAuth2 endpoint through OIDC discovery,
// so endpoint URLs are never hard-coded for the one OIDC provider.
func GoogleEndpoint(ctx context.Context) (oauth2.Endpoint, error) {
	provider, err := oidc.NewProvider(ctx, "https://accounts.google.com")
	if err != nil {
		return oauth2.Endpoint{}, errors.Wrap(err, "[GoogleEndpoint] oidc discovery")
	}
	return provider.Endpoint(), nil
}

// DefaultProviders assembles the three supported provider configs from
// credentials. Google's endpoint comes from discovery; pass a short-lived ctx.
func DefaultProviders(ctx context.Context, google, gitHub, vkCfg Credentials) (map[ProviderID]ProviderConfig, error) {
	googleEndpoint, err := GoogleEndpoint(ctx)
	if err != nil {
		return nil, err
	}

	return map[ProviderID]ProviderConfig{
		ProviderGoogle: {
			ID:          ProviderGoogle,
			ClientID:    google.ClientID,
			RedirectURL: google.RedirectURL,
			Scopes:      google.Scopes,
			Endpoint:    googleEndpoint,
		},
		ProviderGitHub: {
			ID:          ProviderGitHub,
			ClientID:    gitHub.ClientID,
			RedirectURL: gitHub.RedirectURL,
			Scopes:      gitHub.Scopes,
			Endpoint:    GitHubEndpoint(),
		},
		ProviderVK: {
			ID:                    ProviderVK,
			ClientID:              vkCfg.ClientID,
			RedirectURL:           vkCfg.RedirectURL,
			Scopes:                vkCfg.Scopes,
			Endpoint:              VKEndpoint(),
			ExchangeNeedsVerifier: true,
			ExchangeNeedsDeviceID: true,
		},
	}, nil
}

// Credentials is the per-provider application registration.
type Credentials struct {
	ClientID    string
	RedirectURL string
	Scopes      []string
}
