package ehr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// providerTimeout bounds every round trip to the EHR vendor. Epic's
	// sandbox is slow enough that anything tighter produces flaky exchanges.
	providerTimeout = 12 * time.Second

	// defaultTokenLifetime applies when the token response carries no usable
	// expires_in. One hour matches what Epic actually issues.
	defaultTokenLifetime = time.Hour

	maxErrorBodyBytes = 4 << 10
)

// ProviderConfig holds the OAuth and FHIR endpoints for one EHR vendor.
type ProviderConfig struct {
	AuthorizeURL string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       string
	FHIRBaseURL  string
}

// ProviderClient speaks the authorization-code-with-PKCE flow against a
// single EHR vendor's OAuth endpoints. It is stateless and safe for
// concurrent use.
type ProviderClient struct {
	cfg  ProviderConfig
	http *http.Client
	now  func() time.Time
}

func NewProviderClient(cfg ProviderConfig) *ProviderClient {
	return &ProviderClient{
		cfg:  cfg,
		http: &http.Client{Timeout: providerTimeout},
		now:  time.Now,
	}
}

// Configured reports whether the client can start an authorization flow.
func (c *ProviderClient) Configured() bool {
	return c.cfg.ClientID != ""
}

// DefaultFHIRBaseURL is the vendor's FHIR endpoint from configuration.
func (c *ProviderClient) DefaultFHIRBaseURL() string {
	return c.cfg.FHIRBaseURL
}

// AuthorizeURL builds the browser redirect that starts an authorization.
// The aud parameter tells the vendor which FHIR server the token is for;
// Epic rejects requests without it.
func (c *ProviderClient) AuthorizeURL(state, codeChallenge string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("scope", c.cfg.Scopes)
	q.Set("state", state)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "S256")
	if c.cfg.FHIRBaseURL != "" {
		q.Set("aud", c.cfg.FHIRBaseURL)
	}
	return c.cfg.AuthorizeURL + "?" + q.Encode()
}

// Exchange redeems an authorization code for tokens, proving possession of
// the PKCE verifier that produced the original challenge.
func (c *ProviderClient) Exchange(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("code_verifier", codeVerifier)
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}
	return c.postToken(ctx, form)
}

// Refresh redeems a refresh token for a new access token.
func (c *ProviderClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}
	return c.postToken(ctx, form)
}

// ComputeExpiry converts an expires_in value into an absolute UTC deadline.
// Zero or negative values fall back to the default lifetime.
func (c *ProviderClient) ComputeExpiry(expiresIn int64) time.Time {
	lifetime := defaultTokenLifetime
	if expiresIn > 0 {
		lifetime = time.Duration(expiresIn) * time.Second
	}
	return c.now().UTC().Add(lifetime)
}

func (c *ProviderClient) postToken(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &UpstreamAuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tok TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &tok, nil
}
