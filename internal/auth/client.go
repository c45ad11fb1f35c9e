package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"portfolio-backend/internal/conf"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	// ErrInvalidToken is returned when a bearer token fails verification
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a bearer token is past its expiry
	ErrTokenExpired = errors.New("token expired")
)

// OIDCClient wraps OIDC provider and OAuth2 configuration
type OIDCClient struct {
	profileVerifier *oidc.IDTokenVerifier // cached ID tokens, signature only
	accessVerifier  *oidc.IDTokenVerifier // access tokens, audience = API
	oauth2Config    oauth2.Config
	audience        string
	issuer          string
	endSession      string
}

// NewOIDCClient creates a new OIDC client
func NewOIDCClient(ctx context.Context, cfg *conf.Auth, redirectURL string) (*OIDCClient, error) {
	// Initialize OIDC provider (discovers .well-known/openid-configuration)
	provider, err := oidc.NewProvider(ctx, cfg.Issuer())
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	var discovery struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&discovery); err != nil {
		return nil, fmt.Errorf("failed to read provider metadata: %w", err)
	}

	// Configure OAuth2
	oauth2Config := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       cfg.Scopes,
	}

	return &OIDCClient{
		profileVerifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID, SkipExpiryCheck: true}),
		accessVerifier:  provider.Verifier(&oidc.Config{ClientID: cfg.Audience}),
		oauth2Config:    oauth2Config,
		audience:        cfg.Audience,
		issuer:          cfg.Issuer(),
		endSession:      discovery.EndSessionEndpoint,
	}, nil
}

// ProfileClaims verifies a cached ID token's signature and returns its claims.
// Expiry is not checked: the profile outlives the token that carried it.
func (c *OIDCClient) ProfileClaims(ctx context.Context, rawIDToken string) (map[string]any, error) {
	idToken, err := c.profileVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}
	claims := map[string]any{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	return claims, nil
}

// VerifyAccessToken checks an access token's signature, issuer, audience and
// expiry against the provider's published keys.
func (c *OIDCClient) VerifyAccessToken(ctx context.Context, raw string) (*UserInfo, error) {
	return verifyAccessToken(ctx, c.accessVerifier, raw)
}

// RefreshToken refreshes an expired access token
func (c *OIDCClient) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	tokenSource := c.oauth2Config.TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
	})
	return tokenSource.Token()
}

// LogoutURL returns the provider logout URL. The discovery document's
// end_session_endpoint wins; Auth0 tenants fall back to /v2/logout.
func (c *OIDCClient) LogoutURL(returnTo string) string {
	q := url.Values{}
	q.Set("client_id", c.oauth2Config.ClientID)
	if c.endSession != "" {
		if returnTo != "" {
			q.Set("post_logout_redirect_uri", returnTo)
		}
		return c.endSession + "?" + q.Encode()
	}
	if returnTo != "" {
		q.Set("returnTo", returnTo)
	}
	return strings.TrimSuffix(c.issuer, "/") + "/v2/logout?" + q.Encode()
}

func (c *OIDCClient) audienceParam() []oauth2.AuthCodeOption {
	if c.audience == "" {
		return nil
	}
	return []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("audience", c.audience)}
}

// === PKCE Support ===

// GenerateCodeVerifier generates a random code verifier for PKCE
// Returns a base64-url-encoded random string (43-128 characters)
func GenerateCodeVerifier() (string, error) {
	// Generate 32 random bytes (will be 43 chars after base64url encoding)
	data := make([]byte, 32)
	if _, err := rand.Read(data); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	// Base64-URL encode without padding
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// GenerateCodeChallenge generates a code challenge from the verifier
// Uses SHA256 and base64-url encoding as per RFC 7636
func GenerateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GetAuthURLWithPKCE returns the OIDC authorization URL with PKCE parameters
func (c *OIDCClient) GetAuthURLWithPKCE(state string, codeChallenge string) string {
	opts := append(c.audienceParam(),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	return c.oauth2Config.AuthCodeURL(state, opts...)
}

// ExchangeCodeWithPKCE exchanges authorization code for tokens using PKCE
func (c *OIDCClient) ExchangeCodeWithPKCE(ctx context.Context, code string, codeVerifier string) (*oauth2.Token, error) {
	return c.oauth2Config.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
}
