package auth

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// TokenVerifier validates bearer tokens presented to the API.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, raw string) (*UserInfo, error)
}

// KeySetVerifier verifies access tokens against a fixed issuer and key set.
// Used when the keys are known up front (pinned keys, tests) instead of
// discovered from the provider.
type KeySetVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewKeySetVerifier builds a verifier for issuer/audience backed by keys.
func NewKeySetVerifier(issuer, audience string, now func() time.Time, keys ...crypto.PublicKey) *KeySetVerifier {
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	return &KeySetVerifier{
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: audience, Now: now}),
	}
}

// VerifyAccessToken implements TokenVerifier.
func (v *KeySetVerifier) VerifyAccessToken(ctx context.Context, raw string) (*UserInfo, error) {
	return verifyAccessToken(ctx, v.verifier, raw)
}

func verifyAccessToken(ctx context.Context, verifier *oidc.IDTokenVerifier, raw string) (*UserInfo, error) {
	token, err := verifier.Verify(ctx, raw)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, fmt.Errorf("%w: expired at %s", ErrTokenExpired, expired.Expiry.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var userInfo UserInfo
	if err := token.Claims(&userInfo); err != nil {
		return nil, fmt.Errorf("%w: failed to parse token claims: %v", ErrInvalidToken, err)
	}
	if err := token.Claims(&userInfo.Raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse token claims: %v", ErrInvalidToken, err)
	}
	return &userInfo, nil
}
