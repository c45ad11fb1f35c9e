package session

import (
	"errors"
	"fmt"

	"portfolio-backend/internal/auth"

	"golang.org/x/oauth2"
)

var (
	// ErrNoCredential means no bearer credential is available for this call.
	// It is the expected anonymous outcome, not a failure.
	ErrNoCredential = errors.New("no credential")
	// ErrRefreshTransient is a network or provider hiccup during silent
	// refresh. The next access tries again.
	ErrRefreshTransient = errors.New("silent refresh failed")
	// ErrReauthRequired means the refresh grant is gone and only an
	// interactive login can restore the session.
	ErrReauthRequired = errors.New("reauthentication required")
	// ErrSuperseded is returned when a logout overtook a pending login or
	// refresh and its result was discarded.
	ErrSuperseded = errors.New("session changed while the request was in flight")
)

// reauthCodes are the OAuth error codes that only an interactive login fixes.
var reauthCodes = map[string]bool{
	"login_required":       true,
	"consent_required":     true,
	"interaction_required": true,
	"invalid_grant":        true,
}

// Classify maps a provider error onto ErrReauthRequired or ErrRefreshTransient.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, auth.ErrLoginRequired) {
		return ErrReauthRequired
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && reauthCodes[re.ErrorCode] {
		return ErrReauthRequired
	}
	var ce *auth.CallbackError
	if errors.As(err, &ce) && reauthCodes[ce.Code] {
		return ErrReauthRequired
	}
	return ErrRefreshTransient
}

func noCredential(cause error) error {
	if cause == nil {
		return ErrNoCredential
	}
	return fmt.Errorf("%w: %w", ErrNoCredential, cause)
}
