package auth

// UserInfo represents OIDC user claims
type UserInfo struct {
	Sub               string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	Picture           string `json:"picture"`
	PreferredUsername string `json:"preferred_username"`

	// Raw holds every claim, including provider-namespaced ones.
	Raw map[string]any `json:"-"`
}
