package claims

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const (
	rolesKey       = "roles"
	permissionsKey = "permissions"
)

// FromProfile reads the identity and the namespaced role/permission claims
// from a provider user profile. Missing claim keys yield empty sets.
func FromProfile(profile map[string]any, namespace string) (Identity, ClaimsSet) {
	id := Identity{
		SubjectID:   stringClaim(profile, "sub"),
		DisplayName: stringClaim(profile, "name"),
		Email:       stringClaim(profile, "email"),
		PictureURL:  stringClaim(profile, "picture"),
	}
	return id, ClaimsSet{
		Roles:       NewSet(stringsClaim(profile, namespace+rolesKey)...),
		Permissions: NewSet(stringsClaim(profile, namespace+permissionsKey)...),
	}
}

// FromAccessToken decodes role and permission claims carried by an access
// token. The token is not verified here; it came straight from the provider's
// token endpoint and is only read for display gating. Both the namespaced keys
// and the provider's plain "permissions" claim are honoured.
func FromAccessToken(raw, namespace string) (ClaimsSet, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	mc := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, mc); err != nil {
		return ClaimsSet{}, fmt.Errorf("failed to parse access token: %w", err)
	}

	perms := stringsClaim(mc, namespace+permissionsKey)
	perms = append(perms, stringsClaim(mc, permissionsKey)...)
	return ClaimsSet{
		Roles:       NewSet(stringsClaim(mc, namespace+rolesKey)...),
		Permissions: NewSet(perms...),
	}, nil
}

// Merge returns the union of two claim sets.
func Merge(a, b ClaimsSet) ClaimsSet {
	out := ClaimsSet{Roles: Set{}, Permissions: Set{}}
	for _, src := range []ClaimsSet{a, b} {
		for r := range src.Roles {
			out.Roles[r] = struct{}{}
		}
		for p := range src.Permissions {
			out.Permissions[p] = struct{}{}
		}
	}
	return out
}

func stringClaim(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// stringsClaim accepts a JSON array of strings or a single string.
func stringsClaim(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}
