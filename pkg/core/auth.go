package core

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

// AuthType selects how HTTP clients authenticate
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
)

// ParseAuthType validates an auth type name. An empty name means AuthNone.
func ParseAuthType(s string) (AuthType, error) {
	switch t := AuthType(strings.ToLower(strings.TrimSpace(s))); t {
	case "", AuthNone:
		return AuthNone, nil
	case AuthBearer, AuthBasic:
		return t, nil
	default:
		return "", NewError(ErrInvalidParameter, fmt.Sprintf("unknown auth type %q", s)).
			WithSuggestions(string(AuthNone), string(AuthBearer), string(AuthBasic))
	}
}

// SecureCompareString compares in constant time
func SecureCompareString(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

var weakTokens = []string{
	"password", "secret", "token", "admin", "test", "default",
	"12345", "123456", "password123", "secret123", "admin123",
}

// ValidateAuthToken rejects empty, short and obviously weak tokens
func ValidateAuthToken(token string) error {
	if token == "" {
		return NewError(ErrInvalidParameter, "Authentication token cannot be empty").
			WithGuidance("Provide a valid authentication token for security.")
	}
	if len(token) < 16 {
		return NewError(ErrInvalidParameter, "Authentication token is too short").
			WithGuidance("Use a token with at least 16 characters for security.")
	}

	lower := strings.ToLower(token)
	for _, weak := range weakTokens {
		if strings.Contains(lower, weak) {
			return NewError(ErrInvalidParameter, "Authentication token appears to be weak").
				WithGuidance("Use a randomly generated, strong authentication token.")
		}
	}
	return nil
}

// AuthResult represents the result of authentication
type AuthResult struct {
	Authorized bool
	Error      string
}

// Authenticate checks the credentials of r. For AuthBasic the secret is
// "user:password".
func Authenticate(r *http.Request, typ AuthType, secret string) AuthResult {
	switch typ {
	case AuthNone, "":
		return AuthResult{Authorized: true}

	case AuthBearer:
		header := r.Header.Get("Authorization")
		if header == "" {
			return AuthResult{Error: "Missing Authorization header"}
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || scheme != "Bearer" {
			return AuthResult{Error: "Invalid Authorization header format"}
		}
		if !SecureCompareString(token, secret) {
			return AuthResult{Error: "Invalid bearer token"}
		}
		return AuthResult{Authorized: true}

	case AuthBasic:
		user, pass, ok := r.BasicAuth()
		if !ok || user == "" || pass == "" {
			return AuthResult{Error: "Missing basic auth credentials"}
		}
		if !SecureCompareString(user+":"+pass, secret) {
			return AuthResult{Error: "Invalid basic auth credentials"}
		}
		return AuthResult{Authorized: true}
	}

	return AuthResult{Error: "Unknown auth type"}
}
