package auth

import (
	"errors"
	"strings"
)

// Identity is the caller as far as the audit trail is concerned.
type Identity struct {
	UserID    string
	Email     string
	Name      string
	Role      string
	SessionID string
}

// BearerToken extracts the token from an Authorization header.
// Expected format: "Bearer <token>"
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}
	return token, nil
}

// ExtractIdentity resolves the caller from an Authorization header. Missing,
// malformed, expired and wrongly signed tokens all yield nil.
func ExtractIdentity(authorizationHeader string) *Identity {
	token, err := BearerToken(authorizationHeader)
	if err != nil {
		return nil
	}
	// ValidateJWT panics without a secret; the audit path must never panic.
	if err := ValidateJWTSecret(); err != nil {
		return nil
	}
	claims, err := ValidateJWT(token)
	if err != nil || claims.UserID == "" {
		return nil
	}
	return &Identity{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Name:      claims.Name,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}
}
