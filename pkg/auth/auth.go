package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// ExtractBearerToken extracts the token from a Bearer authorization header
func ExtractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", fmt.Errorf("authorization header is empty")
	}

	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", fmt.Errorf("invalid authorization header format, expected 'Bearer <token>'")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("token is empty")
	}

	return token, nil
}

// TokenFromRequest extracts the Bearer token from the Authorization header of a request
func TokenFromRequest(r *http.Request) (string, error) {
	return ExtractBearerToken(r.Header.Get("Authorization"))
}
