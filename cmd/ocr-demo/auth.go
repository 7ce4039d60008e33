package main

import (
	"context"
	"net/http"

	fbAuth "firebase.google.com/go/auth"

	"github.com/RogelioDavid/VisionOCR/pkg/auth"
)

// FirebaseAuthClient is an interface for the fbAuth.Client
// This interface is used for mocking the fbAuth.Client in unit tests.
type FirebaseAuthClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbAuth.Token, error)
}

type authenticator struct {
	client FirebaseAuthClient
}

func newAuthenticator(client FirebaseAuthClient) *authenticator {
	return &authenticator{client: client}
}

type contextKey int

const userIDKey contextKey = 0

// userID returns the authenticated Firebase UID, or "" when authentication
// is disabled.
func userID(ctx context.Context) string {
	uid, _ := ctx.Value(userIDKey).(string)
	return uid
}

// middleware rejects requests that do not carry a valid Firebase ID token.
func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.TokenFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		decodedToken, err := a.client.VerifyIDToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, decodedToken.UID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
