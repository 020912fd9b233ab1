//nolint:revive // exported
package mwauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/stoken"
)

type ContextKey int

const (
	UserIDKeyCtx ContextKey = iota
)

const LocalDummyIDStr = "00000000000000000000000000"

// LocalDummyID is the fixed identity injected in local (single-user) mode,
// where requests carry no token at all.
var LocalDummyID = idwrap.NewTextMust(LocalDummyIDStr)

var ErrNoUserID = errors.New("user id not found in context")

func CreateAuthedContext(ctx context.Context, userID idwrap.IDWrap) context.Context {
	return context.WithValue(ctx, UserIDKeyCtx, userID)
}

func GetContextUserID(ctx context.Context) (idwrap.IDWrap, error) {
	ulidID, ok := ctx.Value(UserIDKeyCtx).(idwrap.IDWrap)
	if !ok {
		return ulidID, ErrNoUserID
	}
	return ulidID, nil
}

// New returns middleware that requires a bearer access token and stashes
// the authenticated user ID in the request context.
func New(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headerValue := r.Header.Get(stoken.TokenHeaderKey)
			if headerValue == "" {
				unauthorized(w, "no token provided")
				return
			}

			tokenRaw := strings.Split(headerValue, "Bearer ")
			if len(tokenRaw) != 2 {
				unauthorized(w, "invalid token")
				return
			}

			claims, err := stoken.ValidateJWT(tokenRaw[1], stoken.AccessToken, secret)
			if err != nil {
				slog.ErrorContext(r.Context(), "Error validating JWT token", "error", err)
				unauthorized(w, "invalid token")
				return
			}

			userID, err := idwrap.NewText(claims.Subject)
			if err != nil {
				slog.ErrorContext(r.Context(), "Error creating ID from claims.Subject", "error", err)
				unauthorized(w, "invalid token subject")
				return
			}

			next.ServeHTTP(w, r.WithContext(CreateAuthedContext(r.Context(), userID)))
		})
	}
}

// NewLocal returns middleware that skips token checks and authenticates
// every request as LocalDummyID.
func NewLocal() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(CreateAuthedContext(r.Context(), LocalDummyID)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	//nolint:errcheck // best effort error body
	w.Write([]byte(`{"code":"unauthenticated","message":"` + msg + `"}`))
}
