package mwauth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pairbench/server/internal/api/middleware/mwauth"
	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/stoken"
)

var secret = []byte("test-secret")

func identityProbe(t *testing.T, got *idwrap.IDWrap) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := mwauth.GetContextUserID(r.Context())
		require.NoError(t, err)
		*got = userID
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerTokenAuthenticates(t *testing.T) {
	userID := idwrap.NewNow()
	token, err := stoken.NewJWT(userID, "a@b.c", stoken.AccessToken, time.Minute, secret)
	require.NoError(t, err)

	var got idwrap.IDWrap
	h := mwauth.New(secret)(identityProbe(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(stoken.TokenHeaderKey, "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, userID.Compare(got))
}

func TestMissingAndMalformedTokensRejected(t *testing.T) {
	h := mwauth.New(secret)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not run")
	}))

	cases := map[string]string{
		"no header":       "",
		"no bearer":       "garbage",
		"bad token":       "Bearer not-a-jwt",
		"wrong signature": "Bearer " + mustToken(t, []byte("other-secret")),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set(stoken.TokenHeaderKey, header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRefreshTokenNotAcceptedAsAccess(t *testing.T) {
	token, err := stoken.NewJWT(idwrap.NewNow(), "a@b.c", stoken.RefreshToken, time.Minute, secret)
	require.NoError(t, err)

	h := mwauth.New(secret)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(stoken.TokenHeaderKey, "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLocalModeInjectsDummyUser(t *testing.T) {
	var got idwrap.IDWrap
	h := mwauth.NewLocal()(identityProbe(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, mwauth.LocalDummyIDStr, got.String())
}

func mustToken(t *testing.T, key []byte) string {
	t.Helper()
	token, err := stoken.NewJWT(idwrap.NewNow(), "a@b.c", stoken.AccessToken, time.Minute, key)
	require.NoError(t, err)
	return token
}
