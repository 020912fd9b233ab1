package stoken_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pairbench/server/pkg/idwrap"
	"pairbench/server/pkg/stoken"
)

var secret = []byte("test-secret")

func TestJWTRoundTrip(t *testing.T) {
	t.Parallel()
	userID := idwrap.NewNow()

	token, err := stoken.NewJWT(userID, "dev@example.com", stoken.AccessToken, time.Minute, secret)
	require.NoError(t, err)

	claims, err := stoken.ValidateJWT(token, stoken.AccessToken, secret)
	require.NoError(t, err)
	require.Equal(t, userID.String(), claims.Subject)
	require.Equal(t, "dev@example.com", claims.Email)
}

func TestJWTWrongSecret(t *testing.T) {
	t.Parallel()
	token, err := stoken.NewJWT(idwrap.NewNow(), "", stoken.AccessToken, time.Minute, secret)
	require.NoError(t, err)

	_, err = stoken.ValidateJWT(token, stoken.AccessToken, []byte("other-secret"))
	require.Error(t, err)
}

func TestJWTWrongType(t *testing.T) {
	t.Parallel()
	token, err := stoken.NewJWT(idwrap.NewNow(), "", stoken.RefreshToken, time.Minute, secret)
	require.NoError(t, err)

	_, err = stoken.ValidateJWT(token, stoken.AccessToken, secret)
	require.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	t.Parallel()
	token, err := stoken.NewJWT(idwrap.NewNow(), "", stoken.AccessToken, -time.Minute, secret)
	require.NoError(t, err)

	_, err = stoken.ValidateJWT(token, stoken.AccessToken, secret)
	require.Error(t, err)
}
