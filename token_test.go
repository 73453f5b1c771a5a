package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestIssuer() *TokenIssuer {
	return NewTokenIssuer("access-secret", "refresh-secret", 3*time.Minute, 24*time.Hour)
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	ti := newTestIssuer()

	tok, err := ti.IssueAccessToken("u1", "a@x.com")
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	claims, err := ti.VerifyAccessToken(tok)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, "a@x.com", claims.Email)
}

func TestIssueAndVerifyRefreshToken(t *testing.T) {
	ti := newTestIssuer()

	tok, err := ti.IssueRefreshToken("u1", "a@x.com")
	require.NoError(t, err)

	claims, err := ti.VerifyRefreshToken(tok)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, "a@x.com", claims.Email)
}

func TestTokensSignedWithDistinctSecrets(t *testing.T) {
	ti := newTestIssuer()

	access, err := ti.IssueAccessToken("u1", "a@x.com")
	require.NoError(t, err)
	refresh, err := ti.IssueRefreshToken("u1", "a@x.com")
	require.NoError(t, err)

	// an access token must not pass refresh verification and vice versa
	_, err = ti.VerifyRefreshToken(access)
	require.Error(t, err)
	_, err = ti.VerifyAccessToken(refresh)
	require.Error(t, err)
}

func TestVerifyTamperedToken(t *testing.T) {
	ti := newTestIssuer()

	tok, err := ti.IssueRefreshToken("u1", "a@x.com")
	require.NoError(t, err)

	tampered := tok[:len(tok)-2] + "xx"
	_, err = ti.VerifyRefreshToken(tampered)
	require.Error(t, err)
}

func TestVerifyExpiredToken(t *testing.T) {
	ti := NewTokenIssuer("access-secret", "refresh-secret", -time.Minute, -time.Minute)

	tok, err := ti.IssueRefreshToken("u1", "a@x.com")
	require.NoError(t, err)

	_, err = ti.VerifyRefreshToken(tok)
	require.Error(t, err)
}

func TestVerifyGarbageToken(t *testing.T) {
	ti := newTestIssuer()

	_, err := ti.VerifyRefreshToken("not-a-jwt")
	require.Error(t, err)
	_, err = ti.VerifyAccessToken("")
	require.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("s3cret")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret", hash)

	require.True(t, comparePassword(hash, "s3cret"))
	require.False(t, comparePassword(hash, "wrong"))
}
