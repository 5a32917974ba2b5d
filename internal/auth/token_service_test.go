package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	_, err := NewTokenService(TokenConfig{})
	require.Error(t, err)
	require.EqualError(t, err, "auth: secret must be provided")
}

func TestIssueAndVerifyConnectionToken(t *testing.T) {
	current := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewTokenService(TokenConfig{
		Secret: "super-secret",
		Issuer: "coachsync",
		TTL:    time.Minute,
		Clock:  now,
	})
	require.NoError(t, err)

	token, err := svc.IssueConnectionToken(ConnectionTokenInput{
		SessionID:     "sess-1",
		ParticipantID: "client-1",
		DisplayName:   "Ben",
		Role:          "participant",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.VerifyConnectionToken(token)
	require.NoError(t, err)
	require.Equal(t, "sess-1", claims.SessionID)
	require.Equal(t, "client-1", claims.ParticipantID)
	require.Equal(t, "Ben", claims.DisplayName)
	require.Equal(t, "participant", claims.Role)
	require.Equal(t, "coachsync", claims.Issuer)
	require.True(t, claims.ExpiresAt.Time.Equal(current.Add(time.Minute)))
}

func TestIssueConnectionTokenRequiresIdentity(t *testing.T) {
	svc, err := NewTokenService(TokenConfig{Secret: "s"})
	require.NoError(t, err)

	_, err = svc.IssueConnectionToken(ConnectionTokenInput{ParticipantID: "p"})
	require.Error(t, err)

	_, err = svc.IssueConnectionToken(ConnectionTokenInput{SessionID: "s"})
	require.Error(t, err)
}

func TestVerifyConnectionTokenRejectsExpired(t *testing.T) {
	current := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

	issuerSvc, err := NewTokenService(TokenConfig{
		Secret: "super-secret",
		TTL:    time.Minute,
		Clock:  func() time.Time { return current },
	})
	require.NoError(t, err)

	token, err := issuerSvc.IssueConnectionToken(ConnectionTokenInput{
		SessionID:     "sess-1",
		ParticipantID: "client-1",
	})
	require.NoError(t, err)

	laterSvc, err := NewTokenService(TokenConfig{
		Secret: "super-secret",
		TTL:    time.Minute,
		Clock:  func() time.Time { return current.Add(2 * time.Minute) },
	})
	require.NoError(t, err)

	_, err = laterSvc.VerifyConnectionToken(token)
	require.Error(t, err)
}

func TestVerifyConnectionTokenRejectsWrongSecret(t *testing.T) {
	issuerSvc, err := NewTokenService(TokenConfig{Secret: "issuer-secret"})
	require.NoError(t, err)

	token, err := issuerSvc.IssueConnectionToken(ConnectionTokenInput{
		SessionID:     "sess-1",
		ParticipantID: "client-1",
	})
	require.NoError(t, err)

	otherSvc, err := NewTokenService(TokenConfig{Secret: "other-secret"})
	require.NoError(t, err)

	_, err = otherSvc.VerifyConnectionToken(token)
	require.Error(t, err)
}

func TestVerifyConnectionTokenRejectsWrongIssuer(t *testing.T) {
	issuerSvc, err := NewTokenService(TokenConfig{Secret: "s", Issuer: "someone-else"})
	require.NoError(t, err)

	token, err := issuerSvc.IssueConnectionToken(ConnectionTokenInput{
		SessionID:     "sess-1",
		ParticipantID: "client-1",
	})
	require.NoError(t, err)

	verifier, err := NewTokenService(TokenConfig{Secret: "s", Issuer: "coachsync"})
	require.NoError(t, err)

	_, err = verifier.VerifyConnectionToken(token)
	require.Error(t, err)
}
