package services

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushub/backend/internal/testutil"
	"github.com/campushub/backend/internal/utils"
)

func verificationToken(t *testing.T, email sentEmail) string {
	for _, field := range strings.Fields(email.Text) {
		if strings.HasPrefix(field, "http") {
			u, err := url.Parse(field)
			require.NoError(t, err)
			return u.Query().Get("token")
		}
	}
	t.Fatalf("no verification link in %q", email.Text)
	return ""
}

func TestRegisterLoginAndVerify(t *testing.T) {
	utils.SetJWTSecret("test-secret")
	db := testutil.NewTestDB(t)
	mailer := newRecordingMailer()
	cfg := testutil.TestConfig()
	svc := NewAuthService(db, cfg, NewNotificationService(cfg, mailer))

	resp, err := svc.Register(&RegisterRequest{
		Username:    "kwame",
		Email:       "Kwame@Campus.test",
		Password:    testutil.TestPassword,
		DisplayName: "Kwame",
	})
	require.NoError(t, err)
	assert.Equal(t, "kwame@campus.test", resp.User.Email)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.NotEmpty(t, resp.AccessToken)
	assert.False(t, resp.User.EmailVerified())

	claims, err := utils.ValidateJWT(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID.String(), claims.UserID)

	var email sentEmail
	select {
	case email = <-mailer.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for verification email")
	}
	assert.Equal(t, "kwame@campus.test", email.To)
	token := verificationToken(t, email)
	require.NotEmpty(t, token)
	// Only the hash is stored
	assert.NotEqual(t, token, resp.User.EmailVerificationToken)

	_, err = svc.Register(&RegisterRequest{Username: "other", Email: "kwame@campus.test", Password: testutil.TestPassword})
	assert.ErrorIs(t, err, ErrEmailTaken)
	_, err = svc.Register(&RegisterRequest{Username: "kwame", Email: "new@campus.test", Password: testutil.TestPassword})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	login, err := svc.Login(&LoginRequest{Email: "KWAME@campus.test", Password: testutil.TestPassword})
	require.NoError(t, err)
	assert.NotNil(t, login.User.LastLoginAt)

	_, err = svc.Login(&LoginRequest{Email: "kwame@campus.test", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(&LoginRequest{Email: "nobody@campus.test", Password: testutil.TestPassword})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	verified, err := svc.VerifyEmail(token)
	require.NoError(t, err)
	assert.True(t, verified.EmailVerified())

	_, err = svc.VerifyEmail(token)
	assert.ErrorIs(t, err, ErrInvalidVerificationToken)
	_, err = svc.VerifyEmail("")
	assert.ErrorIs(t, err, ErrInvalidVerificationToken)

	refreshed, err := svc.RefreshToken(login.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, login.User.ID, refreshed.User.ID)

	_, err = svc.RefreshToken(login.AccessToken + "x")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}
