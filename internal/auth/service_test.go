package auth

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/zfogg/daybook/internal/dto"
	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/testutil"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type fakeMailer struct {
	to    string
	token string
}

func (f *fakeMailer) SendPasswordResetEmail(ctx context.Context, toEmail, displayName, resetToken string) error {
	f.to = toEmail
	f.token = resetToken
	return nil
}

// AuthServiceTestSuite contains auth service tests
type AuthServiceTestSuite struct {
	suite.Suite
	db          *gorm.DB
	mailer      *fakeMailer
	authService *Service
	ctx         context.Context
}

// SetupTest gives every test a fresh database
func (suite *AuthServiceTestSuite) SetupTest() {
	suite.db = testutil.NewDB(suite.T())
	suite.mailer = &fakeMailer{}
	suite.ctx = context.Background()
	suite.authService = NewService(suite.db, Options{
		JWTSecret:  []byte("test_jwt_secret_key"),
		Mailer:     suite.mailer,
		BcryptCost: bcrypt.MinCost,
	})
}

func (suite *AuthServiceTestSuite) register(username string) *AuthResult {
	res, err := suite.authService.Register(suite.ctx, dto.RegisterRequest{
		Email:       username + "@example.com",
		Username:    username,
		Password:    "password123",
		DisplayName: "Test " + username,
	}, ClientMeta{UserAgent: "test", IP: "127.0.0.1"})
	suite.Require().NoError(err)
	return res
}

func (suite *AuthServiceTestSuite) TestRegister() {
	t := suite.T()

	res := suite.register("alice")
	require.NotNil(t, res.User)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, "UTC", res.User.Timezone)
	assert.True(t, res.User.HasPassword)
	assert.NotEmpty(t, res.Tokens.AccessToken)
	assert.NotEmpty(t, res.Tokens.RefreshToken)
	assert.Equal(t, "Bearer", res.Tokens.TokenType)

	// Duplicate email, different case
	_, err := suite.authService.Register(suite.ctx, dto.RegisterRequest{
		Email: "ALICE@example.com", Username: "alice2", Password: "password123", DisplayName: "A",
	}, ClientMeta{})
	assert.ErrorIs(t, err, ErrUserExists)

	// Duplicate username, different case
	_, err = suite.authService.Register(suite.ctx, dto.RegisterRequest{
		Email: "other@example.com", Username: "ALICE", Password: "password123", DisplayName: "A",
	}, ClientMeta{})
	assert.ErrorIs(t, err, ErrUsernameExists)

	_, err = suite.authService.Register(suite.ctx, dto.RegisterRequest{
		Email: "tz@example.com", Username: "tzuser", Password: "password123", DisplayName: "A", Timezone: "Mars/Olympus",
	}, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidTimezone)
}

func (suite *AuthServiceTestSuite) TestLogin() {
	t := suite.T()
	suite.register("bob")

	res, err := suite.authService.Login(suite.ctx, dto.LoginRequest{Email: " BOB@example.com ", Password: "password123"}, ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, "bob", res.User.Username)
	assert.NotNil(t, res.User.LastActiveAt)

	_, err = suite.authService.Login(suite.ctx, dto.LoginRequest{Email: "bob@example.com", Password: "wrongpassword"}, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = suite.authService.Login(suite.ctx, dto.LoginRequest{Email: "nobody@example.com", Password: "password123"}, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func (suite *AuthServiceTestSuite) TestAccessTokenValidation() {
	t := suite.T()
	res := suite.register("carol")

	claims, err := suite.authService.ValidateAccessToken(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)
	assert.Equal(t, "carol", claims.Username)
	assert.Equal(t, tokenTypeAccess, claims.Type)

	// refresh tokens are opaque and never valid as access tokens
	_, err = suite.authService.ValidateAccessToken(res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// signed with another secret
	other := NewService(suite.db, Options{JWTSecret: []byte("another_secret"), BcryptCost: bcrypt.MinCost})
	_, err = other.ValidateAccessToken(res.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// expired
	suite.authService.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	_, err = suite.authService.ValidateAccessToken(res.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrAccessTokenExpired)
}

func (suite *AuthServiceTestSuite) TestRefreshRotation() {
	t := suite.T()
	first := suite.register("dave")

	second, err := suite.authService.Refresh(suite.ctx, first.Tokens.RefreshToken, ClientMeta{})
	require.NoError(t, err)
	assert.NotEqual(t, first.Tokens.RefreshToken, second.Tokens.RefreshToken)

	var old models.RefreshToken
	require.NoError(t, suite.db.Where("token_hash = ?", hashToken(first.Tokens.RefreshToken)).First(&old).Error)
	require.NotNil(t, old.RevokedAt)
	require.NotNil(t, old.ReplacedByID)

	var next models.RefreshToken
	require.NoError(t, suite.db.Where("token_hash = ?", hashToken(second.Tokens.RefreshToken)).First(&next).Error)
	assert.Equal(t, *old.ReplacedByID, next.ID)
	assert.Equal(t, old.FamilyID, next.FamilyID)

	// the rotated token keeps working
	third, err := suite.authService.Refresh(suite.ctx, second.Tokens.RefreshToken, ClientMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, third.Tokens.RefreshToken)
}

func (suite *AuthServiceTestSuite) TestRefreshReuseRevokesFamily() {
	t := suite.T()
	first := suite.register("erin")

	second, err := suite.authService.Refresh(suite.ctx, first.Tokens.RefreshToken, ClientMeta{})
	require.NoError(t, err)

	// replaying the first token is reuse
	_, err = suite.authService.Refresh(suite.ctx, first.Tokens.RefreshToken, ClientMeta{})
	assert.ErrorIs(t, err, ErrRefreshTokenReused)

	// and the legitimate successor is now revoked too
	_, err = suite.authService.Refresh(suite.ctx, second.Tokens.RefreshToken, ClientMeta{})
	assert.ErrorIs(t, err, ErrRefreshTokenReused)

	// other sessions of the same user survive
	fresh, err := suite.authService.Login(suite.ctx, dto.LoginRequest{Email: "erin@example.com", Password: "password123"}, ClientMeta{})
	require.NoError(t, err)
	_, err = suite.authService.Refresh(suite.ctx, fresh.Tokens.RefreshToken, ClientMeta{})
	assert.NoError(t, err)
}

func (suite *AuthServiceTestSuite) TestRefreshExpiredAndUnknown() {
	t := suite.T()
	res := suite.register("frank")

	_, err := suite.authService.Refresh(suite.ctx, "not-a-token", ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	suite.authService.now = func() time.Time { return time.Now().UTC().Add(31 * 24 * time.Hour) }
	_, err = suite.authService.Refresh(suite.ctx, res.Tokens.RefreshToken, ClientMeta{})
	assert.ErrorIs(t, err, ErrRefreshTokenExpired)
}

func (suite *AuthServiceTestSuite) TestLogoutAndLogoutAll() {
	t := suite.T()
	a := suite.register("gina")
	b, err := suite.authService.Login(suite.ctx, dto.LoginRequest{Email: "gina@example.com", Password: "password123"}, ClientMeta{})
	require.NoError(t, err)

	require.NoError(t, suite.authService.Logout(suite.ctx, a.Tokens.RefreshToken))
	require.NoError(t, suite.authService.Logout(suite.ctx, "unknown"))
	_, err = suite.authService.Refresh(suite.ctx, a.Tokens.RefreshToken, ClientMeta{})
	assert.Error(t, err)

	n, err := suite.authService.LogoutAll(suite.ctx, b.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = suite.authService.Refresh(suite.ctx, b.Tokens.RefreshToken, ClientMeta{})
	assert.Error(t, err)
}

func (suite *AuthServiceTestSuite) TestUpdateProfile() {
	t := suite.T()
	res := suite.register("hank")

	name := "Hank Hill"
	tz := "America/Chicago"
	user, err := suite.authService.UpdateProfile(suite.ctx, res.User.ID, dto.UpdateProfileRequest{DisplayName: &name, Timezone: &tz})
	require.NoError(t, err)
	assert.Equal(t, name, user.DisplayName)
	assert.Equal(t, tz, user.Timezone)

	bad := "Nowhere/Town"
	_, err = suite.authService.UpdateProfile(suite.ctx, res.User.ID, dto.UpdateProfileRequest{Timezone: &bad})
	assert.ErrorIs(t, err, ErrInvalidTimezone)
}

func (suite *AuthServiceTestSuite) TestChangePasswordRevokesSessions() {
	t := suite.T()
	res := suite.register("ivy")

	err := suite.authService.ChangePassword(suite.ctx, res.User.ID, dto.ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "newpassword1"})
	assert.ErrorIs(t, err, ErrWrongPassword)

	err = suite.authService.ChangePassword(suite.ctx, res.User.ID, dto.ChangePasswordRequest{CurrentPassword: "password123", NewPassword: "newpassword1"})
	require.NoError(t, err)

	_, err = suite.authService.Refresh(suite.ctx, res.Tokens.RefreshToken, ClientMeta{})
	assert.Error(t, err)

	_, err = suite.authService.Login(suite.ctx, dto.LoginRequest{Email: "ivy@example.com", Password: "newpassword1"}, ClientMeta{})
	assert.NoError(t, err)
}

func (suite *AuthServiceTestSuite) TestPasswordReset() {
	t := suite.T()
	suite.register("jack")

	raw, err := suite.authService.RequestPasswordReset(suite.ctx, "Jack@Example.com")
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	assert.Equal(t, "jack@example.com", suite.mailer.to)
	assert.Equal(t, raw, suite.mailer.token)

	// unknown email is silent
	raw2, err := suite.authService.RequestPasswordReset(suite.ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.Empty(t, raw2)

	require.NoError(t, suite.authService.ResetPassword(suite.ctx, raw, "resetpass1"))
	// single use
	assert.ErrorIs(t, suite.authService.ResetPassword(suite.ctx, raw, "resetpass2"), ErrInvalidResetToken)

	_, err = suite.authService.Login(suite.ctx, dto.LoginRequest{Email: "jack@example.com", Password: "resetpass1"}, ClientMeta{})
	assert.NoError(t, err)
}

func (suite *AuthServiceTestSuite) TestPasswordResetExpires() {
	t := suite.T()
	suite.register("kate")

	raw, err := suite.authService.RequestPasswordReset(suite.ctx, "kate@example.com")
	require.NoError(t, err)

	suite.authService.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	assert.ErrorIs(t, suite.authService.ResetPassword(suite.ctx, raw, "resetpass1"), ErrInvalidResetToken)
}

func (suite *AuthServiceTestSuite) TestTwoFactorFlow() {
	t := suite.T()
	res := suite.register("liam")

	_, err := suite.authService.SetupTwoFactor(suite.ctx, res.User.ID, "wrong")
	assert.ErrorIs(t, err, ErrPasswordRequired)

	setup, err := suite.authService.SetupTwoFactor(suite.ctx, res.User.ID, "password123")
	require.NoError(t, err)
	assert.Len(t, setup.BackupCodes, backupCodeCount)
	assert.True(t, strings.HasPrefix(setup.OTPAuthURL, "otpauth://totp/"))

	// login still works without a code until enabled
	_, err = suite.authService.Login(suite.ctx, dto.LoginRequest{Email: "liam@example.com", Password: "password123"}, ClientMeta{})
	require.NoError(t, err)

	assert.ErrorIs(t, suite.authService.EnableTwoFactor(suite.ctx, res.User.ID, "000000"), ErrInvalidOTP)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, suite.authService.EnableTwoFactor(suite.ctx, res.User.ID, code))

	_, err = suite.authService.Login(suite.ctx, dto.LoginRequest{Email: "liam@example.com", Password: "password123"}, ClientMeta{})
	assert.ErrorIs(t, err, ErrTwoFactorRequired)

	_, err = suite.authService.Login(suite.ctx, dto.LoginRequest{Email: "liam@example.com", Password: "password123", OTPCode: "123"}, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidOTP)

	code, err = totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	_, err = suite.authService.Login(suite.ctx, dto.LoginRequest{Email: "liam@example.com", Password: "password123", OTPCode: code}, ClientMeta{})
	require.NoError(t, err)

	// backup codes are single use and accept lowercase
	backup := strings.ToLower(setup.BackupCodes[0])
	_, err = suite.authService.Login(suite.ctx, dto.LoginRequest{Email: "liam@example.com", Password: "password123", OTPCode: backup}, ClientMeta{})
	require.NoError(t, err)
	_, err = suite.authService.Login(suite.ctx, dto.LoginRequest{Email: "liam@example.com", Password: "password123", OTPCode: backup}, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidOTP)

	require.NoError(t, suite.authService.DisableTwoFactor(suite.ctx, res.User.ID, "password123", setup.BackupCodes[1]))
	user, err := suite.authService.GetUser(suite.ctx, res.User.ID)
	require.NoError(t, err)
	assert.False(t, user.TwoFactorEnabled)
	assert.Nil(t, user.TwoFactorSecret)
}

func (suite *AuthServiceTestSuite) TestGoogleLogin() {
	t := suite.T()
	existing := suite.register("mona")

	suite.authService.fetchGoogle = func(ctx context.Context, code string) (*GoogleUserInfo, error) {
		switch code {
		case "existing":
			return &GoogleUserInfo{Sub: "g-1", Email: "Mona@example.com", EmailVerified: true, Name: "Mona"}, nil
		case "new":
			return &GoogleUserInfo{Sub: "g-2", Email: "ned@example.com", EmailVerified: true, Name: "Mona"}, nil
		default:
			return &GoogleUserInfo{Sub: "g-3", Email: "unverified@example.com", EmailVerified: false}, nil
		}
	}

	// links by email
	res, err := suite.authService.HandleGoogleCallback(suite.ctx, "existing", ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, existing.User.ID, res.User.ID)
	assert.True(t, res.User.GoogleLinked)

	// second login finds the link by subject
	res, err = suite.authService.HandleGoogleCallback(suite.ctx, "existing", ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, existing.User.ID, res.User.ID)

	// creates a new user with a unique username derived from the name
	res, err = suite.authService.HandleGoogleCallback(suite.ctx, "new", ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, "mona1", res.User.Username)
	assert.False(t, res.User.HasPassword)

	_, err = suite.authService.HandleGoogleCallback(suite.ctx, "unverified", ClientMeta{})
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}

func (suite *AuthServiceTestSuite) TestGoogleNotConfigured() {
	_, err := suite.authService.GoogleAuthURL("state")
	suite.ErrorIs(err, ErrOAuthNotConfigured)

	_, err = suite.authService.HandleGoogleCallback(suite.ctx, "code", ClientMeta{})
	suite.ErrorIs(err, ErrOAuthNotConfigured)
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}

func TestGenerateUsernameFromName(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"Mona Lisa", "monalisa"},
		{"José 42", "jos42"},
		{"!!", "user"},
		{"A Very Long Display Name Indeed", "averylongdisplayname"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, generateUsernameFromName(tt.name))
		})
	}
}

func TestHashBackupCodeNormalises(t *testing.T) {
	assert.Equal(t, hashBackupCode("ABCD-EFGH"), hashBackupCode(" abcdefgh "))
	assert.NotEqual(t, hashBackupCode("ABCD-EFGH"), hashBackupCode("ABCD-EFGI"))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "curl/8.5", 64, "curl/8.5"},
		{"ascii", "abcdef", 3, "abc"},
		{"cut inside a two byte rune", "caf\u00e9s", 4, "caf"},
		{"cut after a two byte rune", "caf\u00e9s", 5, "caf\u00e9"},
		{"cut inside a four byte rune", "ok\U0001F600", 4, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), tt.n)
		})
	}

	ua := strings.Repeat("\u00e9", 200)
	assert.True(t, utf8.ValidString(truncate(ua, 255)))
}
