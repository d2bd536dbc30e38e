package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/clubpulse/clubpulse-api/internal/models"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
)

type mockAuthRepo struct {
	users         map[string]*models.User
	emailIndex    map[string]string
	refreshTokens map[string]*models.RefreshToken
	auditLogs     []*models.AuditLog
	revokedAll    []string
	seq           int
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		users:         make(map[string]*models.User),
		emailIndex:    make(map[string]string),
		refreshTokens: make(map[string]*models.RefreshToken),
	}
}

func (m *mockAuthRepo) addUser(user *models.User) {
	cp := *user
	m.users[user.ID] = &cp
	m.emailIndex[user.Email] = user.ID
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if id, ok := m.emailIndex[email]; ok {
		cp := *m.users[id]
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if _, ok := m.emailIndex[user.Email]; ok {
		return appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}
	m.seq++
	user.ID = "user-" + string(rune('0'+m.seq))
	user.CreatedAt = time.Now()
	m.addUser(user)
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if user, ok := m.users[id]; ok {
		user.LastLogin = &ts
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = append(m.revokedAll, userID)
	for _, token := range m.refreshTokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	cp := *token
	m.refreshTokens[token.Token] = &cp
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := m.refreshTokens[token]; ok {
		cp := *stored
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type mockSignupAttributor struct {
	referrers map[string]string
	err       error
	calls     []string
}

func (m *mockSignupAttributor) AttributeSignup(ctx context.Context, code string) (*string, error) {
	m.calls = append(m.calls, code)
	if m.err != nil {
		return nil, m.err
	}
	if referrer, ok := m.referrers[code]; ok {
		return &referrer, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "share link not found")
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "clubpulse-api",
	}
}

func newAuthServiceForTest(repo *mockAuthRepo, referrals signupAttributor) *AuthService {
	return NewAuthService(repo, referrals, validator.New(), zap.NewNop(), testAuthConfig())
}

func seedUser(t *testing.T, repo *mockAuthRepo, email, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:           "u1",
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  "Night Owl",
		Role:         models.RoleMember,
		Active:       true,
	}
	repo.addUser(user)
	return user
}

func TestAuthRegister(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newAuthServiceForTest(repo, nil)

	session, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:       "owl@example.com",
		Password:    "hunter2hunter2",
		DisplayName: "Night Owl",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, models.RoleMember, session.User.Role)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionRegister, repo.auditLogs[0].Action)
}

func TestAuthRegisterDuplicateEmail(t *testing.T) {
	repo := newMockAuthRepo()
	seedUser(t, repo, "owl@example.com", "hunter2hunter2")
	svc := newAuthServiceForTest(repo, nil)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:       "owl@example.com",
		Password:    "hunter2hunter2",
		DisplayName: "Impostor",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthRegisterWithReferralCode(t *testing.T) {
	repo := newMockAuthRepo()
	referrals := &mockSignupAttributor{referrers: map[string]string{"klub-abc": "referrer-1"}}
	svc := newAuthServiceForTest(repo, referrals)

	session, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:        "owl@example.com",
		Password:     "hunter2hunter2",
		DisplayName:  "Night Owl",
		ReferralCode: "klub-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"klub-abc"}, referrals.calls)

	user := repo.users[session.User.ID]
	require.NotNil(t, user.ReferredBy)
	assert.Equal(t, "referrer-1", *user.ReferredBy)
}

func TestAuthRegisterInvalidReferralCodeDoesNotBlock(t *testing.T) {
	repo := newMockAuthRepo()
	referrals := &mockSignupAttributor{err: errors.New("link expired")}
	svc := newAuthServiceForTest(repo, referrals)

	session, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:        "owl@example.com",
		Password:     "hunter2hunter2",
		DisplayName:  "Night Owl",
		ReferralCode: "bogus",
	})
	require.NoError(t, err)
	assert.Nil(t, repo.users[session.User.ID].ReferredBy)
}

func TestAuthLogin(t *testing.T) {
	repo := newMockAuthRepo()
	seedUser(t, repo, "owl@example.com", "hunter2hunter2")
	svc := newAuthServiceForTest(repo, nil)

	session, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "owl@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)

	claims, err := svc.ValidateToken(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleMember, claims.Role)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	repo := newMockAuthRepo()
	seedUser(t, repo, "owl@example.com", "hunter2hunter2")
	svc := newAuthServiceForTest(repo, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "owl@example.com",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	repo := newMockAuthRepo()
	user := seedUser(t, repo, "owl@example.com", "hunter2hunter2")
	repo.users[user.ID].Active = false
	svc := newAuthServiceForTest(repo, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "owl@example.com",
		Password: "hunter2hunter2",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthRefreshTokenRotates(t *testing.T) {
	repo := newMockAuthRepo()
	seedUser(t, repo, "owl@example.com", "hunter2hunter2")
	svc := newAuthServiceForTest(repo, nil)

	session, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "owl@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: session.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, refreshed.RefreshToken)

	// The used token is revoked and cannot be replayed.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: session.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthLogout(t *testing.T) {
	repo := newMockAuthRepo()
	seedUser(t, repo, "owl@example.com", "hunter2hunter2")
	svc := newAuthServiceForTest(repo, nil)

	session, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "owl@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), session.RefreshToken, "someone-else", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Logout(context.Background(), session.RefreshToken, "u1", models.LoginRequest{}))
	assert.True(t, repo.refreshTokens[session.RefreshToken].Revoked)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	repo := newMockAuthRepo()
	seedUser(t, repo, "owl@example.com", "hunter2hunter2")
	svc := newAuthServiceForTest(repo, nil)

	session, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "owl@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)

	other := NewAuthService(repo, nil, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "different-secret",
		AccessTokenExpiry: time.Hour,
	})
	_, err = other.ValidateToken(session.AccessToken)
	require.Error(t, err)

	_, err = svc.ValidateToken("not.a.token")
	require.Error(t, err)
}
