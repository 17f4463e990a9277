package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-auth-api/internal/application/audit"
	"github.com/go-auth-api/internal/application/notify"
	"github.com/go-auth-api/internal/domain"
	"github.com/go-auth-api/internal/infrastructure/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Put(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}
func (m *mockUserStore) SetVerified(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockPasscodeIssuer struct{ mock.Mock }

func (m *mockPasscodeIssuer) Issue(ctx context.Context, email, purpose string) (*domain.Passcode, error) {
	args := m.Called(ctx, email, purpose)
	if p, _ := args.Get(0).(*domain.Passcode); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockPasscodeIssuer) Verify(ctx context.Context, email, code, purpose string) (*domain.User, error) {
	args := m.Called(ctx, email, code, purpose)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockTokenProvider struct{ mock.Mock }

func (m *mockTokenProvider) IssuePair(u *domain.User, permissions []string) (*token.Pair, error) {
	args := m.Called(u, permissions)
	if p, _ := args.Get(0).(*token.Pair); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockTokenProvider) Verify(tokenStr string) (*token.Claims, error) {
	args := m.Called(tokenStr)
	if c, _ := args.Get(0).(*token.Claims); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockLedger struct{ mock.Mock }

func (m *mockLedger) Revoke(ctx context.Context, jti, userID, kind string, expiresAt time.Time) error {
	return m.Called(ctx, jti, userID, kind, expiresAt).Error(0)
}
func (m *mockLedger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	args := m.Called(ctx, jti)
	return args.Bool(0), args.Error(1)
}
func (m *mockLedger) RevokeAll(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type mockResolver struct{ mock.Mock }

func (m *mockResolver) PermissionsForRole(ctx context.Context, roleName string) ([]string, error) {
	args := m.Called(ctx, roleName)
	if p, _ := args.Get(0).([]string); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockRecorder struct{ mock.Mock }

func (m *mockRecorder) Record(e audit.Entry) { m.Called(e) }

type mockEnqueuer struct{ mock.Mock }

func (m *mockEnqueuer) Enqueue(msg notify.Message) bool { return m.Called(msg).Bool(0) }

type fixture struct {
	users     *mockUserStore
	passcodes *mockPasscodeIssuer
	tokens    *mockTokenProvider
	ledger    *mockLedger
	perms     *mockResolver
	audit     *mockRecorder
	notifier  *mockEnqueuer
	svc       Service
}

func newFixture() *fixture {
	f := &fixture{
		users:     &mockUserStore{},
		passcodes: &mockPasscodeIssuer{},
		tokens:    &mockTokenProvider{},
		ledger:    &mockLedger{},
		perms:     &mockResolver{},
		audit:     &mockRecorder{},
		notifier:  &mockEnqueuer{},
	}
	f.audit.On("Record", mock.Anything).Maybe()
	f.svc = NewService(ServiceDeps{
		Users:     f.users,
		Passcodes: f.passcodes,
		Tokens:    f.tokens,
		Ledger:    f.ledger,
		Perms:     f.perms,
		Audit:     f.audit,
		Notifier:  f.notifier,
	})
	return f
}

func hashed(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func activeUser(t *testing.T, pw string) *domain.User {
	return &domain.User{
		UserID:       "u1",
		Email:        "a@x.com",
		Username:     "alice",
		PasswordHash: hashed(t, pw),
		Role:         domain.RoleUser,
		Verified:     true,
		Active:       true,
	}
}

func refreshClaims(userID string) *token.Claims {
	return &token.Claims{
		Username: "alice",
		Kind:     token.KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        "jti-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

// --- Register ---

func TestRegister_NewAccountStartsUnverified(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, domain.ErrNotFound)
	f.users.On("GetByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)

	var created *domain.User
	f.users.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*domain.User)
	}).Return(nil)
	f.passcodes.On("Issue", mock.Anything, "a@x.com", domain.PurposeRegistration).
		Return(&domain.Passcode{Code: "123456"}, nil)

	res, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "s3cretpass",
	}, ClientMeta{})
	require.NoError(t, err)

	assert.True(t, res.RequiresVerification)
	require.NotNil(t, created)
	assert.False(t, created.Verified)
	assert.False(t, created.Active)
	assert.Equal(t, domain.RoleUser, created.Role)
	assert.NotEqual(t, "s3cretpass", created.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("s3cretpass")))
}

func TestRegister_VerifiedEmailRejected(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, "a@x.com").
		Return(&domain.User{UserID: "u1", Email: "a@x.com", Verified: true}, nil)

	_, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "s3cretpass",
	}, ClientMeta{})

	assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)
	f.users.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestRegister_UnverifiedAccountOverwritten(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, "a@x.com").
		Return(&domain.User{UserID: "u1", Email: "a@x.com", Verified: false}, nil)
	f.users.On("Update", mock.Anything, "u1", mock.MatchedBy(func(u map[string]interface{}) bool {
		_, hasPW := u["password_hash"]
		return u["username"] == "alice2" && hasPW
	})).Return(nil)
	f.passcodes.On("Issue", mock.Anything, "a@x.com", domain.PurposeRegistration).
		Return(&domain.Passcode{Code: "654321"}, nil)

	res, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: "a@x.com", Username: "alice2", Password: "newpassword",
	}, ClientMeta{})
	require.NoError(t, err)

	assert.Equal(t, "u1", res.UserID)
	f.users.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	f.users.AssertExpectations(t)
}

// --- VerifyAccount ---

func TestRegister_LookupStorageFaultDoesNotCreateAccount(t *testing.T) {
	f := newFixture()
	fault := fmt.Errorf("query users: %w", domain.ErrStorageUnavailable)
	f.users.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, fault)
	f.users.On("GetByUsername", mock.Anything, "alice").Return(nil, fault)

	_, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "s3cretpass",
	}, ClientMeta{})

	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	f.users.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	f.users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyAccount_ActivatesAndWelcomes(t *testing.T) {
	f := newFixture()
	u := &domain.User{UserID: "u1", Email: "a@x.com", Username: "alice"}
	f.users.On("GetByEmail", mock.Anything, "a@x.com").Return(u, nil)
	f.passcodes.On("Verify", mock.Anything, "a@x.com", "123456", domain.PurposeRegistration).Return(u, nil)
	f.users.On("SetVerified", mock.Anything, "u1").Return(nil)
	f.notifier.On("Enqueue", mock.MatchedBy(func(msg notify.Message) bool {
		return msg.Channel == notify.ChannelEmail && msg.To == "a@x.com"
	})).Return(true)

	got, err := f.svc.VerifyAccount(context.Background(), VerifyRequest{Email: "a@x.com", Code: "123456"}, ClientMeta{})
	require.NoError(t, err)

	assert.True(t, got.Verified)
	assert.True(t, got.Active)
	f.users.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestVerifyAccount_AlreadyVerified(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, "a@x.com").
		Return(&domain.User{UserID: "u1", Email: "a@x.com", Verified: true}, nil)

	_, err := f.svc.VerifyAccount(context.Background(), VerifyRequest{Email: "a@x.com", Code: "123456"}, ClientMeta{})

	assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)
	f.passcodes.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyAccount_BadPasscodeLeavesAccountUntouched(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, "a@x.com").
		Return(&domain.User{UserID: "u1", Email: "a@x.com"}, nil)
	f.passcodes.On("Verify", mock.Anything, "a@x.com", "000000", domain.PurposeRegistration).
		Return(nil, domain.ErrInvalidPasscode)

	_, err := f.svc.VerifyAccount(context.Background(), VerifyRequest{Email: "a@x.com", Code: "000000"}, ClientMeta{})

	assert.ErrorIs(t, err, domain.ErrInvalidPasscode)
	f.users.AssertNotCalled(t, "SetVerified", mock.Anything, mock.Anything)
}

// --- Login ---

func TestLogin_MissingAccountAndWrongPasswordLookAlike(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, "ghost@x.com").Return(nil, domain.ErrNotFound)
	f.users.On("GetByEmail", mock.Anything, "a@x.com").Return(activeUser(t, "rightpass"), nil)

	errMissing := f.svc.Login(context.Background(), LoginRequest{Email: "ghost@x.com", Password: "whatever"}, ClientMeta{})
	errWrongPW := f.svc.Login(context.Background(), LoginRequest{Email: "a@x.com", Password: "wrongpass"}, ClientMeta{})

	assert.ErrorIs(t, errMissing, domain.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPW, domain.ErrInvalidCredentials)
	assert.Equal(t, errors.Unwrap(errMissing), errors.Unwrap(errWrongPW))
}

func TestLogin_StorageFaultIsNotInvalidCredentials(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, "a@x.com").
		Return(nil, fmt.Errorf("query users: %w", domain.ErrStorageUnavailable))

	err := f.svc.Login(context.Background(), LoginRequest{Email: "a@x.com", Password: "whatever"}, ClientMeta{})

	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin_UnverifiedAccountDistinctError(t *testing.T) {
	f := newFixture()
	u := activeUser(t, "rightpass")
	u.Verified = false
	u.Active = false
	f.users.On("GetByEmail", mock.Anything, "a@x.com").Return(u, nil)

	err := f.svc.Login(context.Background(), LoginRequest{Email: "a@x.com", Password: "rightpass"}, ClientMeta{})

	assert.ErrorIs(t, err, domain.ErrAccountNotVerified)
}

func TestLogin_InactiveAccountDistinctError(t *testing.T) {
	f := newFixture()
	u := activeUser(t, "rightpass")
	u.Active = false
	f.users.On("GetByEmail", mock.Anything, "a@x.com").Return(u, nil)

	err := f.svc.Login(context.Background(), LoginRequest{Email: "a@x.com", Password: "rightpass"}, ClientMeta{})

	assert.ErrorIs(t, err, domain.ErrAccountInactive)
}

func TestLogin_SendsLoginPasscode(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, "a@x.com").Return(activeUser(t, "rightpass"), nil)
	f.passcodes.On("Issue", mock.Anything, "a@x.com", domain.PurposeLogin).
		Return(&domain.Passcode{Code: "123456"}, nil)

	err := f.svc.Login(context.Background(), LoginRequest{Email: "a@x.com", Password: "rightpass"}, ClientMeta{})

	require.NoError(t, err)
	f.passcodes.AssertExpectations(t)
}

// --- VerifyLogin ---

func TestVerifyLogin_MintsPairWithPermissionSnapshot(t *testing.T) {
	f := newFixture()
	u := activeUser(t, "rightpass")
	f.passcodes.On("Verify", mock.Anything, "a@x.com", "123456", domain.PurposeLogin).Return(u, nil)
	f.perms.On("PermissionsForRole", mock.Anything, domain.RoleUser).
		Return([]string{"content:read"}, nil)
	f.tokens.On("IssuePair", u, []string{"content:read"}).
		Return(&token.Pair{AccessToken: "at", RefreshToken: "rt", TokenType: "bearer"}, nil)

	pair, err := f.svc.VerifyLogin(context.Background(), VerifyRequest{Email: "a@x.com", Code: "123456"}, ClientMeta{})

	require.NoError(t, err)
	assert.Equal(t, "at", pair.AccessToken)
	assert.Equal(t, "rt", pair.RefreshToken)
	f.tokens.AssertExpectations(t)
}

func TestVerifyLogin_BadPasscode(t *testing.T) {
	f := newFixture()
	f.passcodes.On("Verify", mock.Anything, "a@x.com", "000000", domain.PurposeLogin).
		Return(nil, domain.ErrInvalidPasscode)

	_, err := f.svc.VerifyLogin(context.Background(), VerifyRequest{Email: "a@x.com", Code: "000000"}, ClientMeta{})

	assert.ErrorIs(t, err, domain.ErrInvalidPasscode)
	f.tokens.AssertNotCalled(t, "IssuePair", mock.Anything, mock.Anything)
}

// --- Refresh ---

func TestRefresh_RotatesPresentedToken(t *testing.T) {
	f := newFixture()
	claims := refreshClaims("u1")
	u := activeUser(t, "pw")

	f.tokens.On("Verify", "old-token").Return(claims, nil)
	f.ledger.On("IsRevoked", mock.Anything, "jti-1").Return(false, nil)
	f.ledger.On("Revoke", mock.Anything, "jti-1", "u1", token.KindRefresh, mock.Anything).Return(nil)
	f.users.On("Get", mock.Anything, "u1").Return(u, nil)
	f.perms.On("PermissionsForRole", mock.Anything, domain.RoleUser).Return([]string{"content:read"}, nil)
	f.tokens.On("IssuePair", u, []string{"content:read"}).
		Return(&token.Pair{AccessToken: "new-at", RefreshToken: "new-rt"}, nil)

	pair, err := f.svc.Refresh(context.Background(), "old-token")

	require.NoError(t, err)
	assert.Equal(t, "new-rt", pair.RefreshToken)
	f.ledger.AssertExpectations(t)
}

func TestRefresh_ReplayRejected(t *testing.T) {
	f := newFixture()
	f.tokens.On("Verify", "replayed").Return(refreshClaims("u1"), nil)
	f.ledger.On("IsRevoked", mock.Anything, "jti-1").Return(true, nil)

	_, err := f.svc.Refresh(context.Background(), "replayed")

	assert.ErrorIs(t, err, domain.ErrRevokedToken)
	f.ledger.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.tokens.AssertNotCalled(t, "IssuePair", mock.Anything, mock.Anything)
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	f := newFixture()
	claims := refreshClaims("u1")
	claims.Kind = token.KindAccess
	f.tokens.On("Verify", "access-token").Return(claims, nil)

	_, err := f.svc.Refresh(context.Background(), "access-token")

	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	f.ledger.AssertNotCalled(t, "IsRevoked", mock.Anything, mock.Anything)
}

func TestRefresh_InactiveAccountStillBurnsToken(t *testing.T) {
	f := newFixture()
	u := activeUser(t, "pw")
	u.Active = false
	f.tokens.On("Verify", "old-token").Return(refreshClaims("u1"), nil)
	f.ledger.On("IsRevoked", mock.Anything, "jti-1").Return(false, nil)
	f.ledger.On("Revoke", mock.Anything, "jti-1", "u1", token.KindRefresh, mock.Anything).Return(nil)
	f.users.On("Get", mock.Anything, "u1").Return(u, nil)

	_, err := f.svc.Refresh(context.Background(), "old-token")

	assert.ErrorIs(t, err, domain.ErrAccountInactive)
	f.ledger.AssertExpectations(t)
	f.tokens.AssertNotCalled(t, "IssuePair", mock.Anything, mock.Anything)
}

// --- Logout ---

func TestLogout_RevokesAccessToken(t *testing.T) {
	f := newFixture()
	claims := refreshClaims("u1")
	claims.Kind = token.KindAccess
	f.ledger.On("Revoke", mock.Anything, "jti-1", "u1", token.KindAccess, mock.Anything).Return(nil)

	res := f.svc.Logout(context.Background(), claims, ClientMeta{})

	assert.True(t, res.Revoked)
	f.ledger.AssertExpectations(t)
}

func TestLogout_LedgerFailureDegradesInsteadOfErroring(t *testing.T) {
	f := newFixture()
	claims := refreshClaims("u1")
	claims.Kind = token.KindAccess
	f.ledger.On("Revoke", mock.Anything, "jti-1", "u1", token.KindAccess, mock.Anything).
		Return(errors.New("dynamo down"))

	res := f.svc.Logout(context.Background(), claims, ClientMeta{})

	require.NotNil(t, res)
	assert.False(t, res.Revoked)
}

// --- LogoutAll ---

func TestLogoutAll_CountsPresentedPlusLedgerEntries(t *testing.T) {
	f := newFixture()
	claims := refreshClaims("u1")
	claims.Kind = token.KindAccess
	f.ledger.On("Revoke", mock.Anything, "jti-1", "u1", token.KindAccess, mock.Anything).Return(nil)
	f.ledger.On("RevokeAll", mock.Anything, "u1").Return(3, nil)

	res, err := f.svc.LogoutAll(context.Background(), claims, ClientMeta{})

	require.NoError(t, err)
	assert.Equal(t, 4, res.Revoked)
	assert.False(t, res.Degraded)
}

func TestLogoutAll_PartialBulkFailureReportsDegraded(t *testing.T) {
	f := newFixture()
	claims := refreshClaims("u1")
	claims.Kind = token.KindAccess
	f.ledger.On("Revoke", mock.Anything, "jti-1", "u1", token.KindAccess, mock.Anything).Return(nil)
	f.ledger.On("RevokeAll", mock.Anything, "u1").Return(2, errors.New("update failed"))

	res, err := f.svc.LogoutAll(context.Background(), claims, ClientMeta{})

	require.NoError(t, err)
	assert.Equal(t, 3, res.Revoked)
	assert.True(t, res.Degraded)
}

// --- CurrentUser ---

func TestCurrentUser_InactiveOrDeletedRejected(t *testing.T) {
	f := newFixture()
	deleted := activeUser(t, "pw")
	now := time.Now()
	deleted.DeletedAt = &now
	claims := refreshClaims("u1")
	claims.Kind = token.KindAccess
	f.users.On("Get", mock.Anything, "u1").Return(deleted, nil)

	_, err := f.svc.CurrentUser(context.Background(), claims)

	assert.ErrorIs(t, err, domain.ErrAccountInactive)
}
