package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-api/internal/application/audit"
	"github.com/go-auth-api/internal/application/notify"
	"github.com/go-auth-api/internal/domain"
	"github.com/go-auth-api/internal/infrastructure/token"
	"github.com/go-auth-api/internal/metrics"
	"github.com/go-auth-api/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

type RegisterRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Username string  `json:"username" validate:"required,min=3,max=32"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone"`
}

type RegisterResult struct {
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	RequiresVerification bool   `json:"requires_verification"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"otp_code" validate:"required"`
}

// LogoutResult reports whether revocation bookkeeping actually succeeded.
// Logout prefers answering over strict confirmation: a failed ledger write
// degrades the result instead of failing the request.
type LogoutResult struct {
	Revoked bool `json:"tokens_revoked"`
}

type LogoutAllResult struct {
	Revoked  int  `json:"tokens_revoked"`
	Degraded bool `json:"degraded,omitempty"`
}

// ClientMeta carries request attribution for the audit trail.
type ClientMeta struct {
	IP    string
	Agent string
}

// UserStore is the minimal persistence interface the session manager
// requires from the account store.
type UserStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	SetVerified(ctx context.Context, userID string) error
}

// PasscodeIssuer issues and redeems one-time passcodes.
type PasscodeIssuer interface {
	Issue(ctx context.Context, email, purpose string) (*domain.Passcode, error)
	Verify(ctx context.Context, email, code, purpose string) (*domain.User, error)
}

// TokenProvider mints and validates signed credentials.
type TokenProvider interface {
	IssuePair(u *domain.User, permissions []string) (*token.Pair, error)
	Verify(tokenStr string) (*token.Claims, error)
}

// RevocationLedger is the persistent record of revoked token identifiers.
type RevocationLedger interface {
	Revoke(ctx context.Context, jti, userID, kind string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// PermissionResolver computes the permission snapshot embedded in access
// credentials.
type PermissionResolver interface {
	PermissionsForRole(ctx context.Context, roleName string) ([]string, error)
}

// AuditRecorder records actions fire-and-forget.
type AuditRecorder interface {
	Record(e audit.Entry)
}

// Notifier hands deliveries off to the async notification queue.
type Notifier interface {
	Enqueue(msg notify.Message) bool
}

// Service orchestrates the register → verify → login → step-up-OTP →
// issue-credentials → refresh → logout lifecycle.
type Service interface {
	Register(ctx context.Context, req RegisterRequest, meta ClientMeta) (*RegisterResult, error)
	VerifyAccount(ctx context.Context, req VerifyRequest, meta ClientMeta) (*domain.User, error)
	ResendPasscode(ctx context.Context, email string, meta ClientMeta) error
	Login(ctx context.Context, req LoginRequest, meta ClientMeta) error
	VerifyLogin(ctx context.Context, req VerifyRequest, meta ClientMeta) (*token.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (*token.Pair, error)
	Logout(ctx context.Context, claims *token.Claims, meta ClientMeta) *LogoutResult
	LogoutAll(ctx context.Context, claims *token.Claims, meta ClientMeta) (*LogoutAllResult, error)
	CurrentUser(ctx context.Context, claims *token.Claims) (*domain.User, error)
}

// ServiceDeps wires the session manager's collaborators.
type ServiceDeps struct {
	Users     UserStore
	Passcodes PasscodeIssuer
	Tokens    TokenProvider
	Ledger    RevocationLedger
	Perms     PermissionResolver
	Audit     AuditRecorder
	Notifier  Notifier
}

type service struct {
	users     UserStore
	passcodes PasscodeIssuer
	tokens    TokenProvider
	ledger    RevocationLedger
	perms     PermissionResolver
	audit     AuditRecorder
	notifier  Notifier
}

func NewService(deps ServiceDeps) Service {
	return &service{
		users:     deps.Users,
		passcodes: deps.Passcodes,
		tokens:    deps.Tokens,
		ledger:    deps.Ledger,
		perms:     deps.Perms,
		audit:     deps.Audit,
		notifier:  deps.Notifier,
	}
}

// Register creates an account in the unverified state and issues a
// registration passcode. Re-registering an email or username that is still
// unverified overwrites the pending credentials instead of erroring; once
// verified it fails with ErrAlreadyRegistered.
func (s *service) Register(ctx context.Context, req RegisterRequest, meta ClientMeta) (*RegisterResult, error) {
	existing, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		existing, err = s.users.GetByUsername(ctx, req.Username)
		if err != nil {
			// A storage fault here must not fall through to Put: creating
			// the account anyway could duplicate an existing email.
			if !errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			existing = nil
		}
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	var u *domain.User
	switch {
	case existing != nil && existing.Verified:
		return nil, fmt.Errorf("email or username taken: %w", domain.ErrAlreadyRegistered)
	case existing != nil:
		// Pending registration: overwrite the credentials-to-be.
		slog.Info("updating unverified registration", "email", existing.Email)
		if err := s.users.Update(ctx, existing.UserID, map[string]interface{}{
			"username":      req.Username,
			"password_hash": hash,
			"full_name":     req.FullName,
		}); err != nil {
			return nil, err
		}
		u = existing
	default:
		now := time.Now().UTC()
		u = &domain.User{
			UserID:       id.New(),
			Email:        req.Email,
			Username:     req.Username,
			FullName:     req.FullName,
			Phone:        req.Phone,
			PasswordHash: hash,
			Role:         domain.RoleUser,
			Verified:     false,
			Active:       false,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.users.Put(ctx, u); err != nil {
			return nil, err
		}
		slog.Info("new user registered", "email", u.Email)
	}

	if _, err := s.passcodes.Issue(ctx, u.Email, domain.PurposeRegistration); err != nil {
		return nil, err
	}

	s.audit.Record(audit.Entry{
		Action:      "user_registration_initiated",
		UserID:      u.UserID,
		Resource:    "user",
		ResourceID:  u.UserID,
		Details:     map[string]string{"email": u.Email, "username": req.Username},
		ClientIP:    meta.IP,
		ClientAgent: meta.Agent,
		Outcome:     domain.AuditSuccess,
	})

	return &RegisterResult{UserID: u.UserID, Email: u.Email, RequiresVerification: true}, nil
}

// VerifyAccount consumes a registration passcode and flips the account to
// verified and active. Verification is never reverted by later auth flows.
func (s *service) VerifyAccount(ctx context.Context, req VerifyRequest, meta ClientMeta) (*domain.User, error) {
	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if u.Verified {
		return nil, fmt.Errorf("account already verified: %w", domain.ErrAlreadyRegistered)
	}

	if _, err := s.passcodes.Verify(ctx, req.Email, req.Code, domain.PurposeRegistration); err != nil {
		return nil, err
	}
	if err := s.users.SetVerified(ctx, u.UserID); err != nil {
		return nil, err
	}
	u.Verified = true
	u.Active = true
	slog.Info("user account verified", "email", u.Email)

	s.notifier.Enqueue(notify.Message{
		Channel: notify.ChannelEmail,
		To:      u.Email,
		Subject: "Welcome",
		Body:    fmt.Sprintf("Hi %s, your account is now active.", u.Username),
	})
	s.audit.Record(audit.Entry{
		Action:      "user_account_verified",
		UserID:      u.UserID,
		Resource:    "user",
		ResourceID:  u.UserID,
		Details:     map[string]string{"email": u.Email},
		ClientIP:    meta.IP,
		ClientAgent: meta.Agent,
		Outcome:     domain.AuditSuccess,
	})
	return u, nil
}

// ResendPasscode issues a fresh registration passcode, superseding any
// prior one still live.
func (s *service) ResendPasscode(ctx context.Context, email string, meta ClientMeta) error {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u.Verified {
		return fmt.Errorf("account already verified: %w", domain.ErrAlreadyRegistered)
	}
	if _, err := s.passcodes.Issue(ctx, email, domain.PurposeRegistration); err != nil {
		return err
	}
	s.audit.Record(audit.Entry{
		Action:      "otp_resend",
		UserID:      u.UserID,
		Resource:    "otp",
		Details:     map[string]string{"email": email},
		ClientIP:    meta.IP,
		ClientAgent: meta.Agent,
		Outcome:     domain.AuditSuccess,
	})
	return nil
}

// Login is step 1: password authentication followed by a login passcode.
// A missing account and a wrong password return the same error to resist
// enumeration; the state checks after them are deliberately distinct.
func (s *service) Login(ctx context.Context, req LoginRequest, meta ClientMeta) error {
	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(truncatePassword(req.Password))) != nil {
		metrics.LoginFailures.Inc()
		s.audit.Record(audit.Entry{
			Action:      "login_failed",
			Resource:    "auth",
			Details:     map[string]string{"email": req.Email},
			ClientIP:    meta.IP,
			ClientAgent: meta.Agent,
			Outcome:     domain.AuditFailed,
		})
		return fmt.Errorf("password check: %w", domain.ErrInvalidCredentials)
	}
	if !u.Verified {
		return fmt.Errorf("login: %w", domain.ErrAccountNotVerified)
	}
	if !u.Active {
		return fmt.Errorf("login: %w", domain.ErrAccountInactive)
	}

	if _, err := s.passcodes.Issue(ctx, u.Email, domain.PurposeLogin); err != nil {
		return err
	}
	s.audit.Record(audit.Entry{
		Action:      "login_otp_sent",
		UserID:      u.UserID,
		Resource:    "auth",
		Details:     map[string]string{"email": u.Email},
		ClientIP:    meta.IP,
		ClientAgent: meta.Agent,
		Outcome:     domain.AuditSuccess,
	})
	return nil
}

// VerifyLogin is step 2: redeem the login passcode and mint the credential
// pair, embedding the role and permission snapshot taken now.
func (s *service) VerifyLogin(ctx context.Context, req VerifyRequest, meta ClientMeta) (*token.Pair, error) {
	u, err := s.passcodes.Verify(ctx, req.Email, req.Code, domain.PurposeLogin)
	if err != nil {
		return nil, err
	}
	pair, err := s.mintPair(ctx, u)
	if err != nil {
		return nil, err
	}
	s.audit.Record(audit.Entry{
		Action:      "login_success",
		UserID:      u.UserID,
		Resource:    "auth",
		Details:     map[string]string{"email": u.Email},
		ClientIP:    meta.IP,
		ClientAgent: meta.Agent,
		Outcome:     domain.AuditSuccess,
	})
	return pair, nil
}

// Refresh rotates a refresh credential: the presented token's JTI is revoked
// unconditionally before a new pair is minted, so a replayed refresh token
// is rejected even when its signature and expiry still hold.
func (s *service) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Kind != token.KindRefresh {
		return nil, fmt.Errorf("not a refresh token: %w", domain.ErrInvalidToken)
	}
	revoked, err := s.ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		slog.Warn("replayed refresh token", "jti", claims.ID, "user_id", claims.Subject)
		return nil, fmt.Errorf("refresh token replay: %w", domain.ErrRevokedToken)
	}

	// Rotation-on-use. This happens before any account checks so a stolen
	// token burns even when the account state blocks reissuance.
	if err := s.ledger.Revoke(ctx, claims.ID, claims.Subject, token.KindRefresh, claims.ExpiresAt.Time); err != nil {
		return nil, err
	}
	metrics.TokensRevoked.WithLabelValues(token.KindRefresh).Inc()

	u, err := s.users.Get(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if u.Deleted() {
		return nil, fmt.Errorf("refresh: %w", domain.ErrAccountDeleted)
	}
	if !u.Verified || !u.Active {
		return nil, fmt.Errorf("refresh: %w", domain.ErrAccountInactive)
	}
	return s.mintPair(ctx, u)
}

// Logout revokes the presented access credential. The response is always
// produced: a failed ledger write is logged and reported as a degraded
// result, never as a request failure.
func (s *service) Logout(ctx context.Context, claims *token.Claims, meta ClientMeta) *LogoutResult {
	outcome := domain.AuditSuccess
	revoked := true
	if err := s.ledger.Revoke(ctx, claims.ID, claims.Subject, token.KindAccess, claims.ExpiresAt.Time); err != nil {
		slog.Error("logout revocation failed", "jti", claims.ID, "user_id", claims.Subject, "err", err)
		outcome = domain.AuditPartialSuccess
		revoked = false
	} else {
		metrics.TokensRevoked.WithLabelValues(token.KindAccess).Inc()
	}
	s.audit.Record(audit.Entry{
		Action:      "logout",
		UserID:      claims.Subject,
		Resource:    "auth",
		Details:     map[string]string{"username": claims.Username},
		ClientIP:    meta.IP,
		ClientAgent: meta.Agent,
		Outcome:     outcome,
	})
	return &LogoutResult{Revoked: revoked}
}

// LogoutAll revokes the presented credential, then bulk-marks every ledger
// entry owned by the subject. Tokens that never passed through the ledger
// are not retroactively covered.
func (s *service) LogoutAll(ctx context.Context, claims *token.Claims, meta ClientMeta) (*LogoutAllResult, error) {
	res := &LogoutAllResult{}
	if err := s.ledger.Revoke(ctx, claims.ID, claims.Subject, token.KindAccess, claims.ExpiresAt.Time); err != nil {
		slog.Error("logout-all: presented token revocation failed", "jti", claims.ID, "err", err)
		res.Degraded = true
	} else {
		res.Revoked++
		metrics.TokensRevoked.WithLabelValues(token.KindAccess).Inc()
	}

	count, err := s.ledger.RevokeAll(ctx, claims.Subject)
	res.Revoked += count
	if err != nil {
		slog.Error("logout-all: bulk revoke incomplete", "user_id", claims.Subject, "err", err)
		res.Degraded = true
	}

	outcome := domain.AuditSuccess
	if res.Degraded {
		outcome = domain.AuditPartialSuccess
	}
	s.audit.Record(audit.Entry{
		Action:      "logout_all",
		UserID:      claims.Subject,
		Resource:    "auth",
		Details:     map[string]string{"revoked": fmt.Sprintf("%d", res.Revoked)},
		ClientIP:    meta.IP,
		ClientAgent: meta.Agent,
		Outcome:     outcome,
	})
	return res, nil
}

// CurrentUser resolves the account behind a validated credential and
// enforces that it is still eligible for sessions.
func (s *service) CurrentUser(ctx context.Context, claims *token.Claims) (*domain.User, error) {
	u, err := s.users.Get(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if u.Deleted() || !u.Active {
		return nil, fmt.Errorf("account state: %w", domain.ErrAccountInactive)
	}
	return u, nil
}

func (s *service) mintPair(ctx context.Context, u *domain.User) (*token.Pair, error) {
	perms, err := s.perms.PermissionsForRole(ctx, u.Role)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		// Unknown role: mint with an empty snapshot rather than lock the
		// user out entirely.
		slog.Warn("role has no permission set", "role", u.Role, "user_id", u.UserID)
		perms = nil
	}
	pair, err := s.tokens.IssuePair(u, perms)
	if err != nil {
		return nil, err
	}
	metrics.CredentialsIssued.WithLabelValues(token.KindAccess).Inc()
	metrics.CredentialsIssued.WithLabelValues(token.KindRefresh).Inc()
	return pair, nil
}

// Bcrypt ignores input beyond 72 bytes; truncate explicitly so hashing and
// comparison see the same bytes.
func truncatePassword(pw string) string {
	if len(pw) > 72 {
		return pw[:72]
	}
	return pw
}

func hashPassword(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(truncatePassword(pw)), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
