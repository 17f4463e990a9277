package passcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/go-auth-api/internal/application/notify"
	"github.com/go-auth-api/internal/domain"
	"github.com/go-auth-api/internal/metrics"
	"github.com/go-auth-api/internal/pkg/id"
)

// PasscodeStore is the minimal persistence interface the issuer requires.
type PasscodeStore interface {
	InsertSuperseding(ctx context.Context, p *domain.Passcode) error
	LatestUnused(ctx context.Context, email, code, purpose string) (*domain.Passcode, error)
	MarkUsed(ctx context.Context, passcodeID string) error
}

// AccountStore resolves the subject a verified passcode belongs to.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Notifier hands deliveries off to the async notification queue.
type Notifier interface {
	Enqueue(msg notify.Message) bool
}

// Service issues and verifies one-time passcodes.
type Service interface {
	// Issue supersedes any live passcode for (email, purpose), persists a new
	// one and queues its delivery. Delivery failure never fails the issuance.
	Issue(ctx context.Context, email, purpose string) (*domain.Passcode, error)
	// Verify redeems the most recent unused passcode matching
	// (email, code, purpose) and returns the owning account. A passcode is
	// redeemable at most once; concurrent redeemers race on a store-level
	// conditional write and at most one wins.
	Verify(ctx context.Context, email, code, purpose string) (*domain.User, error)
}

// ServiceDeps wires the issuer's collaborators.
type ServiceDeps struct {
	Passcodes PasscodeStore
	Users     AccountStore
	Notifier  Notifier
	TTL       time.Duration
	Length    int
}

type service struct {
	passcodes PasscodeStore
	users     AccountStore
	notifier  Notifier
	ttl       time.Duration
	length    int
}

func NewService(deps ServiceDeps) Service {
	return &service{
		passcodes: deps.Passcodes,
		users:     deps.Users,
		notifier:  deps.Notifier,
		ttl:       deps.TTL,
		length:    deps.Length,
	}
}

func (s *service) Issue(ctx context.Context, email, purpose string) (*domain.Passcode, error) {
	code, err := generateCode(s.length)
	if err != nil {
		return nil, fmt.Errorf("generate passcode: %w", err)
	}
	now := time.Now().UTC()
	p := &domain.Passcode{
		PasscodeID: id.New(),
		Email:      email,
		Purpose:    purpose,
		Code:       code,
		Used:       false,
		ExpiresAt:  now.Add(s.ttl).Unix(),
		CreatedAt:  now,
	}
	if err := s.passcodes.InsertSuperseding(ctx, p); err != nil {
		return nil, err
	}
	metrics.PasscodesIssued.WithLabelValues(purpose).Inc()
	slog.Info("passcode issued", "email", email, "purpose", purpose)

	s.queueDelivery(ctx, email, code, purpose)
	return p, nil
}

func (s *service) Verify(ctx context.Context, email, code, purpose string) (*domain.User, error) {
	p, err := s.passcodes.LatestUnused(ctx, email, code, purpose)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		metrics.PasscodeVerifications.WithLabelValues(purpose, "invalid").Inc()
		slog.Warn("invalid passcode attempt", "email", email, "purpose", purpose)
		return nil, fmt.Errorf("no matching passcode: %w", domain.ErrInvalidPasscode)
	}
	if p.Expired(time.Now()) {
		metrics.PasscodeVerifications.WithLabelValues(purpose, "expired").Inc()
		slog.Warn("expired passcode attempt", "email", email, "purpose", purpose)
		return nil, fmt.Errorf("passcode past expiry: %w", domain.ErrExpiredPasscode)
	}
	// Conditional write: if a concurrent verifier already claimed this code,
	// the condition fails and this attempt is rejected.
	if err := s.passcodes.MarkUsed(ctx, p.PasscodeID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		metrics.PasscodeVerifications.WithLabelValues(purpose, "invalid").Inc()
		return nil, fmt.Errorf("passcode already redeemed: %w", domain.ErrInvalidPasscode)
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	metrics.PasscodeVerifications.WithLabelValues(purpose, "ok").Inc()
	return u, nil
}

// queueDelivery routes the code to email and, when the account has a phone
// number, SMS as well. Both are best-effort.
func (s *service) queueDelivery(ctx context.Context, email, code, purpose string) {
	subject := "Your verification code"
	if purpose == domain.PurposeLogin {
		subject = "Your login code"
	}
	body := fmt.Sprintf("Your one-time code is %s. It expires in %d minutes.", code, int(s.ttl.Minutes()))
	s.notifier.Enqueue(notify.Message{Channel: notify.ChannelEmail, To: email, Subject: subject, Body: body})

	if u, err := s.users.GetByEmail(ctx, email); err == nil && u.Phone != nil {
		s.notifier.Enqueue(notify.Message{Channel: notify.ChannelSMS, To: *u.Phone, Body: body})
	}
}

func generateCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
