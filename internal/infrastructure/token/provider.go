package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-auth-api/internal/config"
	"github.com/go-auth-api/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds. A refresh credential can only be redeemed at the refresh
// endpoint; an access credential everywhere else.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims holds the JWT payload fields. Access credentials carry a snapshot of
// the role and permission set taken at issuance time; the snapshot is not
// re-evaluated live (staleness is bounded by the access TTL).
type Claims struct {
	Username    string   `json:"username,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Kind        string   `json:"type"`
	jwt.RegisteredClaims
}

// Pair is an access+refresh credential pair minted together.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Provider signs and verifies HS256 JWTs. The signing secret and TTLs are
// process-wide configuration loaded once at startup.
type Provider struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewProvider(cfg *config.Config) (*Provider, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	return &Provider{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}, nil
}

// Sign mints a single credential of the given kind. Each call generates a
// fresh JTI; expiry is an absolute second-granularity timestamp (clock skew
// is not compensated).
func (p *Provider) Sign(userID, username, kind string, roles, permissions []string) (string, error) {
	ttl := p.accessTTL
	if kind == KindRefresh {
		ttl = p.refreshTTL
		// Refresh credentials carry identity only; the permission snapshot is
		// taken fresh when the pair is reminted.
		roles, permissions = nil, nil
	}
	now := time.Now()
	claims := Claims{
		Username:    username,
		Roles:       roles,
		Permissions: permissions,
		Kind:        kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// IssuePair mints an access+refresh pair for the user, embedding the current
// role and permission snapshot into the access credential.
func (p *Provider) IssuePair(u *domain.User, permissions []string) (*Pair, error) {
	access, err := p.Sign(u.UserID, u.Username, KindAccess, []string{u.Role}, permissions)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := p.Sign(u.UserID, u.Username, KindRefresh, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &Pair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

// Verify parses and validates a credential string. Bad signature, malformed
// structure and expiry all map to domain.ErrInvalidToken. Revocation is the
// caller's responsibility, layered on top.
func (p *Provider) Verify(tokenStr string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", domain.ErrInvalidToken)
	}
	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, fmt.Errorf("invalid token claims: %w", domain.ErrInvalidToken)
	}
	return claims, nil
}
