package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-auth-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TokenEnvelope wraps credential issuance responses.
type TokenEnvelope struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// SafeUser is the user shape exposed over the wire. The password hash and
// soft-delete marker never leave the service.
type SafeUser struct {
	UserID   string  `json:"user_id"`
	Email    string  `json:"email"`
	Username string  `json:"username"`
	FullName string  `json:"full_name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Role     string  `json:"role"`
	Verified bool    `json:"verified"`
	Active   bool    `json:"active"`
}

func toSafeUser(u *domain.User) *SafeUser {
	if u == nil {
		return nil
	}
	return &SafeUser{
		UserID:   u.UserID,
		Email:    u.Email,
		Username: u.Username,
		FullName: u.FullName,
		Phone:    u.Phone,
		Role:     u.Role,
		Verified: u.Verified,
		Active:   u.Active,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// statusFor maps domain sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrRevokedToken):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrAccountNotVerified),
		errors.Is(err, domain.ErrAccountInactive),
		errors.Is(err, domain.ErrAccountDeleted):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidPasscode),
		errors.Is(err, domain.ErrExpiredPasscode):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
