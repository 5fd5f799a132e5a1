package auth

import (
	"time"
)

// OperatorClaims are the JWT claims for the engine operator
type OperatorClaims struct {
	Username     string `json:"username"`
	TokenVersion int    `json:"token_version"`
}

// TokenResponse is returned by a successful login
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
	TokenType   string `json:"token_type"` // Always "Bearer"
}

// LoginRequest represents an operator login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ChangePasswordRequest represents a password change request
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// Credentials is the persisted operator record
type Credentials struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	TokenVersion int       `json:"token_version"` // bumped on password change to revoke old tokens
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	DefaultBcryptCost = 12
	MinPasswordLength = 8

	// bcrypt ignores input past 72 bytes
	maxPasswordLength = 72
)

// Config holds authentication configuration
type Config struct {
	JWTSecret           string
	AdminUsername       string
	AdminPasswordHash   string // bcrypt, seeds the record when none is stored
	AccessTokenDuration time.Duration
	BcryptCost          int
	MinPasswordLength   int
}

// DefaultConfig returns default authentication configuration
func DefaultConfig() Config {
	return Config{
		AdminUsername:       "admin",
		AccessTokenDuration: 12 * time.Hour,
		BcryptCost:          DefaultBcryptCost,
		MinPasswordLength:   MinPasswordLength,
	}
}

// AuthError is an authentication failure with a stable code
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

// Common authentication errors
var (
	ErrInvalidCredentials = AuthError{Code: "INVALID_CREDENTIALS", Message: "invalid username or password"}
	ErrNotConfigured      = AuthError{Code: "NOT_CONFIGURED", Message: "no operator password configured"}
	ErrInvalidToken       = AuthError{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	ErrTokenExpired       = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrSessionRevoked     = AuthError{Code: "SESSION_REVOKED", Message: "session has been revoked"}
	ErrUnauthorized       = AuthError{Code: "UNAUTHORIZED", Message: "unauthorized access"}
	ErrWeakPassword       = AuthError{Code: "WEAK_PASSWORD", Message: "password does not meet requirements"}
)
