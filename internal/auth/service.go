package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode"

	"binance-signal-engine/internal/state"

	"golang.org/x/crypto/bcrypt"
)

// Service authenticates the single engine operator. The credential record
// lives in the state store under the auth kind.
type Service struct {
	store  state.Store
	jwt    *JWTManager
	config Config
	now    func() time.Time

	mu    sync.RWMutex
	creds *Credentials
}

// NewService creates a new auth service
func NewService(store state.Store, config Config) *Service {
	if config.AdminUsername == "" {
		config.AdminUsername = DefaultConfig().AdminUsername
	}
	if config.AccessTokenDuration <= 0 {
		config.AccessTokenDuration = DefaultConfig().AccessTokenDuration
	}
	if config.BcryptCost < bcrypt.MinCost {
		config.BcryptCost = DefaultBcryptCost
	}
	if config.MinPasswordLength < MinPasswordLength {
		config.MinPasswordLength = MinPasswordLength
	}
	return &Service{
		store:  store,
		jwt:    NewJWTManager(config.JWTSecret, config.AccessTokenDuration),
		config: config,
		now:    time.Now,
	}
}

// JWTManager returns the token manager for the middleware
func (s *Service) JWTManager() *JWTManager {
	return s.jwt
}

// Init loads the stored operator record, seeding it from the configured
// hash when nothing is stored yet.
func (s *Service) Init(ctx context.Context) error {
	var creds Credentials
	err := s.store.Load(ctx, state.KindAuth, &creds)
	switch {
	case err == nil && creds.PasswordHash != "":
		s.setCredentials(&creds)
		return nil
	case err != nil && !errors.Is(err, state.ErrNoSnapshot):
		return fmt.Errorf("load operator credentials: %w", err)
	}

	if s.config.AdminPasswordHash == "" {
		return nil
	}
	seed := &Credentials{
		Username:     s.config.AdminUsername,
		PasswordHash: s.config.AdminPasswordHash,
		UpdatedAt:    s.now(),
	}
	if err := s.store.Save(ctx, state.KindAuth, seed); err != nil {
		return fmt.Errorf("seed operator credentials: %w", err)
	}
	s.setCredentials(seed)
	return nil
}

// Login checks the password and issues an access token
func (s *Service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	creds := s.credentials()
	if creds == nil {
		return nil, ErrNotConfigured
	}
	if req.Username != creds.Username || !passwordMatches(creds.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateAccessToken(OperatorClaims{
		Username:     creds.Username,
		TokenVersion: creds.TokenVersion,
	})
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken: token,
		ExpiresIn:   s.jwt.GetAccessTokenDuration(),
		TokenType:   "Bearer",
	}, nil
}

// Authenticate validates a token against the current credential record
func (s *Service) Authenticate(token string) (*OperatorClaims, error) {
	claims, err := s.jwt.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}
	creds := s.credentials()
	if creds == nil || claims.Username != creds.Username {
		return nil, ErrInvalidToken
	}
	if claims.TokenVersion != creds.TokenVersion {
		return nil, ErrSessionRevoked
	}
	return claims, nil
}

// ChangePassword replaces the operator password and revokes issued tokens
func (s *Service) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	creds := s.credentials()
	if creds == nil {
		return ErrNotConfigured
	}
	if !passwordMatches(creds.PasswordHash, req.CurrentPassword) {
		return ErrInvalidCredentials
	}
	if err := s.checkNewPassword(req.NewPassword, creds.PasswordHash); err != nil {
		return AuthError{Code: ErrWeakPassword.Code, Message: err.Error()}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash operator password: %w", err)
	}

	updated := &Credentials{
		Username:     creds.Username,
		PasswordHash: string(hash),
		TokenVersion: creds.TokenVersion + 1,
		UpdatedAt:    s.now(),
	}
	if err := s.store.Save(ctx, state.KindAuth, updated); err != nil {
		return fmt.Errorf("save operator credentials: %w", err)
	}
	s.setCredentials(updated)
	return nil
}

// Configured reports whether an operator password exists
func (s *Service) Configured() bool {
	return s.credentials() != nil
}

func (s *Service) credentials() *Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

func (s *Service) setCredentials(c *Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = c
}

// checkNewPassword requires a letter and a digit within the length bounds,
// and refuses the password currently in use
func (s *Service) checkNewPassword(password, currentHash string) error {
	if len(password) < s.config.MinPasswordLength || len(password) > maxPasswordLength {
		return fmt.Errorf("password must be %d to %d characters", s.config.MinPasswordLength, maxPasswordLength)
	}

	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return errors.New("password must contain a letter and a digit")
	}

	if passwordMatches(currentHash, password) {
		return errors.New("new password must differ from the current one")
	}
	return nil
}

func passwordMatches(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
