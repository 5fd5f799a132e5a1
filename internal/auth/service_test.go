package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"binance-signal-engine/internal/database"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T, password string) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(database.NewRedisStateStore(nil, zerolog.Nop()), Config{
		JWTSecret:         "test-secret",
		AdminPasswordHash: string(hash),
		BcryptCost:        bcrypt.MinCost,
	})
	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("Expected init to succeed, got %v", err)
	}
	return svc
}

func TestService_Login(t *testing.T) {
	svc := newTestService(t, "Correct-Horse1")
	ctx := context.Background()

	if _, err := svc.Login(ctx, LoginRequest{Username: "admin", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{Username: "root", Password: "Correct-Horse1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	resp, err := svc.Login(ctx, LoginRequest{Username: "admin", Password: "Correct-Horse1"})
	if err != nil {
		t.Fatalf("Expected login, got %v", err)
	}
	if resp.TokenType != "Bearer" || resp.ExpiresIn != int64((12*time.Hour).Seconds()) {
		t.Errorf("Unexpected token response %+v", resp)
	}

	claims, err := svc.Authenticate(resp.AccessToken)
	if err != nil {
		t.Fatalf("Expected token accepted, got %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("Expected admin, got %s", claims.Username)
	}
}

func TestService_NotConfigured(t *testing.T) {
	svc := NewService(database.NewRedisStateStore(nil, zerolog.Nop()), Config{JWTSecret: "s"})
	if err := svc.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if svc.Configured() {
		t.Error("Expected service unconfigured without a password hash")
	}
	if _, err := svc.Login(context.Background(), LoginRequest{Username: "admin", Password: "x"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestService_ChangePasswordRevokesTokens(t *testing.T) {
	svc := newTestService(t, "Correct-Horse1")
	ctx := context.Background()

	resp, err := svc.Login(ctx, LoginRequest{Username: "admin", Password: "Correct-Horse1"})
	if err != nil {
		t.Fatal(err)
	}

	for _, weak := range []string{"short", "no-digits-here", "1234567890", "Correct-Horse1"} {
		err := svc.ChangePassword(ctx, ChangePasswordRequest{CurrentPassword: "Correct-Horse1", NewPassword: weak})
		var authErr AuthError
		if !errors.As(err, &authErr) || authErr.Code != ErrWeakPassword.Code {
			t.Errorf("Expected %q rejected as weak, got %v", weak, err)
		}
	}
	if err := svc.ChangePassword(ctx, ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "Battery-Staple9"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword(ctx, ChangePasswordRequest{CurrentPassword: "Correct-Horse1", NewPassword: "Battery-Staple9"}); err != nil {
		t.Fatalf("Expected password change, got %v", err)
	}

	if _, err := svc.Authenticate(resp.AccessToken); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("Expected old token revoked, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{Username: "admin", Password: "Battery-Staple9"}); err != nil {
		t.Errorf("Expected login with new password, got %v", err)
	}
}

func TestService_InitPrefersStoredRecord(t *testing.T) {
	store := database.NewRedisStateStore(nil, zerolog.Nop())
	first := NewService(store, Config{JWTSecret: "s", AdminPasswordHash: mustHash(t, "Correct-Horse1"), BcryptCost: bcrypt.MinCost})
	if err := first.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := first.ChangePassword(context.Background(), ChangePasswordRequest{CurrentPassword: "Correct-Horse1", NewPassword: "Battery-Staple9"}); err != nil {
		t.Fatal(err)
	}

	second := NewService(store, Config{JWTSecret: "s", AdminPasswordHash: mustHash(t, "Correct-Horse1"), BcryptCost: bcrypt.MinCost})
	if err := second.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := second.Login(context.Background(), LoginRequest{Username: "admin", Password: "Battery-Staple9"}); err != nil {
		t.Errorf("Expected stored password to win over the seed, got %v", err)
	}
}

func TestJWTManager_Expiry(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issued }

	token, err := m.GenerateAccessToken(OperatorClaims{Username: "admin"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.ValidateAccessToken(token); err != nil {
		t.Fatalf("Expected fresh token valid, got %v", err)
	}

	m.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := m.ValidateAccessToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}

	other := NewJWTManager("other", time.Minute)
	other.now = func() time.Time { return issued }
	if _, err := other.ValidateAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for a foreign secret, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestService(t, "Correct-Horse1")
	resp, err := svc.Login(context.Background(), LoginRequest{Username: "admin", Password: "Correct-Horse1"})
	if err != nil {
		t.Fatal(err)
	}

	router := gin.New()
	NewHandlers(svc).RegisterRoutes(router.Group("/api"))

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"no header", "", "", http.StatusUnauthorized},
		{"bad scheme", "Basic abc", "", http.StatusUnauthorized},
		{"bad token", "Bearer abc", "", http.StatusUnauthorized},
		{"valid header", "Bearer " + resp.AccessToken, "", http.StatusOK},
		{"valid query", "", "?token=" + resp.AccessToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestLoginHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestService(t, "Correct-Horse1")
	router := gin.New()
	NewHandlers(svc).RegisterRoutes(router.Group("/api"))

	body := `{"username":"admin","password":"Correct-Horse1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "access_token") {
		t.Errorf("Expected token, got %d %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"admin","password":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(hash)
}
