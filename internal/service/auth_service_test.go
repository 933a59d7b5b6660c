package service_test

import (
	"testing"
	"time"

	"github.com/evetabi/prediction/internal/config"
	"github.com/evetabi/prediction/internal/service"
	"github.com/golang-jwt/jwt/v5"
)

func authTestCfg() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			AccessSecret: "test-access-secret",
			AccessTTL:    15 * time.Minute,
			RefreshTTL:   30 * 24 * time.Hour,
		},
	}
}

// signClaims mints a token the same way generateTokenPair does internally,
// so ParseAccessToken can be exercised without a database-backed UserRepository.
func signClaims(secret string, claims service.AppClaims) string {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		panic(err)
	}
	return tok
}

// TestAuthService_ParseAccessToken_Valid confirms a correctly signed,
// unexpired access token round-trips through ParseAccessToken.
func TestAuthService_ParseAccessToken_Valid(t *testing.T) {
	cfg := authTestCfg()
	authSvc := service.NewAuthService(nil, nil, cfg)

	now := time.Now()
	token := signClaims(cfg.JWT.AccessSecret, service.AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "11111111-1111-1111-1111-111111111111",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
		Role:      "user",
		TokenType: "access",
	})

	claims, err := authSvc.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.TokenType != "access" {
		t.Errorf("token type = %q, want %q", claims.TokenType, "access")
	}
	if claims.Role != "user" {
		t.Errorf("role = %q, want %q", claims.Role, "user")
	}
}

// TestAuthService_ParseAccessToken_Expired confirms an expired token is
// rejected.
func TestAuthService_ParseAccessToken_Expired(t *testing.T) {
	cfg := authTestCfg()
	authSvc := service.NewAuthService(nil, nil, cfg)

	past := time.Now().Add(-time.Hour)
	token := signClaims(cfg.JWT.AccessSecret, service.AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "11111111-1111-1111-1111-111111111111",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
		},
		Role:      "user",
		TokenType: "access",
	})

	if _, err := authSvc.ParseAccessToken(token); err == nil {
		t.Error("expected an error for an expired token")
	}
}

// TestAuthService_ParseAccessToken_WrongSecret confirms a token signed with
// a different secret is rejected.
func TestAuthService_ParseAccessToken_WrongSecret(t *testing.T) {
	cfg := authTestCfg()
	authSvc := service.NewAuthService(nil, nil, cfg)

	now := time.Now()
	token := signClaims("a-completely-different-secret", service.AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "11111111-1111-1111-1111-111111111111",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
		Role:      "user",
		TokenType: "access",
	})

	if _, err := authSvc.ParseAccessToken(token); err == nil {
		t.Error("expected an error for a token signed with the wrong secret")
	}
}

// TestAuthService_ParseAccessToken_WrongAlgorithm confirms the "none"
// algorithm (and any non-HMAC algorithm) is rejected outright, guarding
// against the classic alg=none JWT bypass.
func TestAuthService_ParseAccessToken_WrongAlgorithm(t *testing.T) {
	cfg := authTestCfg()
	authSvc := service.NewAuthService(nil, nil, cfg)

	now := time.Now()
	claims := service.AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "11111111-1111-1111-1111-111111111111",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
		Role:      "admin",
		TokenType: "access",
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build alg=none token: %v", err)
	}

	if _, err := authSvc.ParseAccessToken(unsigned); err == nil {
		t.Error("expected alg=none token to be rejected")
	}
}
