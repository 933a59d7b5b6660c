package service

import (
	"context"
	"fmt"
	"time"

	"github.com/evetabi/prediction/internal/config"
	"github.com/evetabi/prediction/internal/domain"
	"github.com/evetabi/prediction/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// IdentityVerifier — the external identity-provider collaborator (spec.md §6)
// ──────────────────────────────────────────────────────────────────────────────

// UserDescriptor is what a verified identity token resolves to: enough to
// find-or-create the local User row. Signature verification against the
// HMAC-SHA256 data-check-string protocol happens entirely on the Verifier's
// side — the core only consumes its result.
type UserDescriptor struct {
	ExternalID  string
	DisplayName string
}

// IdentityVerifier is the minimal interface AuthService needs from the
// external identity provider. Declared here; TelegramVerifier
// (telegram_verifier.go) is the implementation wired in by cmd/.
type IdentityVerifier interface {
	// Verify checks tokenBlob's signature and freshness and returns the
	// descriptor of the user it authenticates, or nil if the blob is invalid
	// or expired.
	Verify(tokenBlob string) (*UserDescriptor, error)
}

// ──────────────────────────────────────────────────────────────────────────────
// Request / Response types
// ──────────────────────────────────────────────────────────────────────────────

// LoginResponse is returned on successful login. New external ids are
// provisioned on first login — there is no separate registration step.
type LoginResponse struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

// TokenPair holds both tokens returned by generateTokenPair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// ──────────────────────────────────────────────────────────────────────────────
// JWT claims
// ──────────────────────────────────────────────────────────────────────────────

// AppClaims extends jwt.RegisteredClaims with application-specific fields.
type AppClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	TokenType string `json:"type"` // "access" or "refresh"
}

// ──────────────────────────────────────────────────────────────────────────────
// AuthService
// ──────────────────────────────────────────────────────────────────────────────

// AuthService exchanges a verified external identity for a local session
// (JWT access/refresh pair), provisioning the User row on first login.
type AuthService struct {
	userRepo *repository.UserRepository
	verifier IdentityVerifier
	cfg      *config.Config
}

// NewAuthService creates an AuthService.
func NewAuthService(userRepo *repository.UserRepository, verifier IdentityVerifier, cfg *config.Config) *AuthService {
	return &AuthService{userRepo: userRepo, verifier: verifier, cfg: cfg}
}

// ──────────────────────────────────────────────────────────────────────────────
// Login
// ──────────────────────────────────────────────────────────────────────────────

// Login verifies tokenBlob against the external identity provider, then
// finds or provisions the matching local user and issues a fresh token pair.
// Admin privileges are granted on provisioning when external_id appears in
// ADMIN_IDS (spec.md §7).
func (s *AuthService) Login(ctx context.Context, tokenBlob string) (*LoginResponse, error) {
	desc, err := s.verifier.Verify(tokenBlob)
	if err != nil || desc == nil || desc.ExternalID == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.userRepo.GetByExternalID(ctx, desc.ExternalID)
	if domain.IsNotFound(err) {
		user, err = s.provision(ctx, desc)
	}
	if err != nil {
		return nil, fmt.Errorf("auth_service.Login: %w", err)
	}

	pair, err := s.generateTokenPair(user.ID, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("auth_service.Login: tokens: %w", err)
	}

	return &LoginResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// provision creates a new User row for a first-time external id.
func (s *AuthService) provision(ctx context.Context, desc *UserDescriptor) (*domain.User, error) {
	now := time.Now().UTC()
	role := domain.RoleUser
	for _, id := range s.cfg.Trade.AdminIDs {
		if id == desc.ExternalID {
			role = domain.RoleAdmin
			break
		}
	}

	username := desc.DisplayName
	if username == "" {
		username = desc.ExternalID
	}

	user := &domain.User{
		ID:         uuid.New(),
		ExternalID: desc.ExternalID,
		Username:   username,
		Role:       role,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("provision: %w", err)
	}
	return user, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// RefreshToken
// ──────────────────────────────────────────────────────────────────────────────

// RefreshToken validates a refresh token and issues a new token pair.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (string, string, error) {
	claims, err := s.parseToken(refreshToken)
	if err != nil {
		return "", "", domain.ErrTokenInvalid
	}
	if claims.TokenType != "refresh" {
		return "", "", domain.ErrTokenInvalid
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", "", domain.ErrTokenInvalid
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", "", domain.ErrUserNotFound
	}

	pair, err := s.generateTokenPair(user.ID, string(user.Role))
	if err != nil {
		return "", "", fmt.Errorf("auth_service.RefreshToken: %w", err)
	}
	return pair.AccessToken, pair.RefreshToken, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Token helpers
// ──────────────────────────────────────────────────────────────────────────────

// generateTokenPair creates a signed access token (AccessTTL) and a signed
// refresh token (RefreshTTL) for the given user.
func (s *AuthService) generateTokenPair(userID uuid.UUID, role string) (TokenPair, error) {
	now := time.Now().UTC()
	secret := []byte(s.cfg.JWT.AccessSecret) // same secret for both; type claim differentiates

	accessClaims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.AccessTTL)),
		},
		Role:      role,
		TokenType: "access",
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(secret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshClaims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.RefreshTTL)),
		},
		TokenType: "refresh",
	}
	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(secret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// parseToken validates the token signature, algorithm, and expiry.
func (s *AuthService) parseToken(tokenString string) (*AppClaims, error) {
	secret := []byte(s.cfg.JWT.AccessSecret)
	tok, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, domain.ErrTokenInvalid
	}
	claims, ok := tok.Claims.(*AppClaims)
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

// ParseAccessToken is exported for use by the JWT middleware.
func (s *AuthService) ParseAccessToken(tokenString string) (*AppClaims, error) {
	return s.parseToken(tokenString)
}
