package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"github.com/golang-jwt/jwt/v5"
)

// JWTSigner signs and verifies HS256 bearer tokens that carry a chat
// platform user id. The bot front end mints one per interaction.
type JWTSigner struct {
	issuer string
	secret []byte
	nowFn  func() time.Time
}

func NewJWTSigner(issuer, secret string) (*JWTSigner, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	if issuer == "" {
		issuer = "dc-license-bot"
	}
	return &JWTSigner{issuer: issuer, secret: []byte(secret), nowFn: time.Now}, nil
}

type botClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (s *JWTSigner) Sign(claims ports.AuthClaims, ttl time.Duration) (string, error) {
	if claims.UserID == "" {
		return "", fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := s.nowFn()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, botClaims{
		Role: claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   claims.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(s.secret)
}

func (s *JWTSigner) ValidateToken(_ context.Context, raw string) (ports.AuthClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &botClaims{}, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
		jwt.WithTimeFunc(s.nowFn),
	)
	if err != nil {
		return ports.AuthClaims{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*botClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return ports.AuthClaims{}, fmt.Errorf("%w: invalid token claims", domain.ErrUnauthorized)
	}
	return ports.AuthClaims{UserID: claims.Subject, Role: claims.Role}, nil
}

var _ ports.TokenVerifier = (*JWTSigner)(nil)
