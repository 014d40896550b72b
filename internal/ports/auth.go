package ports

import "context"

type AuthClaims struct {
	UserID string
	Role   string
}

type TokenVerifier interface {
	ValidateToken(ctx context.Context, token string) (AuthClaims, error)
}
