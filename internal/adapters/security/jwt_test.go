package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestSignAndValidate(t *testing.T) {
	t.Parallel()
	signer, err := NewJWTSigner("", testSecret)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	token, err := signer.Sign(ports.AuthClaims{UserID: "123", Role: "admin"}, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := signer.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "123" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()
	signer, _ := NewJWTSigner("bot", testSecret)
	other, _ := NewJWTSigner("other", testSecret)
	foreign, _ := other.Sign(ports.AuthClaims{UserID: "1"}, time.Minute)

	expiredSigner, _ := NewJWTSigner("bot", testSecret)
	expiredSigner.nowFn = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := expiredSigner.Sign(ports.AuthClaims{UserID: "1"}, time.Minute)

	for name, token := range map[string]string{"garbage": "nope", "wrong issuer": foreign, "expired": expired} {
		if _, err := signer.ValidateToken(context.Background(), token); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("%s: expected unauthorized, got %v", name, err)
		}
	}
	if _, err := NewJWTSigner("bot", "short"); err == nil {
		t.Fatalf("short secrets should be refused")
	}
}
