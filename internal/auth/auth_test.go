package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func withSecret(t *testing.T, value string) {
	t.Helper()
	t.Setenv(secretEnvVariable, value)
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidate(t *testing.T) {
	withSecret(t, "test-secret")

	token, expires, err := GenerateToken(42, "coordinador", 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expected future expiration, got %v", expires)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	id, err := claims.UserID()
	if err != nil || id != 42 {
		t.Fatalf("unexpected subject %q: %v", claims.Subject, err)
	}
	if claims.Role != "COORDINADOR" || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseRejectsTampering(t *testing.T) {
	withSecret(t, "test-secret")

	token, _, err := GenerateToken(1, "HSEQ", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ParseAndValidate(token + "x"); err != ErrInvalidToken {
		t.Fatalf("expected invalid token, got %v", err)
	}

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "1",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}})
	signed, _ := foreign.SignedString([]byte("test-secret"))
	if _, err := ParseAndValidate(signed); err != ErrInvalidToken {
		t.Fatalf("expected issuer mismatch to fail, got %v", err)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   "1",
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}})
	signed, _ = expired.SignedString([]byte("test-secret"))
	if _, err := ParseAndValidate(signed); err != ErrInvalidToken {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestMissingSecret(t *testing.T) {
	withSecret(t, "")
	if _, _, err := GenerateToken(1, "HSEQ", time.Minute); err == nil {
		t.Fatal("expected error without secret")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := ContextWithUser(context.Background(), 7, "hseq")
	id, ok := UserIDFromContext(ctx)
	if !ok || id != 7 {
		t.Fatalf("unexpected user id: %d, ok=%v", id, ok)
	}
	if RoleFromContext(ctx) != "HSEQ" {
		t.Fatalf("unexpected role %q", RoleFromContext(ctx))
	}
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Fatal("empty context should carry no user")
	}
	ctx = ContextWithToken(ctx, "abc")
	if tok, ok := TokenFromContext(ctx); !ok || tok != "abc" {
		t.Fatalf("unexpected token %q", tok)
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	defer SetHashCostForTests(bcrypt.MinCost)()
	hash, err := HashPassword("secreto")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := VerifyPassword(hash, "secreto"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := VerifyPassword(hash, "otro"); err == nil {
		t.Fatal("expected mismatch")
	}
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}
