package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndValidate(t *testing.T) {
	token, err := IssueToken("secret", "user-1", "a@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ValidateToken(token, "secret")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "a@example.com" || claims.Issuer != Issuer {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestValidateRejects(t *testing.T) {
	token, _ := IssueToken("secret", "user-1", "", time.Hour)
	if _, err := ValidateToken(token, "other"); err == nil {
		t.Error("expected wrong secret to fail")
	}

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("secret"))
	if _, err := ValidateToken(expired, "secret"); err == nil {
		t.Error("expected expired token to fail")
	}

	if _, err := ValidateToken("not-a-token", "secret"); err == nil {
		t.Error("expected malformed token to fail")
	}

	anon, _ := IssueToken("secret", "", "", 0)
	if _, err := ValidateToken(anon, "secret"); err == nil {
		t.Error("expected token without user to fail")
	}

	if _, err := IssueToken("", "user-1", "", 0); err == nil {
		t.Error("expected error without secret")
	}
}
