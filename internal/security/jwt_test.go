package security

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestSignAndParse(t *testing.T) {
	s := NewJWTSigner(testSecret, "cwrk-planet", time.Hour, 0)
	tok, err := s.SignAccessToken("user-1", "Pat", time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := s.ParseAndValidate(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-1" || claims.Name != "Pat" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseRejects(t *testing.T) {
	s := NewJWTSigner(testSecret, "cwrk-planet", time.Hour, 0)

	expired, _ := s.SignAccessToken("user-1", "", time.Now().Add(-2*time.Hour))
	other, _ := NewJWTSigner("another-secret-another-secret!!", "cwrk-planet", time.Hour, 0).
		SignAccessToken("user-1", "", time.Now())
	wrongIssuer, _ := NewJWTSigner(testSecret, "someone-else", time.Hour, 0).
		SignAccessToken("user-1", "", time.Now())
	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"expired":      expired,
		"other secret": other,
		"wrong issuer": wrongIssuer,
		"alg none":     noneAlg,
		"garbage":      "not-a-token",
	} {
		if _, err := s.ParseAndValidate(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: err = %v, want ErrInvalidToken", name, err)
		}
	}

	if _, err := s.SignAccessToken(" ", "", time.Now()); !errors.Is(err, ErrInvalidSubject) {
		t.Fatalf("empty subject: err = %v", err)
	}
}
