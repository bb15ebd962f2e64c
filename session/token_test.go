package session

import (
	"errors"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

func mintToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	key := make([]byte, 32)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestDecodeToken(t *testing.T) {
	raw := mintToken(t, map[string]any{
		"sub":     "u1",
		"email":   "a@b.com",
		"name":    "Ada",
		"picture": "https://img.example.com/ada.png",
		"role":    "admin",
	})
	u, err := DecodeToken(raw)
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u1" || u.Email != "a@b.com" || u.Name != "Ada" || u.Picture != "https://img.example.com/ada.png" {
		t.Fatalf("unexpected record: %+v", u)
	}
	// The open claim bag carries everything, including the lifted fields.
	if role, _ := u.Claims["role"].(string); role != "admin" {
		t.Errorf("extra claim not carried: %v", u.Claims["role"])
	}
	if sub, _ := u.Claims["sub"].(string); sub != "u1" {
		t.Errorf("sub not carried in claim bag: %v", u.Claims["sub"])
	}
}

func TestDecodeTokenMalformed(t *testing.T) {
	for _, raw := range []string{"", "notajwt", "a.b", "a.b.c.d"} {
		if _, err := DecodeToken(raw); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("DecodeToken(%q): expected ErrMalformedToken, got %v", raw, err)
		}
	}
}

func TestDecodeTokenNoSubject(t *testing.T) {
	raw := mintToken(t, map[string]any{"email": "a@b.com"})
	if _, err := DecodeToken(raw); !errors.Is(err, ErrNoSubject) {
		t.Errorf("expected ErrNoSubject, got %v", err)
	}
}
