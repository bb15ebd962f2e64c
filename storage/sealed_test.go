package storage

import (
	"errors"
	"testing"
)

func testKeys() map[string][]byte {
	return map[string][]byte{"1": make([]byte, DefaultAEADKeysize)}
}

func TestSealedStoreRoundTrip(t *testing.T) {
	inner := NewMemoryStore()
	s, err := NewSealedStore(inner, "1", testKeys())
	if err != nil {
		t.Fatal(err)
	}

	if _, ok, err := s.Get("auth_token"); ok || err != nil {
		t.Fatalf("expected absent key, got ok=%t err=%v", ok, err)
	}
	if err := s.Set("auth_token", "secret-token"); err != nil {
		t.Fatal(err)
	}

	// The inner store must not hold the plaintext.
	raw, ok, _ := inner.Get("auth_token")
	if !ok || raw == "secret-token" {
		t.Fatalf("inner value not sealed: %q", raw)
	}

	v, ok, err := s.Get("auth_token")
	if err != nil || !ok || v != "secret-token" {
		t.Fatalf("got %q ok=%t err=%v", v, ok, err)
	}
	if err := s.Delete("auth_token"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := inner.Get("auth_token"); ok {
		t.Fatal("inner key still present after delete")
	}
}

func TestSealedStoreRejectsTampering(t *testing.T) {
	inner := NewMemoryStore()
	s, err := NewSealedStore(inner, "1", testKeys())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set("k", "value"); err != nil {
		t.Fatal(err)
	}
	raw, _, _ := inner.Get("k")

	// Flip the last character of the ciphertext.
	last := raw[len(raw)-1]
	repl := byte('A')
	if last == 'A' {
		repl = 'B'
	}
	inner.Set("k", raw[:len(raw)-1]+string(repl))
	if _, ok, err := s.Get("k"); ok || err == nil {
		t.Fatalf("tampered value: expected error, got ok=%t err=%v", ok, err)
	}

	// Unknown key ID.
	inner.Set("k", "zz."+raw[2:])
	if _, ok, err := s.Get("k"); ok || !errors.Is(err, ErrSealedInvalid) {
		t.Fatalf("unknown keyID: expected ErrSealedInvalid, got ok=%t err=%v", ok, err)
	}

	// Garbage.
	inner.Set("k", "not a sealed value")
	if _, ok, err := s.Get("k"); ok || err == nil {
		t.Fatalf("garbage value: expected error, got ok=%t err=%v", ok, err)
	}
}

func TestSealedStoreValueBoundToKeyName(t *testing.T) {
	inner := NewMemoryStore()
	s, err := NewSealedStore(inner, "1", testKeys())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set("a", "value"); err != nil {
		t.Fatal(err)
	}
	raw, _, _ := inner.Get("a")
	inner.Set("b", raw)
	if _, ok, err := s.Get("b"); ok || err == nil {
		t.Fatalf("value moved between slots must not open, got ok=%t err=%v", ok, err)
	}
}

func TestSealedStoreKeyRotation(t *testing.T) {
	inner := NewMemoryStore()
	oldKey := make([]byte, DefaultAEADKeysize)
	newKey := make([]byte, DefaultAEADKeysize)
	newKey[0] = 1

	s1, err := NewSealedStore(inner, "old", map[string][]byte{"old": oldKey})
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Set("k", "value"); err != nil {
		t.Fatal(err)
	}

	// New deployments seal under "new" but still accept "old".
	s2, err := NewSealedStore(inner, "new", map[string][]byte{"old": oldKey, "new": newKey})
	if err != nil {
		t.Fatal(err)
	}
	v, ok, err := s2.Get("k")
	if err != nil || !ok || v != "value" {
		t.Fatalf("rotated read: got %q ok=%t err=%v", v, ok, err)
	}

	// A store that only knows the new key cannot open the old value.
	s3, err := NewSealedStore(inner, "new", map[string][]byte{"new": newKey})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s3.Get("k"); ok || err == nil {
		t.Fatalf("old value with rotated-out key: expected error, got ok=%t err=%v", ok, err)
	}
}

func TestNewSealedStoreConfig(t *testing.T) {
	if _, err := NewSealedStore(nil, "1", testKeys()); !errors.Is(err, ErrSealedConfig) {
		t.Errorf("nil inner: expected ErrSealedConfig, got %v", err)
	}
	if _, err := NewSealedStore(NewMemoryStore(), "missing", testKeys()); !errors.Is(err, ErrSealedConfig) {
		t.Errorf("unknown keyID: expected ErrSealedConfig, got %v", err)
	}
	if _, err := NewSealedStore(NewMemoryStore(), "1", map[string][]byte{"1": make([]byte, 4)}); !errors.Is(err, ErrSealedConfig) {
		t.Errorf("short key: expected ErrSealedConfig, got %v", err)
	}
}
