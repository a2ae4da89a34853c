package crypto

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerifyAPIKey(t *testing.T) {
	// минимальная стоимость чтобы тесты не тормозили на bcrypt
	hash, err := HashAPIKeyWithCost("secret-key-1", 4)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	if err := VerifyAPIKey("secret-key-1", hash); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}

	if err := VerifyAPIKey("wrong-key", hash); !errors.Is(err, ErrKeyMismatch) {
		t.Errorf("expected ErrKeyMismatch, got %v", err)
	}
}

func TestHashAPIKeyEmptyKey(t *testing.T) {
	if _, err := HashAPIKeyWithCost("", 4); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
}

func TestHashAPIKeyTooLong(t *testing.T) {
	// bcrypt ограничен 72 байтами входа
	long := strings.Repeat("a", 73)
	if _, err := HashAPIKeyWithCost(long, 4); !errors.Is(err, ErrKeyTooLong) {
		t.Errorf("expected ErrKeyTooLong, got %v", err)
	}
}

func TestKeyMatches(t *testing.T) {
	hash, err := HashAPIKeyWithCost("another-key", 4)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	if !KeyMatches("another-key", hash) {
		t.Error("matching key reported as mismatch")
	}
	if KeyMatches("nope", hash) {
		t.Error("non-matching key reported as match")
	}
	if KeyMatches("another-key", "not-a-bcrypt-hash") {
		t.Error("garbage hash must not match")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h1, _ := HashAPIKeyWithCost("same-key", 4)
	h2, _ := HashAPIKeyWithCost("same-key", 4)
	if h1 == h2 {
		t.Error("two hashes of the same key must differ (random salt)")
	}
}
