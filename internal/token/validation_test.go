package token

import (
	"strings"
	"testing"
)

func TestValidateLink(t *testing.T) {
	secret := []byte("test-secret-key")

	t.Run("Valid link passes validation", func(t *testing.T) {
		_, err := Generate(KindInstall, "req1", "tab-tweaker", 1, "firefox", "https://downloads.example.com/a.xpi", secret)
		if err != nil {
			t.Errorf("Expected valid link to pass, got error: %v", err)
		}
	})

	t.Run("Unknown kind rejected", func(t *testing.T) {
		_, err := Generate("refund", "req1", "tab-tweaker", 1, "", "https://example.com", secret)
		if err == nil {
			t.Error("Expected error for unknown kind, got nil")
		}
		if !strings.Contains(err.Error(), "unknown token kind") {
			t.Errorf("Expected 'unknown token kind' error, got: %v", err)
		}
	})

	t.Run("Empty URL rejected", func(t *testing.T) {
		_, err := Generate(KindOutgoing, "req1", "tab-tweaker", 1, "", "", secret)
		if err == nil {
			t.Error("Expected error for empty URL, got nil")
		}
		if !strings.Contains(err.Error(), "cannot be empty") {
			t.Errorf("Expected 'cannot be empty' error, got: %v", err)
		}
	})

	t.Run("URL too long rejected", func(t *testing.T) {
		long := "https://example.com/" + strings.Repeat("x", MaxURLLength)
		_, err := Generate(KindOutgoing, "req1", "tab-tweaker", 1, "", long, secret)
		if err == nil {
			t.Error("Expected error for URL too long, got nil")
		}
		if !strings.Contains(err.Error(), "too long") {
			t.Errorf("Expected 'too long' error, got: %v", err)
		}
	})
}
