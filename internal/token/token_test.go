package token

import (
	"testing"
	"time"
)

func TestGenerateVerify(t *testing.T) {
	secret := []byte("secret")
	tok, err := Generate(KindInstall, "r1", "tab-tweaker", 7, "firefox", "https://downloads.example.com/tab-tweaker.xpi", secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	p, err := Verify(tok, secret, time.Minute)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.Kind != KindInstall || p.RequestID != "r1" || p.Slug != "tab-tweaker" || p.AddonID != 7 ||
		p.App != "firefox" || p.URL != "https://downloads.example.com/tab-tweaker.xpi" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestVerifyExpired(t *testing.T) {
	secret := []byte("s")
	tok, err := Generate(KindOutgoing, "r", "tab-tweaker", 7, "", "https://example.com/home", secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := Verify(tok, secret, time.Millisecond); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyInvalid(t *testing.T) {
	secret := []byte("s")
	tok, _ := Generate(KindInstall, "r", "tab-tweaker", 7, "", "https://example.com/file.xpi", secret)
	if _, err := Verify(tok+"x", secret, time.Minute); err != ErrInvalid {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	tok, _ := Generate(KindInstall, "r", "tab-tweaker", 7, "", "https://example.com/file.xpi", []byte("one"))
	if _, err := Verify(tok, []byte("two"), time.Minute); err != ErrInvalid {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	secret := []byte("s")
	for _, tok := range []string{"", "no-dot", "a.b.c", "!!!.???"} {
		if _, err := Verify(tok, secret, time.Minute); err != ErrInvalid {
			t.Errorf("Verify(%q) = %v, want ErrInvalid", tok, err)
		}
	}
}

func TestTokenKindsDiffer(t *testing.T) {
	secret := []byte("secret")
	install, _ := Generate(KindInstall, "r1", "tab-tweaker", 7, "firefox", "https://example.com/file.xpi", secret)
	p, err := Verify(install, secret, time.Minute)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	// Handlers refuse tokens whose kind does not match the endpoint; the
	// kind must round-trip for that check to work.
	if p.Kind != KindInstall {
		t.Fatalf("kind = %q, want %q", p.Kind, KindInstall)
	}
}
